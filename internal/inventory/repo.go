package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
)

// Repository exposes the drug ledger persistence surface.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindDrug(ctx context.Context, id uuid.UUID) (*models.Drug, error)
	FindDrugGroup(ctx context.Context, id uuid.UUID) (*models.DrugGroup, error)
	CreateDrug(ctx context.Context, drug *models.Drug) error
	Restock(ctx context.Context, id uuid.UUID, delta int) (int64, error)
	ConsumeRemaining(ctx context.Context, id uuid.UUID, amount int) (int64, error)
	SetTotal(ctx context.Context, id uuid.UUID, newTotal int) (int64, error)
	ListLowStock(ctx context.Context, studyID uuid.UUID, threshold int) ([]models.Drug, error)
	ListOutOfStock(ctx context.Context, studyID uuid.UUID) ([]models.Drug, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindDrug(ctx context.Context, id uuid.UUID) (*models.Drug, error) {
	var drug models.Drug
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&drug).Error; err != nil {
		return nil, err
	}
	return &drug, nil
}

func (r *repository) FindDrugGroup(ctx context.Context, id uuid.UUID) (*models.DrugGroup, error) {
	var group models.DrugGroup
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("id = ?", id).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) CreateDrug(ctx context.Context, drug *models.Drug) error {
	return r.db.WithContext(ctx).Create(drug).Error
}

// Restock raises both counters in one statement so the ledger invariant
// holds without a read.
func (r *repository) Restock(ctx context.Context, id uuid.UUID, delta int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Drug{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_qty":     gorm.Expr("total_qty + ?", delta),
			"remaining_qty": gorm.Expr("remaining_qty + ?", delta),
		})
	return res.RowsAffected, res.Error
}

// ConsumeRemaining decrements remaining only when enough stock is left. A
// zero RowsAffected means the guard failed (or the drug is missing); callers
// distinguish the two.
func (r *repository) ConsumeRemaining(ctx context.Context, id uuid.UUID, amount int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Drug{}).
		Where("id = ? AND remaining_qty >= ?", id, amount).
		Update("remaining_qty", gorm.Expr("remaining_qty - ?", amount))
	return res.RowsAffected, res.Error
}

// SetTotal rewrites the total and clamps remaining down when the new total
// falls below it.
func (r *repository) SetTotal(ctx context.Context, id uuid.UUID, newTotal int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Drug{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_qty":     newTotal,
			"remaining_qty": gorm.Expr("CASE WHEN remaining_qty > ? THEN ? ELSE remaining_qty END", newTotal, newTotal),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListLowStock(ctx context.Context, studyID uuid.UUID, threshold int) ([]models.Drug, error) {
	var drugs []models.Drug
	q := r.db.WithContext(ctx).
		Where("remaining_qty <= ?", threshold).
		Order("remaining_qty ASC, name ASC")
	if studyID != uuid.Nil {
		q = q.Where("study_id = ?", studyID)
	}
	if err := q.Find(&drugs).Error; err != nil {
		return nil, err
	}
	return drugs, nil
}

func (r *repository) ListOutOfStock(ctx context.Context, studyID uuid.UUID) ([]models.Drug, error) {
	var drugs []models.Drug
	q := r.db.WithContext(ctx).
		Where("remaining_qty = 0").
		Order("name ASC")
	if studyID != uuid.Nil {
		q = q.Where("study_id = ?", studyID)
	}
	if err := q.Find(&drugs).Error; err != nil {
		return nil, err
	}
	return drugs, nil
}
