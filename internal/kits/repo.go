package kits

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
)

// Repository exposes kit row pool persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRows(ctx context.Context, rows []models.KitRow) error
	FindRow(ctx context.Context, id uuid.UUID) (*models.KitRow, error)
	ClaimOldestUnused(ctx context.Context, studyIDs []uuid.UUID) (*models.KitRow, error)
	CountUnused(ctx context.Context, studyIDs []uuid.UUID) (int64, error)
	LinkEnrollment(ctx context.Context, rowID, enrollmentID uuid.UUID) error
	ListUnused(ctx context.Context, studyIDs []uuid.UUID, limit int) ([]models.KitRow, error)
	MaxPosition(ctx context.Context, studyID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a kit pool repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRows(ctx context.Context, rows []models.KitRow) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repository) FindRow(ctx context.Context, id uuid.UUID) (*models.KitRow, error) {
	var row models.KitRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ClaimOldestUnused selects and flips the FIFO-first unused row in one
// statement. The is_used guard on the outer UPDATE makes the claim
// conditional: when a concurrent transaction wins the same candidate the
// statement matches nothing and the caller retries. Returns
// gorm.ErrRecordNotFound when nothing was claimed.
func (r *repository) ClaimOldestUnused(ctx context.Context, studyIDs []uuid.UUID) (*models.KitRow, error) {
	var claimedID uuid.UUID
	res := r.db.WithContext(ctx).Raw(
		`UPDATE kit_rows
		 SET is_used = ?, used_at = CURRENT_TIMESTAMP
		 WHERE id = (
		     SELECT id FROM kit_rows
		     WHERE is_used = ? AND study_id IN ?
		     ORDER BY position ASC
		     LIMIT 1
		 ) AND is_used = ?
		 RETURNING id`,
		true, false, studyIDs, false,
	).Scan(&claimedID)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 || claimedID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindRow(ctx, claimedID)
}

func (r *repository) CountUnused(ctx context.Context, studyIDs []uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.KitRow{}).
		Where("is_used = ? AND study_id IN ?", false, studyIDs).
		Count(&count).Error
	return count, err
}

func (r *repository) LinkEnrollment(ctx context.Context, rowID, enrollmentID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.KitRow{}).
		Where("id = ?", rowID).
		Update("enrollment_record_id", enrollmentID).Error
}

func (r *repository) ListUnused(ctx context.Context, studyIDs []uuid.UUID, limit int) ([]models.KitRow, error) {
	var rows []models.KitRow
	q := r.db.WithContext(ctx).
		Where("is_used = ? AND study_id IN ?", false, studyIDs).
		Order("position ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MaxPosition(ctx context.Context, studyID uuid.UUID) (int64, error) {
	var max *int64
	err := r.db.WithContext(ctx).
		Model(&models.KitRow{}).
		Where("study_id = ?", studyID).
		Select("MAX(position)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}
