package enrollments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
)

// Repository exposes enrollment record persistence. Records are append-only;
// there is deliberately no update surface.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.EnrollmentRecord) error
	Find(ctx context.Context, id uuid.UUID) (*models.EnrollmentRecord, error)
	ListForSite(ctx context.Context, siteID uuid.UUID, limit, offset int) ([]models.EnrollmentRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an enrollments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.EnrollmentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.EnrollmentRecord, error) {
	var record models.EnrollmentRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListForSite(ctx context.Context, siteID uuid.UUID, limit, offset int) ([]models.EnrollmentRecord, error) {
	var records []models.EnrollmentRecord
	q := r.db.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("created_at DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
