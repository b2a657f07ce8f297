// Package directory provides read-only lookups for studies and sites. The
// records themselves are administered elsewhere; this service only validates
// scope and resolves a site's associated studies.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
)

// Repository exposes directory reads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindStudy(ctx context.Context, id uuid.UUID) (*models.Study, error)
	FindSite(ctx context.Context, id uuid.UUID) (*models.Site, error)
	StudyIDsForSite(ctx context.Context, siteID uuid.UUID) ([]uuid.UUID, error)
	SiteRunsStudy(ctx context.Context, siteID, studyID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a directory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindStudy(ctx context.Context, id uuid.UUID) (*models.Study, error) {
	var study models.Study
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&study).Error; err != nil {
		return nil, err
	}
	return &study, nil
}

func (r *repository) FindSite(ctx context.Context, id uuid.UUID) (*models.Site, error) {
	var site models.Site
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&site).Error; err != nil {
		return nil, err
	}
	return &site, nil
}

func (r *repository) StudyIDsForSite(ctx context.Context, siteID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.StudySite{}).
		Where("site_id = ?", siteID).
		Pluck("study_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) SiteRunsStudy(ctx context.Context, siteID, studyID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StudySite{}).
		Where("site_id = ? AND study_id = ?", siteID, studyID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsNotFound reports whether err is a missing-record lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
