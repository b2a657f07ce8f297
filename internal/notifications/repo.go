package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	"github.com/medflowlabs/trialops-backend/pkg/pagination"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, query listQuery) ([]models.Notification, *pagination.Cursor, error)
	MarkRead(ctx context.Context, siteID, notificationID uuid.UUID, now time.Time) (markResult, error)
	MarkAllRead(ctx context.Context, siteID uuid.UUID, now time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// listQuery narrows a notification page to one recipient site, optionally
// to unread rows, and to rows older than the cursor position.
type listQuery struct {
	SiteID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

// markResult distinguishes "row updated", "row exists but was already read"
// and "no such row" so the service can map each to the right outcome.
type markResult struct {
	Found   bool
	Updated bool
}

type repo struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repo{db: tx}
}

func (r *repo) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(notification).Error
}

// siteScope is the base query every per-site read goes through.
func (r *repo) siteScope(ctx context.Context, siteID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("site_id = ?", siteID)
}

// List returns one page of notifications, newest first. It fetches one row
// past the page size; when that extra row comes back it becomes the cursor
// for the next page and is dropped from the result.
func (r *repo) List(ctx context.Context, query listQuery) ([]models.Notification, *pagination.Cursor, error) {
	pageSize := pagination.Clamp(query.Limit)

	q := r.siteScope(ctx, query.SiteID)
	if query.UnreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if query.Cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var page []models.Notification
	err := q.Order("created_at DESC, id DESC").
		Limit(pagination.Lookahead(query.Limit)).
		Find(&page).Error
	if err != nil {
		return nil, nil, err
	}
	if len(page) <= pageSize {
		return page, nil, nil
	}

	boundary := page[pageSize]
	next := &pagination.Cursor{CreatedAt: boundary.CreatedAt, ID: boundary.ID}
	return page[:pageSize], next, nil
}

func (r *repo) MarkRead(ctx context.Context, siteID, notificationID uuid.UUID, now time.Time) (markResult, error) {
	update := r.siteScope(ctx, siteID).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", now)
	if update.Error != nil {
		return markResult{}, update.Error
	}
	if update.RowsAffected > 0 {
		return markResult{Found: true, Updated: true}, nil
	}

	// Nothing updated: either the row is already read or it does not exist.
	var count int64
	if err := r.siteScope(ctx, siteID).Where("id = ?", notificationID).Count(&count).Error; err != nil {
		return markResult{}, err
	}
	return markResult{Found: count > 0}, nil
}

func (r *repo) MarkAllRead(ctx context.Context, siteID uuid.UUID, now time.Time) (int64, error) {
	update := r.siteScope(ctx, siteID).
		Where("read_at IS NULL").
		UpdateColumn("read_at", now)
	return update.RowsAffected, update.Error
}

// DeleteOlderThan removes notifications created before cutoff, read or not.
// The housekeeping sweep calls it inside its own transaction.
func (r *repo) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
