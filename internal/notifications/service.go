// Package notifications stores in-app messages for site staff and consumes
// domain events that should surface as alerts. Delivery is best effort
// throughout; the producing operations never fail on a notification error.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/pagination"
)

// Service defines notification operations.
type Service interface {
	// Notify records a message for the recipient site. Recipient is the
	// site id in string form; unparsable recipients are rejected.
	Notify(ctx context.Context, subject, message, recipient string) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, siteID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, siteID uuid.UUID) (int64, error)
}

// ListParams configures pagination for notifications.
type ListParams struct {
	SiteID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
// Cursor is empty on the last page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Notify(ctx context.Context, subject, message, recipient string) error {
	siteID, err := uuid.Parse(recipient)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "notification recipient must be a site id")
	}

	err = s.repo.Create(ctx, &models.Notification{
		SiteID:  siteID,
		Type:    enums.NotificationTypeGeneral,
		Title:   subject,
		Message: message,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist notification")
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.SiteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "site id required")
	}
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.List(ctx, listQuery{
		SiteID:     params.SiteID,
		Limit:      params.Limit,
		Cursor:     cursor,
		UnreadOnly: params.UnreadOnly,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = next.Encode()
	}
	return result, nil
}

func (s *service) MarkRead(ctx context.Context, siteID, notificationID uuid.UUID) error {
	if siteID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "site id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	mark, err := s.repo.MarkRead(ctx, siteID, notificationID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	// Re-reading an already-read notification is a no-op, not an error.
	if !mark.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, siteID uuid.UUID) (int64, error) {
	if siteID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "site id required")
	}

	count, err := s.repo.MarkAllRead(ctx, siteID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
