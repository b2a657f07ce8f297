package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:notifications_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Notification{}))
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func TestNotifyAndList(t *testing.T) {
	svc, _ := newTestService(t)
	siteID := uuid.New()
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, "shipment created", "shipment SP01010126 dispatched", siteID.String()))
	require.NoError(t, svc.Notify(ctx, "shipment acknowledged", "shipment SP01010126 acknowledged", siteID.String()))

	result, err := svc.List(ctx, ListParams{SiteID: siteID})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	require.Empty(t, result.Cursor)

	err = svc.Notify(ctx, "subject", "message", "not-a-uuid")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestListPagesWithCursor(t *testing.T) {
	svc, db := newTestService(t)
	siteID := uuid.New()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		row := &models.Notification{
			ID:        uuid.New(),
			SiteID:    siteID,
			Title:     "shipment update",
			Message:   "status changed",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(row).Error)
	}

	first, err := svc.List(ctx, ListParams{SiteID: siteID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.Cursor)

	second, err := svc.List(ctx, ListParams{SiteID: siteID, Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	require.NotEmpty(t, second.Cursor)

	last, err := svc.List(ctx, ListParams{SiteID: siteID, Limit: 2, Cursor: second.Cursor})
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	require.Empty(t, last.Cursor)

	// Newest first, no row repeated or skipped across pages.
	seen := map[uuid.UUID]bool{}
	var previous time.Time
	for i, page := range [][]models.Notification{first.Items, second.Items, last.Items} {
		for _, item := range page {
			require.False(t, seen[item.ID])
			seen[item.ID] = true
			if i > 0 || len(seen) > 1 {
				require.True(t, item.CreatedAt.Before(previous))
			}
			previous = item.CreatedAt
		}
	}
	require.Len(t, seen, 5)

	_, err = svc.List(ctx, ListParams{SiteID: siteID, Cursor: "%%%not-base64%%%"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestMarkRead(t *testing.T) {
	svc, db := newTestService(t)
	siteID := uuid.New()
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, "subject", "message", siteID.String()))
	var stored models.Notification
	require.NoError(t, db.First(&stored).Error)

	require.NoError(t, svc.MarkRead(ctx, siteID, stored.ID))

	var reloaded models.Notification
	require.NoError(t, db.First(&reloaded, "id = ?", stored.ID).Error)
	require.NotNil(t, reloaded.ReadAt)

	// Already-read rows stay found; unknown rows do not.
	require.NoError(t, svc.MarkRead(ctx, siteID, stored.ID))
	err := svc.MarkRead(ctx, siteID, uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestMarkAllReadAndUnreadFilter(t *testing.T) {
	svc, _ := newTestService(t)
	siteID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Notify(ctx, "subject", "message", siteID.String()))
		time.Sleep(time.Millisecond)
	}

	count, err := svc.MarkAllRead(ctx, siteID)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	unread, err := svc.List(ctx, ListParams{SiteID: siteID, UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, unread.Items)
}
