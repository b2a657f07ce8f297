package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflowlabs/trialops-backend/internal/notifications"
	pkgAuth "github.com/medflowlabs/trialops-backend/pkg/auth"
	"github.com/medflowlabs/trialops-backend/pkg/config"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, ok := value.(string)
	if !ok {
		raw, isBytes := value.([]byte)
		if !isBytes {
			return false, nil
		}
		str = string(raw)
	}
	m.data[key] = str
	return true, nil
}

func (m *memoryCache) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryCache) Ping(context.Context) error { return nil }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type stubNotificationsService struct {
	listed notifications.ListParams
}

func (s *stubNotificationsService) Notify(context.Context, string, string, string) error {
	return nil
}

func (s *stubNotificationsService) List(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	s.listed = params
	return &notifications.ListResult{}, nil
}

func (s *stubNotificationsService) MarkRead(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (s *stubNotificationsService) MarkAllRead(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

func routerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT = config.JWTConfig{
		Secret:            "test-secret-test-secret-test-1234",
		Issuer:            "trialops-test",
		ExpirationMinutes: 5,
	}
	cfg.Inventory.LowStockThreshold = 10
	return cfg
}

func newTestRouter(t *testing.T, notificationsSvc notifications.Service) http.Handler {
	t.Helper()
	return NewRouter(RouterParams{
		Config:        routerConfig(),
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:            okPinger{},
		Redis:         newMemoryCache(),
		Notifications: notificationsSvc,
	})
}

func bearerToken(t *testing.T, siteID *uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(routerConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		SiteID: siteID,
		Role:   role,
		JTI:    uuid.NewString(),
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouterPublicPing(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/public/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"scope":"public"`)
}

func TestRouterHealthLive(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRouterHealthReady(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRouterRejectsUnauthenticated(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shipments", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRouterSponsorCannotSubmitEnrollments(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/enrollments", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearerToken(t, nil, enums.RoleSponsor))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestRouterCoordinatorCannotImportKits(t *testing.T) {
	siteID := uuid.New()
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/kits/import", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearerToken(t, &siteID, enums.RoleCoordinator))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestRouterNotificationsRequireSite(t *testing.T) {
	router := newTestRouter(t, &stubNotificationsService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", bearerToken(t, nil, enums.RoleSponsor))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestRouterNotificationsListForSite(t *testing.T) {
	siteID := uuid.New()
	svc := &stubNotificationsService{}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=5&unreadOnly=true", nil)
	req.Header.Set("Authorization", bearerToken(t, &siteID, enums.RoleCoordinator))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, siteID, svc.listed.SiteID)
	assert.Equal(t, 5, svc.listed.Limit)
	assert.True(t, svc.listed.UnreadOnly)
}
