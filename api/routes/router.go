package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medflowlabs/trialops-backend/api/controllers"
	"github.com/medflowlabs/trialops-backend/api/middleware"
	"github.com/medflowlabs/trialops-backend/internal/enrollments"
	"github.com/medflowlabs/trialops-backend/internal/inventory"
	"github.com/medflowlabs/trialops-backend/internal/kits"
	"github.com/medflowlabs/trialops-backend/internal/notifications"
	"github.com/medflowlabs/trialops-backend/internal/shipments"
	"github.com/medflowlabs/trialops-backend/pkg/config"
	"github.com/medflowlabs/trialops-backend/pkg/db"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
	pkgredis "github.com/medflowlabs/trialops-backend/pkg/redis"
)

// CacheClient is what the router needs from Redis: idempotency storage and
// a connectivity check for readiness.
type CacheClient interface {
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
}

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         CacheClient
	Shipments     shipments.Service
	Enrollments   enrollments.Service
	Inventory     inventory.Service
	Kits          kits.Service
	Notifications notifications.Service
}

// NewRouter assembles the API. Sponsors manage inventory, kits and dispatch;
// coordinators acknowledge shipments and submit enrollments; monitors read.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Post("/validate", controllers.PublicValidate(logg))
	})

	sponsorOnly := middleware.RequireRole(logg, enums.RoleSponsor)
	coordinatorOnly := middleware.RequireRole(logg, enums.RoleCoordinator)
	anyReader := middleware.RequireRole(logg, enums.RoleSponsor, enums.RoleCoordinator, enums.RoleMonitor)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/shipments", func(r chi.Router) {
			r.With(sponsorOnly).Post("/", controllers.CreateShipment(params.Shipments, logg))
			r.With(sponsorOnly).Post("/{shipmentId}/sent", controllers.MarkShipmentSent(params.Shipments, logg))
			r.With(coordinatorOnly, middleware.RequireSite(logg)).Post("/{shipmentId}/acknowledge", controllers.AcknowledgeShipment(params.Shipments, logg))
			r.With(anyReader, middleware.RequireSite(logg)).Get("/", controllers.ListShipments(params.Shipments, logg))
			r.With(anyReader).Get("/{shipmentId}", controllers.GetShipment(params.Shipments, logg))
			r.With(anyReader).Get("/{shipmentId}/available-units", controllers.ListAvailableUnits(params.Shipments, logg))
		})

		r.Route("/v1/enrollments", func(r chi.Router) {
			r.With(coordinatorOnly, middleware.RequireSite(logg)).Post("/", controllers.SubmitEnrollment(params.Enrollments, logg))
			r.With(anyReader, middleware.RequireSite(logg)).Get("/", controllers.ListEnrollments(params.Enrollments, logg))
			r.With(anyReader).Get("/{enrollmentId}", controllers.GetEnrollment(params.Enrollments, logg))
		})

		r.Route("/v1/drugs", func(r chi.Router) {
			r.With(sponsorOnly).Post("/{drugId}/restock", controllers.RestockDrug(params.Inventory, logg))
			r.With(sponsorOnly).Put("/{drugId}/quantity", controllers.SetDrugQuantity(params.Inventory, logg))
			r.With(anyReader).Get("/low-stock", controllers.ListLowStockDrugs(params.Inventory, logg, cfg.Inventory.LowStockThreshold))
			r.With(anyReader).Get("/out-of-stock", controllers.ListOutOfStockDrugs(params.Inventory, logg))
		})

		r.Route("/v1/kits", func(r chi.Router) {
			r.With(sponsorOnly).Post("/import", controllers.ImportKitRows(params.Kits, logg))
			r.With(anyReader).Get("/available", controllers.ListAvailableKitRows(params.Kits, logg))
		})

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Use(middleware.RequireSite(logg))
			r.Get("/", controllers.ListNotifications(params.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(params.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(params.Notifications, logg))
		})
	})

	return r
}
