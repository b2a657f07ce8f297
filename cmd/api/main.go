package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/medflowlabs/trialops-backend/api/routes"
	"github.com/medflowlabs/trialops-backend/internal/directory"
	"github.com/medflowlabs/trialops-backend/internal/enrollments"
	"github.com/medflowlabs/trialops-backend/internal/inventory"
	"github.com/medflowlabs/trialops-backend/internal/kits"
	"github.com/medflowlabs/trialops-backend/internal/notifications"
	"github.com/medflowlabs/trialops-backend/internal/sequence"
	"github.com/medflowlabs/trialops-backend/internal/shipments"
	"github.com/medflowlabs/trialops-backend/pkg/config"
	"github.com/medflowlabs/trialops-backend/pkg/db"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
	"github.com/medflowlabs/trialops-backend/pkg/migrate"
	"github.com/medflowlabs/trialops-backend/pkg/outbox"
	"github.com/medflowlabs/trialops-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	router, err := buildRouter(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to assemble services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"port":        port,
	})

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api shutting down gracefully")
}

func buildRouter(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (http.Handler, error) {
	gdb := dbClient.DB()

	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg)

	seqGen, err := sequence.NewGenerator(gdb)
	if err != nil {
		return nil, err
	}

	dirRepo := directory.NewRepository(gdb)
	inventoryRepo := inventory.NewRepository(gdb)
	kitsRepo := kits.NewRepository(gdb)
	shipmentsRepo := shipments.NewRepository(gdb)
	enrollmentsRepo := enrollments.NewRepository(gdb)

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gdb))
	if err != nil {
		return nil, err
	}

	inventorySvc, err := inventory.NewService(inventoryRepo, dbClient)
	if err != nil {
		return nil, err
	}

	kitsSvc, err := kits.NewService(kitsRepo, dbClient)
	if err != nil {
		return nil, err
	}

	shipmentsSvc, err := shipments.NewService(
		shipmentsRepo,
		dirRepo,
		inventoryRepo,
		kitsRepo,
		seqGen,
		dbClient,
		outboxService,
		notificationsSvc,
		logg,
	)
	if err != nil {
		return nil, err
	}

	enrollmentsSvc, err := enrollments.NewService(
		enrollmentsRepo,
		shipmentsRepo,
		kitsSvc,
		kitsRepo,
		dirRepo,
		seqGen,
		inventorySvc,
		dbClient,
		outboxService,
		notificationsSvc,
		logg,
	)
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(routes.RouterParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Shipments:     shipmentsSvc,
		Enrollments:   enrollmentsSvc,
		Inventory:     inventorySvc,
		Kits:          kitsSvc,
		Notifications: notificationsSvc,
	}), nil
}
