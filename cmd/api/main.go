package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BarkinBalci/event-sourcing-service/internal/app"
	"github.com/BarkinBalci/event-sourcing-service/internal/config"
	"github.com/BarkinBalci/event-sourcing-service/internal/logger"
	"github.com/BarkinBalci/event-sourcing-service/internal/telemetry"
)

// @title Event Sourcing Service API
// @version 1.0
// @description API for appending events, reading streams, and managing subscriptions, projections and replays
// @host localhost:8080
// @BasePath /
// @schemes http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment, cfg.Service.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	log.Info("Starting API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("queue", cfg.Queue.Backend),
		zap.Bool("embedded_workers", cfg.Service.EmbeddedWorkers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Service.Name, cfg.Service.Environment, cfg.OTel, log)
	if err != nil {
		log.Fatal("Failed to set up tracing", zap.Error(err))
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize service", zap.Error(err))
	}

	server := &http.Server{
		Addr:              ":" + cfg.Service.APIPort,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("API server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if cfg.Service.EmbeddedWorkers {
		g.Go(func() error {
			return a.RunWorkers(gctx)
		})
	} else {
		// Replays match against the subscription index; keep it in step with the workers.
		g.Go(func() error {
			return a.RunSubscriptionRefresh(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down API service gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("API service stopped with error", zap.Error(err))
	}

	if err := a.Close(); err != nil {
		log.Error("Failed to close components", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Failed to flush traces", zap.Error(err))
	}

	log.Info("API service stopped")
}
