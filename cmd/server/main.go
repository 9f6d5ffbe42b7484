package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plannerhq/webhook-engine/internal/api"
	"github.com/plannerhq/webhook-engine/internal/config"
	"github.com/plannerhq/webhook-engine/internal/engine"
	"github.com/plannerhq/webhook-engine/internal/store"
	ws "github.com/plannerhq/webhook-engine/internal/websocket"
	"github.com/plannerhq/webhook-engine/internal/worker"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis for the scan lock, circuit breaker, and rate limiter
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	// WebSocket hub streaming delivery attempts to connected clients
	hub := ws.NewHub(logger)
	go hub.Run()

	// Delivery executor and its per-destination protections
	breaker := engine.NewCircuitBreaker(redisClient, 0, 0, logger)
	limiter := engine.NewRateLimiter(redisClient, 10, logger)
	deliverer := worker.NewDeliverer(worker.Config{
		Timeout:     cfg.Webhooks.DeliveryTimeout(),
		TestTimeout: cfg.Webhooks.TestTimeout(),
		UserAgent:   cfg.Webhooks.UserAgent,
	}, pgStore, pgStore, breaker, limiter, hub, logger)

	// Scheduled event trigger scanner
	lock := engine.NewCycleLock(redisClient, 0, logger)
	scanner := engine.NewScanner(pgStore, deliverer, lock, cfg.Webhooks.ScanInterval(), cfg.Webhooks.SuppressionWindow(), logger)
	scanner.Start(ctx)

	// Reactive task triggers fired from the API layer
	triggers := engine.NewTaskTriggers(deliverer, logger)

	router := api.NewRouter(pgStore, deliverer, triggers, hub, cfg.Auth.JWTSecret, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Stop firing new webhooks before closing the HTTP surface so in-flight
	// retry chains can wind down.
	scanner.Stop()
	triggers.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
