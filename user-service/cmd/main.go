package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/receiptmaster/backend/shared/events"
	"github.com/receiptmaster/backend/shared/metrics"
	redisClient "github.com/receiptmaster/backend/shared/redis"
	"github.com/receiptmaster/backend/user-service/internal/audit"
	usercmd "github.com/receiptmaster/backend/user-service/internal/command"
	"github.com/receiptmaster/backend/user-service/internal/config"
	"github.com/receiptmaster/backend/user-service/internal/handler"
	"github.com/receiptmaster/backend/user-service/internal/migrations"
	userqry "github.com/receiptmaster/backend/user-service/internal/query"
	"github.com/receiptmaster/backend/user-service/internal/repository"
	"github.com/receiptmaster/backend/user-service/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("user service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection (write store, source of truth)
	db, err := sql.Open("postgres", cfg.PG.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err := migrations.Up(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Redis connection (read cache + event streaming)
	redis, err := redisClient.NewClient(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		URL:      cfg.Redis.URL,
	})
	if err != nil {
		return err
	}
	defer redis.Close()

	// --- CQRS wiring ---
	publisher := events.NewPublisher(redis.Client, events.UserEventsStream)

	writeRepo := repository.NewUserWriteRepository(db)
	readRepo := repository.NewUserReadRepository(db, redis.Client, cfg.Redis.CacheTTL)

	commandSvc := usercmd.NewUserCommandService(writeRepo, readRepo, publisher, logger)
	querySvc := userqry.NewUserQueryService(readRepo)

	collector := metrics.New("receiptmaster_users")
	userHandler := handler.NewUserHandler(commandSvc, querySvc, collector)

	router := server.NewRouter(server.Dependencies{
		Config:  cfg,
		Users:   userHandler,
		Metrics: collector,
		Logger:  logger,
	})

	// Audit trail of user lifecycle events
	subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
		Group:    "user-audit-group",
		Consumer: auditConsumerName(os.Hostname, os.Getpid()),
		Stream:   events.UserEventsStream,
		Handler:  audit.NewRecorder(logger).HandleUserEvent,
		Logger:   logger,
	})
	subscriberDone := make(chan struct{})
	go func() {
		defer close(subscriberDone)
		if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("subscriber stopped", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("user service starting", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		stop()
		<-subscriberDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-subscriberDone
	return nil
}

// auditConsumerName names this process within the audit consumer group.
// Pending entries belong to a consumer name, so the hostname, which survives
// restarts, is preferred over the pid.
func auditConsumerName(hostname func() (string, error), pid int) string {
	name, err := hostname()
	if err != nil || name == "" {
		return fmt.Sprintf("user-audit-pid-%d", pid)
	}
	return "user-audit-" + name
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
