// Command mobile-boilerplate-api serves the users CRUD API.
//
// Configuration comes from flags, the environment and an optional .env file;
// run with --help for the full list.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/Skryldev/mobile-boilerplate-api/api"
	"github.com/Skryldev/mobile-boilerplate-api/config"
	"github.com/Skryldev/mobile-boilerplate-api/db"
	"github.com/Skryldev/mobile-boilerplate-api/migrations"
	"github.com/Skryldev/mobile-boilerplate-api/repo"
	"github.com/Skryldev/mobile-boilerplate-api/telemetry"

	// database/sql drivers self-register; the db package knows their dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server: exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	logger := cfg.Log.Logger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────
	tel, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: api.ServiceVersion,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Warn("telemetry: shutdown", "error", err)
		}
	}()

	// ── Database ──────────────────────────────────────────────────────────
	dbCfg, err := cfg.Database.DBConfig(
		cfg.Database.LogHook(logger),
		db.NewTracingHook(tel.QueryTracer(cfg.Database.Driver)),
		db.NewMetricsHook(tel.QueryMetrics()),
	)
	if err != nil {
		return err
	}

	var database *db.DB
	err = db.WithRetry(ctx, db.RetryConfig{
		MaxAttempts: cfg.Database.ConnectAttempts,
		Delay:       cfg.Database.ConnectDelay,
		OnRetry: func(attempt int, err error) {
			logger.Warn("database: connect failed, retrying", "attempt", attempt, "error", err)
		},
	}, func() error {
		database, err = db.Open(dbCfg)
		return err
	})
	if err != nil {
		return fmt.Errorf("database: connect: %w", err)
	}
	defer database.Close()
	logger.Info("database: connected", "driver", cfg.Database.Driver)

	poolStats, err := tel.ObservePool(database, cfg.Database.Driver)
	if err != nil {
		return err
	}
	defer func() { _ = poolStats.Unregister() }()

	if cfg.AutoMigrate {
		if err := migrations.Up(cfg.Database.Driver, dbCfg.DSN); err != nil {
			return err
		}
		logger.Info("database: migrations applied")
	}

	// ── HTTP ──────────────────────────────────────────────────────────────
	handler := api.NewHandler(repo.NewUserRepo(database), database, logger)
	app := api.New(handler, api.Options{
		CORSOrigins: cfg.CORSOrigins,
		AccessLog:   true,
		Middleware:  []fiber.Handler{tel.Middleware()},
		Logger:      logger,
	})

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(cfg.Addr(), fiber.ListenConfig{DisableStartupMessage: true})
	}()
	logger.Info("server: listening",
		"addr", cfg.Addr(),
		"health", fmt.Sprintf("http://localhost:%d/health", cfg.Port),
	)

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("server: shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
