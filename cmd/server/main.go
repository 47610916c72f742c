package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	emailPkg "loyalty/internal/adapters/email"
	"loyalty/internal/adapters/feed"
	web "loyalty/internal/adapters/http"
	"loyalty/internal/adapters/http/perf"
	"loyalty/internal/adapters/storage"
	"loyalty/internal/adapters/storage/uow"
	"loyalty/internal/application/orchestrators"
	"loyalty/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("sqlite", storage.DSN(cfg.DBPath))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Connection pool settings for WAL mode
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.InitDB(db); err != nil {
		log.Fatalf("failed to initialise schema: %v", err)
	}

	// Performance instrumentation: wrap DB and provider calls with timing
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector)
	stores := uow.NewStores(timedDB)
	runner := uow.NewSQLRunner(timedDB)
	fetcher := feed.NewTimedFetcher(feed.NewClient(nil), collector)

	var sender emailPkg.Sender
	if cfg.Alerts.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.Alerts.ResendKey, cfg.Alerts.From)
		slog.Info("startup_event", "event", "email_configured", "provider", "resend", "recipients", len(cfg.Alerts.Recipients))
	} else {
		sender = emailPkg.NewNoopSender()
		if cfg.IsProduction() {
			slog.Warn("startup_event", "event", "email_disabled", "reason", "LOYALTY_RESEND_KEY is not set")
		}
	}

	syncRunner := orchestrators.NewSyncRunner(orchestrators.SyncRunnerDeps{
		BrandStore: stores.Brands,
		RunStore:   stores.Runs,
		Runner:     runner,
		Feed:       fetcher,
		Notifier:   orchestrators.NewSyncAlertNotifier(sender, cfg.Alerts.Recipients),
		Now:        time.Now,
	}, orchestrators.SyncRunnerConfig{
		Interval:           cfg.Sync.Interval.Std(),
		BrandConcurrency:   cfg.Sync.BrandConcurrency,
		MaxVersionAttempts: cfg.Sync.MaxVersionAttempts,
	})
	if err := syncRunner.LoadLastRun(ctx); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Fatalf("failed to load last sync run: %v", err)
	}

	stopScheduler := orchestrators.StartSyncScheduler(ctx, syncRunner, orchestrators.SyncSchedulerConfig{
		Interval:   cfg.Sync.Interval.Std(),
		RunTimeout: cfg.Sync.RunTimeout.Std(),
		RunOnStart: cfg.Sync.RunOnStart,
		Enabled:    cfg.Sync.Enabled,
	})
	// Deferred after db.Close so it runs first and an in-flight run is persisted.
	defer stopScheduler()

	if cfg.AdminTokenHash == "" {
		slog.Warn("startup_event", "event", "admin_api_disabled", "reason", "no admin token hash configured")
	}
	handler := web.NewRouter(ctx, web.Deps{
		Sync:               syncRunner,
		Runner:             runner,
		Stores:             stores,
		Collector:          collector,
		AdminTokenHash:     cfg.AdminTokenHash,
		SyncRunTimeout:     cfg.Sync.RunTimeout.Std(),
		MaxVersionAttempts: cfg.Sync.MaxVersionAttempts,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("startup_event", "event", "listening", "version", version, "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown_event", "event", "signal_received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown_event", "event", "http_shutdown_failed", "error", err)
	}
}
