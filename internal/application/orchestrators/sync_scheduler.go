package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SyncSchedulerConfig holds configuration for the sync scheduler.
type SyncSchedulerConfig struct {
	Interval   time.Duration // how often a run is attempted
	RunTimeout time.Duration // upper bound for one run; zero means no bound
	RunOnStart bool
	Enabled    bool
}

// DefaultSyncSchedulerConfig returns the production defaults.
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Interval:   5 * time.Minute,
		RunTimeout: 4 * time.Minute,
		Enabled:    true,
	}
}

// StartSyncScheduler starts a background goroutine that triggers a sync run every interval.
// A tick that lands while a run is still in progress is dropped.
// PRE: Context is valid, runner is initialized
// POST: Goroutine started; the returned stop cancels it and blocks until an in-flight run has been persisted
func StartSyncScheduler(ctx context.Context, runner *SyncRunner, cfg SyncSchedulerConfig) func() {
	if !cfg.Enabled || cfg.Interval <= 0 {
		slog.Info("sync_event", "event", "scheduler_disabled")
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	runner.setNextRun(runner.deps.Now().Add(cfg.Interval))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		if cfg.RunOnStart {
			scheduledRun(ctx, runner, cfg.RunTimeout)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runner.setNextRun(runner.deps.Now().Add(cfg.Interval))
				scheduledRun(ctx, runner, cfg.RunTimeout)
			}
		}
	}()

	slog.Info("sync_event", "event", "scheduler_started", "interval", cfg.Interval.String())
	return func() {
		cancel()
		<-done
	}
}

func scheduledRun(ctx context.Context, runner *SyncRunner, timeout time.Duration) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if _, err := runner.Run(runCtx); err != nil {
		if errors.Is(err, ErrSyncAlreadyRunning) {
			slog.Info("sync_event", "event", "tick_skipped_already_running")
			return
		}
		slog.Error("sync_scheduler_error", "error", err)
	}
}
