package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"loyalty/internal/adapters/feed"
	"loyalty/internal/adapters/storage/uow"
	"loyalty/internal/domain/brand"
	"loyalty/internal/domain/member"
	"loyalty/internal/domain/syncrun"
	"loyalty/internal/domain/transaction"
)

// SyncBrandStore defines the brand store interface needed by the sync run.
type SyncBrandStore interface {
	ListSyncable(ctx context.Context) ([]brand.Brand, error)
	AdvanceWindowStore
}

// SyncRunStore defines the run history store interface needed by the sync run.
type SyncRunStore interface {
	Save(ctx context.Context, r syncrun.Run) error
	GetLatest(ctx context.Context) (syncrun.Run, error)
}

// FeedFetcher fetches one window of provider records.
type FeedFetcher interface {
	Fetch(ctx context.Context, req feed.Request) (feed.Result, error)
}

// RunNotifier is told about every finished run that needs operator attention.
type RunNotifier interface {
	NotifyRun(ctx context.Context, run syncrun.Run) error
}

// SyncRunnerDeps holds dependencies for SyncRunner.
type SyncRunnerDeps struct {
	BrandStore SyncBrandStore
	RunStore   SyncRunStore
	Runner     uow.Runner
	Feed       FeedFetcher
	Notifier   RunNotifier // optional
	Now        func() time.Time
}

// SyncRunnerConfig holds tuning for SyncRunner.
type SyncRunnerConfig struct {
	Interval           time.Duration // reported in Stats; the scheduler owns the ticker
	BrandConcurrency   int           // brands synced in parallel; records within a brand stay sequential
	MaxVersionAttempts int
}

// SyncStats is a read-only snapshot of the runner.
type SyncStats struct {
	IsRunning bool          `json:"is_running"`
	LastRun   *syncrun.Run  `json:"last_run,omitempty"`
	Schedule  string        `json:"schedule"`
	Interval  time.Duration `json:"interval_ns"`
	NextRunAt time.Time     `json:"next_run_at,omitempty"`
}

// SyncRunner pulls every brand's provider window and merges it into the ledger.
// At most one run is in progress at a time.
type SyncRunner struct {
	deps    SyncRunnerDeps
	cfg     SyncRunnerConfig
	running atomic.Bool

	mu        sync.RWMutex
	lastRun   *syncrun.Run
	nextRunAt time.Time
}

// NewSyncRunner creates a SyncRunner.
// PRE: deps stores, runner and feed are non-nil
func NewSyncRunner(deps SyncRunnerDeps, cfg SyncRunnerConfig) *SyncRunner {
	if cfg.BrandConcurrency <= 0 {
		cfg.BrandConcurrency = 1
	}
	if cfg.MaxVersionAttempts <= 0 {
		cfg.MaxVersionAttempts = DefaultMaxVersionAttempts
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &SyncRunner{deps: deps, cfg: cfg}
}

// LoadLastRun primes Stats with the newest persisted run.
func (r *SyncRunner) LoadLastRun(ctx context.Context) error {
	run, err := r.deps.RunStore.GetLatest(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.lastRun = &run
	r.mu.Unlock()
	return nil
}

// Stats reports whether a run is in progress, the last run, and the schedule.
func (r *SyncRunner) Stats() SyncStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := SyncStats{
		IsRunning: r.running.Load(),
		Schedule:  "disabled",
		Interval:  r.cfg.Interval,
		NextRunAt: r.nextRunAt,
	}
	if r.cfg.Interval > 0 {
		stats.Schedule = "every " + r.cfg.Interval.String()
	}
	if r.lastRun != nil {
		last := *r.lastRun
		stats.LastRun = &last
	}
	return stats
}

// setNextRun records when the scheduler will fire next.
func (r *SyncRunner) setNextRun(t time.Time) {
	r.mu.Lock()
	r.nextRunAt = t
	r.mu.Unlock()
}

// Run performs one pass over every syncable brand.
// PRE: ctx bounds the whole run; cancelling it cancels in-flight HTTP and database work
// POST: the run is persisted and the running flag is released whatever the outcome
// POST: returns ErrSyncAlreadyRunning with Status already_running if a run is in progress
func (r *SyncRunner) Run(ctx context.Context) (syncrun.Run, error) {
	if !r.running.CompareAndSwap(false, true) {
		slog.Info("sync_event", "event", "run_rejected_already_running")
		return syncrun.Run{Status: syncrun.StatusAlreadyRunning}, ErrSyncAlreadyRunning
	}
	defer r.running.Store(false)

	run := syncrun.Start(uuid.New().String(), r.deps.Now())
	persistCtx := context.WithoutCancel(ctx)
	if err := r.deps.RunStore.Save(persistCtx, run); err != nil {
		slog.Error("sync_run_save_failed", "run_id", run.ID, "error", err)
	}
	slog.Info("sync_event", "event", "run_started", "run_id", run.ID)

	cause := r.runBrands(ctx, &run)
	if err := run.Finish(r.deps.Now(), cause); err != nil {
		slog.Error("sync_run_finish_failed", "run_id", run.ID, "error", err)
	}
	if err := r.deps.RunStore.Save(persistCtx, run); err != nil {
		slog.Error("sync_run_save_failed", "run_id", run.ID, "error", err)
	}

	r.mu.Lock()
	finished := run
	r.lastRun = &finished
	r.mu.Unlock()

	slog.Info("sync_event", "event", "run_finished",
		"run_id", run.ID,
		"status", run.Status,
		"processed", run.Processed,
		"errors", run.Errors,
		"brands_processed", run.BrandsProcessed,
		"brands_failed", run.BrandsFailed,
		"brands_skipped", run.BrandsSkipped,
		"duration_ms", run.Duration().Milliseconds())

	if r.deps.Notifier != nil && run.NeedsAttention() {
		if err := r.deps.Notifier.NotifyRun(persistCtx, run); err != nil {
			slog.Error("sync_alert_failed", "run_id", run.ID, "error", err)
		}
	}
	return run, nil
}

// runBrands syncs every brand and folds the outcomes into run.
// A non-nil return marks the run failed.
func (r *SyncRunner) runBrands(ctx context.Context, run *syncrun.Run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("sync_run_panic", "run_id", run.ID, "panic", fmt.Sprint(p))
			err = fmt.Errorf("sync run panicked: %v", p)
		}
	}()

	brands, err := r.deps.BrandStore.ListSyncable(ctx)
	if err != nil {
		return fmt.Errorf("list syncable brands: %w", err)
	}

	results := make([]syncrun.BrandResult, len(brands))
	var g errgroup.Group
	g.SetLimit(r.cfg.BrandConcurrency)
	for i, b := range brands {
		g.Go(func() (goErr error) {
			defer func() {
				if p := recover(); p != nil {
					slog.Error("sync_brand_panic", "brand_id", b.ID, "panic", fmt.Sprint(p))
					goErr = fmt.Errorf("brand %s panicked: %v", b.ID, p)
					results[i] = syncrun.BrandResult{
						BrandID:     b.ID,
						BrandName:   b.Name,
						WindowStart: b.Window.Start,
						WindowEnd:   b.Window.End,
						Outcome:     syncrun.BrandFailed,
						Reason:      goErr.Error(),
					}
				}
			}()
			results[i] = r.syncBrand(ctx, b)
			return nil
		})
	}
	waitErr := g.Wait()

	for _, res := range results {
		if res.BrandID != "" {
			run.AddBrand(res)
		}
	}
	if waitErr != nil {
		return waitErr
	}
	return ctx.Err()
}

// syncBrand runs fetch, transform, resolve, reconcile and advance for one brand.
// Brand-level failures leave the window where it was so the next run retries it.
func (r *SyncRunner) syncBrand(ctx context.Context, b brand.Brand) syncrun.BrandResult {
	res := syncrun.BrandResult{
		BrandID:     b.ID,
		BrandName:   b.Name,
		WindowStart: b.Window.Start,
		WindowEnd:   b.Window.End,
	}
	fail := func(reason string) syncrun.BrandResult {
		res.Outcome = syncrun.BrandFailed
		res.Reason = reason
		slog.Warn("sync_event", "event", "brand_failed", "brand_id", b.ID, "reason", reason)
		return res
	}

	reason, err := b.SyncEligibility(r.deps.Now())
	if err != nil {
		return fail(fmt.Sprintf("invalid sync window: %v", err))
	}
	if reason != "" {
		res.Outcome = syncrun.BrandSkipped
		res.Reason = reason
		slog.Debug("sync_event", "event", "brand_skipped", "brand_id", b.ID, "reason", reason)
		return res
	}
	loc, err := b.Settings.Location()
	if err != nil {
		return fail(fmt.Sprintf("invalid timezone: %v", err))
	}

	fetched, err := r.deps.Feed.Fetch(ctx, feed.RequestFor(b))
	if err != nil {
		return fail(err.Error())
	}
	res.Fetched = len(fetched.Transactions)
	slog.Info("sync_event", "event", "brand_fetched", "brand_id", b.ID, "records", res.Fetched,
		"window_start", b.Window.Start, "window_end", b.Window.End, "attempts", fetched.Attempts)

	for _, raw := range fetched.Transactions {
		if err := ctx.Err(); err != nil {
			return fail(err.Error())
		}
		t, err := feed.Transform(raw, loc)
		if err != nil {
			res.Errors++
			slog.Warn("sync_record_failed", "brand_id", b.ID, "stage", "transform", "error", err)
			continue
		}
		t.BrandID = b.ID

		outcome, err := r.syncRecord(ctx, b, t)
		if err != nil {
			var recErr *RecordError
			if errors.As(err, &recErr) || errors.Is(err, member.ErrVersionConflict) {
				res.Errors++
				slog.Warn("sync_record_failed", "brand_id", b.ID, "stage", "reconcile", "reference_id", t.ReferenceID, "error", err)
				continue
			}
			return fail(dbError("sync record "+t.ReferenceID, err).Error())
		}
		switch outcome {
		case OutcomeCreated:
			res.Created++
		case OutcomeUpdated:
			res.Updated++
		case OutcomeUnchanged:
			res.Unchanged++
		}
	}

	if _, err := ExecuteAdvanceWindow(ctx, b, AdvanceWindowDeps{BrandStore: r.deps.BrandStore, Now: r.deps.Now}); err != nil {
		return fail(fmt.Sprintf("advance window: %v", err))
	}
	res.Outcome = syncrun.BrandSynced
	slog.Info("sync_event", "event", "brand_synced", "brand_id", b.ID,
		"created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged, "errors", res.Errors)
	return res
}

// syncRecord resolves the member and reconciles one transaction in a single database transaction.
func (r *SyncRunner) syncRecord(ctx context.Context, b brand.Brand, t transaction.Transaction) (ReconcileOutcome, error) {
	var outcome ReconcileOutcome
	err := withVersionRetry(ctx, r.deps.Runner, r.cfg.MaxVersionAttempts, func(s uow.Stores) error {
		resolved, err := ExecuteResolveMember(ctx, ResolveMemberInput{
			BrandID:        b.ID,
			ExternalUserID: t.ExternalUserID,
			Now:            r.deps.Now(),
		}, ResolveMemberDeps{MemberStore: s.Members})
		if err != nil {
			var dbErr *DatabaseError
			if errors.As(err, &dbErr) {
				return err
			}
			return &RecordError{ReferenceID: t.ReferenceID, Err: err}
		}

		result, err := ExecuteReconcileTransaction(ctx, ReconcileTransactionInput{
			Transaction: t,
			Member:      resolved.Member,
			PointsRate:  b.Settings.PointsRate,
			Now:         r.deps.Now(),
		}, ReconcileTransactionDeps{Stores: s})
		if err != nil {
			return classifyLedgerError(t.ReferenceID, err)
		}
		outcome = result.Outcome
		return nil
	})
	return outcome, err
}

// classifyLedgerError keeps storage and version errors as they are and turns
// domain rule violations into record errors.
func classifyLedgerError(referenceID string, err error) error {
	var dbErr *DatabaseError
	var recErr *RecordError
	switch {
	case errors.As(err, &dbErr), errors.As(err, &recErr), errors.Is(err, member.ErrVersionConflict):
		return err
	default:
		return &RecordError{ReferenceID: referenceID, Err: err}
	}
}
