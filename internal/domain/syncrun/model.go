package syncrun

import (
	"errors"
	"time"
)

// Run statuses
const (
	StatusIdle           = "idle"
	StatusRunning        = "running"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusAlreadyRunning = "already_running"
)

// Brand outcomes within a run
const (
	BrandSynced  = "synced"
	BrandFailed  = "failed"
	BrandSkipped = "skipped"
)

// Domain errors
var (
	ErrInvalidStatus = errors.New("status must be one of: running, completed, failed")
	ErrNotRunning    = errors.New("run is not in progress")
)

// BrandResult is the per-brand outcome of one run.
type BrandResult struct {
	BrandID     string `json:"brand_id"`
	BrandName   string `json:"brand_name"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
	Fetched     int    `json:"fetched"`
	Created     int    `json:"created"`
	Updated     int    `json:"updated"`
	Unchanged   int    `json:"unchanged"`
	Errors      int    `json:"errors"`
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`
}

// Processed counts records that reached the store, whatever the outcome.
func (b BrandResult) Processed() int {
	return b.Created + b.Updated + b.Unchanged
}

// Run records one pass of the sync orchestrator over every brand.
type Run struct {
	ID              string
	Status          string
	StartedAt       time.Time
	FinishedAt      time.Time
	Processed       int
	Errors          int
	BrandsProcessed int
	BrandsFailed    int
	BrandsSkipped   int
	ErrorMessage    string
	Brands          []BrandResult
}

// Start returns a running Run.
func Start(id string, now time.Time) Run {
	return Run{ID: id, Status: StatusRunning, StartedAt: now, Brands: []BrandResult{}}
}

// AddBrand folds a brand outcome into the run totals.
// PRE: Run is running
// POST: counters reflect r
func (r *Run) AddBrand(b BrandResult) {
	r.Brands = append(r.Brands, b)
	r.Processed += b.Processed()
	r.Errors += b.Errors
	switch b.Outcome {
	case BrandSynced:
		r.BrandsProcessed++
	case BrandFailed:
		r.BrandsFailed++
	case BrandSkipped:
		r.BrandsSkipped++
	}
}

// Finish moves the run to completed, or failed when cause is non-nil.
// PRE: Run is running
// POST: Status is terminal and FinishedAt is set
func (r *Run) Finish(now time.Time, cause error) error {
	if r.Status != StatusRunning {
		return ErrNotRunning
	}
	r.FinishedAt = now
	if cause != nil {
		r.Status = StatusFailed
		r.ErrorMessage = cause.Error()
		return nil
	}
	r.Status = StatusCompleted
	return nil
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// NeedsAttention reports whether operators should be alerted about this run.
func (r *Run) NeedsAttention() bool {
	return r.Status == StatusFailed || r.BrandsFailed > 0
}

// Validate checks if the Run has valid data.
// PRE: Run struct is populated
// POST: Returns nil if valid, error otherwise
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run ID is required")
	}
	switch r.Status {
	case StatusRunning, StatusCompleted, StatusFailed:
	default:
		return ErrInvalidStatus
	}
	if r.StartedAt.IsZero() {
		return errors.New("started_at must be set")
	}
	return nil
}
