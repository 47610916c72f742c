package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"loyalty/internal/application/orchestrators"
	"loyalty/internal/application/projections"
)

// TriggerSyncRun handles POST /admin/sync/runs.
// The run outlives the request: a client disconnect does not cancel it.
func (h *Handler) TriggerSyncRun(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	if h.deps.SyncRunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.deps.SyncRunTimeout)
		defer cancel()
	}

	run, err := h.deps.Sync.Run(ctx)
	if errors.Is(err, orchestrators.ErrSyncAlreadyRunning) {
		writeError(w, http.StatusConflict, "a sync run is already in progress")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	slog.Info("admin_event", "event", "sync_triggered", "run_id", run.ID, "status", run.Status)
	writeJSON(w, http.StatusOK, newRunView(run))
}

// ListSyncRuns handles GET /admin/sync/runs?limit=N.
func (h *Handler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := projections.QueryListSyncRuns(r.Context(),
		projections.ListSyncRunsQuery{Limit: queryLimit(r)},
		projections.ListSyncRunsDeps{RunStore: h.deps.Stores.Runs})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": mapSlice(runs, newRunView)})
}

// SyncStats handles GET /admin/sync/stats.
func (h *Handler) SyncStats(w http.ResponseWriter, r *http.Request) {
	stats := h.deps.Sync.Stats()
	view := statsView{
		IsRunning: stats.IsRunning,
		Schedule:  stats.Schedule,
		NextRunAt: timePtr(stats.NextRunAt),
	}
	if stats.LastRun != nil {
		last := newRunView(*stats.LastRun)
		view.LastRun = &last
	}
	writeJSON(w, http.StatusOK, view)
}

// PerfSnapshot handles GET /admin/perf?window=15m.
func (h *Handler) PerfSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.deps.Collector == nil {
		writeError(w, http.StatusNotFound, "performance collection disabled")
		return
	}
	since := time.Time{}
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration such as 15m")
			return
		}
		since = h.deps.Now().Add(-d)
	}
	writeJSON(w, http.StatusOK, h.deps.Collector.Snapshot(since, 10))
}
