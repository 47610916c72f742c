// Package web serves the loyalty admin JSON API.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"loyalty/internal/adapters/http/middleware"
	"loyalty/internal/adapters/http/perf"
	"loyalty/internal/adapters/storage/uow"
	"loyalty/internal/application/orchestrators"
	"loyalty/internal/domain/syncrun"
)

// SyncService is the part of the sync runner the API drives.
type SyncService interface {
	Run(ctx context.Context) (syncrun.Run, error)
	Stats() orchestrators.SyncStats
}

// Deps holds everything the handlers need.
type Deps struct {
	Sync               SyncService
	Runner             uow.Runner // writes
	Stores             uow.Stores // reads, bound to the pool
	Collector          *perf.Collector
	AdminTokenHash     string // bcrypt; empty leaves /admin unmounted
	RateLimitPerSecond int
	SyncRunTimeout     time.Duration // bound for a manual run; zero means none
	MaxVersionAttempts int
	Now                func() time.Time
}

// Handler holds API handler state.
type Handler struct {
	deps Deps
}

// NewRouter wires the admin API.
// Middleware order: RequestID -> Recoverer -> Timing -> SecurityHeaders -> routes.
// ctx bounds background work started by middleware.
func NewRouter(ctx context.Context, deps Deps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RateLimitPerSecond <= 0 {
		deps.RateLimitPerSecond = 10
	}
	h := &Handler{deps: deps}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Timing(deps.Collector))
	r.Use(middleware.SecurityHeaders)

	r.Get("/healthz", h.Healthz)

	if deps.AdminTokenHash == "" {
		return r
	}
	limiter := middleware.NewRateLimiter(ctx, deps.RateLimitPerSecond, time.Second)
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))
		r.Use(middleware.RequireBearer(middleware.NewTokenVerifier(deps.AdminTokenHash)))

		r.Post("/sync/runs", h.TriggerSyncRun)
		r.Get("/sync/runs", h.ListSyncRuns)
		r.Get("/sync/stats", h.SyncStats)
		r.Put("/brands/{brandID}/sync-settings", h.UpdateBrandSyncSettings)
		r.Post("/members/{memberID}/points", h.AdjustPoints)
		r.Put("/members/{memberID}/tier", h.ChangeTier)
		r.Get("/members/{memberID}/ledger", h.MemberLedger)
		r.Get("/perf", h.PerfSnapshot)
	})
	return r
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"sync_active": h.deps.Sync != nil && h.deps.Sync.Stats().IsRunning,
	})
}
