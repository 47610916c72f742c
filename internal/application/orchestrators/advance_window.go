package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loyalty/internal/domain/brand"
)

// AdvanceWindowStore defines the brand store interface needed to persist a window.
type AdvanceWindowStore interface {
	UpdateSyncWindow(ctx context.Context, brandID string, w brand.Window, syncedAt time.Time) error
}

// AdvanceWindowDeps holds dependencies for AdvanceWindow.
type AdvanceWindowDeps struct {
	BrandStore AdvanceWindowStore
	Now        func() time.Time
}

// ExecuteAdvanceWindow moves a brand's window forward by one interval.
// Only call it after the brand's batch finished without a brand-level failure.
// PRE: b.Window.End is set
// POST: stored window is [old end, old end + interval) and last_sync_at is stamped
func ExecuteAdvanceWindow(ctx context.Context, b brand.Brand, deps AdvanceWindowDeps) (brand.Window, error) {
	settings := b.Settings.WithDefaults()
	loc, err := settings.Location()
	if err != nil {
		return brand.Window{}, err
	}
	next, err := b.Window.Next(settings.IntervalMinutes, loc)
	if err != nil {
		return brand.Window{}, err
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	if err := deps.BrandStore.UpdateSyncWindow(ctx, b.ID, next, now()); err != nil {
		if errors.Is(err, brand.ErrWindowRegression) {
			return brand.Window{}, err
		}
		return brand.Window{}, dbError("update sync window", err)
	}

	slog.Info("sync_event", "event", "window_advanced", "brand_id", b.ID, "window_start", next.Start, "window_end", next.End)
	return next, nil
}
