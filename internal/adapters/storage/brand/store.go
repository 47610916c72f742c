package brand

import (
	"context"
	"time"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/brand"
)

// Store persists Brand state and its sync window.
type Store interface {
	storage.Reader[domain.Brand]

	// ListSyncable returns every active brand, ordered by name.
	// Per-brand eligibility is decided by the caller.
	// POST: inactive brands are excluded
	ListSyncable(ctx context.Context) ([]domain.Brand, error)

	// Save persists a brand (insert or update), including its window.
	// PRE: entity has been validated
	Save(ctx context.Context, b domain.Brand) error

	// UpdateSyncWindow records a new window and stamps last_sync_at.
	// PRE: w.Start <= w.End
	// POST: returns domain.ErrWindowRegression if w.End is earlier than the stored end
	UpdateSyncWindow(ctx context.Context, brandID string, w domain.Window, syncedAt time.Time) error

	// UpdateSyncSettings replaces the brand's sync settings.
	// POST: the window is left untouched
	UpdateSyncSettings(ctx context.Context, brandID string, s domain.SyncSettings) error
}
