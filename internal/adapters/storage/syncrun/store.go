package syncrun

import (
	"context"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/syncrun"
)

// Store persists sync run history.
type Store interface {
	storage.Reader[domain.Run]

	// Save persists a run (insert at start, update at finish).
	// PRE: r has been validated
	Save(ctx context.Context, r domain.Run) error

	// GetLatest returns the most recently started run.
	// POST: Returns storage.ErrNotFound when no run has been recorded
	GetLatest(ctx context.Context) (domain.Run, error)

	// List returns runs newest first.
	// PRE: limit > 0
	List(ctx context.Context, limit int) ([]domain.Run, error)
}
