package tier

import (
	"context"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/tier"
)

// Store persists a brand's tier definitions.
type Store interface {
	storage.Reader[domain.Tier]

	// ListActive returns the active tiers of a brand ordered by sort_order.
	ListActive(ctx context.Context, brandID string) ([]domain.Tier, error)

	// Save persists a tier (insert or update).
	// PRE: entity has been validated
	Save(ctx context.Context, t domain.Tier) error
}

// HistoryStore persists tier transitions. There is no update or delete.
type HistoryStore interface {
	// Append records a transition.
	// PRE: h has been validated
	Append(ctx context.Context, h domain.History) error

	// ListByMember returns a member's transitions, newest first.
	// PRE: limit > 0
	ListByMember(ctx context.Context, memberID string, limit int) ([]domain.History, error)
}
