package ledger

import (
	"context"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/ledger"
)

// Store persists the append-only points ledger.
type Store interface {
	storage.Reader[domain.Entry]

	// Append records an applied mutation.
	// PRE: e has been validated
	Append(ctx context.Context, e domain.Entry) error

	// ListByMember returns a member's entries, newest first.
	// PRE: limit > 0
	ListByMember(ctx context.Context, memberID string, limit int) ([]domain.Entry, error)
}
