package transaction

import (
	"context"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/transaction"
)

// Store persists synced provider transactions.
type Store interface {
	storage.Reader[domain.Transaction]

	// GetByReference retrieves a transaction by its brand-scoped reference.
	// POST: Returns storage.ErrNotFound if absent
	GetByReference(ctx context.Context, brandID, referenceID string) (domain.Transaction, error)

	// CreateIfAbsent inserts t unless (BrandID, ReferenceID) already exists.
	// PRE: t has been validated
	// POST: created is false when another row already holds the reference
	CreateIfAbsent(ctx context.Context, t domain.Transaction) (created bool, err error)

	// UpdateMetadata rewrites the mutable fields of an existing transaction.
	// INVARIANT: amount, member and reference are never written
	UpdateMetadata(ctx context.Context, t domain.Transaction) error

	// ListByMember returns a member's transactions, newest first.
	// PRE: limit > 0
	ListByMember(ctx context.Context, memberID string, limit int) ([]domain.Transaction, error)
}
