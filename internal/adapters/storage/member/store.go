package member

import (
	"context"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/member"
)

// Store persists Member state.
type Store interface {
	storage.Reader[domain.Member]

	// GetByExternalUser retrieves the member a provider user maps to within a brand.
	// POST: Returns storage.ErrNotFound if no member exists for the pair
	GetByExternalUser(ctx context.Context, brandID, externalUserID string) (domain.Member, error)

	// CreateIfAbsent inserts m unless a member already exists for (BrandID, ExternalUserID),
	// then returns the stored row.
	// PRE: m.ExternalUserID is non-empty
	// POST: exactly one member exists for the pair; created reports whether it was m
	CreateIfAbsent(ctx context.Context, m domain.Member) (stored domain.Member, created bool, err error)

	// UpdateLedger writes balance, lifetime total and last activity.
	// PRE: m.Version is the version read in this transaction
	// POST: m.Version is incremented; domain.ErrVersionConflict if the row moved on
	UpdateLedger(ctx context.Context, m *domain.Member) error

	// UpdateTier writes the current tier and upgrade time.
	// PRE: m.Version is the version read in this transaction
	// POST: m.Version is incremented; domain.ErrVersionConflict if the row moved on
	UpdateTier(ctx context.Context, m *domain.Member) error
}
