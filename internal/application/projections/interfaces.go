package projections

import (
	"context"

	"loyalty/internal/domain/ledger"
	"loyalty/internal/domain/member"
	"loyalty/internal/domain/syncrun"
	"loyalty/internal/domain/tier"
	"loyalty/internal/domain/transaction"
)

// MemberStore interface for member queries.
type MemberStore interface {
	GetByID(ctx context.Context, id string) (member.Member, error)
}

// LedgerStore interface for ledger queries.
type LedgerStore interface {
	ListByMember(ctx context.Context, memberID string, limit int) ([]ledger.Entry, error)
}

// TierStore interface for tier lookups.
type TierStore interface {
	GetByID(ctx context.Context, id string) (tier.Tier, error)
}

// TierHistoryStore interface for tier history queries.
type TierHistoryStore interface {
	ListByMember(ctx context.Context, memberID string, limit int) ([]tier.History, error)
}

// TransactionStore interface for transaction queries.
type TransactionStore interface {
	ListByMember(ctx context.Context, memberID string, limit int) ([]transaction.Transaction, error)
}

// SyncRunStore interface for run history queries.
type SyncRunStore interface {
	List(ctx context.Context, limit int) ([]syncrun.Run, error)
}
