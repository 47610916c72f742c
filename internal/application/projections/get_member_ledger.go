package projections

import (
	"context"

	"loyalty/internal/domain/ledger"
	"loyalty/internal/domain/member"
	"loyalty/internal/domain/tier"
	"loyalty/internal/domain/transaction"
)

// Default and maximum page sizes for list projections.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// GetMemberLedgerQuery carries query parameters.
type GetMemberLedgerQuery struct {
	MemberID string
	Limit    int // per list; zero means DefaultListLimit
}

// GetMemberLedgerResult carries the query result.
type GetMemberLedgerResult struct {
	Member       member.Member
	TierName     string
	Entries      []ledger.Entry            // newest first
	TierHistory  []tier.History            // newest first
	Transactions []transaction.Transaction // newest first; nil when no TransactionStore
}

// GetMemberLedgerDeps holds dependencies for GetMemberLedger.
type GetMemberLedgerDeps struct {
	MemberStore      MemberStore
	LedgerStore      LedgerStore
	TierHistoryStore TierHistoryStore
	TierStore        TierStore        // optional: nil leaves TierName empty
	TransactionStore TransactionStore // optional
}

// QueryGetMemberLedger assembles a member's balance, ledger and tier history.
// PRE: MemberID is non-empty
// POST: Returns storage.ErrNotFound (wrapped) for an unknown member
func QueryGetMemberLedger(ctx context.Context, query GetMemberLedgerQuery, deps GetMemberLedgerDeps) (GetMemberLedgerResult, error) {
	limit := clampLimit(query.Limit)

	m, err := deps.MemberStore.GetByID(ctx, query.MemberID)
	if err != nil {
		return GetMemberLedgerResult{}, err
	}
	result := GetMemberLedgerResult{Member: m}

	if deps.TierStore != nil && m.HasTier() {
		t, err := deps.TierStore.GetByID(ctx, m.CurrentTierID)
		if err != nil {
			return GetMemberLedgerResult{}, err
		}
		result.TierName = t.Name
	}

	if result.Entries, err = deps.LedgerStore.ListByMember(ctx, m.ID, limit); err != nil {
		return GetMemberLedgerResult{}, err
	}
	if result.TierHistory, err = deps.TierHistoryStore.ListByMember(ctx, m.ID, limit); err != nil {
		return GetMemberLedgerResult{}, err
	}
	if deps.TransactionStore != nil {
		if result.Transactions, err = deps.TransactionStore.ListByMember(ctx, m.ID, limit); err != nil {
			return GetMemberLedgerResult{}, err
		}
	}
	return result, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
