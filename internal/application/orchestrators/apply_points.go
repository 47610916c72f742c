package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty/internal/adapters/storage/uow"
	"loyalty/internal/domain/ledger"
	"loyalty/internal/domain/member"
	"loyalty/internal/domain/tier"
)

// DefaultMaxVersionAttempts bounds retries of a ledger transaction that lost a version race.
const DefaultMaxVersionAttempts = 5

// ApplyPointsInput carries input for a points mutation.
type ApplyPointsInput struct {
	MemberID     string
	Type         string
	Amount       decimal.Decimal
	CorrectTotal bool
	Reference    string
	Actor        string // "system" or an admin id; recorded on the entry and any tier change
	Now          time.Time
}

// ApplyPointsResult carries the member after the mutation.
type ApplyPointsResult struct {
	Member     member.Member
	Entry      ledger.Entry
	TierChange *tier.History // nil when the tier did not change
	Clamped    bool
}

// ApplyPointsDeps holds dependencies for ApplyPoints.
type ApplyPointsDeps struct {
	Runner      uow.Runner
	MaxAttempts int
}

// ExecuteApplyPoints applies a points mutation in its own transaction,
// retrying when a concurrent writer moved the member's version.
// PRE: MemberID and Actor are non-empty
// POST: balance, ledger entry and tier are committed together or not at all
func ExecuteApplyPoints(ctx context.Context, input ApplyPointsInput, deps ApplyPointsDeps) (ApplyPointsResult, error) {
	var result ApplyPointsResult
	err := withVersionRetry(ctx, deps.Runner, deps.MaxAttempts, func(s uow.Stores) error {
		var err error
		result, err = ApplyPointsInTx(ctx, s, input)
		return err
	})
	if err != nil {
		return ApplyPointsResult{}, err
	}
	return result, nil
}

// ApplyPointsInTx applies a points mutation using stores bound to the caller's transaction.
// PRE: s shares one transaction
// POST: balance = max(0, balance + amount); tier rechecked in the same transaction
// INVARIANT: balance never negative; lifetime total only lowered by an adjustment with CorrectTotal
func ApplyPointsInTx(ctx context.Context, s uow.Stores, input ApplyPointsInput) (ApplyPointsResult, error) {
	if strings.TrimSpace(input.Actor) == "" {
		return ApplyPointsResult{}, ledger.ErrEmptyCreatedBy
	}
	mutation := ledger.Mutation{Type: input.Type, Amount: input.Amount, CorrectTotal: input.CorrectTotal}
	if err := mutation.Validate(); err != nil {
		return ApplyPointsResult{}, err
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	m, err := s.Members.GetByID(ctx, input.MemberID)
	if err != nil {
		return ApplyPointsResult{}, dbError("load member", err)
	}
	return applyToMember(ctx, s, &m, mutation, input.Reference, input.Actor, now)
}

// applyToMember runs the ledger rule against an already loaded member.
func applyToMember(ctx context.Context, s uow.Stores, m *member.Member, mutation ledger.Mutation, reference, actor string, now time.Time) (ApplyPointsResult, error) {
	res, err := ledger.Apply(m.PointsBalance, m.TotalPointsEarned, mutation)
	if err != nil {
		return ApplyPointsResult{}, err
	}

	m.PointsBalance = res.BalanceAfter
	m.TotalPointsEarned = res.TotalAfter
	m.LastActivityAt = now
	if err := s.Members.UpdateLedger(ctx, m); err != nil {
		if errors.Is(err, member.ErrVersionConflict) {
			return ApplyPointsResult{}, err
		}
		return ApplyPointsResult{}, dbError("update member points", err)
	}

	entry := ledger.Entry{
		ID:            uuid.New().String(),
		MemberID:      m.ID,
		BrandID:       m.BrandID,
		Type:          mutation.Type,
		Amount:        mutation.Amount,
		AppliedAmount: res.Applied,
		BalanceBefore: res.BalanceBefore,
		BalanceAfter:  res.BalanceAfter,
		EarnedDelta:   res.EarnedDelta,
		Reference:     reference,
		CreatedBy:     actor,
		CreatedAt:     now,
	}
	if err := s.Ledger.Append(ctx, entry); err != nil {
		return ApplyPointsResult{}, dbError("append ledger entry", err)
	}

	clamped := res.Clamped(mutation)
	if clamped {
		slog.Info("ledger_event", "event", "balance_clamped", "member_id", m.ID, "requested", mutation.Amount.String(), "applied", res.Applied.String())
	}

	change, err := RecheckTierInTx(ctx, s, m, actor, now)
	if err != nil {
		return ApplyPointsResult{}, err
	}
	return ApplyPointsResult{Member: *m, Entry: entry, TierChange: change, Clamped: clamped}, nil
}

// withVersionRetry runs fn in a transaction, starting over when it fails with a version conflict.
func withVersionRetry(ctx context.Context, runner uow.Runner, maxAttempts int, fn func(s uow.Stores) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxVersionAttempts
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = runner.InTx(ctx, fn)
		if !errors.Is(err, member.ErrVersionConflict) {
			return err
		}
		slog.Warn("ledger_event", "event", "version_conflict_retry", "attempt", attempt)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
