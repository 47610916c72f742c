package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty/internal/adapters/storage"
	"loyalty/internal/adapters/storage/uow"
	"loyalty/internal/domain/ledger"
	"loyalty/internal/domain/member"
	"loyalty/internal/domain/tier"
	"loyalty/internal/domain/transaction"
)

// ReconcileOutcome is what reconciling one provider record did.
type ReconcileOutcome string

// Reconcile outcomes
const (
	OutcomeCreated   ReconcileOutcome = "created"
	OutcomeUpdated   ReconcileOutcome = "updated"
	OutcomeUnchanged ReconcileOutcome = "unchanged"
)

// ReconcileTransactionInput carries a transformed record and its resolved member.
type ReconcileTransactionInput struct {
	Transaction transaction.Transaction // BrandID set; MemberID filled from Member
	Member      member.Member
	PointsRate  decimal.Decimal // points per unit of cash; zero means 1
	Now         time.Time
}

// ReconcileTransactionDeps holds the stores of the caller's transaction.
type ReconcileTransactionDeps struct {
	Stores uow.Stores
}

// ReconcileTransactionResult carries the outcome and any points posted.
type ReconcileTransactionResult struct {
	Outcome ReconcileOutcome
	Points  *ApplyPointsResult // set only when a new transaction posted points
}

// ExecuteReconcileTransaction merges one record into storage.
// A new reference is inserted and its points posted in the same transaction;
// a known reference only has its mutable fields refreshed.
// PRE: deps.Stores share one transaction; Transaction.BrandID and ReferenceID are set
// POST: exactly one row exists per (BrandID, ReferenceID)
// INVARIANT: the ledger is posted once per reference, at creation
func ExecuteReconcileTransaction(ctx context.Context, input ReconcileTransactionInput, deps ReconcileTransactionDeps) (ReconcileTransactionResult, error) {
	s := deps.Stores
	incoming := input.Transaction
	incoming.MemberID = input.Member.ID
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	incoming.SyncedAt = now
	incoming.UpdatedAt = now

	existing, err := s.Transactions.GetByReference(ctx, incoming.BrandID, incoming.ReferenceID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		incoming.ID = uuid.New().String()
		if err := incoming.Validate(); err != nil {
			return ReconcileTransactionResult{}, &RecordError{ReferenceID: incoming.ReferenceID, Err: err}
		}
		created, err := s.Transactions.CreateIfAbsent(ctx, incoming)
		if err != nil {
			return ReconcileTransactionResult{}, dbError("insert transaction", err)
		}
		if created {
			return postTransactionPoints(ctx, s, input.Member, incoming, input.PointsRate, now)
		}
		// Another writer inserted the reference first; fall through to the merge path.
		existing, err = s.Transactions.GetByReference(ctx, incoming.BrandID, incoming.ReferenceID)
		if err != nil {
			return ReconcileTransactionResult{}, dbError("reload transaction", err)
		}
	case err != nil:
		return ReconcileTransactionResult{}, dbError("find transaction", err)
	}

	if existing.ConflictsWith(&incoming) || existing.MemberID != incoming.MemberID {
		slog.Warn("reconcile_conflict",
			"brand_id", existing.BrandID,
			"reference_id", existing.ReferenceID,
			"stored_amount", existing.Amount.String(),
			"incoming_amount", incoming.Amount.String(),
			"stored_user", existing.ExternalUserID,
			"incoming_user", incoming.ExternalUserID)
	}
	if existing.MetadataEqual(&incoming) {
		return ReconcileTransactionResult{Outcome: OutcomeUnchanged}, nil
	}
	if err := s.Transactions.UpdateMetadata(ctx, incoming); err != nil {
		return ReconcileTransactionResult{}, dbError("update transaction", err)
	}
	slog.Debug("reconcile_event", "event", "transaction_updated", "brand_id", incoming.BrandID, "reference_id", incoming.ReferenceID, "status", incoming.Status)
	return ReconcileTransactionResult{Outcome: OutcomeUpdated}, nil
}

// postTransactionPoints credits the member for a newly inserted transaction.
// A negative amount flows through the same credit rule and is clamped at zero.
func postTransactionPoints(ctx context.Context, s uow.Stores, m member.Member, t transaction.Transaction, rate decimal.Decimal, now time.Time) (ReconcileTransactionResult, error) {
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}
	points := t.Amount.Mul(rate)
	if points.IsZero() {
		return ReconcileTransactionResult{Outcome: OutcomeCreated}, nil
	}
	mutation := ledger.Mutation{Type: ledger.TypeCredit, Amount: points}
	applied, err := applyToMember(ctx, s, &m, mutation, t.ReferenceID, tier.TriggeredBySystem, now)
	if err != nil {
		return ReconcileTransactionResult{}, err
	}
	return ReconcileTransactionResult{Outcome: OutcomeCreated, Points: &applied}, nil
}
