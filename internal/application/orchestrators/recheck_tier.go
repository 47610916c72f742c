package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"loyalty/internal/adapters/storage/uow"
	"loyalty/internal/domain/member"
	"loyalty/internal/domain/tier"
)

// RecheckTierInTx moves the member to the tier their lifetime total selects.
// PRE: m was loaded in the transaction s is bound to
// POST: when the selected tier differs, m and the store carry it and one history row is appended
// POST: when no tier matches, nothing changes and nil is returned
func RecheckTierInTx(ctx context.Context, s uow.Stores, m *member.Member, triggeredBy string, now time.Time) (*tier.History, error) {
	tiers, err := s.Tiers.ListActive(ctx, m.BrandID)
	if err != nil {
		return nil, dbError("list tiers", err)
	}
	selected, ok := tier.Select(tiers, m.TotalPointsEarned)
	if !ok || selected.ID == m.CurrentTierID {
		return nil, nil
	}
	if triggeredBy == "" {
		triggeredBy = tier.TriggeredBySystem
	}
	return changeTier(ctx, s, m, selected.ID, tier.ReasonPointsEarned, triggeredBy, now)
}

// changeTier writes the new tier and appends the matching history row.
func changeTier(ctx context.Context, s uow.Stores, m *member.Member, toTierID, reason, triggeredBy string, now time.Time) (*tier.History, error) {
	h := tier.History{
		ID:                uuid.New().String(),
		MemberID:          m.ID,
		BrandID:           m.BrandID,
		FromTierID:        m.CurrentTierID,
		ToTierID:          toTierID,
		Reason:            reason,
		PointsAtChange:    m.PointsBalance,
		TotalPointsEarned: m.TotalPointsEarned,
		TriggeredBy:       triggeredBy,
		CreatedAt:         now,
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	m.CurrentTierID = toTierID
	m.TierUpgradedAt = now
	if err := s.Members.UpdateTier(ctx, m); err != nil {
		if errors.Is(err, member.ErrVersionConflict) {
			return nil, err
		}
		return nil, dbError("update member tier", err)
	}
	if err := s.TierHistory.Append(ctx, h); err != nil {
		return nil, dbError("append tier history", err)
	}

	slog.Info("tier_event", "event", "tier_changed", "member_id", m.ID, "from", h.FromTierID, "to", h.ToTierID, "reason", reason, "triggered_by", triggeredBy)
	return &h, nil
}

// ChangeTierInput carries input for a manual tier change.
type ChangeTierInput struct {
	MemberID string
	TierID   string // empty clears the member's tier
	Reason   string
	AdminID  string
	Now      time.Time
}

// ChangeTierDeps holds dependencies for ChangeTier.
type ChangeTierDeps struct {
	Runner      uow.Runner
	MaxAttempts int
}

// ChangeTierResult carries the member and the history row written.
type ChangeTierResult struct {
	Member  member.Member
	History tier.History
}

// ExecuteChangeTier moves a member to any tier of their brand regardless of points.
// PRE: Reason and AdminID are non-empty
// POST: member tier updated and one history row appended with the admin as actor
func ExecuteChangeTier(ctx context.Context, input ChangeTierInput, deps ChangeTierDeps) (ChangeTierResult, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return ChangeTierResult{}, tier.ErrEmptyReason
	}
	if strings.TrimSpace(input.AdminID) == "" {
		return ChangeTierResult{}, tier.ErrEmptyActor
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	var result ChangeTierResult
	err := withVersionRetry(ctx, deps.Runner, deps.MaxAttempts, func(s uow.Stores) error {
		m, err := s.Members.GetByID(ctx, input.MemberID)
		if err != nil {
			return err
		}
		if input.TierID != "" {
			target, err := s.Tiers.GetByID(ctx, input.TierID)
			if err != nil {
				return err
			}
			if target.BrandID != m.BrandID {
				return tier.ErrTierNotInBrand
			}
		}
		if input.TierID == m.CurrentTierID {
			return tier.ErrSameTier
		}
		h, err := changeTier(ctx, s, &m, input.TierID, input.Reason, input.AdminID, now)
		if err != nil {
			return err
		}
		result = ChangeTierResult{Member: m, History: *h}
		return nil
	})
	if err != nil {
		return ChangeTierResult{}, err
	}
	return result, nil
}
