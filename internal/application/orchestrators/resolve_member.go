package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"loyalty/internal/adapters/storage"
	"loyalty/internal/domain/member"
)

// ResolveMemberStore defines the member store interface needed to resolve provider users.
type ResolveMemberStore interface {
	GetByExternalUser(ctx context.Context, brandID, externalUserID string) (member.Member, error)
	CreateIfAbsent(ctx context.Context, m member.Member) (member.Member, bool, error)
}

// ResolveMemberInput carries input for the resolve-member orchestrator.
type ResolveMemberInput struct {
	BrandID        string
	ExternalUserID string
	Now            time.Time
}

// ResolveMemberDeps holds dependencies for ResolveMember.
// MemberStore may be bound to the caller's transaction.
type ResolveMemberDeps struct {
	MemberStore ResolveMemberStore
}

// ResolveMemberResult carries the resolved member.
type ResolveMemberResult struct {
	Member  member.Member
	Created bool
}

// ExecuteResolveMember finds the member for a provider user, creating it on first sight.
// PRE: BrandID and ExternalUserID are non-empty
// POST: exactly one member exists for (BrandID, ExternalUserID)
// INVARIANT: a racing caller observes the first caller's row, never a duplicate
func ExecuteResolveMember(ctx context.Context, input ResolveMemberInput, deps ResolveMemberDeps) (ResolveMemberResult, error) {
	if strings.TrimSpace(input.ExternalUserID) == "" {
		return ResolveMemberResult{}, member.ErrEmptyExternalUserID
	}
	if strings.TrimSpace(input.BrandID) == "" {
		return ResolveMemberResult{}, member.ErrEmptyBrandID
	}

	existing, err := deps.MemberStore.GetByExternalUser(ctx, input.BrandID, input.ExternalUserID)
	if err == nil {
		return ResolveMemberResult{Member: existing}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return ResolveMemberResult{}, dbError("find member", err)
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	stored, created, err := deps.MemberStore.CreateIfAbsent(ctx, member.New(uuid.New().String(), input.BrandID, input.ExternalUserID, now))
	if err != nil {
		return ResolveMemberResult{}, dbError("create member", err)
	}
	if created {
		slog.Info("member_event", "event", "member_created", "brand_id", input.BrandID, "member_id", stored.ID, "external_user_id", input.ExternalUserID)
	}
	return ResolveMemberResult{Member: stored, Created: created}, nil
}
