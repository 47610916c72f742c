package member

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength = 100
)

// Domain errors
var (
	ErrEmptyBrandID        = errors.New("member brand ID is required")
	ErrNegativeBalance     = errors.New("points balance cannot be negative")
	ErrNegativeTotal       = errors.New("total points earned cannot be negative")
	ErrVersionConflict     = errors.New("member was modified concurrently")
	ErrEmptyExternalUserID = errors.New("external user ID is required")
)

// Member is a loyalty account scoped to a single brand.
// A member created by sync carries the provider's user id in ExternalUserID;
// at most one member exists per (BrandID, ExternalUserID).
type Member struct {
	ID                string
	BrandID           string
	ExternalUserID    string
	Name              string
	PointsBalance     decimal.Decimal
	TotalPointsEarned decimal.Decimal
	CurrentTierID     string // empty when no tier is assigned
	TierUpgradedAt    time.Time
	Achievements      []string
	LastActivityAt    time.Time
	Version           int64
	CreatedAt         time.Time
}

// New returns a fresh member for an external user: zero balance, zero total, no tier.
// POST: Version is 1, Achievements is empty but non-nil
func New(id, brandID, externalUserID string, now time.Time) Member {
	return Member{
		ID:                id,
		BrandID:           brandID,
		ExternalUserID:    externalUserID,
		PointsBalance:     decimal.Zero,
		TotalPointsEarned: decimal.Zero,
		Achievements:      []string{},
		Version:           1,
		CreatedAt:         now,
	}
}

// Validate checks if the Member has valid data.
// PRE: Member struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: balance and lifetime total are never negative
func (m *Member) Validate() error {
	if strings.TrimSpace(m.BrandID) == "" {
		return ErrEmptyBrandID
	}
	if len(m.Name) > MaxNameLength {
		return errors.New("member name cannot exceed 100 characters")
	}
	if m.PointsBalance.IsNegative() {
		return ErrNegativeBalance
	}
	if m.TotalPointsEarned.IsNegative() {
		return ErrNegativeTotal
	}
	return nil
}

// HasTier returns true if a tier is assigned.
func (m *Member) HasTier() bool {
	return m.CurrentTierID != ""
}
