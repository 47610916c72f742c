package tier

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// History reasons
const (
	ReasonPointsEarned = "points_earned"
)

// Actors recorded on history rows that no administrator triggered.
const (
	TriggeredBySystem = "system"
)

// Domain errors
var (
	ErrEmptyName      = errors.New("tier name cannot be empty")
	ErrEmptyBrandID   = errors.New("tier brand ID is required")
	ErrNegativeMin    = errors.New("min_points_required cannot be negative")
	ErrMaxBelowMin    = errors.New("max_points_required must be at least min_points_required")
	ErrSameTier       = errors.New("member is already on this tier")
	ErrTierNotInBrand = errors.New("tier does not belong to the member's brand")
	ErrEmptyReason    = errors.New("reason is required")
	ErrEmptyActor     = errors.New("triggered_by is required")
)

// Tier is a named band of lifetime points within a brand.
// MaxPoints is invalid (unset) for an open-ended top tier.
type Tier struct {
	ID        string
	BrandID   string
	Name      string
	MinPoints decimal.Decimal
	MaxPoints decimal.NullDecimal
	SortOrder int
	Active    bool
}

// Validate checks if the Tier has valid data.
// PRE: Tier struct is populated
// POST: Returns nil if valid, error otherwise
func (t *Tier) Validate() error {
	if strings.TrimSpace(t.BrandID) == "" {
		return ErrEmptyBrandID
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if t.MinPoints.IsNegative() {
		return ErrNegativeMin
	}
	if t.MaxPoints.Valid && t.MaxPoints.Decimal.LessThan(t.MinPoints) {
		return ErrMaxBelowMin
	}
	return nil
}

// Covers reports whether total falls inside [MinPoints, MaxPoints].
func (t *Tier) Covers(total decimal.Decimal) bool {
	if total.LessThan(t.MinPoints) {
		return false
	}
	return !t.MaxPoints.Valid || t.MaxPoints.Decimal.GreaterThanOrEqual(total)
}

// Select picks the tier a member with the given lifetime total belongs to:
// the active tier with the highest SortOrder whose band covers total.
// PRE: tiers all belong to one brand
// POST: ok is false when no active tier covers total
func Select(tiers []Tier, total decimal.Decimal) (Tier, bool) {
	var best Tier
	found := false
	for _, t := range tiers {
		if !t.Active || !t.Covers(total) {
			continue
		}
		if !found || t.SortOrder > best.SortOrder {
			best = t
			found = true
		}
	}
	return best, found
}

// History is an append-only record of a tier transition.
// FromTierID is empty when the member had no tier; ToTierID is empty only for a manual clear.
type History struct {
	ID                string
	MemberID          string
	BrandID           string
	FromTierID        string
	ToTierID          string
	Reason            string
	PointsAtChange    decimal.Decimal
	TotalPointsEarned decimal.Decimal
	TriggeredBy       string
	CreatedAt         time.Time
}

// Validate checks if the History record has valid data.
// PRE: History struct is populated
// POST: Returns nil if valid, error otherwise
func (h *History) Validate() error {
	if h.MemberID == "" {
		return errors.New("member ID is required")
	}
	if strings.TrimSpace(h.Reason) == "" {
		return ErrEmptyReason
	}
	if strings.TrimSpace(h.TriggeredBy) == "" {
		return ErrEmptyActor
	}
	if h.FromTierID == h.ToTierID {
		return ErrSameTier
	}
	if h.CreatedAt.IsZero() {
		return errors.New("created_at must be set")
	}
	return nil
}
