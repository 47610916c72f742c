package web

import (
	"time"

	"github.com/shopspring/decimal"

	"loyalty/internal/domain/brand"
	"loyalty/internal/domain/ledger"
	"loyalty/internal/domain/member"
	"loyalty/internal/domain/syncrun"
	"loyalty/internal/domain/tier"
	"loyalty/internal/domain/transaction"
)

// JSON views of domain values. Domain structs carry no wire tags.

type runView struct {
	ID              string                `json:"id"`
	Status          string                `json:"status"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	FinishedAt      *time.Time            `json:"finished_at,omitempty"`
	DurationMs      int64                 `json:"duration_ms"`
	Processed       int                   `json:"processed"`
	Errors          int                   `json:"errors"`
	BrandsProcessed int                   `json:"brands_processed"`
	BrandsFailed    int                   `json:"brands_failed"`
	BrandsSkipped   int                   `json:"brands_skipped"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	Brands          []syncrun.BrandResult `json:"brands"`
}

func newRunView(r syncrun.Run) runView {
	v := runView{
		ID:              r.ID,
		Status:          r.Status,
		StartedAt:       timePtr(r.StartedAt),
		FinishedAt:      timePtr(r.FinishedAt),
		DurationMs:      r.Duration().Milliseconds(),
		Processed:       r.Processed,
		Errors:          r.Errors,
		BrandsProcessed: r.BrandsProcessed,
		BrandsFailed:    r.BrandsFailed,
		BrandsSkipped:   r.BrandsSkipped,
		ErrorMessage:    r.ErrorMessage,
		Brands:          r.Brands,
	}
	if v.Brands == nil {
		v.Brands = []syncrun.BrandResult{}
	}
	return v
}

type statsView struct {
	IsRunning bool       `json:"is_running"`
	Schedule  string     `json:"schedule"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastRun   *runView   `json:"last_run"`
}

type brandView struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Status     string       `json:"status"`
	Enabled    bool         `json:"sync_enabled"`
	Endpoint   string       `json:"endpoint"`
	Interval   int          `json:"interval_minutes"`
	Timezone   string       `json:"timezone"`
	PointsRate string       `json:"points_rate"`
	Window     brand.Window `json:"window"`
	LastSyncAt *time.Time   `json:"last_sync_at,omitempty"`
}

// newBrandView omits credentials.
func newBrandView(b brand.Brand) brandView {
	s := b.Settings.WithDefaults()
	return brandView{
		ID:         b.ID,
		Name:       b.Name,
		Status:     b.Status,
		Enabled:    s.Enabled,
		Endpoint:   s.Endpoint,
		Interval:   s.IntervalMinutes,
		Timezone:   s.Timezone,
		PointsRate: s.PointsRate.String(),
		Window:     b.Window,
		LastSyncAt: timePtr(b.LastSyncAt),
	}
}

type memberView struct {
	ID                string          `json:"id"`
	BrandID           string          `json:"brand_id"`
	ExternalUserID    string          `json:"external_user_id"`
	Name              string          `json:"name,omitempty"`
	PointsBalance     decimal.Decimal `json:"points_balance"`
	TotalPointsEarned decimal.Decimal `json:"total_points_earned"`
	CurrentTierID     string          `json:"current_tier_id,omitempty"`
	TierUpgradedAt    *time.Time      `json:"tier_upgraded_at,omitempty"`
	LastActivityAt    *time.Time      `json:"last_activity_at,omitempty"`
	Version           int64           `json:"version"`
}

func newMemberView(m member.Member) memberView {
	return memberView{
		ID:                m.ID,
		BrandID:           m.BrandID,
		ExternalUserID:    m.ExternalUserID,
		Name:              m.Name,
		PointsBalance:     m.PointsBalance,
		TotalPointsEarned: m.TotalPointsEarned,
		CurrentTierID:     m.CurrentTierID,
		TierUpgradedAt:    timePtr(m.TierUpgradedAt),
		LastActivityAt:    timePtr(m.LastActivityAt),
		Version:           m.Version,
	}
}

type entryView struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Reference     string          `json:"reference,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

func newEntryView(e ledger.Entry) entryView {
	return entryView{
		ID:            e.ID,
		Type:          e.Type,
		Amount:        e.Amount,
		AppliedAmount: e.AppliedAmount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Reference:     e.Reference,
		CreatedBy:     e.CreatedBy,
		CreatedAt:     e.CreatedAt,
	}
}

type tierChangeView struct {
	ID                string          `json:"id"`
	FromTierID        string          `json:"from_tier_id,omitempty"`
	ToTierID          string          `json:"to_tier_id,omitempty"`
	Reason            string          `json:"reason"`
	TotalPointsEarned decimal.Decimal `json:"total_points_earned"`
	TriggeredBy       string          `json:"triggered_by"`
	CreatedAt         time.Time       `json:"created_at"`
}

func newTierChangeView(h tier.History) tierChangeView {
	return tierChangeView{
		ID:                h.ID,
		FromTierID:        h.FromTierID,
		ToTierID:          h.ToTierID,
		Reason:            h.Reason,
		TotalPointsEarned: h.TotalPointsEarned,
		TriggeredBy:       h.TriggeredBy,
		CreatedAt:         h.CreatedAt,
	}
}

type transactionView struct {
	ID          string          `json:"id"`
	ReferenceID string          `json:"reference_id"`
	Type        string          `json:"type,omitempty"`
	Direction   string          `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status,omitempty"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
	SyncedAt    time.Time       `json:"synced_at"`
}

func newTransactionView(t transaction.Transaction) transactionView {
	return transactionView{
		ID:          t.ID,
		ReferenceID: t.ReferenceID,
		Type:        t.Type,
		Direction:   t.Direction,
		Amount:      t.Amount,
		Status:      t.Status,
		CreatedAt:   timePtr(t.CreatedAt),
		SyncedAt:    t.SyncedAt,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func mapSlice[T, V any](in []T, fn func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
