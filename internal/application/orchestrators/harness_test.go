package orchestrators

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"loyalty/internal/adapters/feed"
	"loyalty/internal/adapters/storage/storagetest"
	"loyalty/internal/adapters/storage/uow"
	"loyalty/internal/domain/brand"
	"loyalty/internal/domain/syncrun"
	"loyalty/internal/domain/tier"
)

// harness is a real SQLite database with every store bound to it.
type harness struct {
	db     *sql.DB
	stores uow.Stores
	runner *uow.SQLRunner
	loc    *time.Location
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storagetest.Open(t)
	loc, err := time.LoadLocation(brand.DefaultTimezone)
	require.NoError(t, err)
	return &harness{db: db, stores: uow.NewStores(db), runner: uow.NewSQLRunner(db), loc: loc}
}

// syncClock is just past the seeded window end of 10:00 in the brand zone.
func (h *harness) syncClock() time.Time {
	return time.Date(2024, 3, 1, 10, 6, 0, 0, h.loc)
}

func (h *harness) seedBrand(t *testing.T, id string, mutate ...func(b *brand.Brand)) brand.Brand {
	t.Helper()
	b := brand.Brand{
		ID:     id,
		Name:   "Brand " + id,
		Status: brand.StatusActive,
		Settings: brand.SyncSettings{
			Enabled:         true,
			Endpoint:        "https://provider.test/api",
			AccessID:        "access-" + id,
			AccessToken:     "token-" + id,
			IntervalMinutes: 5,
			Retries:         0,
			Timezone:        brand.DefaultTimezone,
			PointsRate:      decimal.NewFromInt(1),
		},
		Window: brand.Window{Start: "2024-03-01 09:55:00", End: "2024-03-01 10:00:00"},
	}
	for _, fn := range mutate {
		fn(&b)
	}
	require.NoError(t, h.stores.Brands.Save(context.Background(), b))
	return b
}

// seedTiers adds Bronze 0-999, Silver 1000-4999 and an open-ended Gold from 5000 to brandID.
func (h *harness) seedTiers(t *testing.T, brandID string) (bronze, silver, gold tier.Tier) {
	t.Helper()
	mk := func(name string, min int64, max int64, order int) tier.Tier {
		tr := tier.Tier{
			ID:        brandID + "-" + name,
			BrandID:   brandID,
			Name:      name,
			MinPoints: decimal.NewFromInt(min),
			SortOrder: order,
			Active:    true,
		}
		if max > 0 {
			tr.MaxPoints = decimal.NewNullDecimal(decimal.NewFromInt(max))
		}
		require.NoError(t, h.stores.Tiers.Save(context.Background(), tr))
		return tr
	}
	return mk("bronze", 0, 999, 1), mk("silver", 1000, 4999, 2), mk("gold", 5000, 0, 3)
}

func (h *harness) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.QueryRow(query, args...).Scan(&n))
	return n
}

func (h *harness) newSyncRunner(f FeedFetcher, notifier RunNotifier, cfg SyncRunnerConfig) *SyncRunner {
	clock := h.syncClock()
	return NewSyncRunner(SyncRunnerDeps{
		BrandStore: h.stores.Brands,
		RunStore:   h.stores.Runs,
		Runner:     h.runner,
		Feed:       f,
		Notifier:   notifier,
		Now:        func() time.Time { return clock },
	}, cfg)
}

// record builds one provider record.
func record(ref, user, cash string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"user":%q,"cash":%q,"status":"APPROVED","type":"DEPOSIT","createdDateTime":"2024-03-01 09:57:00"}`,
		ref, user, cash))
}

// fakeFeed serves canned records per brand.
type fakeFeed struct {
	mu       sync.Mutex
	records  map[string][]json.RawMessage
	errs     map[string]error
	requests []feed.Request

	// entered, when set, receives once per Fetch before block is waited on.
	entered chan struct{}
	block   chan struct{}
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{records: map[string][]json.RawMessage{}, errs: map[string]error{}}
}

func (f *fakeFeed) Fetch(ctx context.Context, req feed.Request) (feed.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	records := f.records[req.BrandID]
	err := f.errs[req.BrandID]
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return feed.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return feed.Result{Transactions: []json.RawMessage{}}, err
	}
	return feed.Result{Transactions: records, Attempts: 1}, nil
}

func (f *fakeFeed) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// recordingNotifier captures notified runs.
type recordingNotifier struct {
	mu   sync.Mutex
	runs []string
}

func (n *recordingNotifier) NotifyRun(_ context.Context, run syncrun.Run) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run.ID)
	return nil
}
