package web_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	web "loyalty/internal/adapters/http"
	"loyalty/internal/adapters/http/perf"
	"loyalty/internal/adapters/storage/storagetest"
	"loyalty/internal/adapters/storage/uow"
	"loyalty/internal/application/orchestrators"
	"loyalty/internal/domain/syncrun"
	"loyalty/internal/domain/tier"
)

const adminToken = "s3cret-admin-token"

type fakeSync struct {
	run   syncrun.Run
	err   error
	calls int
}

func (f *fakeSync) Run(ctx context.Context) (syncrun.Run, error) {
	f.calls++
	return f.run, f.err
}

func (f *fakeSync) Stats() orchestrators.SyncStats {
	return orchestrators.SyncStats{Schedule: "every 5m0s"}
}

type apiHarness struct {
	db     *sql.DB
	stores uow.Stores
	sync   *fakeSync
	router http.Handler
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	require.NoError(t, err)

	db := storagetest.Open(t)
	a := &apiHarness{db: db, stores: uow.NewStores(db), sync: &fakeSync{}}
	a.router = web.NewRouter(t.Context(), web.Deps{
		Sync:               a.sync,
		Runner:             uow.NewSQLRunner(db),
		Stores:             a.stores,
		Collector:          perf.NewCollector(100),
		AdminTokenHash:     string(hash),
		RateLimitPerSecond: 1000,
		MaxVersionAttempts: 3,
		Now:                func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return a
}

// seedMember adds brand b1 with the three standard tiers and member m1 with no points.
func (a *apiHarness) seedMember(t *testing.T) {
	t.Helper()
	storagetest.InsertBrand(t, a.db, "b1")
	storagetest.InsertMember(t, a.db, "m1", "b1", "user-1")
	for i, tc := range []struct {
		name     string
		min, max int64
	}{{"bronze", 0, 999}, {"silver", 1000, 4999}, {"gold", 5000, 0}} {
		tr := tier.Tier{
			ID:        "b1-" + tc.name,
			BrandID:   "b1",
			Name:      tc.name,
			MinPoints: decimal.NewFromInt(tc.min),
			SortOrder: i + 1,
			Active:    true,
		}
		if tc.max > 0 {
			tr.MaxPoints = decimal.NewNullDecimal(decimal.NewFromInt(tc.max))
		}
		require.NoError(t, a.stores.Tiers.Save(context.Background(), tr))
	}
}

func (a *apiHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz_NoAuth(t *testing.T) {
	a := newAPI(t)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAdmin_RequiresBearer(t *testing.T) {
	a := newAPI(t)
	for _, header := range []string{"", "Bearer wrong", "Basic " + adminToken} {
		req := httptest.NewRequest(http.MethodGet, "/admin/sync/stats", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestAdmin_UnmountedWithoutHash(t *testing.T) {
	router := web.NewRouter(t.Context(), web.Deps{Sync: &fakeSync{}})
	req := httptest.NewRequest(http.MethodGet, "/admin/sync/stats", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerSyncRun(t *testing.T) {
	a := newAPI(t)
	a.sync.run = syncrun.Run{ID: "run-1", Status: syncrun.StatusCompleted, Processed: 4}

	rec := a.do(t, http.MethodPost, "/admin/sync/runs", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "run-1", body["id"])
	assert.EqualValues(t, 4, body["processed"])
	assert.Equal(t, []any{}, body["brands"])
	assert.Equal(t, 1, a.sync.calls)
}

func TestTriggerSyncRun_AlreadyRunning(t *testing.T) {
	a := newAPI(t)
	a.sync.err = orchestrators.ErrSyncAlreadyRunning

	rec := a.do(t, http.MethodPost, "/admin/sync/runs", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListSyncRuns(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()
	for i, id := range []string{"r1", "r2"} {
		run := syncrun.Start(id, time.Date(2024, 3, 1, 10, i, 0, 0, time.UTC))
		require.NoError(t, run.Finish(run.StartedAt.Add(time.Second), nil))
		require.NoError(t, a.stores.Runs.Save(ctx, run))
	}

	rec := a.do(t, http.MethodGet, "/admin/sync/runs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	runs := decodeBody(t, rec)["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].(map[string]any)["id"])
}

func TestSyncStats(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, http.MethodGet, "/admin/sync/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "every 5m0s", body["schedule"])
	assert.Nil(t, body["last_run"])
}

func TestAdjustPoints_CreditUpgradesTier(t *testing.T) {
	a := newAPI(t)
	a.seedMember(t)

	rec := a.do(t, http.MethodPost, "/admin/members/m1/points",
		`{"type":"credit","amount":"1500","reason":"goodwill","admin_id":"admin-7"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	m := body["member"].(map[string]any)
	assert.Equal(t, "1500", m["points_balance"])
	assert.Equal(t, "b1-silver", m["current_tier_id"])
	entry := body["entry"].(map[string]any)
	assert.Equal(t, "goodwill", entry["reference"])
	assert.Equal(t, "admin-7", entry["created_by"])
	require.NotNil(t, body["tier_change"])
	assert.Equal(t, "b1-silver", body["tier_change"].(map[string]any)["to_tier_id"])
}

func TestAdjustPoints_Errors(t *testing.T) {
	a := newAPI(t)
	a.seedMember(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown field", "/admin/members/m1/points", `{"type":"credit","amount":"1","admin_id":"a","extra":1}`, http.StatusBadRequest},
		{"missing admin", "/admin/members/m1/points", `{"type":"credit","amount":"1"}`, http.StatusBadRequest},
		{"bad type", "/admin/members/m1/points", `{"type":"bonus","amount":"1","admin_id":"a"}`, http.StatusBadRequest},
		{"zero amount", "/admin/members/m1/points", `{"type":"credit","amount":"0","admin_id":"a"}`, http.StatusBadRequest},
		{"positive debit", "/admin/members/m1/points", `{"type":"debit","amount":"5","admin_id":"a"}`, http.StatusBadRequest},
		{"unknown member", "/admin/members/nope/points", `{"type":"credit","amount":"1","admin_id":"a"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestChangeTier(t *testing.T) {
	a := newAPI(t)
	a.seedMember(t)

	rec := a.do(t, http.MethodPut, "/admin/members/m1/tier",
		`{"tier_id":"b1-gold","reason":"vip","admin_id":"admin-7"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "b1-gold", body["member"].(map[string]any)["current_tier_id"])
	assert.Equal(t, "admin-7", body["tier_change"].(map[string]any)["triggered_by"])

	rec = a.do(t, http.MethodPut, "/admin/members/m1/tier",
		`{"tier_id":"b1-gold","reason":"again","admin_id":"admin-7"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPut, "/admin/members/m1/tier",
		`{"tier_id":"b1-silver","admin_id":"admin-7"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangeTier_OtherBrand(t *testing.T) {
	a := newAPI(t)
	a.seedMember(t)
	storagetest.InsertBrand(t, a.db, "b2")
	require.NoError(t, a.stores.Tiers.Save(context.Background(), tier.Tier{
		ID: "b2-gold", BrandID: "b2", Name: "gold", MinPoints: decimal.NewFromInt(100), Active: true,
	}))

	rec := a.do(t, http.MethodPut, "/admin/members/m1/tier",
		`{"tier_id":"b2-gold","reason":"oops","admin_id":"admin-7"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMemberLedger(t *testing.T) {
	a := newAPI(t)
	a.seedMember(t)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/admin/members/m1/points",
		`{"type":"credit","amount":"200","reason":"first","admin_id":"a"}`).Code)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/admin/members/m1/points",
		`{"type":"debit","amount":"-50","reason":"second","admin_id":"a"}`).Code)

	rec := a.do(t, http.MethodGet, "/admin/members/m1/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "150", body["member"].(map[string]any)["points_balance"])
	assert.Equal(t, "200", body["member"].(map[string]any)["total_points_earned"])
	assert.Len(t, body["entries"], 2)
	assert.Equal(t, []any{}, body["transactions"])

	rec = a.do(t, http.MethodGet, "/admin/members/missing/ledger", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateBrandSyncSettings(t *testing.T) {
	a := newAPI(t)
	storagetest.InsertBrand(t, a.db, "b1")

	rec := a.do(t, http.MethodPut, "/admin/brands/b1/sync-settings", `{
		"settings": {"enabled": true, "endpoint": "https://provider.test/api", "access_id": "id",
			"access_token": "tok-123", "interval_minutes": 5, "points_rate": "2"},
		"window": {"start": "2024-03-01 09:55:00", "end": "2024-03-01 10:00:00"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "tok-123")
	body := decodeBody(t, rec)
	assert.Equal(t, "2", body["points_rate"])
	assert.Equal(t, "2024-03-01 10:00:00", body["window"].(map[string]any)["end"])

	// Credentials left blank keep the stored ones.
	rec = a.do(t, http.MethodPut, "/admin/brands/b1/sync-settings",
		`{"settings": {"enabled": false, "endpoint": "https://provider.test/api", "interval_minutes": 10}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b, err := a.stores.Brands.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", b.Settings.AccessToken)
	assert.Equal(t, 10, b.Settings.IntervalMinutes)
	assert.Equal(t, "2024-03-01 10:00:00", b.Window.End)
}

func TestUpdateBrandSyncSettings_TimezoneChangeRezonesWindow(t *testing.T) {
	a := newAPI(t)
	storagetest.InsertBrand(t, a.db, "b1")
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/admin/brands/b1/sync-settings",
		`{"settings": {"interval_minutes": 5}, "window": {"start": "2024-03-01 09:55:00", "end": "2024-03-01 10:00:00"}}`).Code)

	// 10:00 in Kuala Lumpur is 02:00 UTC, so 02:05 UTC moves the window forward.
	rec := a.do(t, http.MethodPut, "/admin/brands/b1/sync-settings",
		`{"settings": {"interval_minutes": 5, "timezone": "UTC"}, "window": {"start": "2024-03-01 02:00:00", "end": "2024-03-01 02:05:00"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b, err := a.stores.Brands.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "UTC", b.Settings.Timezone)
	assert.Equal(t, "2024-03-01 02:05:00", b.Window.End)

	// Back to Kuala Lumpur without a window: the stored one is rewritten in that zone.
	rec = a.do(t, http.MethodPut, "/admin/brands/b1/sync-settings",
		`{"settings": {"interval_minutes": 5, "timezone": "Asia/Kuala_Lumpur"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b, err = a.stores.Brands.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 10:00:00", b.Window.Start)
	assert.Equal(t, "2024-03-01 10:05:00", b.Window.End)

	// 01:55 UTC is 09:55 in Kuala Lumpur, earlier than the stored end.
	rec = a.do(t, http.MethodPut, "/admin/brands/b1/sync-settings",
		`{"settings": {"interval_minutes": 5, "timezone": "UTC"}, "window": {"start": "2024-03-01 01:50:00", "end": "2024-03-01 01:55:00"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	b, err = a.stores.Brands.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kuala_Lumpur", b.Settings.Timezone, "rejected update rolls back")
}

func TestUpdateBrandSyncSettings_Errors(t *testing.T) {
	a := newAPI(t)
	storagetest.InsertBrand(t, a.db, "b1")
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/admin/brands/b1/sync-settings",
		`{"settings": {"interval_minutes": 5}, "window": {"start": "2024-03-01 09:55:00", "end": "2024-03-01 10:00:00"}}`).Code)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"window moves back", "/admin/brands/b1/sync-settings",
			`{"settings": {"interval_minutes": 5}, "window": {"start": "2024-03-01 09:00:00", "end": "2024-03-01 09:05:00"}}`, http.StatusConflict},
		{"inverted window", "/admin/brands/b1/sync-settings",
			`{"settings": {"interval_minutes": 5}, "window": {"start": "2024-03-01 11:00:00", "end": "2024-03-01 10:05:00"}}`, http.StatusBadRequest},
		{"bad layout", "/admin/brands/b1/sync-settings",
			`{"settings": {"interval_minutes": 5}, "window": {"start": "2024-03-01T11:00:00Z", "end": "2024-03-01 12:05:00"}}`, http.StatusBadRequest},
		{"zero interval", "/admin/brands/b1/sync-settings", `{"settings": {"interval_minutes": 0}}`, http.StatusBadRequest},
		{"unknown brand", "/admin/brands/nope/sync-settings", `{"settings": {"interval_minutes": 5}}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPerfSnapshot(t *testing.T) {
	a := newAPI(t)
	a.do(t, http.MethodGet, "/admin/sync/stats", "")

	rec := a.do(t, http.MethodGet, "/admin/perf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "requests")

	rec = a.do(t, http.MethodGet, "/admin/perf?window=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
