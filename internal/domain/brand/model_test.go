package brand_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/domain/brand"
)

func klLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(brand.DefaultTimezone)
	require.NoError(t, err)
	return loc
}

func syncableBrand() brand.Brand {
	return brand.Brand{
		ID:     "b1",
		Name:   "Acme",
		Status: brand.StatusActive,
		Settings: brand.SyncSettings{
			Enabled:         true,
			Endpoint:        "https://provider.example/api",
			AccessID:        "id",
			AccessToken:     "token",
			IntervalMinutes: 5,
		}.WithDefaults(),
		Window: brand.Window{Start: "2024-03-01 09:55:00", End: "2024-03-01 10:00:00"},
	}
}

func TestWindowNext(t *testing.T) {
	loc := klLocation(t)
	next, err := brand.Window{Start: "2024-03-01 09:55:00", End: "2024-03-01 10:00:00"}.Next(5, loc)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 10:00:00", next.Start)
	assert.Equal(t, "2024-03-01 10:05:00", next.End)
}

func TestWindowNext_CrossesMidnight(t *testing.T) {
	next, err := brand.Window{End: "2024-02-29 23:58:00"}.Next(5, klLocation(t))
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29 23:58:00", next.Start)
	assert.Equal(t, "2024-03-01 00:03:00", next.End)
}

func TestWindowNext_Errors(t *testing.T) {
	loc := klLocation(t)
	_, err := brand.Window{End: "2024-03-01 10:00:00"}.Next(0, loc)
	assert.ErrorIs(t, err, brand.ErrInvalidInterval)

	_, err = brand.Window{End: "2024-03-01T10:00:00Z"}.Next(5, loc)
	assert.Error(t, err)
}

func TestWindowValidate(t *testing.T) {
	loc := klLocation(t)
	assert.NoError(t, brand.Window{}.Validate(loc))
	assert.NoError(t, brand.Window{Start: "2024-03-01 10:00:00", End: "2024-03-01 10:00:00"}.Validate(loc))
	assert.Error(t, brand.Window{Start: "2024-03-01 10:05:00", End: "2024-03-01 10:00:00"}.Validate(loc))
}

func TestFormatWindowTime_UsesBrandZone(t *testing.T) {
	utc := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01 10:00:00", brand.FormatWindowTime(utc, klLocation(t)))
}

func TestWindowIn(t *testing.T) {
	kl := klLocation(t)
	w, err := brand.Window{Start: "2024-03-01 09:55:00", End: "2024-03-01 10:00:00"}.In(kl, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, brand.Window{Start: "2024-03-01 01:55:00", End: "2024-03-01 02:00:00"}, w)

	w, err = brand.Window{End: "2024-03-01 00:03:00"}.In(kl, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, brand.Window{End: "2024-02-29 16:03:00"}, w)

	_, err = brand.Window{End: "yesterday"}.In(kl, time.UTC)
	assert.Error(t, err)
}

func TestSyncEligibility(t *testing.T) {
	loc := klLocation(t)
	afterEnd := time.Date(2024, 3, 1, 10, 0, 1, 0, loc)
	beforeEnd := time.Date(2024, 3, 1, 9, 59, 59, 0, loc)

	tests := []struct {
		name   string
		mutate func(b *brand.Brand)
		now    time.Time
		want   string
	}{
		{name: "eligible", mutate: func(*brand.Brand) {}, now: afterEnd, want: ""},
		{name: "exactly at end", mutate: func(*brand.Brand) {}, now: time.Date(2024, 3, 1, 10, 0, 0, 0, loc), want: ""},
		{name: "window not reached", mutate: func(*brand.Brand) {}, now: beforeEnd, want: brand.SkipWindowNotReached},
		{name: "inactive", mutate: func(b *brand.Brand) { b.Status = brand.StatusInactive }, now: afterEnd, want: brand.SkipInactive},
		{name: "disabled", mutate: func(b *brand.Brand) { b.Settings.Enabled = false }, now: afterEnd, want: brand.SkipSyncDisabled},
		{name: "no endpoint", mutate: func(b *brand.Brand) { b.Settings.Endpoint = "" }, now: afterEnd, want: brand.SkipNoEndpoint},
		{name: "no token", mutate: func(b *brand.Brand) { b.Settings.AccessToken = "" }, now: afterEnd, want: brand.SkipNoCredentials},
		{name: "no window", mutate: func(b *brand.Brand) { b.Window = brand.Window{} }, now: afterEnd, want: brand.SkipNoWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := syncableBrand()
			tt.mutate(&b)
			got, err := b.SyncEligibility(tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSyncSettingsWithDefaults(t *testing.T) {
	s := brand.SyncSettings{}.WithDefaults()
	assert.Equal(t, brand.DefaultIntervalMinutes, s.IntervalMinutes)
	assert.Equal(t, brand.DefaultTimezone, s.Timezone)
	assert.Equal(t, 30*time.Second, s.Timeout())
	assert.True(t, s.PointsRate.Equal(decimal.NewFromInt(1)))
}

func TestSyncSettingsUnmarshal_Retries(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"absent key", `{"enabled":true,"endpoint":"http://x"}`, brand.DefaultRetries},
		{"explicit zero", `{"retries":0}`, 0},
		{"explicit value", `{"retries":7}`, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s brand.SyncSettings
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &s))
			assert.Equal(t, tt.want, s.WithDefaults().Retries)
		})
	}

	var s brand.SyncSettings
	assert.Error(t, json.Unmarshal([]byte(`{"retry":2}`), &s), "unknown key")
}

func TestSyncSettingsValidate(t *testing.T) {
	assert.ErrorIs(t, brand.SyncSettings{}.Validate(), brand.ErrInvalidInterval)
	assert.ErrorIs(t, brand.SyncSettings{IntervalMinutes: 5, Retries: -1}.Validate(), brand.ErrNegativeRetries)
	assert.ErrorIs(t, brand.SyncSettings{IntervalMinutes: 5, PointsRate: decimal.NewFromInt(-2)}.Validate(), brand.ErrInvalidPointsRate)
	assert.Error(t, brand.SyncSettings{IntervalMinutes: 5, Timezone: "Mars/Olympus"}.Validate())
	assert.NoError(t, brand.SyncSettings{IntervalMinutes: 5, Timezone: "Asia/Kuala_Lumpur"}.Validate())
}
