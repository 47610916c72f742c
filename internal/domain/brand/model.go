package brand

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Business rule constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"

	DefaultTimezone        = "Asia/Kuala_Lumpur"
	DefaultIntervalMinutes = 5
	DefaultTimeoutSeconds  = 30
	DefaultRetries         = 3
	DefaultRetryDelayMs    = 2000
)

// Skip reasons reported when a brand is not eligible for a sync run.
const (
	SkipInactive         = "brand_inactive"
	SkipSyncDisabled     = "sync_disabled"
	SkipNoEndpoint       = "endpoint_not_configured"
	SkipNoCredentials    = "credentials_not_configured"
	SkipNoWindow         = "window_not_configured"
	SkipWindowNotReached = "window_not_reached"
)

// Domain errors
var (
	ErrEmptyName         = errors.New("brand name cannot be empty")
	ErrInvalidStatus     = errors.New("status must be 'active' or 'inactive'")
	ErrInvalidInterval   = errors.New("interval_minutes must be greater than zero")
	ErrNegativeRetries   = errors.New("retries cannot be negative")
	ErrInvalidPointsRate = errors.New("points_rate must be greater than zero")
	ErrWindowRegression  = errors.New("sync window end cannot move backwards")
)

// SyncSettings is the per-brand external feed configuration.
type SyncSettings struct {
	Enabled         bool            `json:"enabled"`
	Endpoint        string          `json:"endpoint"`
	AccessID        string          `json:"access_id"`
	AccessToken     string          `json:"access_token"`
	IntervalMinutes int             `json:"interval_minutes"`
	TimeoutSeconds  int             `json:"timeout_seconds"`
	Retries         int             `json:"retries"`
	RetryDelayMs    int             `json:"retry_delay_ms"`
	Timezone        string          `json:"timezone"`
	PointsRate      decimal.Decimal `json:"points_rate"`
}

// UnmarshalJSON decodes settings, rejecting unknown keys.
// An absent "retries" key means DefaultRetries; an explicit 0 disables retrying.
func (s *SyncSettings) UnmarshalJSON(data []byte) error {
	type plain SyncSettings
	aux := struct {
		*plain
		Retries *int `json:"retries"`
	}{plain: (*plain)(s)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	s.Retries = DefaultRetries
	if aux.Retries != nil {
		s.Retries = *aux.Retries
	}
	return nil
}

// WithDefaults fills unset numeric fields with their defaults.
// POST: returned settings have positive interval, timeout, rate and a timezone
func (s SyncSettings) WithDefaults() SyncSettings {
	if s.IntervalMinutes <= 0 {
		s.IntervalMinutes = DefaultIntervalMinutes
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.Retries < 0 {
		s.Retries = 0
	}
	if s.RetryDelayMs <= 0 {
		s.RetryDelayMs = DefaultRetryDelayMs
	}
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
	if !s.PointsRate.IsPositive() {
		s.PointsRate = decimal.NewFromInt(1)
	}
	return s
}

// Validate checks settings supplied by an administrator.
// PRE: SyncSettings is populated
// POST: Returns error if validation fails, nil otherwise
func (s SyncSettings) Validate() error {
	if s.IntervalMinutes <= 0 {
		return ErrInvalidInterval
	}
	if s.Retries < 0 {
		return ErrNegativeRetries
	}
	if !s.PointsRate.IsZero() && !s.PointsRate.IsPositive() {
		return ErrInvalidPointsRate
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return errors.New("timezone is not a valid IANA zone name")
		}
	}
	return nil
}

// Timeout returns the per-request timeout.
func (s SyncSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RetryDelay returns the fixed delay between attempts.
func (s SyncSettings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}

// Location resolves the brand's time zone.
func (s SyncSettings) Location() (*time.Location, error) {
	tz := s.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	return time.LoadLocation(tz)
}

// Brand is a tenant with its own members, tiers, and external sync configuration.
type Brand struct {
	ID         string
	Name       string
	Status     string
	Settings   SyncSettings
	Window     Window
	LastSyncAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks if the Brand has valid data.
// PRE: Brand struct is initialized
// POST: Returns error if validation fails, nil otherwise
func (b *Brand) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if b.Status != StatusActive && b.Status != StatusInactive {
		return ErrInvalidStatus
	}
	return nil
}

// IsActive returns true if the brand is currently active.
func (b *Brand) IsActive() bool {
	return b.Status == StatusActive
}

// SyncEligibility reports whether the brand should be synced at now, and if not, why.
// A brand whose window end is still in the future is skipped: the provider has not
// reached that horizon yet.
// PRE: now is the current wall-clock time
// POST: Returns ("", nil) when eligible, a skip reason otherwise; error only for a corrupt window
func (b *Brand) SyncEligibility(now time.Time) (string, error) {
	switch {
	case !b.IsActive():
		return SkipInactive, nil
	case !b.Settings.Enabled:
		return SkipSyncDisabled, nil
	case strings.TrimSpace(b.Settings.Endpoint) == "":
		return SkipNoEndpoint, nil
	case b.Settings.AccessID == "" || b.Settings.AccessToken == "":
		return SkipNoCredentials, nil
	case b.Window.End == "":
		return SkipNoWindow, nil
	}

	loc, err := b.Settings.Location()
	if err != nil {
		return "", err
	}
	end, err := ParseWindowTime(b.Window.End, loc)
	if err != nil {
		return "", err
	}
	if now.Before(end) {
		return SkipWindowNotReached, nil
	}
	return "", nil
}
