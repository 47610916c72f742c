package member

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// TestNew verifies a synced member starts empty.
func TestNew(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m := New("m1", "b1", "u-42", now)

	if !m.PointsBalance.IsZero() || !m.TotalPointsEarned.IsZero() {
		t.Errorf("new member balance=%s total=%s, want 0/0", m.PointsBalance, m.TotalPointsEarned)
	}
	if m.HasTier() {
		t.Error("new member should have no tier")
	}
	if m.Achievements == nil || len(m.Achievements) != 0 {
		t.Errorf("Achievements = %v, want empty non-nil slice", m.Achievements)
	}
	if m.Version != 1 {
		t.Errorf("Version = %d, want 1", m.Version)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

// TestMember_Validate tests validation of Member fields.
func TestMember_Validate(t *testing.T) {
	valid := New("m1", "b1", "u-1", time.Now())

	tests := []struct {
		name    string
		mutate  func(m *Member)
		wantErr error
	}{
		{name: "valid", mutate: func(*Member) {}},
		{name: "missing brand", mutate: func(m *Member) { m.BrandID = " " }, wantErr: ErrEmptyBrandID},
		{name: "negative balance", mutate: func(m *Member) { m.PointsBalance = decimal.NewFromInt(-1) }, wantErr: ErrNegativeBalance},
		{name: "negative total", mutate: func(m *Member) { m.TotalPointsEarned = decimal.NewFromInt(-1) }, wantErr: ErrNegativeTotal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			if err := m.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	long := valid
	long.Name = strings.Repeat("a", MaxNameLength+1)
	if err := long.Validate(); err == nil {
		t.Error("expected error for over-long name")
	}
}
