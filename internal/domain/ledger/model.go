package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Entry types
const (
	TypeCredit     = "credit"
	TypeDebit      = "debit"
	TypeWin        = "win"
	TypeReward     = "reward"
	TypeAdjustment = "adjustment"
)

// Domain errors
var (
	ErrInvalidType     = errors.New("type must be one of: credit, debit, win, reward, adjustment")
	ErrZeroAmount      = errors.New("amount cannot be zero")
	ErrPositiveDebit   = errors.New("debit amount must be negative")
	ErrEmptyMemberID   = errors.New("member ID is required")
	ErrEmptyCreatedBy  = errors.New("created_by is required")
	ErrCorrectionScope = errors.New("correct_total only applies to adjustments")
)

// IsEarning reports whether entries of this type count toward the lifetime total.
func IsEarning(entryType string) bool {
	switch entryType {
	case TypeCredit, TypeWin, TypeReward:
		return true
	}
	return false
}

func validType(entryType string) bool {
	return IsEarning(entryType) || entryType == TypeDebit || entryType == TypeAdjustment
}

// Mutation is a requested change to a member's points.
// Amount is signed; CorrectTotal lets an adjustment lower the lifetime total.
type Mutation struct {
	Type         string
	Amount       decimal.Decimal
	CorrectTotal bool
}

// Validate checks if the Mutation is well formed.
// PRE: Mutation is populated
// POST: Returns nil if valid, error otherwise
func (m Mutation) Validate() error {
	if !validType(m.Type) {
		return ErrInvalidType
	}
	if m.Amount.IsZero() {
		return ErrZeroAmount
	}
	if m.Type == TypeDebit && m.Amount.IsPositive() {
		return ErrPositiveDebit
	}
	if m.CorrectTotal && m.Type != TypeAdjustment {
		return ErrCorrectionScope
	}
	return nil
}

// Result is the outcome of applying a Mutation.
type Result struct {
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Applied       decimal.Decimal // BalanceAfter - BalanceBefore; differs from Amount when clamped
	TotalBefore   decimal.Decimal
	TotalAfter    decimal.Decimal
	EarnedDelta   decimal.Decimal
}

// Clamped reports whether the zero floor absorbed part of the mutation.
func (r Result) Clamped(m Mutation) bool {
	return !r.Applied.Equal(m.Amount)
}

// Apply computes the new balance and lifetime total.
// PRE: balance and total are non-negative
// POST: BalanceAfter = max(0, balance + amount)
// POST: TotalAfter >= total unless m is an adjustment with CorrectTotal
// INVARIANT: neither BalanceAfter nor TotalAfter is negative
func Apply(balance, total decimal.Decimal, m Mutation) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{}, err
	}

	after := decimal.Max(decimal.Zero, balance.Add(m.Amount))
	res := Result{
		BalanceBefore: balance,
		BalanceAfter:  after,
		Applied:       after.Sub(balance),
		TotalBefore:   total,
		TotalAfter:    total,
		EarnedDelta:   decimal.Zero,
	}

	switch {
	case IsEarning(m.Type) && m.Amount.IsPositive():
		res.TotalAfter = total.Add(m.Amount)
	case m.Type == TypeAdjustment && m.CorrectTotal:
		res.TotalAfter = decimal.Max(decimal.Zero, total.Add(m.Amount))
	}
	res.EarnedDelta = res.TotalAfter.Sub(total)
	return res, nil
}

// Entry is an append-only record of one applied mutation.
type Entry struct {
	ID            string
	MemberID      string
	BrandID       string
	Type          string
	Amount        decimal.Decimal
	AppliedAmount decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	EarnedDelta   decimal.Decimal
	Reference     string // transaction reference or admin reason
	CreatedBy     string
	CreatedAt     time.Time
}

// Validate checks if the Entry has valid data.
// PRE: Entry struct is populated
// POST: Returns nil if valid, error otherwise
func (e *Entry) Validate() error {
	if e.MemberID == "" {
		return ErrEmptyMemberID
	}
	if !validType(e.Type) {
		return ErrInvalidType
	}
	if e.CreatedBy == "" {
		return ErrEmptyCreatedBy
	}
	if e.BalanceAfter.IsNegative() {
		return errors.New("balance_after cannot be negative")
	}
	return nil
}
