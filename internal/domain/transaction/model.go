package transaction

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Directions derived from the sign of the provider's cash value.
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Domain errors
var (
	ErrEmptyReference = errors.New("transaction reference ID is required")
	ErrEmptyBrandID   = errors.New("transaction brand ID is required")
	ErrEmptyMemberID  = errors.New("transaction member ID is required")
	ErrEmptyRawData   = errors.New("transaction raw data is required")
)

// Transaction is a point-affecting event imported from a brand's provider feed.
// ReferenceID is unique per brand; Amount and ReferenceID never change after insert.
type Transaction struct {
	ID             string
	BrandID        string
	MemberID       string
	ReferenceID    string
	MerchantID     string
	AdminID        string
	ExternalUserID string
	Type           string
	Direction      string
	Amount         decimal.Decimal
	Status         string
	Description    string
	Details        string // compact JSON text, empty when the provider sent none
	BankID         string
	Bank           string
	RawData        string // the provider record, untouched
	CreatedAt      time.Time
	ProcessedAt    time.Time
	EndAt          time.Time
	SyncedAt       time.Time
	UpdatedAt      time.Time
}

// DirectionFor returns credit for amounts >= 0 and debit otherwise.
func DirectionFor(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return DirectionDebit
	}
	return DirectionCredit
}

// Validate checks if the Transaction has valid data.
// PRE: Transaction struct is populated
// POST: Returns error if validation fails, nil otherwise
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.BrandID) == "" {
		return ErrEmptyBrandID
	}
	if strings.TrimSpace(t.ReferenceID) == "" {
		return ErrEmptyReference
	}
	if strings.TrimSpace(t.MemberID) == "" {
		return ErrEmptyMemberID
	}
	if t.RawData == "" {
		return ErrEmptyRawData
	}
	if t.Direction != DirectionCredit && t.Direction != DirectionDebit {
		return errors.New("direction must be 'credit' or 'debit'")
	}
	return nil
}

// MetadataEqual reports whether the mutable fields of t and other match.
// Only status, description, details and raw data may change after insert.
func (t *Transaction) MetadataEqual(other *Transaction) bool {
	return t.Status == other.Status &&
		t.Description == other.Description &&
		t.Details == other.Details &&
		t.RawData == other.RawData
}

// ConflictsWith reports whether other disagrees with t on an immutable field.
// PRE: both share BrandID and ReferenceID
func (t *Transaction) ConflictsWith(other *Transaction) bool {
	return !t.Amount.Equal(other.Amount) ||
		(other.ExternalUserID != "" && t.ExternalUserID != other.ExternalUserID)
}
