package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"loyalty/internal/domain/brand"
	"loyalty/internal/domain/transaction"
)

var errMissing = errors.New("missing")

// TransformError reports a provider record that cannot be mapped.
// It is per-record: the batch carries on without it.
type TransformError struct {
	ReferenceID string // empty when the id itself is the problem
	Field       string
	Err         error
}

func (e *TransformError) Error() string {
	if e.ReferenceID == "" {
		return fmt.Sprintf("transform record: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("transform record %s: field %q: %v", e.ReferenceID, e.Field, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Transform maps one provider record to a canonical transaction.
// BrandID and MemberID are left for the caller; timestamps without a zone are read in loc.
// PRE: loc is the brand's zone
// POST: RawData is the record exactly as received
func Transform(raw json.RawMessage, loc *time.Location) (transaction.Transaction, error) {
	var rec map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rec); err != nil {
		return transaction.Transaction{}, &TransformError{Field: "record", Err: err}
	}

	ref, err := scalarString(rec["id"])
	if err != nil || ref == "" {
		return transaction.Transaction{}, &TransformError{Field: "id", Err: orMissing(err)}
	}
	fail := func(field string, err error) (transaction.Transaction, error) {
		return transaction.Transaction{}, &TransformError{ReferenceID: ref, Field: field, Err: err}
	}

	userID, err := userIdentity(rec["user"])
	if err != nil {
		return fail("user", err)
	}
	amount, err := decimalFromJSON(rec["cash"])
	if err != nil {
		return fail("cash", err)
	}
	details, description, err := normalizeDetails(rec["details"])
	if err != nil {
		return fail("details", err)
	}

	t := transaction.Transaction{
		ReferenceID:    ref,
		ExternalUserID: userID,
		Amount:         amount,
		Direction:      transaction.DirectionFor(amount),
		Details:        details,
		Description:    description,
		RawData:        string(raw),
	}

	strFields := []struct {
		name string
		dst  *string
	}{
		{"merchantId", &t.MerchantID},
		{"adminId", &t.AdminID},
		{"type", &t.Type},
		{"status", &t.Status},
		{"bankId", &t.BankID},
		{"bank", &t.Bank},
	}
	for _, f := range strFields {
		v, err := scalarString(rec[f.name])
		if err != nil {
			return fail(f.name, err)
		}
		*f.dst = v
	}

	timeFields := []struct {
		name string
		dst  *time.Time
	}{
		{"createdDateTime", &t.CreatedAt},
		{"processedDateTime", &t.ProcessedAt},
		{"endDateTime", &t.EndAt},
	}
	for _, f := range timeFields {
		v, err := parseTimestamp(rec[f.name], loc)
		if err != nil {
			return fail(f.name, err)
		}
		*f.dst = v
	}
	return t, nil
}

func orMissing(err error) error {
	if err == nil {
		return errMissing
	}
	return err
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// scalarString reads a string, number or bool as text. Absent and null yield "".
func scalarString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case json.Number:
		return x.String(), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("expected a scalar, got %T", v)
	}
}

// decimalFromJSON parses a number or numeric string exactly, without a float round-trip.
func decimalFromJSON(raw json.RawMessage) (decimal.Decimal, error) {
	s, err := scalarString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if s == "" {
		return decimal.Zero, errMissing
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", s)
	}
	return d, nil
}

// userIdentity extracts the provider user id from a scalar or an object.
func userIdentity(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", errMissing
	}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", err
		}
		for _, key := range []string{"id", "userId", "username"} {
			v, err := scalarString(obj[key])
			if err != nil {
				return "", fmt.Errorf("user.%s: %w", key, err)
			}
			if v != "" {
				return v, nil
			}
		}
		return "", errMissing
	}
	v, err := scalarString(raw)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", errMissing
	}
	return v, nil
}

// normalizeDetails accepts details as JSON or as a string holding JSON and
// returns compact JSON text plus a description drawn from remark or description.
func normalizeDetails(raw json.RawMessage) (string, string, error) {
	if isNull(raw) {
		return "", "", nil
	}
	payload := bytes.TrimSpace(raw)
	if payload[0] == '"' {
		var encoded string
		if err := json.Unmarshal(payload, &encoded); err != nil {
			return "", "", err
		}
		encoded = strings.TrimSpace(encoded)
		if encoded == "" {
			return "", "", nil
		}
		payload = []byte(encoded)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return "", "", fmt.Errorf("malformed JSON: %w", err)
	}

	var description string
	var obj map[string]json.RawMessage
	if json.Unmarshal(compact.Bytes(), &obj) == nil {
		for _, key := range []string{"remark", "description"} {
			if v, err := scalarString(obj[key]); err == nil && v != "" {
				description = v
				break
			}
		}
	}
	return compact.String(), description, nil
}

// parseTimestamp reads the provider layout in loc, or RFC 3339. Absent yields the zero time.
func parseTimestamp(raw json.RawMessage, loc *time.Location) (time.Time, error) {
	s, err := scalarString(raw)
	if err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(brand.WindowLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
