package storage

import (
	"database/sql"
	"time"
)

// DateLayout is the fixed-width UTC layout for timestamp columns, so that
// ORDER BY on the text column matches chronological order.
const DateLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// FormatTime formats t for a NOT NULL timestamp column.
func FormatTime(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// NullTime returns nil for the zero time, the formatted value otherwise.
func NullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return FormatTime(t)
}

// NullString returns nil for the empty string.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ParseTime parses a timestamp column; NULL and malformed values yield the zero time.
func ParseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(DateLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
