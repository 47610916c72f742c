package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/ledger"
)

const selectColumns = `id, member_id, brand_id, type, amount, applied_amount, balance_before, balance_after,
	earned_delta, reference, created_by, created_at`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.Querier
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new ledger store on db or on a caller's *sql.Tx.
func NewSQLiteStore(db storage.Querier) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an Entry by its ID.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM ledger_entry WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, fmt.Errorf("ledger entry %s: %w", id, storage.ErrNotFound)
	}
	return e, err
}

// Append inserts a ledger row.
func (s *SQLiteStore) Append(ctx context.Context, e domain.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entry (id, member_id, brand_id, type, amount, applied_amount, balance_before,
			balance_after, earned_delta, reference, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MemberID, e.BrandID, e.Type, e.Amount, e.AppliedAmount, e.BalanceBefore,
		e.BalanceAfter, e.EarnedDelta, e.Reference, e.CreatedBy, storage.FormatTime(e.CreatedAt))
	return err
}

// ListByMember returns entries newest first.
func (s *SQLiteStore) ListByMember(ctx context.Context, memberID string, limit int) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM ledger_entry WHERE member_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row storage.RowScanner) (domain.Entry, error) {
	var e domain.Entry
	var createdAt sql.NullString
	err := row.Scan(&e.ID, &e.MemberID, &e.BrandID, &e.Type, &e.Amount, &e.AppliedAmount, &e.BalanceBefore,
		&e.BalanceAfter, &e.EarnedDelta, &e.Reference, &e.CreatedBy, &createdAt)
	if err != nil {
		return domain.Entry{}, err
	}
	e.CreatedAt = storage.ParseTime(createdAt)
	return e, nil
}
