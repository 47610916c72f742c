package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/transaction"
)

const selectColumns = `id, brand_id, member_id, reference_id, merchant_id, admin_id, external_user_id, type,
	direction, amount, status, description, details, bank_id, bank, raw_data,
	created_at, processed_at, end_at, synced_at, updated_at`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.Querier
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new transaction store on db or on a caller's *sql.Tx.
func NewSQLiteStore(db storage.Querier) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Transaction by its ID.
// PRE: id is non-empty
// POST: Returns the entity or storage.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM txn WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	return t, err
}

// GetByReference retrieves a Transaction by brand and provider reference.
// PRE: brandID and referenceID are non-empty
// POST: Returns the entity or storage.ErrNotFound
func (s *SQLiteStore) GetByReference(ctx context.Context, brandID, referenceID string) (domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM txn WHERE brand_id = ? AND reference_id = ?", brandID, referenceID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", referenceID, storage.ErrNotFound)
	}
	return t, err
}

// CreateIfAbsent inserts on the unique (brand_id, reference_id) key.
func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, t domain.Transaction) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO txn (id, brand_id, member_id, reference_id, merchant_id, admin_id, external_user_id, type,
			direction, amount, status, description, details, bank_id, bank, raw_data,
			created_at, processed_at, end_at, synced_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(brand_id, reference_id) DO NOTHING`,
		t.ID, t.BrandID, t.MemberID, t.ReferenceID, t.MerchantID, t.AdminID, t.ExternalUserID, t.Type,
		t.Direction, t.Amount, t.Status, t.Description, t.Details, t.BankID, t.Bank, t.RawData,
		storage.NullTime(t.CreatedAt), storage.NullTime(t.ProcessedAt), storage.NullTime(t.EndAt),
		storage.FormatTime(t.SyncedAt), storage.FormatTime(t.UpdatedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateMetadata writes status, description, details, raw data and timestamps.
func (s *SQLiteStore) UpdateMetadata(ctx context.Context, t domain.Transaction) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE txn SET status = ?, description = ?, details = ?, raw_data = ?,
			processed_at = ?, end_at = ?, synced_at = ?, updated_at = ?
		WHERE brand_id = ? AND reference_id = ?`,
		t.Status, t.Description, t.Details, t.RawData,
		storage.NullTime(t.ProcessedAt), storage.NullTime(t.EndAt),
		storage.FormatTime(t.SyncedAt), storage.FormatTime(t.UpdatedAt),
		t.BrandID, t.ReferenceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", t.ReferenceID, storage.ErrNotFound)
	}
	return nil
}

// ListByMember returns a member's transactions, newest sync first.
func (s *SQLiteStore) ListByMember(ctx context.Context, memberID string, limit int) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM txn WHERE member_id = ? ORDER BY synced_at DESC, id DESC LIMIT ?",
		memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row storage.RowScanner) (domain.Transaction, error) {
	var t domain.Transaction
	var createdAt, processedAt, endAt, syncedAt, updatedAt sql.NullString
	err := row.Scan(&t.ID, &t.BrandID, &t.MemberID, &t.ReferenceID, &t.MerchantID, &t.AdminID,
		&t.ExternalUserID, &t.Type, &t.Direction, &t.Amount, &t.Status, &t.Description, &t.Details,
		&t.BankID, &t.Bank, &t.RawData, &createdAt, &processedAt, &endAt, &syncedAt, &updatedAt)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.CreatedAt = storage.ParseTime(createdAt)
	t.ProcessedAt = storage.ParseTime(processedAt)
	t.EndAt = storage.ParseTime(endAt)
	t.SyncedAt = storage.ParseTime(syncedAt)
	t.UpdatedAt = storage.ParseTime(updatedAt)
	return t, nil
}
