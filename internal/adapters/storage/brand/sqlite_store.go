package brand

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/brand"
)

const selectColumns = "id, name, status, sync_settings, window_start, window_end, last_sync_at, created_at, updated_at"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.Querier
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new brand store on db or on a caller's *sql.Tx.
func NewSQLiteStore(db storage.Querier) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Brand by its ID.
// PRE: id is non-empty
// POST: Returns the entity or storage.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Brand, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM brand WHERE id = ?", id)
	b, err := scanBrand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Brand{}, fmt.Errorf("brand %s: %w", id, storage.ErrNotFound)
	}
	return b, err
}

// ListSyncable returns active brands ordered by name.
func (s *SQLiteStore) ListSyncable(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM brand WHERE status = ? ORDER BY name, id", domain.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Brand
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Save persists a Brand to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, b domain.Brand) error {
	settings, err := json.Marshal(b.Settings)
	if err != nil {
		return fmt.Errorf("encode sync settings: %w", err)
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO brand (id, name, status, sync_settings, window_start, window_end, last_sync_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			sync_settings = excluded.sync_settings,
			window_start = excluded.window_start,
			window_end = excluded.window_end,
			last_sync_at = excluded.last_sync_at,
			updated_at = excluded.updated_at`,
		b.ID, b.Name, b.Status, string(settings), b.Window.Start, b.Window.End,
		storage.NullTime(b.LastSyncAt), storage.FormatTime(b.CreatedAt), storage.FormatTime(now))
	return err
}

// UpdateSyncWindow advances the stored window.
// Window strings share one layout and zone, so text comparison is chronological.
// INVARIANT: window_end never decreases
func (s *SQLiteStore) UpdateSyncWindow(ctx context.Context, brandID string, w domain.Window, syncedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE brand SET window_start = ?, window_end = ?, last_sync_at = ?, updated_at = ?
		WHERE id = ? AND (window_end = '' OR window_end <= ?)`,
		w.Start, w.End, storage.NullTime(syncedAt), storage.FormatTime(time.Now()), brandID, w.End)
	if err != nil {
		return err
	}
	return s.checkUpdated(ctx, res, brandID, domain.ErrWindowRegression)
}

// UpdateSyncSettings replaces the settings JSON.
func (s *SQLiteStore) UpdateSyncSettings(ctx context.Context, brandID string, settings domain.SyncSettings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode sync settings: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE brand SET sync_settings = ?, updated_at = ? WHERE id = ?",
		string(encoded), storage.FormatTime(time.Now()), brandID)
	if err != nil {
		return err
	}
	return s.checkUpdated(ctx, res, brandID, nil)
}

// checkUpdated maps a zero-row update to ErrNotFound, or to guardErr when the row exists.
func (s *SQLiteStore) checkUpdated(ctx context.Context, res sql.Result, brandID string, guardErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM brand WHERE id = ?", brandID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("brand %s: %w", brandID, storage.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if guardErr != nil {
		return guardErr
	}
	return nil
}

func scanBrand(row storage.RowScanner) (domain.Brand, error) {
	var b domain.Brand
	var settings string
	var lastSyncAt, createdAt, updatedAt sql.NullString
	err := row.Scan(&b.ID, &b.Name, &b.Status, &settings, &b.Window.Start, &b.Window.End,
		&lastSyncAt, &createdAt, &updatedAt)
	if err != nil {
		return domain.Brand{}, err
	}
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &b.Settings); err != nil {
			return domain.Brand{}, fmt.Errorf("decode sync settings for brand %s: %w", b.ID, err)
		}
	}
	b.Settings = b.Settings.WithDefaults()
	b.LastSyncAt = storage.ParseTime(lastSyncAt)
	b.CreatedAt = storage.ParseTime(createdAt)
	b.UpdatedAt = storage.ParseTime(updatedAt)
	return b, nil
}
