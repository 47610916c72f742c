package syncrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/syncrun"
)

const selectColumns = `id, status, started_at, finished_at, processed, errors, brands_processed, brands_failed,
	brands_skipped, error_message, brand_results`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.Querier
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new sync run store.
func NewSQLiteStore(db storage.Querier) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Run by its ID.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM sync_run WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("sync run %s: %w", id, storage.ErrNotFound)
	}
	return r, err
}

// Save upserts a run.
func (s *SQLiteStore) Save(ctx context.Context, r domain.Run) error {
	brands := r.Brands
	if brands == nil {
		brands = []domain.BrandResult{}
	}
	encoded, err := json.Marshal(brands)
	if err != nil {
		return fmt.Errorf("encode brand results: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_run (id, status, started_at, finished_at, processed, errors, brands_processed,
			brands_failed, brands_skipped, error_message, brand_results)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			processed = excluded.processed,
			errors = excluded.errors,
			brands_processed = excluded.brands_processed,
			brands_failed = excluded.brands_failed,
			brands_skipped = excluded.brands_skipped,
			error_message = excluded.error_message,
			brand_results = excluded.brand_results`,
		r.ID, r.Status, storage.FormatTime(r.StartedAt), storage.NullTime(r.FinishedAt), r.Processed, r.Errors,
		r.BrandsProcessed, r.BrandsFailed, r.BrandsSkipped, r.ErrorMessage, string(encoded))
	return err
}

// GetLatest returns the newest run.
func (s *SQLiteStore) GetLatest(ctx context.Context) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM sync_run ORDER BY started_at DESC, rowid DESC LIMIT 1")
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("latest sync run: %w", storage.ErrNotFound)
	}
	return r, err
}

// List returns runs newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM sync_run ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRun(row storage.RowScanner) (domain.Run, error) {
	var r domain.Run
	var startedAt, finishedAt sql.NullString
	var brands string
	err := row.Scan(&r.ID, &r.Status, &startedAt, &finishedAt, &r.Processed, &r.Errors, &r.BrandsProcessed,
		&r.BrandsFailed, &r.BrandsSkipped, &r.ErrorMessage, &brands)
	if err != nil {
		return domain.Run{}, err
	}
	r.StartedAt = storage.ParseTime(startedAt)
	r.FinishedAt = storage.ParseTime(finishedAt)
	r.Brands = []domain.BrandResult{}
	if brands != "" {
		if err := json.Unmarshal([]byte(brands), &r.Brands); err != nil {
			return domain.Run{}, fmt.Errorf("decode brand results for run %s: %w", r.ID, err)
		}
	}
	return r, nil
}
