package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Querier is the subset of *sql.DB and *sql.Tx that stores need.
// Stores built on a *sql.Tx take part in the caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Compile-time check that *sql.Tx satisfies Querier.
var _ Querier = (*sql.Tx)(nil)

// Reader is the generic lookup every entity store provides.
type Reader[T any] interface {
	GetByID(ctx context.Context, id string) (T, error)
}

// DSN builds the SQLite connection string used by the server and tests.
// Transactions begin IMMEDIATE so concurrent ledger writers queue on the write lock
// instead of failing with SQLITE_BUSY on lock upgrade.
func DSN(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_txlock=immediate"
}

// RunInTx executes fn inside a database transaction.
// PRE: db is a valid connection
// POST: fn's writes are committed when it returns nil, rolled back otherwise
func RunInTx(ctx context.Context, db SQLDB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// InitDB initializes the database schema.
// PRE: db is a valid database connection
// POST: All tables are created, WAL mode enabled
func InitDB(db *sql.DB) error {
	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// Enable foreign key enforcement
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS brand (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		sync_settings TEXT NOT NULL DEFAULT '{}',
		window_start TEXT NOT NULL DEFAULT '',
		window_end TEXT NOT NULL DEFAULT '',
		last_sync_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS membership_tier (
		id TEXT PRIMARY KEY,
		brand_id TEXT NOT NULL,
		name TEXT NOT NULL,
		min_points_required TEXT NOT NULL,
		max_points_required TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (brand_id) REFERENCES brand(id)
	);

	CREATE TABLE IF NOT EXISTS member (
		id TEXT PRIMARY KEY,
		brand_id TEXT NOT NULL,
		external_user_id TEXT,
		name TEXT NOT NULL DEFAULT '',
		points_balance TEXT NOT NULL DEFAULT '0',
		total_points_earned TEXT NOT NULL DEFAULT '0',
		current_tier_id TEXT,
		tier_upgraded_at TEXT,
		achievements TEXT NOT NULL DEFAULT '[]',
		last_activity_at TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		FOREIGN KEY (brand_id) REFERENCES brand(id),
		FOREIGN KEY (current_tier_id) REFERENCES membership_tier(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_member_brand_external_user
		ON member(brand_id, external_user_id);

	CREATE TABLE IF NOT EXISTS txn (
		id TEXT PRIMARY KEY,
		brand_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		merchant_id TEXT NOT NULL DEFAULT '',
		admin_id TEXT NOT NULL DEFAULT '',
		external_user_id TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		bank_id TEXT NOT NULL DEFAULT '',
		bank TEXT NOT NULL DEFAULT '',
		raw_data TEXT NOT NULL,
		created_at TEXT,
		processed_at TEXT,
		end_at TEXT,
		synced_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (brand_id) REFERENCES brand(id),
		FOREIGN KEY (member_id) REFERENCES member(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_txn_brand_reference ON txn(brand_id, reference_id);
	CREATE INDEX IF NOT EXISTS idx_txn_member ON txn(member_id);

	CREATE TABLE IF NOT EXISTS tier_history (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		brand_id TEXT NOT NULL,
		from_tier_id TEXT,
		to_tier_id TEXT,
		reason TEXT NOT NULL,
		points_at_change TEXT NOT NULL,
		total_points_earned TEXT NOT NULL,
		triggered_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (member_id) REFERENCES member(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tier_history_member ON tier_history(member_id, created_at);

	CREATE TABLE IF NOT EXISTS ledger_entry (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		brand_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		applied_amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		earned_delta TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (member_id) REFERENCES member(id)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entry_member ON ledger_entry(member_id, created_at);

	CREATE TABLE IF NOT EXISTS sync_run (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		brands_processed INTEGER NOT NULL DEFAULT 0,
		brands_failed INTEGER NOT NULL DEFAULT 0,
		brands_skipped INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		brand_results TEXT NOT NULL DEFAULT '[]'
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}
