// Package storagetest opens throwaway SQLite databases for package tests.
package storagetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"loyalty/internal/adapters/storage"
)

// Open returns a schema-initialised database in t.TempDir, closed on cleanup.
// A file is used rather than :memory: because every pooled connection to
// :memory: sees its own empty database.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", storage.DSN(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("init test db: %v", err)
	}
	return db
}

// InsertBrand adds a bare active brand row so foreign keys resolve.
func InsertBrand(t testing.TB, db storage.Querier, id string) {
	t.Helper()
	now := storage.FormatTime(time.Now())
	_, err := db.ExecContext(context.Background(),
		"INSERT INTO brand (id, name, status, created_at, updated_at) VALUES (?, ?, 'active', ?, ?)",
		id, "Brand "+id, now, now)
	if err != nil {
		t.Fatalf("insert brand %s: %v", id, err)
	}
}

// InsertMember adds a zero-balance member row for brandID.
func InsertMember(t testing.TB, db storage.Querier, id, brandID, externalUserID string) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		"INSERT INTO member (id, brand_id, external_user_id, created_at) VALUES (?, ?, ?, ?)",
		id, brandID, storage.NullString(externalUserID), storage.FormatTime(time.Now()))
	if err != nil {
		t.Fatalf("insert member %s: %v", id, err)
	}
}
