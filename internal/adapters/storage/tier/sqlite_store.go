package tier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/tier"
)

const selectColumns = "id, brand_id, name, min_points_required, max_points_required, sort_order, active"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.Querier
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new tier store on db or on a caller's *sql.Tx.
func NewSQLiteStore(db storage.Querier) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Tier by its ID.
// PRE: id is non-empty
// POST: Returns the entity or storage.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Tier, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM membership_tier WHERE id = ?", id)
	t, err := scanTier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Tier{}, fmt.Errorf("tier %s: %w", id, storage.ErrNotFound)
	}
	return t, err
}

// ListActive returns active tiers for a brand, lowest sort_order first.
func (s *SQLiteStore) ListActive(ctx context.Context, brandID string) ([]domain.Tier, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM membership_tier WHERE brand_id = ? AND active = 1 ORDER BY sort_order, id",
		brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Save persists a Tier to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, t domain.Tier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO membership_tier (id, brand_id, name, min_points_required, max_points_required, sort_order, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			min_points_required = excluded.min_points_required,
			max_points_required = excluded.max_points_required,
			sort_order = excluded.sort_order,
			active = excluded.active`,
		t.ID, t.BrandID, t.Name, t.MinPoints, t.MaxPoints, t.SortOrder, t.Active)
	return err
}

func scanTier(row storage.RowScanner) (domain.Tier, error) {
	var t domain.Tier
	err := row.Scan(&t.ID, &t.BrandID, &t.Name, &t.MinPoints, &t.MaxPoints, &t.SortOrder, &t.Active)
	return t, err
}

// SQLiteHistoryStore implements HistoryStore using SQLite.
type SQLiteHistoryStore struct {
	db storage.Querier
}

// Compile-time check that SQLiteHistoryStore implements HistoryStore.
var _ HistoryStore = (*SQLiteHistoryStore)(nil)

// NewSQLiteHistoryStore creates a new tier history store.
func NewSQLiteHistoryStore(db storage.Querier) *SQLiteHistoryStore {
	return &SQLiteHistoryStore{db: db}
}

// Append inserts a history row.
func (s *SQLiteHistoryStore) Append(ctx context.Context, h domain.History) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tier_history (id, member_id, brand_id, from_tier_id, to_tier_id, reason,
			points_at_change, total_points_earned, triggered_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.MemberID, h.BrandID, storage.NullString(h.FromTierID), storage.NullString(h.ToTierID), h.Reason,
		h.PointsAtChange, h.TotalPointsEarned, h.TriggeredBy, storage.FormatTime(h.CreatedAt))
	return err
}

// ListByMember returns a member's history, newest first.
func (s *SQLiteHistoryStore) ListByMember(ctx context.Context, memberID string, limit int) ([]domain.History, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, brand_id, from_tier_id, to_tier_id, reason, points_at_change,
			total_points_earned, triggered_by, created_at
		FROM tier_history WHERE member_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.History
	for rows.Next() {
		var h domain.History
		var fromTier, toTier, createdAt sql.NullString
		if err := rows.Scan(&h.ID, &h.MemberID, &h.BrandID, &fromTier, &toTier, &h.Reason,
			&h.PointsAtChange, &h.TotalPointsEarned, &h.TriggeredBy, &createdAt); err != nil {
			return nil, err
		}
		h.FromTierID = fromTier.String
		h.ToTierID = toTier.String
		h.CreatedAt = storage.ParseTime(createdAt)
		out = append(out, h)
	}
	return out, rows.Err()
}
