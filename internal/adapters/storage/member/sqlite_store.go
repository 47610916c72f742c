package member

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"loyalty/internal/adapters/storage"
	domain "loyalty/internal/domain/member"
)

const selectColumns = `id, brand_id, external_user_id, name, points_balance, total_points_earned,
	current_tier_id, tier_upgraded_at, achievements, last_activity_at, version, created_at`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.Querier
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new member store on db or on a caller's *sql.Tx.
func NewSQLiteStore(db storage.Querier) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Member by its ID.
// PRE: id is non-empty
// POST: Returns the entity or storage.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Member, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM member WHERE id = ?", id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Member{}, fmt.Errorf("member %s: %w", id, storage.ErrNotFound)
	}
	return m, err
}

// GetByExternalUser retrieves a Member by brand and provider user id.
// PRE: brandID and externalUserID are non-empty
// POST: Returns the entity or storage.ErrNotFound
func (s *SQLiteStore) GetByExternalUser(ctx context.Context, brandID, externalUserID string) (domain.Member, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM member WHERE brand_id = ? AND external_user_id = ?",
		brandID, externalUserID)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Member{}, fmt.Errorf("member for user %s: %w", externalUserID, storage.ErrNotFound)
	}
	return m, err
}

// CreateIfAbsent inserts with ON CONFLICT DO NOTHING and reads back the winner,
// so concurrent resolvers for one user converge on a single row.
func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, m domain.Member) (domain.Member, bool, error) {
	if m.ExternalUserID == "" {
		return domain.Member{}, false, domain.ErrEmptyExternalUserID
	}
	achievements := m.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	encoded, err := json.Marshal(achievements)
	if err != nil {
		return domain.Member{}, false, fmt.Errorf("encode achievements: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO member (id, brand_id, external_user_id, name, points_balance, total_points_earned,
			achievements, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(brand_id, external_user_id) DO NOTHING`,
		m.ID, m.BrandID, m.ExternalUserID, m.Name, m.PointsBalance, m.TotalPointsEarned,
		string(encoded), m.Version, storage.FormatTime(m.CreatedAt))
	if err != nil {
		return domain.Member{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Member{}, false, err
	}

	stored, err := s.GetByExternalUser(ctx, m.BrandID, m.ExternalUserID)
	if err != nil {
		return domain.Member{}, false, err
	}
	return stored, n == 1, nil
}

// UpdateLedger writes the points columns guarded by the version.
func (s *SQLiteStore) UpdateLedger(ctx context.Context, m *domain.Member) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE member SET points_balance = ?, total_points_earned = ?, last_activity_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		m.PointsBalance, m.TotalPointsEarned, storage.NullTime(m.LastActivityAt), m.ID, m.Version)
	if err != nil {
		return err
	}
	return s.bumpVersion(ctx, res, m)
}

// UpdateTier writes the tier columns guarded by the version.
func (s *SQLiteStore) UpdateTier(ctx context.Context, m *domain.Member) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE member SET current_tier_id = ?, tier_upgraded_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		storage.NullString(m.CurrentTierID), storage.NullTime(m.TierUpgradedAt), m.ID, m.Version)
	if err != nil {
		return err
	}
	return s.bumpVersion(ctx, res, m)
}

// bumpVersion advances m.Version after a guarded update, or explains why nothing matched.
func (s *SQLiteStore) bumpVersion(ctx context.Context, res sql.Result, m *domain.Member) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		m.Version++
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM member WHERE id = ?", m.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("member %s: %w", m.ID, storage.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return domain.ErrVersionConflict
}

func scanMember(row storage.RowScanner) (domain.Member, error) {
	var m domain.Member
	var externalUserID, currentTierID, tierUpgradedAt, lastActivityAt, createdAt sql.NullString
	var achievements string
	err := row.Scan(&m.ID, &m.BrandID, &externalUserID, &m.Name, &m.PointsBalance, &m.TotalPointsEarned,
		&currentTierID, &tierUpgradedAt, &achievements, &lastActivityAt, &m.Version, &createdAt)
	if err != nil {
		return domain.Member{}, err
	}
	m.ExternalUserID = externalUserID.String
	m.CurrentTierID = currentTierID.String
	m.TierUpgradedAt = storage.ParseTime(tierUpgradedAt)
	m.LastActivityAt = storage.ParseTime(lastActivityAt)
	m.CreatedAt = storage.ParseTime(createdAt)
	m.Achievements = []string{}
	if achievements != "" {
		if err := json.Unmarshal([]byte(achievements), &m.Achievements); err != nil {
			return domain.Member{}, fmt.Errorf("decode achievements for member %s: %w", m.ID, err)
		}
	}
	return m, nil
}
