package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/mcloones/mcloones"
)

type profileRow struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	ID        string    `bun:"id,pk"`
	Role      string    `bun:"role,notnull"`
	FullName  string    `bun:"full_name,notnull"`
	Email     string    `bun:"email,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *profileRow) profile() (mcloones.Profile, error) {
	role, err := mcloones.ParseRole(r.Role)
	if err != nil {
		return mcloones.Profile{}, fmt.Errorf("profile %s: stored role %q: %w", r.ID, r.Role, err)
	}
	return mcloones.Profile{ID: r.ID, Role: role, FullName: r.FullName, Email: r.Email}, nil
}

// OpenSQLite opens a SQLite database through the modernc.org/sqlite driver.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return db, nil
}

// BunStore keeps profiles in a SQL table.
type BunStore struct {
	db *bun.DB
}

// NewBunStore creates a BunStore on db. Call CreateSchema once before use.
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// CreateSchema creates the profiles table and its role index.
func (s *BunStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*profileRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create profiles table: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*profileRow)(nil)).
		Index("profiles_role_idx").
		Column("role").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create profiles role index: %w", err)
	}
	return nil
}

// GetProfileByID returns an error wrapping [mcloones.ErrProfileNotFound] when
// no row exists.
func (s *BunStore) GetProfileByID(ctx context.Context, id string) (mcloones.Profile, error) {
	row := new(profileRow)
	err := s.db.NewSelect().
		Model(row).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mcloones.Profile{}, fmt.Errorf("%w: %s", mcloones.ErrProfileNotFound, id)
		}
		return mcloones.Profile{}, fmt.Errorf("get profile %s: %w", id, err)
	}
	return row.profile()
}

// CreateProfile inserts p, failing with [ErrProfileExists] if the id is taken.
func (s *BunStore) CreateProfile(ctx context.Context, p mcloones.Profile) error {
	if p.ID == "" || !p.Role.Valid() {
		return errors.New("profile id and role are required")
	}

	row := &profileRow{
		ID:       p.ID,
		Role:     p.Role.String(),
		FullName: p.FullName,
		Email:    p.Email,
	}
	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create profile %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create profile %s: %w", p.ID, err)
	}
	if n == 0 {
		return ErrProfileExists
	}
	return nil
}

// DeleteProfile removes the row. A missing row is not an error.
func (s *BunStore) DeleteProfile(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().
		Model((*profileRow)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	return nil
}

// UpdateProfile changes display attributes and returns the updated row.
func (s *BunStore) UpdateProfile(ctx context.Context, id string, u Update) (mcloones.Profile, error) {
	q := s.db.NewUpdate().
		Model((*profileRow)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	if u.FullName != nil {
		q = q.Set("full_name = ?", strings.TrimSpace(*u.FullName))
	}
	if u.Email != nil {
		q = q.Set("email = ?", strings.ToLower(strings.TrimSpace(*u.Email)))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return mcloones.Profile{}, fmt.Errorf("update profile %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mcloones.Profile{}, fmt.Errorf("update profile %s: %w", id, err)
	}
	if n == 0 {
		return mcloones.Profile{}, fmt.Errorf("%w: %s", mcloones.ErrProfileNotFound, id)
	}
	return s.GetProfileByID(ctx, id)
}

// ListByRole returns every profile with role, sorted by display name.
func (s *BunStore) ListByRole(ctx context.Context, role mcloones.Role) ([]mcloones.Profile, error) {
	var rows []profileRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("role = ?", role.String()).
		OrderExpr("lower(full_name) ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s profiles: %w", role, err)
	}

	out := make([]mcloones.Profile, 0, len(rows))
	for i := range rows {
		p, err := rows[i].profile()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
