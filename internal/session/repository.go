// Package session persists the agent's own settings and the single current
// session (selected file and processing options) across restarts.
package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session is the only row the agent keeps about user work. It is overwritten
// on every change; no history of runs or results is stored.
type Session struct {
	SelectionPath  string
	SelectionName  string
	SelectionOwned bool
	Mode           string
	ShotType       string
	UpdatedAt      time.Time
}

type Repository interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	LoadSession(ctx context.Context) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetConfig returns "" with no error when key is unset.
func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// LoadSession returns nil when no session was ever saved.
func (r *SQLiteRepository) LoadSession(ctx context.Context) (*Session, error) {
	var s Session
	var path, name sql.NullString
	var owned int
	var updatedAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT selection_path, selection_name, selection_owned, mode, shot_type, updated_at
		FROM session WHERE id = 1
	`).Scan(&path, &name, &owned, &s.Mode, &s.ShotType, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.SelectionPath = path.String
	s.SelectionName = name.String
	s.SelectionOwned = owned == 1
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}

func (r *SQLiteRepository) SaveSession(ctx context.Context, s *Session) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session (id, selection_path, selection_name, selection_owned, mode, shot_type, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			selection_path = excluded.selection_path,
			selection_name = excluded.selection_name,
			selection_owned = excluded.selection_owned,
			mode = excluded.mode,
			shot_type = excluded.shot_type,
			updated_at = excluded.updated_at
	`, nullString(s.SelectionPath), nullString(s.SelectionName), boolToInt(s.SelectionOwned),
		s.Mode, s.ShotType, s.UpdatedAt.Format(time.RFC3339))
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
