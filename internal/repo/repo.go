package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"attune/internal/domain"
)

// Repo is the record store client for users, profiles, plans, interventions,
// checkins and hypothesis cards.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// EnsureUser inserts the user when no row with its id exists yet.
func (r Repo) EnsureUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO users(id,name,email,is_guest,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Name, nullable(u.Email), boolInt(u.IsGuest), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var guest int
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(email,''),is_guest,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &guest, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.IsGuest = guest == 1
	return u, err
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
