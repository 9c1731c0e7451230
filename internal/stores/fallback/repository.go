package fallback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/internal/stores"
)

// Repository is a sessionauth.FallbackStore over public.users.
type Repository struct {
	db stores.DBTX
}

func NewRepository(db stores.DBTX) *Repository {
	return &Repository{db: db}
}

// UserByEmail matches email case-insensitively. A missing row is
// sessionauth.ErrUserNotFound; any other failure wraps
// sessionauth.ErrUpstreamStore.
func (r *Repository) UserByEmail(ctx context.Context, email string) (*sessionauth.UserRecord, error) {
	query :=
		`SELECT id::text, email, COALESCE(name, ''), COALESCE(password_hash, ''), COALESCE(role, '')
		 FROM public.users
		 WHERE lower(email) = $1
		 LIMIT 1`

	u := &sessionauth.UserRecord{}
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sessionauth.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: fallback users: %v", sessionauth.ErrUpstreamStore, err)
	}
	return u, nil
}

// Insert stores rec and returns its id. An empty rec.ID gets a random UUID.
func (r *Repository) Insert(ctx context.Context, rec *sessionauth.UserRecord) (string, error) {
	if rec == nil || strings.TrimSpace(rec.Email) == "" {
		return "", errors.New("fallback users: email is required")
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}

	query :=
		`INSERT INTO public.users (id, email, name, password_hash, role)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		 RETURNING id::text`

	var got string
	err := r.db.QueryRowContext(ctx, query,
		id, strings.ToLower(strings.TrimSpace(rec.Email)), rec.Name, rec.PasswordHash, rec.Role).Scan(&got)
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return got, nil
}

// Ping samples one row, as the health endpoint of the previous deployment did.
// An empty table is healthy.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM public.users LIMIT 1`).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("fallback users: %w", err)
	}
	return nil
}
