package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upeu-eventos/gateway/internal/models"
)

// ErrSessionNotFound is returned for unknown, expired or signed-out sessions.
var ErrSessionNotFound = errors.New("session not found")

// Repository persists sessions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a session.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	user, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("marshal session user: %w", err)
	}
	const q = `INSERT INTO sessions (id, user_id, user_json, upstream_token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.pool.Exec(ctx, q, s.ID, s.User.ID, user, s.UpstreamToken, s.CreatedAt, s.ExpiresAt)
	return err
}

// Get returns a live session by ID.
func (r *Repository) Get(ctx context.Context, id string) (*models.Session, error) {
	const q = `SELECT id::text, user_json, upstream_token, created_at, expires_at
		FROM sessions WHERE id = $1 AND expires_at > NOW()`
	var s models.Session
	var user []byte
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &user, &s.UpstreamToken, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(user, &s.User); err != nil {
		return nil, fmt.Errorf("decode session user: %w", err)
	}
	return &s, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteExpired removes sessions that expired before now.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
