package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the users table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id         TEXT PRIMARY KEY,
			hashed_password TEXT NOT NULL,
			disabled        BOOLEAN NOT NULL DEFAULT FALSE
		)`)
	if err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

// Get retrieves a user by ID, or ErrUserNotFound.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, hashed_password, disabled FROM users WHERE user_id = $1`,
		userID,
	).Scan(&u.UserID, &u.HashedPassword, &u.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user %s: %w", userID, err)
	}
	return &u, nil
}

// Upsert creates or replaces a user record.
func (s *PostgresStore) Upsert(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, hashed_password, disabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET hashed_password = EXCLUDED.hashed_password,
		              disabled        = EXCLUDED.disabled`,
		u.UserID, u.HashedPassword, u.Disabled)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.UserID, err)
	}
	return nil
}
