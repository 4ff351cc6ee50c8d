package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-user-signup/internal/logger"
	"github.com/sbilibin2017/gw-user-signup/internal/models"
)

// PostgresUsersSchema creates the users table. Username and email are indexed
// but not unique, matching the document store.
const PostgresUsersSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username VARCHAR(150) NOT NULL,
		email VARCHAR(254) NOT NULL,
		password VARCHAR(255) NOT NULL,
		first_name VARCHAR(150) NOT NULL DEFAULT '',
		last_name VARCHAR(150) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);
	CREATE INDEX IF NOT EXISTS users_username_idx ON users (username);
	CREATE INDEX IF NOT EXISTS users_email_idx ON users (email);
`

// PostgresUserRepository stores users in a PostgreSQL table.
type PostgresUserRepository struct {
	db          *sqlx.DB
	pingTimeout time.Duration
}

// NewPostgresUserRepository returns a repository using db. Ping gives up after
// pingTimeout; zero leaves it bound only by the caller's context.
func NewPostgresUserRepository(db *sqlx.DB, pingTimeout time.Duration) *PostgresUserRepository {
	return &PostgresUserRepository{db: db, pingTimeout: pingTimeout}
}

// Name returns the display name of the store.
func (r *PostgresUserRepository) Name() string {
	return "PostgreSQL"
}

// Ping checks that a connection from the pool is usable.
func (r *PostgresUserRepository) Ping(ctx context.Context) error {
	if r.pingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.pingTimeout)
		defer cancel()
	}
	return r.db.PingContext(ctx)
}

// EnsureSchema creates the users table and its indexes if missing.
func (r *PostgresUserRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, PostgresUsersSchema)
	return err
}

// GetByUsernameOrEmail returns the first user whose username or email matches, or nil.
func (r *PostgresUserRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (*models.UserDB, error) {
	const query = `
		SELECT id::text AS id, username, email, password, first_name, last_name, created_at, is_active
		FROM users
		WHERE username = $1 OR email = $2
		LIMIT 1
	`

	var user models.UserDB
	err := r.db.GetContext(ctx, &user, query, username, email)

	// Log with query in single line
	logger.Log.Debugw(
		"query", strings.Join(strings.Fields(query), " "),
		"args", []any{username, email},
		"error", err,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Save inserts user and returns the generated UUID.
func (r *PostgresUserRepository) Save(ctx context.Context, user *models.UserDB) (string, error) {
	const query = `
		INSERT INTO users (username, email, password, first_name, last_name, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text
	`
	args := []any{user.Username, user.Email, user.Password, user.FirstName, user.LastName, user.CreatedAt, user.IsActive}

	var id string
	err := r.db.QueryRowxContext(ctx, query, args...).Scan(&id)

	// Password digest is left out of the log.
	logger.Log.Debugw(
		"query", strings.Join(strings.Fields(query), " "),
		"args", []any{user.Username, user.Email},
		"result", id,
		"error", err,
	)

	if err != nil {
		return "", err
	}
	return id, nil
}
