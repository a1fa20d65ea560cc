// Package postgres implements the repository interfaces on PostgreSQL using
// sqlx and the lib/pq driver. It is selected with database.driver=postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DB implements repository.UserRepository and repository.StatisticsRepository.
type DB struct {
	conn *sqlx.DB
}

// New connects to dsn and runs migrations.
func New(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                  TEXT PRIMARY KEY,
		github_id           BIGINT NOT NULL UNIQUE,
		login               TEXT NOT NULL,
		email               TEXT NOT NULL DEFAULT '',
		avatar_url          TEXT NOT NULL DEFAULT '',
		access_token_sealed TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS access_token_sealed TEXT NOT NULL DEFAULT ''`,
	`CREATE TABLE IF NOT EXISTS user_statistics (
		id                  TEXT PRIMARY KEY,
		external_id         BIGINT NOT NULL UNIQUE,
		username            TEXT NOT NULL,
		display_name        TEXT NOT NULL DEFAULT '',
		avatar_url          TEXT NOT NULL DEFAULT '',
		total_repositories  INTEGER NOT NULL DEFAULT 0 CHECK (total_repositories >= 0),
		total_stars         INTEGER NOT NULL DEFAULT 0 CHECK (total_stars >= 0),
		total_forks         INTEGER NOT NULL DEFAULT 0 CHECK (total_forks >= 0),
		total_watchers      INTEGER NOT NULL DEFAULT 0 CHECK (total_watchers >= 0),
		total_commits       INTEGER NOT NULL DEFAULT 0 CHECK (total_commits >= 0),
		total_contributions INTEGER NOT NULL DEFAULT 0 CHECK (total_contributions >= 0),
		current_streak      INTEGER NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
		longest_streak      INTEGER NOT NULL DEFAULT 0 CHECK (longest_streak >= 0),
		last_updated        TIMESTAMPTZ NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_statistics_username
		ON user_statistics (LOWER(username))`,
	`CREATE INDEX IF NOT EXISTS idx_user_statistics_stars
		ON user_statistics (total_stars DESC, external_id)`,
	`CREATE INDEX IF NOT EXISTS idx_user_statistics_commits
		ON user_statistics (total_commits DESC, external_id)`,
	`CREATE INDEX IF NOT EXISTS idx_user_statistics_contributions
		ON user_statistics (total_contributions DESC, external_id)`,
	`CREATE INDEX IF NOT EXISTS idx_user_statistics_streak
		ON user_statistics (current_streak DESC, external_id)`,
}

func (db *DB) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
