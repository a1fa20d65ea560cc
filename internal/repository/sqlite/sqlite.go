// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain and tests can run against ":memory:" databases.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and implements both
// repository.UserRepository and repository.StatisticsRepository.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/easgit.db" → file-based database
//   - ":memory:"       → in-memory database, used by the tests
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: SQLite allows a single writer anyway, upserts are
	// serialized, and every ":memory:" connection would otherwise be its own
	// empty database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	// github_id is UNIQUE: each GitHub account maps to exactly one row.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			github_id  INTEGER NOT NULL UNIQUE,
			login      TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Databases created before the batch refresh existed have no token column.
	if err := db.addColumnIfNotExists("users", "access_token_sealed",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding access_token_sealed to users: %w", err)
	}

	// One row per GitHub account. The metric indexes carry external_id so
	// ORDER BY <metric> DESC, external_id ASC is served from the index.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_statistics (
			id                  TEXT PRIMARY KEY,
			external_id         INTEGER NOT NULL UNIQUE,
			username            TEXT NOT NULL UNIQUE COLLATE NOCASE,
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
			last_updated        DATETIME NOT NULL,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_user_statistics_stars
			ON user_statistics(total_stars DESC, external_id);
		CREATE INDEX IF NOT EXISTS idx_user_statistics_commits
			ON user_statistics(total_commits DESC, external_id);
		CREATE INDEX IF NOT EXISTS idx_user_statistics_contributions
			ON user_statistics(total_contributions DESC, external_id);
		CREATE INDEX IF NOT EXISTS idx_user_statistics_streak
			ON user_statistics(current_streak DESC, external_id);
	`)
	if err != nil {
		return fmt.Errorf("creating user_statistics table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
