package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/easgit/internal/apperror"
	"github.com/sakif/easgit/internal/model"
	"github.com/sakif/easgit/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, github_id, login, email, avatar_url, access_token_sealed, created_at, updated_at`

// UpsertUser inserts or updates a user keyed by github_id in one statement.
// An empty AccessTokenSealed keeps the stored token.
func (db *DB) UpsertUser(ctx context.Context, user *model.User) error {
	now := time.Now()
	id := xid.New().String()

	err := db.conn.QueryRowxContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (github_id) DO UPDATE SET
			login      = EXCLUDED.login,
			email      = EXCLUDED.email,
			avatar_url = EXCLUDED.avatar_url,
			access_token_sealed = CASE
				WHEN EXCLUDED.access_token_sealed = '' THEN users.access_token_sealed
				ELSE EXCLUDED.access_token_sealed
			END,
			updated_at = EXCLUDED.updated_at
		 RETURNING id, access_token_sealed, created_at, updated_at`,
		id, user.GitHubID, user.Login, user.Email, user.AvatarURL, user.AccessTokenSealed, now,
	).Scan(&user.ID, &user.AccessTokenSealed, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", strconv.FormatInt(user.GitHubID, 10))
		}
		return fmt.Errorf("postgres: upserting user (githubID=%d): %w", user.GitHubID, err)
	}

	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := db.conn.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return &u, nil
}

func (db *DB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	var u model.User
	err := db.conn.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE github_id = $1`, githubID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(githubID, 10))
		}
		return nil, fmt.Errorf("postgres: getting user by github_id %d: %w", githubID, err)
	}
	return &u, nil
}

func (db *DB) ListWithTokens(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	err := db.conn.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users
		 WHERE access_token_sealed <> ''
		 ORDER BY github_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users with tokens: %w", err)
	}
	return users, nil
}
