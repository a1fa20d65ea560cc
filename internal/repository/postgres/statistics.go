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

var _ repository.StatisticsRepository = (*DB)(nil)

const statisticsColumns = `id, external_id, username, display_name, avatar_url,
	total_repositories, total_stars, total_forks, total_watchers,
	total_commits, total_contributions, current_streak, longest_streak,
	last_updated, created_at`

// statisticsRow is the flat shape sqlx scans into.
type statisticsRow struct {
	ID                 string    `db:"id"`
	ExternalID         int64     `db:"external_id"`
	Username           string    `db:"username"`
	DisplayName        string    `db:"display_name"`
	AvatarURL          string    `db:"avatar_url"`
	TotalRepositories  int       `db:"total_repositories"`
	TotalStars         int       `db:"total_stars"`
	TotalForks         int       `db:"total_forks"`
	TotalWatchers      int       `db:"total_watchers"`
	TotalCommits       int       `db:"total_commits"`
	TotalContributions int       `db:"total_contributions"`
	CurrentStreak      int       `db:"current_streak"`
	LongestStreak      int       `db:"longest_streak"`
	LastUpdated        time.Time `db:"last_updated"`
	CreatedAt          time.Time `db:"created_at"`
}

func (r statisticsRow) toModel() model.UserStatistics {
	return model.UserStatistics{
		ID:          r.ID,
		ExternalID:  r.ExternalID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		AvatarURL:   r.AvatarURL,
		Stats: model.Stats{
			TotalRepositories:  r.TotalRepositories,
			TotalStars:         r.TotalStars,
			TotalForks:         r.TotalForks,
			TotalWatchers:      r.TotalWatchers,
			TotalCommits:       r.TotalCommits,
			TotalContributions: r.TotalContributions,
			CurrentStreak:      r.CurrentStreak,
			LongestStreak:      r.LongestStreak,
			LastUpdated:        r.LastUpdated,
		},
		CreatedAt: r.CreatedAt,
	}
}

// Upsert writes rec keyed by ExternalID. RETURNING hands back the identity of
// the surviving row, so no second round trip is needed.
func (db *DB) Upsert(ctx context.Context, rec *model.UserStatistics) error {
	if rec.ID == "" {
		rec.ID = xid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s := rec.Stats
	err := db.conn.QueryRowxContext(ctx,
		`INSERT INTO user_statistics (`+statisticsColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (external_id) DO UPDATE SET
			username            = EXCLUDED.username,
			display_name        = EXCLUDED.display_name,
			avatar_url          = EXCLUDED.avatar_url,
			total_repositories  = EXCLUDED.total_repositories,
			total_stars         = EXCLUDED.total_stars,
			total_forks         = EXCLUDED.total_forks,
			total_watchers      = EXCLUDED.total_watchers,
			total_commits       = EXCLUDED.total_commits,
			total_contributions = EXCLUDED.total_contributions,
			current_streak      = EXCLUDED.current_streak,
			longest_streak      = EXCLUDED.longest_streak,
			last_updated        = EXCLUDED.last_updated
		 RETURNING id, created_at`,
		rec.ID, rec.ExternalID, rec.Username, rec.DisplayName, rec.AvatarURL,
		s.TotalRepositories, s.TotalStars, s.TotalForks, s.TotalWatchers,
		s.TotalCommits, s.TotalContributions, s.CurrentStreak, s.LongestStreak,
		s.LastUpdated, rec.CreatedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user statistics username", rec.Username)
		}
		return fmt.Errorf("postgres: upserting statistics (externalID=%d): %w", rec.ExternalID, err)
	}

	return nil
}

func (db *DB) FindByExternalID(ctx context.Context, externalID int64) (*model.UserStatistics, error) {
	var row statisticsRow
	err := db.conn.GetContext(ctx, &row,
		`SELECT `+statisticsColumns+` FROM user_statistics WHERE external_id = $1`, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user statistics", strconv.FormatInt(externalID, 10))
		}
		return nil, fmt.Errorf("postgres: finding statistics by external id %d: %w", externalID, err)
	}
	rec := row.toModel()
	return &rec, nil
}

func (db *DB) FindByUsername(ctx context.Context, username string) (*model.UserStatistics, error) {
	var row statisticsRow
	err := db.conn.GetContext(ctx, &row,
		`SELECT `+statisticsColumns+` FROM user_statistics WHERE LOWER(username) = LOWER($1)`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user statistics", username)
		}
		return nil, fmt.Errorf("postgres: finding statistics by username %s: %w", username, err)
	}
	rec := row.toModel()
	return &rec, nil
}

func (db *DB) CountGreaterThan(ctx context.Context, metric model.Metric, value int) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n,
		fmt.Sprintf(`SELECT COUNT(*) FROM user_statistics WHERE %s > $1`, repository.MetricColumn(metric)),
		value,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: counting statistics above %d on %s: %w", value, metric, err)
	}
	return n, nil
}

func (db *DB) TopNByMetric(ctx context.Context, metric model.Metric, limit int) ([]model.UserStatistics, error) {
	if limit <= 0 {
		return []model.UserStatistics{}, nil
	}

	var rows []statisticsRow
	err := db.conn.SelectContext(ctx, &rows,
		fmt.Sprintf(`SELECT `+statisticsColumns+` FROM user_statistics
		 ORDER BY %s DESC, external_id ASC
		 LIMIT $1`, repository.MetricColumn(metric)),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing top %d by %s: %w", limit, metric, err)
	}

	out := make([]model.UserStatistics, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM user_statistics`); err != nil {
		return 0, fmt.Errorf("postgres: counting statistics: %w", err)
	}
	return n, nil
}
