package sqlite

import (
	"context"
	"database/sql"
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

// Upsert writes rec keyed by ExternalID in a single statement, so two
// concurrent refreshes of the same user can never create two rows; the later
// write wins.
//
// Returns apperror.ErrConflict when rec.Username already belongs to another
// external id (a login that was renamed and taken over on GitHub before the
// old owner's record was refreshed).
func (db *DB) Upsert(ctx context.Context, rec *model.UserStatistics) error {
	if rec.ID == "" {
		rec.ID = xid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s := rec.Stats
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_statistics (`+statisticsColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(external_id) DO UPDATE SET
			username            = excluded.username,
			display_name        = excluded.display_name,
			avatar_url          = excluded.avatar_url,
			total_repositories  = excluded.total_repositories,
			total_stars         = excluded.total_stars,
			total_forks         = excluded.total_forks,
			total_watchers      = excluded.total_watchers,
			total_commits       = excluded.total_commits,
			total_contributions = excluded.total_contributions,
			current_streak      = excluded.current_streak,
			longest_streak      = excluded.longest_streak,
			last_updated        = excluded.last_updated`,
		rec.ID,
		rec.ExternalID,
		rec.Username,
		rec.DisplayName,
		rec.AvatarURL,
		s.TotalRepositories,
		s.TotalStars,
		s.TotalForks,
		s.TotalWatchers,
		s.TotalCommits,
		s.TotalContributions,
		s.CurrentStreak,
		s.LongestStreak,
		s.LastUpdated,
		rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user statistics username", rec.Username)
		}
		return fmt.Errorf("sqlite: upserting statistics (externalID=%d): %w", rec.ExternalID, err)
	}

	// Read back the identity of the row that now holds external_id: on the
	// update path it is the original ID and CreatedAt, not the ones we sent.
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM user_statistics WHERE external_id = ?`, rec.ExternalID,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: reading back statistics (externalID=%d): %w", rec.ExternalID, err)
	}

	return nil
}

// FindByExternalID returns apperror.ErrNotFound if the user was never refreshed.
func (db *DB) FindByExternalID(ctx context.Context, externalID int64) (*model.UserStatistics, error) {
	rec, err := scanStatistics(db.conn.QueryRowContext(ctx,
		`SELECT `+statisticsColumns+` FROM user_statistics WHERE external_id = ?`, externalID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user statistics", strconv.FormatInt(externalID, 10))
		}
		return nil, fmt.Errorf("sqlite: finding statistics by external id %d: %w", externalID, err)
	}
	return rec, nil
}

// FindByUsername relies on the column's NOCASE collation.
func (db *DB) FindByUsername(ctx context.Context, username string) (*model.UserStatistics, error) {
	rec, err := scanStatistics(db.conn.QueryRowContext(ctx,
		`SELECT `+statisticsColumns+` FROM user_statistics WHERE username = ?`, username,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user statistics", username)
		}
		return nil, fmt.Errorf("sqlite: finding statistics by username %s: %w", username, err)
	}
	return rec, nil
}

func (db *DB) CountGreaterThan(ctx context.Context, metric model.Metric, value int) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM user_statistics WHERE %s > ?`, repository.MetricColumn(metric)),
		value,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting statistics above %d on %s: %w", value, metric, err)
	}
	return n, nil
}

// TopNByMetric returns at most limit records, best first. The column name
// comes from repository.MetricColumn, never from the request.
func (db *DB) TopNByMetric(ctx context.Context, metric model.Metric, limit int) ([]model.UserStatistics, error) {
	if limit <= 0 {
		return []model.UserStatistics{}, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT `+statisticsColumns+` FROM user_statistics
		 ORDER BY %s DESC, external_id ASC
		 LIMIT ?`, repository.MetricColumn(metric)),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing top %d by %s: %w", limit, metric, err)
	}
	defer rows.Close()

	out := make([]model.UserStatistics, 0, limit)
	for rows.Next() {
		rec, err := scanStatistics(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning statistics row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating statistics: %w", err)
	}

	return out, nil
}

func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_statistics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting statistics: %w", err)
	}
	return n, nil
}

func scanStatistics(row scanner) (*model.UserStatistics, error) {
	var rec model.UserStatistics
	err := row.Scan(
		&rec.ID,
		&rec.ExternalID,
		&rec.Username,
		&rec.DisplayName,
		&rec.AvatarURL,
		&rec.Stats.TotalRepositories,
		&rec.Stats.TotalStars,
		&rec.Stats.TotalForks,
		&rec.Stats.TotalWatchers,
		&rec.Stats.TotalCommits,
		&rec.Stats.TotalContributions,
		&rec.Stats.CurrentStreak,
		&rec.Stats.LongestStreak,
		&rec.Stats.LastUpdated,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
