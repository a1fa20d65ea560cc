// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in the sqlite and postgres subpackages.
package repository

import (
	"context"

	"github.com/sakif/easgit/internal/model"
)

// UserRepository stores accounts created by the GitHub OAuth login.
type UserRepository interface {
	// UpsertUser inserts or updates a user keyed by GitHubID. An empty
	// AccessTokenSealed keeps the stored token.
	UpsertUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	// ListWithTokens returns every user that has a stored access token,
	// ordered by GitHubID.
	ListWithTokens(ctx context.Context) ([]model.User, error)
}

// StatisticsRepository persists one UserStatistics record per external id
// and answers the ranking queries.
//
// Leaderboard order is the metric value descending, then ExternalID
// ascending, so equal values always come back in the same order.
type StatisticsRepository interface {
	FindByExternalID(ctx context.Context, externalID int64) (*model.UserStatistics, error)
	// FindByUsername matches case-insensitively.
	FindByUsername(ctx context.Context, username string) (*model.UserStatistics, error)
	// Upsert creates the record or overwrites its profile fields and stats.
	// ID and CreatedAt of an existing record are kept and written back into rec.
	Upsert(ctx context.Context, rec *model.UserStatistics) error
	CountGreaterThan(ctx context.Context, metric model.Metric, value int) (int, error)
	TopNByMetric(ctx context.Context, metric model.Metric, limit int) ([]model.UserStatistics, error)
	Count(ctx context.Context) (int, error)
}

// MetricColumn maps a metric to its column in the user_statistics table.
// Unknown metrics map to total_stars. Column names never come from user input.
func MetricColumn(m model.Metric) string {
	switch m {
	case model.MetricCommits:
		return "total_commits"
	case model.MetricContributions:
		return "total_contributions"
	case model.MetricStreak:
		return "current_streak"
	default:
		return "total_stars"
	}
}
