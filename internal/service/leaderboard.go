// Package service holds the business logic between the HTTP handlers and the
// repositories:
//
//	Handler (HTTP) → Service (rules, orchestration) → Repository (storage)
//	                         ↘ github.Source (statistics fetches)
//
// Services accept and return domain types and apperror values, never HTTP
// types, so the batch job and the handlers share the same code paths.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/easgit/internal/apperror"
	"github.com/sakif/easgit/internal/github"
	"github.com/sakif/easgit/internal/metrics"
	"github.com/sakif/easgit/internal/model"
	"github.com/sakif/easgit/internal/repository"
	"github.com/sakif/easgit/internal/streak"
)

// Leaderboard defaults, used when the configuration leaves them at zero.
const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 100
	DefaultFetchTimeout     = 20 * time.Second
)

// StatsSource is the adapter that talks to GitHub. *github.Client and
// *github.CachingSource both satisfy it.
type StatsSource interface {
	FetchStats(ctx context.Context, login, token string) (*github.Snapshot, error)
}

// Identity is who a refresh is for, as known before talking to GitHub.
type Identity struct {
	ExternalID  int64
	Username    string
	DisplayName string
	AvatarURL   string
}

// IdentityFromUser builds the refresh identity of a logged-in user.
func IdentityFromUser(u *model.User) Identity {
	return Identity{
		ExternalID: u.GitHubID,
		Username:   u.Login,
		AvatarURL:  u.AvatarURL,
	}
}

type LeaderboardConfig struct {
	DefaultLimit int
	MaxLimit     int
	FetchTimeout time.Duration
}

// LeaderboardService refreshes statistics and answers ranking queries.
type LeaderboardService struct {
	stats   repository.StatisticsRepository
	source  StatsSource
	cfg     LeaderboardConfig
	metrics *metrics.Manager
	logger  *slog.Logger
	now     func() time.Time
}

func NewLeaderboardService(
	stats repository.StatisticsRepository,
	source StatsSource,
	cfg LeaderboardConfig,
	m *metrics.Manager,
	logger *slog.Logger,
) *LeaderboardService {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLeaderboardLimit
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = min(DefaultLeaderboardLimit, cfg.MaxLimit)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &LeaderboardService{
		stats:   stats,
		source:  source,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// RefreshUser fetches fresh statistics for identity and stores them.
//
// A failed fetch returns an error wrapping apperror.ErrUpstream and the
// github error kind, and nothing is written. A successful fetch causes
// exactly one upsert keyed by the external id.
func (s *LeaderboardService) RefreshUser(ctx context.Context, identity Identity, accessToken string) (*model.UserStatistics, error) {
	username := strings.TrimSpace(identity.Username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if accessToken == "" {
		return nil, apperror.Unauthorized("a GitHub access token is required to refresh statistics")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	started := s.now()
	snap, err := s.source.FetchStats(fetchCtx, username, accessToken)
	s.metrics.ObserveFetch(time.Since(started))
	if err != nil {
		s.metrics.RecordRefresh(metrics.ResultUpstream)
		s.logger.Warn("refresh failed",
			slog.String("username", username),
			slog.String("kind", github.Kind(err)),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream(err, github.RetryAfter(err))
	}

	rec, err := s.buildRecord(identity, snap)
	if err != nil {
		s.metrics.RecordRefresh(metrics.ResultUpstream)
		return nil, apperror.Upstream(err, 0)
	}

	if err := s.stats.Upsert(ctx, rec); err != nil {
		s.metrics.RecordRefresh(metrics.ResultStore)
		s.logger.Error("failed to store statistics",
			slog.String("username", rec.Username),
			slog.Int64("externalID", rec.ExternalID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/leaderboard: storing statistics for %s: %w", rec.Username, err)
	}

	s.metrics.RecordRefresh(metrics.ResultOK)
	s.logger.Info("stats refreshed",
		slog.String("username", rec.Username),
		slog.Int64("externalID", rec.ExternalID),
		slog.Int("stars", rec.Stats.TotalStars),
		slog.Int("currentStreak", rec.Stats.CurrentStreak),
	)

	return rec, nil
}

// buildRecord aggregates a snapshot into a record. Identity fields from
// GitHub win over the caller's so renames flow through.
func (s *LeaderboardService) buildRecord(identity Identity, snap *github.Snapshot) (*model.UserStatistics, error) {
	externalID := snap.ExternalID
	if externalID == 0 {
		externalID = identity.ExternalID
	}
	if externalID == 0 {
		return nil, fmt.Errorf("%w: no external id for %s", github.ErrMalformed, identity.Username)
	}

	username := firstNonEmpty(snap.Login, strings.TrimSpace(identity.Username))

	now := s.now().UTC()
	st := model.Stats{
		TotalRepositories:  nonNegative(snap.TotalRepositories),
		TotalCommits:       nonNegative(snap.CommitContributions + snap.RestrictedContributions),
		TotalContributions: nonNegative(snap.CalendarTotal),
		LastUpdated:        now,
	}
	for _, r := range snap.Repositories {
		st.TotalStars += nonNegative(r.Stars)
		st.TotalForks += nonNegative(r.Forks)
		st.TotalWatchers += nonNegative(r.Watchers)
	}

	streaks := streak.Calculate(snap.Days, now)
	st.CurrentStreak = streaks.Current
	st.LongestStreak = streaks.Longest

	return &model.UserStatistics{
		ExternalID:  externalID,
		Username:    username,
		DisplayName: firstNonEmpty(snap.Name, identity.DisplayName, username),
		AvatarURL:   firstNonEmpty(snap.AvatarURL, identity.AvatarURL),
		Stats:       st,
	}, nil
}

// GetLeaderboard returns the top records for metric. A limit of zero or less
// selects the configured default; larger limits are capped at the maximum.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, metric model.Metric, limit int) ([]model.UserStatistics, error) {
	if !metric.Valid() {
		metric = model.MetricStars
	}
	limit = s.clampLimit(limit)

	entries, err := s.stats.TopNByMetric(ctx, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: listing by %s: %w", metric, err)
	}
	if entries == nil {
		entries = []model.UserStatistics{}
	}
	return entries, nil
}

func (s *LeaderboardService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

// GetUserPosition ranks username on metric. Position is 1 plus the number of
// records with a strictly greater value, so tied users share a position. An
// unknown username yields Position 0 with Total still filled in.
func (s *LeaderboardService) GetUserPosition(ctx context.Context, username string, metric model.Metric) (model.Position, error) {
	if !metric.Valid() {
		metric = model.MetricStars
	}

	total, err := s.stats.Count(ctx)
	if err != nil {
		return model.Position{}, fmt.Errorf("service/leaderboard: counting records: %w", err)
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return model.Position{Total: total}, nil
	}

	rec, err := s.stats.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return model.Position{Total: total}, nil
		}
		return model.Position{}, fmt.Errorf("service/leaderboard: finding %s: %w", username, err)
	}

	value := rec.Stats.Value(metric)
	above, err := s.stats.CountGreaterThan(ctx, metric, value)
	if err != nil {
		return model.Position{}, fmt.Errorf("service/leaderboard: ranking %s: %w", username, err)
	}

	return model.Position{
		Position: above + 1,
		Total:    total,
		Value:    value,
	}, nil
}

// GetUserStatistics returns the stored record of username.
// Returns apperror.ErrNotFound if the user was never refreshed.
func (s *LeaderboardService) GetUserStatistics(ctx context.Context, username string) (*model.UserStatistics, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	return s.stats.FindByUsername(ctx, username)
}

// GetByExternalID is used by /api/me to attach the caller's own record.
func (s *LeaderboardService) GetByExternalID(ctx context.Context, externalID int64) (*model.UserStatistics, error) {
	return s.stats.FindByExternalID(ctx, externalID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonNegative(n int) int {
	return max(n, 0)
}
