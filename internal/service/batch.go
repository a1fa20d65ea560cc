package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sakif/easgit/internal/apperror"
	"github.com/sakif/easgit/internal/github"
	"github.com/sakif/easgit/internal/metrics"
	"github.com/sakif/easgit/internal/model"
	"github.com/sakif/easgit/internal/repository"
	"golang.org/x/time/rate"
)

// Refresher is the part of LeaderboardService the batch job drives.
type Refresher interface {
	RefreshUser(ctx context.Context, identity Identity, accessToken string) (*model.UserStatistics, error)
}

// TokenOpener decrypts a stored access token.
type TokenOpener interface {
	Open(sealed string) (string, error)
}

// BatchReport summarizes one RefreshAll run.
type BatchReport struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Users      int            `json:"users"`
	Refreshed  int            `json:"refreshed"`
	Failures   []BatchFailure `json:"failures"`
}

// BatchFailure is one user whose refresh failed. Kind is a github error
// kind, "store" or "token".
type BatchFailure struct {
	Username   string `json:"username"`
	ExternalID int64  `json:"externalId"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
}

// BatchService refreshes every user that has a stored token. One user's
// failure never stops the run.
type BatchService struct {
	users     repository.UserRepository
	tokens    TokenOpener
	refresher Refresher
	limiter   *rate.Limiter
	metrics   *metrics.Manager
	logger    *slog.Logger
	now       func() time.Time

	running atomic.Bool
}

// NewBatchService throttles refreshes to perSecond; zero or less disables
// throttling.
func NewBatchService(
	users repository.UserRepository,
	tokens TokenOpener,
	refresher Refresher,
	perSecond float64,
	m *metrics.Manager,
	logger *slog.Logger,
) *BatchService {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &BatchService{
		users:     users,
		tokens:    tokens,
		refresher: refresher,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// RefreshAll runs one batch. It returns an error only when the run could not
// start or ctx was cancelled; per-user failures go into the report.
func (b *BatchService) RefreshAll(ctx context.Context) (BatchReport, error) {
	if !b.running.CompareAndSwap(false, true) {
		return BatchReport{}, &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: "a batch refresh is already running",
		}
	}
	defer b.running.Store(false)

	report := BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: b.now(),
		Failures:  []BatchFailure{},
	}
	log := b.logger.With(slog.String("runID", report.RunID))

	users, err := b.users.ListWithTokens(ctx)
	if err != nil {
		return report, fmt.Errorf("service/batch: listing users: %w", err)
	}
	report.Users = len(users)
	log.Info("batch refresh started", slog.Int("users", len(users)))

	for i := range users {
		u := &users[i]
		if err := b.limiter.Wait(ctx); err != nil {
			report.FinishedAt = b.now()
			log.Warn("batch refresh interrupted",
				slog.Int("processed", report.Refreshed+len(report.Failures)),
				slog.String("error", err.Error()),
			)
			return report, fmt.Errorf("service/batch: %w", err)
		}

		token, err := b.tokens.Open(u.AccessTokenSealed)
		if err != nil {
			report.Failures = append(report.Failures, failure(u, "token", err))
			continue
		}

		if _, err := b.refresher.RefreshUser(ctx, IdentityFromUser(u), token); err != nil {
			report.Failures = append(report.Failures, failure(u, failureKind(err), err))
			continue
		}
		report.Refreshed++
	}

	report.FinishedAt = b.now()
	b.metrics.RecordBatch(report.Users, len(report.Failures))
	log.Info("batch refresh finished",
		slog.Int("users", report.Users),
		slog.Int("refreshed", report.Refreshed),
		slog.Int("failed", len(report.Failures)),
		slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)

	return report, nil
}

func failure(u *model.User, kind string, err error) BatchFailure {
	return BatchFailure{
		Username:   u.Login,
		ExternalID: u.GitHubID,
		Kind:       kind,
		Error:      err.Error(),
	}
}

func failureKind(err error) string {
	if errors.Is(err, apperror.ErrUpstream) {
		return github.Kind(err)
	}
	return "store"
}
