package handler_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/easgit/internal/apperror"
	"github.com/sakif/easgit/internal/model"
	"github.com/sakif/easgit/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// MockLeaderboard records what the handlers asked for and returns canned values.
type MockLeaderboard struct {
	Entries     []model.UserStatistics
	Position    model.Position
	Record      *model.UserStatistics
	Err         error
	RefreshErr  error
	LookupErr   error
	Refreshed   []service.Identity
	Tokens      []string
	GotMetric   model.Metric
	GotLimit    int
	GotUsername string
}

func (m *MockLeaderboard) GetLeaderboard(_ context.Context, metric model.Metric, limit int) ([]model.UserStatistics, error) {
	m.GotMetric, m.GotLimit = metric, limit
	return m.Entries, m.Err
}

func (m *MockLeaderboard) GetUserPosition(_ context.Context, username string, metric model.Metric) (model.Position, error) {
	m.GotUsername, m.GotMetric = username, metric
	return m.Position, m.Err
}

func (m *MockLeaderboard) GetUserStatistics(_ context.Context, username string) (*model.UserStatistics, error) {
	m.GotUsername = username
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Record == nil {
		return nil, apperror.NotFound("user statistics", username)
	}
	return m.Record, nil
}

func (m *MockLeaderboard) GetByExternalID(_ context.Context, externalID int64) (*model.UserStatistics, error) {
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	if m.Record == nil {
		return nil, apperror.NotFound("user statistics", "x")
	}
	return m.Record, nil
}

func (m *MockLeaderboard) RefreshUser(_ context.Context, identity service.Identity, token string) (*model.UserStatistics, error) {
	m.Refreshed = append(m.Refreshed, identity)
	m.Tokens = append(m.Tokens, token)
	if m.RefreshErr != nil {
		return nil, m.RefreshErr
	}
	return &model.UserStatistics{ExternalID: identity.ExternalID, Username: identity.Username}, nil
}

// MockUsers backs both the refresh endpoint and the auth handler.
type MockUsers struct {
	User      *model.User
	Token     string
	TokenErr  error
	Login     *service.AuthResult
	LoginErr  error
	GotTokens []string
}

func (m *MockUsers) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if m.User == nil || m.User.ID != id {
		return nil, apperror.NotFound("user", id)
	}
	return m.User, nil
}

func (m *MockUsers) AccessToken(_ *model.User) (string, error) {
	return m.Token, m.TokenErr
}

func (m *MockUsers) LoginWithGitHubToken(_ context.Context, accessToken string) (*service.AuthResult, error) {
	m.GotTokens = append(m.GotTokens, accessToken)
	return m.Login, m.LoginErr
}

// MockProvider stands in for the GitHub OAuth provider.
type MockProvider struct {
	Token string
	Err   error
	Codes []string
}

func (m *MockProvider) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + state
}

func (m *MockProvider) Exchange(_ context.Context, code string) (string, error) {
	m.Codes = append(m.Codes, code)
	return m.Token, m.Err
}

type MockBatch struct {
	Report service.BatchReport
	Err    error
	Delay  time.Duration
	Calls  int
}

func (m *MockBatch) RefreshAll(context.Context) (service.BatchReport, error) {
	m.Calls++
	time.Sleep(m.Delay)
	return m.Report, m.Err
}

type MockPinger struct{ Err error }

func (m MockPinger) Ping(context.Context) error { return m.Err }
