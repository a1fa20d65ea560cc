package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/easgit/internal/apperror"
	"github.com/sakif/easgit/internal/auth"
	"github.com/sakif/easgit/internal/github"
	"github.com/sakif/easgit/internal/handler"
	"github.com/sakif/easgit/internal/model"
)

func leaderboardRouter(h *handler.LeaderboardHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/leaderboard", h.HandleLeaderboard)
	r.Get("/api/leaderboard/position/{username}", h.HandlePosition)
	r.Get("/api/stats/{username}", h.HandleStats)
	r.Post("/api/leaderboard/refresh", h.HandleRefresh)
	return r
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestLeaderboardHandler_HandleLeaderboard(t *testing.T) {
	logger := testLogger()

	t.Run("parses metric and limit", func(t *testing.T) {
		lb := &MockLeaderboard{Entries: []model.UserStatistics{
			{ExternalID: 1, Username: "octocat", Stats: model.Stats{TotalCommits: 42}},
		}}
		router := leaderboardRouter(handler.NewLeaderboardHandler(lb, &MockUsers{}, logger))

		req := httptest.NewRequest(http.MethodGet, "/api/leaderboard?metric=Commits&limit=10", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, model.MetricCommits, lb.GotMetric)
		assert.Equal(t, 10, lb.GotLimit)

		var body handler.LeaderboardResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, model.MetricCommits, body.Metric)
		require.Len(t, body.Entries, 1)
		assert.Equal(t, "octocat", body.Entries[0].Username)
	})

	t.Run("defaults", func(t *testing.T) {
		lb := &MockLeaderboard{Entries: []model.UserStatistics{}}
		router := leaderboardRouter(handler.NewLeaderboardHandler(lb, &MockUsers{}, logger))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/leaderboard?metric=bogus", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, model.MetricStars, lb.GotMetric)
		assert.Equal(t, 0, lb.GotLimit)
		assert.JSONEq(t, `{"metric":"stars","entries":[]}`, rr.Body.String())
	})

	t.Run("bad limit", func(t *testing.T) {
		lb := &MockLeaderboard{}
		router := leaderboardRouter(handler.NewLeaderboardHandler(lb, &MockUsers{}, logger))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/leaderboard?limit=ten", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeError(t, rr).Error)
	})

	t.Run("store failure hides details", func(t *testing.T) {
		lb := &MockLeaderboard{Err: errors.New("sqlite: listing: disk I/O error")}
		router := leaderboardRouter(handler.NewLeaderboardHandler(lb, &MockUsers{}, logger))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		body := decodeError(t, rr)
		assert.Equal(t, "internal_error", body.Error)
		assert.NotContains(t, body.Message, "sqlite")
	})
}

func TestLeaderboardHandler_HandlePosition(t *testing.T) {
	lb := &MockLeaderboard{Position: model.Position{Position: 2, Total: 4, Value: 50}}
	router := leaderboardRouter(handler.NewLeaderboardHandler(lb, &MockUsers{}, testLogger()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/leaderboard/position/octocat?metric=streak", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "octocat", lb.GotUsername)
	assert.Equal(t, model.MetricStreak, lb.GotMetric)
	assert.JSONEq(t, `{"username":"octocat","metric":"streak","position":2,"total":4,"value":50}`, rr.Body.String())
}

func TestLeaderboardHandler_HandleStats(t *testing.T) {
	logger := testLogger()

	t.Run("found", func(t *testing.T) {
		lb := &MockLeaderboard{Record: &model.UserStatistics{ExternalID: 583231, Username: "octocat"}}
		router := leaderboardRouter(handler.NewLeaderboardHandler(lb, &MockUsers{}, logger))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats/OctoCat", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OctoCat", lb.GotUsername)
		var rec model.UserStatistics
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&rec))
		assert.Equal(t, int64(583231), rec.ExternalID)
	})

	t.Run("not found", func(t *testing.T) {
		router := leaderboardRouter(handler.NewLeaderboardHandler(&MockLeaderboard{}, &MockUsers{}, logger))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats/ghost", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", decodeError(t, rr).Error)
	})
}

func TestLeaderboardHandler_HandleRefresh(t *testing.T) {
	logger := testLogger()
	user := &model.User{ID: "u1", GitHubID: 583231, Login: "octocat", AvatarURL: "https://a/1"}

	refresh := func(h *handler.LeaderboardHandler, userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/leaderboard/refresh", nil)
		if userID != "" {
			req = req.WithContext(auth.WithUserID(req.Context(), userID))
		}
		rr := httptest.NewRecorder()
		leaderboardRouter(h).ServeHTTP(rr, req)
		return rr
	}

	t.Run("refreshes the caller", func(t *testing.T) {
		lb := &MockLeaderboard{}
		users := &MockUsers{User: user, Token: "gho_plain"}

		rr := refresh(handler.NewLeaderboardHandler(lb, users, logger), "u1")

		assert.Equal(t, http.StatusOK, rr.Code)
		require.Len(t, lb.Refreshed, 1)
		assert.Equal(t, int64(583231), lb.Refreshed[0].ExternalID)
		assert.Equal(t, "octocat", lb.Refreshed[0].Username)
		assert.Equal(t, []string{"gho_plain"}, lb.Tokens)
	})

	t.Run("no session", func(t *testing.T) {
		rr := refresh(handler.NewLeaderboardHandler(&MockLeaderboard{}, &MockUsers{}, logger), "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("missing stored token", func(t *testing.T) {
		lb := &MockLeaderboard{}
		users := &MockUsers{User: user, TokenErr: apperror.Unauthorized("no stored GitHub token, please log in again")}

		rr := refresh(handler.NewLeaderboardHandler(lb, users, logger), "u1")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, lb.Refreshed)
	})

	t.Run("rate limited upstream", func(t *testing.T) {
		cause := &github.RateLimitError{RetryAfter: 1500 * time.Millisecond, Reason: "secondary rate limit"}
		lb := &MockLeaderboard{RefreshErr: apperror.Upstream(cause, cause.RetryAfter)}
		users := &MockUsers{User: user, Token: "gho_plain"}

		rr := refresh(handler.NewLeaderboardHandler(lb, users, logger), "u1")

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("Retry-After"))
		body := decodeError(t, rr)
		assert.Equal(t, "upstream_error", body.Error)
		assert.Equal(t, 2, body.RetryAfter)
	})

	t.Run("upstream without retry hint", func(t *testing.T) {
		lb := &MockLeaderboard{RefreshErr: apperror.Upstream(github.ErrTransient, 0)}
		users := &MockUsers{User: user, Token: "gho_plain"}

		rr := refresh(handler.NewLeaderboardHandler(lb, users, logger), "u1")

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Empty(t, rr.Header().Get("Retry-After"))
		assert.NotContains(t, rr.Body.String(), "retryAfter")
	})

	t.Run("username conflict", func(t *testing.T) {
		lb := &MockLeaderboard{RefreshErr: apperror.Conflict("user statistics", "octocat")}
		users := &MockUsers{User: user, Token: "gho_plain"}

		rr := refresh(handler.NewLeaderboardHandler(lb, users, logger), "u1")

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}
