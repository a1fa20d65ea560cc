package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/easgit/internal/apperror"
	"github.com/sakif/easgit/internal/auth"
	"github.com/sakif/easgit/internal/model"
	"github.com/sakif/easgit/internal/service"
)

type leaderboardService interface {
	GetLeaderboard(ctx context.Context, metric model.Metric, limit int) ([]model.UserStatistics, error)
	GetUserPosition(ctx context.Context, username string, metric model.Metric) (model.Position, error)
	GetUserStatistics(ctx context.Context, username string) (*model.UserStatistics, error)
	GetByExternalID(ctx context.Context, externalID int64) (*model.UserStatistics, error)
	RefreshUser(ctx context.Context, identity service.Identity, accessToken string) (*model.UserStatistics, error)
}

type userService interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	AccessToken(user *model.User) (string, error)
}

// LeaderboardHandler serves the public ranking endpoints and the
// authenticated self-refresh.
type LeaderboardHandler struct {
	leaderboard leaderboardService
	users       userService
	logger      *slog.Logger
}

func NewLeaderboardHandler(leaderboard leaderboardService, users userService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboard: leaderboard,
		users:       users,
		logger:      logger,
	}
}

// LeaderboardResponse wraps the entries with the metric actually used, which
// differs from the query when an unknown metric fell back to stars.
type LeaderboardResponse struct {
	Metric  model.Metric           `json:"metric"`
	Entries []model.UserStatistics `json:"entries"`
}

// PositionResponse is a Position tagged with its username and metric.
type PositionResponse struct {
	Username string       `json:"username"`
	Metric   model.Metric `json:"metric"`
	model.Position
}

// HandleLeaderboard returns the top users for a metric.
//
// HTTP: GET /api/leaderboard?metric=commits&limit=10
func (h *LeaderboardHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	metric := model.ParseMetric(r.URL.Query().Get("metric"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, apperror.ValidationFailed("limit", "limit must be an integer"))
			return
		}
		limit = n
	}

	entries, err := h.leaderboard.GetLeaderboard(r.Context(), metric, limit)
	if err != nil {
		h.logger.Error("listing leaderboard failed",
			slog.String("metric", string(metric)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, LeaderboardResponse{Metric: metric, Entries: entries})
}

// HandlePosition returns where a user ranks on a metric.
//
// HTTP: GET /api/leaderboard/position/{username}?metric=streak
func (h *LeaderboardHandler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	metric := model.ParseMetric(r.URL.Query().Get("metric"))

	pos, err := h.leaderboard.GetUserPosition(r.Context(), username, metric)
	if err != nil {
		h.logger.Error("ranking user failed",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, PositionResponse{
		Username: username,
		Metric:   metric,
		Position: pos,
	})
}

// HandleStats returns the stored statistics of one user.
//
// HTTP: GET /api/stats/{username}
func (h *LeaderboardHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	rec, err := h.leaderboard.GetUserStatistics(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleRefresh refreshes the caller's own statistics with their stored
// GitHub token.
//
// HTTP: POST /api/leaderboard/refresh
// Auth: Required
func (h *LeaderboardHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.Unauthorized("authentication required"))
		return
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.users.AccessToken(user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.leaderboard.RefreshUser(r.Context(), service.IdentityFromUser(user), token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, rec)
}
