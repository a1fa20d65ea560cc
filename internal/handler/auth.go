package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/easgit/internal/apperror"
	"github.com/sakif/easgit/internal/auth"
	"github.com/sakif/easgit/internal/model"
	"github.com/sakif/easgit/internal/service"
)

const stateCookieName = "oauth_state"

type oauthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

type loginService interface {
	LoginWithGitHubToken(ctx context.Context, accessToken string) (*service.AuthResult, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

type statsRefresher interface {
	RefreshUser(ctx context.Context, identity service.Identity, accessToken string) (*model.UserStatistics, error)
	GetByExternalID(ctx context.Context, externalID int64) (*model.UserStatistics, error)
}

// AuthHandler manages the GitHub OAuth login flow and session management.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → exchange the code, log the user in, seed their statistics
//   - HandleLogout         → clear the JWT cookie
//   - HandleMe             → return the logged-in user and their leaderboard record
type AuthHandler struct {
	github      oauthProvider
	auth        loginService
	leaderboard statsRefresher
	sessionTTL  time.Duration
	logger      *slog.Logger
}

func NewAuthHandler(
	github oauthProvider,
	authService loginService,
	leaderboard statsRefresher,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		github:      github,
		auth:        authService,
		leaderboard: leaderboard,
		sessionTTL:  sessionTTL,
		logger:      logger,
	}
}

// MeResponse is the body of GET /api/me. Stats is omitted until the user's
// first successful refresh.
type MeResponse struct {
	User  *model.User           `json:"user"`
	Stats *model.UserStatistics `json:"stats,omitempty"`
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// The random state is kept in a short-lived HttpOnly cookie and compared on
// callback, so only flows started here can complete.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub access token
//  3. Load the profile, upsert the user with the token sealed, issue a JWT
//  4. Refresh the user's statistics (best effort, login succeeds regardless)
//  5. Redirect to the app home page
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeError(w, r, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, r, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	accessToken, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, r, apperror.Upstream(err, 0))
		return
	}

	result, err := h.auth.LoginWithGitHubToken(r.Context(), accessToken)
	if err != nil {
		h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if _, err := h.leaderboard.RefreshUser(r.Context(), service.IdentityFromUser(result.User), result.AccessToken); err != nil {
		h.logger.Warn("auth callback: initial statistics refresh failed",
			slog.String("login", result.User.Login),
			slog.String("error", err.Error()),
		)
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /auth/logout
//
// The token stays valid until it expires; without the cookie the browser
// just can't send it any more.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the currently authenticated user and their leaderboard
// record.
//
// HTTP: GET /api/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.Unauthorized("authentication required"))
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("HandleMe: user lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, r, err)
		return
	}

	resp := MeResponse{User: user}
	rec, err := h.leaderboard.GetByExternalID(r.Context(), user.GitHubID)
	switch {
	case err == nil:
		resp.Stats = rec
	case !errors.Is(err, apperror.ErrNotFound):
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}
