package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/easgit/internal/apperror"
	"github.com/sakif/easgit/internal/auth"
	"github.com/sakif/easgit/internal/github"
	"github.com/sakif/easgit/internal/model"
	"github.com/sakif/easgit/internal/repository"
)

// ProfileSource loads the GitHub user an access token belongs to.
type ProfileSource interface {
	FetchProfile(ctx context.Context, token string) (*github.Profile, error)
}

// TokenSealer encrypts GitHub access tokens at rest. *auth.Sealer satisfies it.
type TokenSealer interface {
	Seal(token string) (string, error)
	Open(sealed string) (string, error)
}

// AuthService turns a GitHub access token into a local user and a session.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ ProfileSource (GitHub REST)
//	                                 ↘ TokenService (JWT)
type AuthService struct {
	users    repository.UserRepository
	tokens   *auth.TokenService
	sealer   TokenSealer
	profiles ProfileSource
	logger   *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	sealer TokenSealer,
	profiles ProfileSource,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		sealer:   sealer,
		profiles: profiles,
		logger:   logger,
	}
}

// AuthResult bundles what the callback handler needs: the user, the session
// JWT and the plaintext GitHub token for the first refresh.
type AuthResult struct {
	User        *model.User
	Token       string
	AccessToken string
}

// LoginWithGitHubToken loads the profile behind accessToken, upserts the user
// with the token sealed, and issues a session token.
func (s *AuthService) LoginWithGitHubToken(ctx context.Context, accessToken string) (*AuthResult, error) {
	if accessToken == "" {
		return nil, apperror.Unauthorized("GitHub did not return an access token")
	}

	profile, err := s.profiles.FetchProfile(ctx, accessToken)
	if err != nil {
		return nil, apperror.Upstream(err, github.RetryAfter(err))
	}

	sealed, err := s.sealer.Seal(accessToken)
	if err != nil {
		return nil, fmt.Errorf("service/auth: sealing token for %s: %w", profile.Login, err)
	}

	user := &model.User{
		GitHubID:          profile.ID,
		Login:             profile.Login,
		Email:             profile.Email,
		AvatarURL:         profile.AvatarURL,
		AccessTokenSealed: sealed,
	}
	if err := s.users.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", profile.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{
		User:        user,
		Token:       token,
		AccessToken: accessToken,
	}, nil
}

// GetUserByID is used by /api/me and the refresh endpoint after RequireAuth.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// AccessToken opens the stored GitHub token of user. A missing or unreadable
// token means the user has to log in again.
func (s *AuthService) AccessToken(user *model.User) (string, error) {
	if user.AccessTokenSealed == "" {
		return "", apperror.Unauthorized("no stored GitHub token, please log in again")
	}
	token, err := s.sealer.Open(user.AccessTokenSealed)
	if err != nil {
		s.logger.Warn("stored GitHub token unreadable",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return "", apperror.Unauthorized("stored GitHub token is invalid, please log in again")
	}
	return token, nil
}
