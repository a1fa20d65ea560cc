// Package auth holds the session, OAuth and credential helpers of the API.
//
// Login flow:
//  1. /auth/github/login redirects to GitHub with a state cookie
//  2. GitHub calls back /auth/github/callback with a code
//  3. The code is exchanged for a GitHub token, the profile is loaded and the
//     user is upserted with the token sealed at rest
//  4. A signed JWT is set in an HttpOnly cookie
//  5. RequireAuth validates the cookie and puts the user id in the context
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "easgit"

// DefaultSessionTTL is the lifetime of a session cookie.
const DefaultSessionTTL = 24 * time.Hour

// TokenService signs and validates session tokens with HS256.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService rejects secrets shorter than 16 characters. A ttl of zero
// means DefaultSessionTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is also used as the cookie Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a token whose subject is userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.sign(userID, time.Now(), s.ttl)
}

func (s *TokenService) sign(userID string, now time.Time, ttl time.Duration) (string, error) {
	c := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    issuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate returns the user id of a valid token. Only HS256 tokens issued by
// this service with an expiry are accepted.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
