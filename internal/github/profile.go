package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v61/github"
	"golang.org/x/oauth2"
)

const userAgent = "easgit/1.0"

// Profile is the authenticated GitHub user returned after the OAuth exchange.
type Profile struct {
	ID        int64
	Login     string
	Name      string
	Email     string
	AvatarURL string
}

// ProfileFetcher loads the authenticated user through the REST API.
type ProfileFetcher struct {
	baseURL *url.URL
	base    *http.Client
}

// NewProfileFetcher returns a fetcher for apiURL. An empty apiURL keeps the
// go-github default (https://api.github.com/).
func NewProfileFetcher(apiURL string, base *http.Client) (*ProfileFetcher, error) {
	p := &ProfileFetcher{base: base}
	if p.base == nil {
		p.base = http.DefaultClient
	}
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("github: parsing api url: %w", err)
		}
		p.baseURL = u
	}
	return p, nil
}

// FetchProfile returns the user the token belongs to.
func (p *ProfileFetcher) FetchProfile(ctx context.Context, token string) (*Profile, error) {
	hc := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, p.base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
	)
	client := gh.NewClient(hc)
	client.UserAgent = userAgent
	if p.baseURL != nil {
		client.BaseURL = p.baseURL
	}

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, classifyRESTError(err)
	}
	if user.GetID() == 0 || user.GetLogin() == "" {
		return nil, fmt.Errorf("%w: profile without id or login", ErrMalformed)
	}

	return &Profile{
		ID:        user.GetID(),
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		Email:     user.GetEmail(),
		AvatarURL: user.GetAvatarURL(),
	}, nil
}

func classifyRESTError(err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		wait := time.Until(rateErr.Rate.Reset.Time)
		if wait < 0 {
			wait = 0
		}
		return &RateLimitError{RetryAfter: wait.Round(time.Second), Reason: rateErr.Message}
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &RateLimitError{RetryAfter: abuseErr.GetRetryAfter(), Reason: abuseErr.Message}
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch status := respErr.Response.StatusCode; {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		case status == http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrUserNotFound, err)
		case status >= 500:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		default:
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	}

	return fmt.Errorf("%w: %w", ErrTransient, err)
}
