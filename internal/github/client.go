package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/easgit/internal/model"
	"golang.org/x/oauth2"
)

// DefaultGraphQLURL is the public GitHub GraphQL endpoint.
const DefaultGraphQLURL = "https://api.github.com/graphql"

const (
	reposPerPage = 100
	// maxRepoPages stops a misbehaving cursor from looping forever.
	maxRepoPages = 50
	// maxErrorBody bounds how much of an error response is read for logging.
	maxErrorBody = 4 << 10
)

const statsQuery = `query($login: String!, $first: Int!, $cursor: String) {
  user(login: $login) {
    databaseId
    login
    name
    avatarUrl
    repositories(first: $first, after: $cursor, ownerAffiliations: [OWNER], isFork: false) {
      totalCount
      nodes { stargazerCount forkCount watchers { totalCount } }
      pageInfo { hasNextPage endCursor }
    }
    contributionsCollection {
      totalCommitContributions
      restrictedContributionsCount
      contributionCalendar {
        totalContributions
        weeks { contributionDays { date contributionCount } }
      }
    }
  }
}`

const reposQuery = `query($login: String!, $first: Int!, $cursor: String) {
  user(login: $login) {
    repositories(first: $first, after: $cursor, ownerAffiliations: [OWNER], isFork: false) {
      totalCount
      nodes { stargazerCount forkCount watchers { totalCount } }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

// Client fetches statistics through the GraphQL API. Each call authenticates
// with the caller's token; the Client itself holds no credentials.
type Client struct {
	endpoint string
	base     *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewClient returns a Client posting to endpoint. An empty endpoint means
// DefaultGraphQLURL. base is the transport under the oauth2 wrapper; nil
// means http.DefaultClient.
func NewClient(endpoint string, base *http.Client, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultGraphQLURL
	}
	if base == nil {
		base = http.DefaultClient
	}
	return &Client{
		endpoint: endpoint,
		base:     base,
		logger:   logger,
		now:      time.Now,
	}
}

var _ Source = (*Client)(nil)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data *struct {
		User *userNode `json:"user"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type repositoryConnection struct {
	TotalCount int `json:"totalCount"`
	Nodes      []struct {
		StargazerCount int `json:"stargazerCount"`
		ForkCount      int `json:"forkCount"`
		Watchers       struct {
			TotalCount int `json:"totalCount"`
		} `json:"watchers"`
	} `json:"nodes"`
	PageInfo struct {
		HasNextPage bool   `json:"hasNextPage"`
		EndCursor   string `json:"endCursor"`
	} `json:"pageInfo"`
}

type userNode struct {
	DatabaseID              *int64                `json:"databaseId"`
	Login                   string                `json:"login"`
	Name                    string                `json:"name"`
	AvatarURL               string                `json:"avatarUrl"`
	Repositories            *repositoryConnection `json:"repositories"`
	ContributionsCollection *struct {
		TotalCommitContributions     int `json:"totalCommitContributions"`
		RestrictedContributionsCount int `json:"restrictedContributionsCount"`
		ContributionCalendar         struct {
			TotalContributions int `json:"totalContributions"`
			Weeks              []struct {
				ContributionDays []struct {
					Date              string `json:"date"`
					ContributionCount int    `json:"contributionCount"`
				} `json:"contributionDays"`
			} `json:"weeks"`
		} `json:"contributionCalendar"`
	} `json:"contributionsCollection"`
}

// FetchStats loads the profile, every owned non-fork repository and the
// contribution calendar of login. Contributions come from the first page;
// later pages only fetch repositories.
func (c *Client) FetchStats(ctx context.Context, login, token string) (*Snapshot, error) {
	if login == "" {
		return nil, fmt.Errorf("%w: empty login", ErrUserNotFound)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	httpClient := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, c.base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
	)

	user, err := c.query(ctx, httpClient, statsQuery, login, "")
	if err != nil {
		return nil, err
	}
	snap, err := snapshotFromUser(user)
	if err != nil {
		return nil, err
	}

	repos := user.Repositories
	for page := 1; repos.PageInfo.HasNextPage; page++ {
		if page >= maxRepoPages || repos.PageInfo.EndCursor == "" {
			c.logger.Warn("stopping repository pagination",
				"login", login,
				"page", page,
				"cursor", repos.PageInfo.EndCursor,
			)
			break
		}
		next, err := c.query(ctx, httpClient, reposQuery, login, repos.PageInfo.EndCursor)
		if err != nil {
			return nil, err
		}
		if next.Repositories == nil {
			return nil, fmt.Errorf("%w: repositories missing on page %d", ErrMalformed, page+1)
		}
		repos = next.Repositories
		snap.Repositories = appendRepos(snap.Repositories, repos)
	}

	c.logger.Debug("fetched github statistics",
		"login", snap.Login,
		"repositories", len(snap.Repositories),
		"days", len(snap.Days),
	)

	return snap, nil
}

// query posts one GraphQL request and returns the user node, classifying
// every failure into one of the package's error kinds.
func (c *Client) query(ctx context.Context, hc *http.Client, query, login, cursor string) (*userNode, error) {
	vars := map[string]any{"login": login, "first": reposPerPage, "cursor": nil}
	if cursor != "" {
		vars["cursor"] = cursor
	}
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("github: encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("github: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var out graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrMalformed, err)
	}

	if len(out.Errors) > 0 {
		return nil, classifyGraphQLErrors(out.Errors)
	}
	if out.Data == nil {
		return nil, fmt.Errorf("%w: response has no data", ErrMalformed)
	}
	if out.Data.User == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, login)
	}

	return out.Data.User, nil
}

func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	c.logger.Debug("github returned non-200",
		"status", resp.StatusCode,
		"body", string(snippet),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: c.retryAfter(resp.Header), Reason: "status 429"}
	case resp.StatusCode == http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != "" {
			return &RateLimitError{RetryAfter: c.retryAfter(resp.Header), Reason: "status 403"}
		}
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrMalformed, resp.StatusCode)
	}
}

// retryAfter prefers Retry-After (seconds) and falls back to
// X-RateLimit-Reset (unix seconds).
func (c *Client) retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(unix, 0).Sub(c.now()); d > 0 {
				return d.Round(time.Second)
			}
		}
	}
	return 0
}

func classifyGraphQLErrors(errs []graphQLError) error {
	first := errs[0]
	for _, e := range errs {
		switch e.Type {
		case "RATE_LIMITED":
			return &RateLimitError{Reason: e.Message}
		case "NOT_FOUND":
			return fmt.Errorf("%w: %s", ErrUserNotFound, e.Message)
		}
	}
	return fmt.Errorf("%w: graphql error %s: %s", ErrMalformed, first.Type, first.Message)
}

func snapshotFromUser(u *userNode) (*Snapshot, error) {
	if u.DatabaseID == nil || u.Login == "" {
		return nil, fmt.Errorf("%w: user identity missing", ErrMalformed)
	}
	if u.Repositories == nil || u.ContributionsCollection == nil {
		return nil, fmt.Errorf("%w: statistics missing for %s", ErrMalformed, u.Login)
	}

	cc := u.ContributionsCollection
	snap := &Snapshot{
		ExternalID:              *u.DatabaseID,
		Login:                   u.Login,
		Name:                    u.Name,
		AvatarURL:               u.AvatarURL,
		TotalRepositories:       u.Repositories.TotalCount,
		CommitContributions:     cc.TotalCommitContributions,
		RestrictedContributions: cc.RestrictedContributionsCount,
		CalendarTotal:           cc.ContributionCalendar.TotalContributions,
	}
	snap.Repositories = appendRepos(nil, u.Repositories)

	for _, w := range cc.ContributionCalendar.Weeks {
		for _, d := range w.ContributionDays {
			date, err := time.Parse(time.DateOnly, d.Date)
			if err != nil {
				return nil, fmt.Errorf("%w: calendar date %q: %w", ErrMalformed, d.Date, err)
			}
			snap.Days = append(snap.Days, model.ContributionDay{Date: date, Count: d.ContributionCount})
		}
	}

	return snap, nil
}

func appendRepos(dst []RepoCounts, conn *repositoryConnection) []RepoCounts {
	for _, n := range conn.Nodes {
		dst = append(dst, RepoCounts{
			Stars:    n.StargazerCount,
			Forks:    n.ForkCount,
			Watchers: n.Watchers.TotalCount,
		})
	}
	return dst
}

// IsRetryable reports whether a later attempt may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}
