package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubProvider runs the server side of the GitHub authorization code flow.
// The resulting access token is kept (sealed) so statistics can be refreshed
// later on the user's behalf.
type GitHubProvider struct {
	config *oauth2.Config
}

// NewGitHubProvider requests read:user, which covers the profile and the
// contribution data of the GraphQL API.
//
// callbackURL must match the "Authorization callback URL" of the OAuth app,
// e.g. "http://localhost:8080/auth/github/callback".
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user"},
			Endpoint:     github.Endpoint,
		},
	}
}

// AuthURL is where /auth/github/login redirects. state is echoed back on the
// callback and compared with the state cookie.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for an access token.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("auth: GitHub returned an empty access token")
	}
	return tok.AccessToken, nil
}
