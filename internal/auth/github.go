// Package auth exchanges GitHub OAuth codes for a provider identity. The
// token dance itself is delegated to golang.org/x/oauth2.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/gitscribe/gitscribe/internal/store"
)

type GitHubProvider struct {
	cfg    *oauth2.Config
	apiURL string
}

type GitHubOption func(*GitHubProvider)

// WithAPIURL points the profile fetch at a test server.
func WithAPIURL(url string) GitHubOption {
	return func(p *GitHubProvider) {
		p.apiURL = url
	}
}

func NewGitHubProvider(clientID, clientSecret, redirectURL string, opts ...GitHubOption) *GitHubProvider {
	p := &GitHubProvider{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     githuboauth.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiURL: "https://api.github.com",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthURL returns the GitHub authorization URL for the given state.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.cfg.AuthCodeURL(state)
}

// Exchange trades the callback code for a token and fetches the user's
// profile.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (store.Identity, error) {
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return store.Identity{}, fmt.Errorf("exchange oauth code: %w", err)
	}

	client := p.cfg.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/user", nil)
	if err != nil {
		return store.Identity{}, fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return store.Identity{}, fmt.Errorf("fetch github profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return store.Identity{}, fmt.Errorf("github profile error: status %d", resp.StatusCode)
	}

	var profile struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return store.Identity{}, fmt.Errorf("decode github profile: %w", err)
	}
	if profile.ID == 0 || profile.Login == "" {
		return store.Identity{}, fmt.Errorf("github profile missing id or login")
	}

	return store.Identity{
		GitHubID:  profile.ID,
		Username:  profile.Login,
		Email:     profile.Email,
		Name:      profile.Name,
		AvatarURL: profile.AvatarURL,
	}, nil
}
