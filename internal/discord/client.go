// Package discord is a thin typed client for the Discord OAuth2 token
// endpoint and user API. Failures propagate as apperr.UpstreamError carrying
// the original cause; there are no retries and no timeout overrides beyond
// the underlying client defaults.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/craftlink/craftlink/internal/apperr"
	"github.com/craftlink/craftlink/internal/config"
)

const (
	defaultAuthURL   = "https://discord.com/oauth2/authorize"
	defaultTokenURL  = "https://discord.com/api/oauth2/token"
	defaultRevokeURL = "https://discord.com/api/oauth2/token/revoke"
	defaultAPIBase   = "https://discord.com/api"
)

// TokenPair is the access/refresh token pair issued by Discord together with
// the absolute access-token expiry.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Identity is the Discord profile subset the service cares about.
type Identity struct {
	ID       int64
	Username string
}

// Client talks to Discord. The OAuth2 client credentials are process-wide
// configuration, loaded once at startup and immutable thereafter.
type Client struct {
	oauth     oauth2.Config
	http      *http.Client
	apiBase   string
	revokeURL string
	botToken  string
}

// Option customizes a Client, mainly for tests.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURLs points the client at alternate endpoints (test servers).
func WithBaseURLs(apiBase, tokenURL, revokeURL string) Option {
	return func(c *Client) {
		c.apiBase = strings.TrimRight(apiBase, "/")
		c.oauth.Endpoint.TokenURL = tokenURL
		c.revokeURL = revokeURL
	}
}

// NewClient creates a Discord client from the application configuration.
func NewClient(cfg config.DiscordConfig, opts ...Option) *Client {
	c := &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  defaultAuthURL,
				TokenURL: defaultTokenURL,
				// Discord's token endpoint takes the client credentials
				// via HTTP basic authentication.
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		http:      http.DefaultClient,
		apiBase:   defaultAPIBase,
		revokeURL: defaultRevokeURL,
		botToken:  cfg.BotToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthCodeURL returns the Discord consent page URL for the given state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair.
func (c *Client) Exchange(ctx context.Context, code string) (TokenPair, error) {
	tok, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return TokenPair{}, apperr.Upstream("discord.exchange", err)
	}
	return pairFromToken(tok), nil
}

// Refresh trades a refresh token for a fresh token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	src := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return TokenPair{}, apperr.Upstream("discord.refresh", err)
	}
	pair := pairFromToken(tok)
	if pair.RefreshToken == "" {
		// Discord may omit the refresh token when it is unchanged.
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

// Revoke invalidates a token upstream. Callers treat failures as best-effort.
func (c *Client) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return apperr.Upstream("discord.revoke", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.oauth.ClientID, c.oauth.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Upstream("discord.revoke", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.Upstream("discord.revoke", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// Self fetches the profile of the user the access token belongs to.
func (c *Client) Self(ctx context.Context, accessToken string) (Identity, error) {
	return c.fetchUser(ctx, c.apiBase+"/users/@me", "Bearer "+accessToken, "discord.self")
}

// UserByID fetches a user profile by snowflake id. Requires a bot token.
func (c *Client) UserByID(ctx context.Context, id int64) (Identity, error) {
	if c.botToken == "" {
		return Identity{}, apperr.Upstream("discord.user_by_id", fmt.Errorf("no bot token configured"))
	}
	u := fmt.Sprintf("%s/users/%d", c.apiBase, id)
	return c.fetchUser(ctx, u, "Bot "+c.botToken, "discord.user_by_id")
}

func (c *Client) fetchUser(ctx context.Context, url, authorization, op string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Identity{}, apperr.Upstream(op, err)
	}
	req.Header.Set("Authorization", authorization)

	resp, err := c.http.Do(req)
	if err != nil {
		return Identity{}, apperr.Upstream(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, apperr.Upstream(op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, apperr.Upstream(op, err)
	}

	id, err := strconv.ParseInt(body.ID, 10, 64)
	if err != nil {
		return Identity{}, apperr.Upstream(op, fmt.Errorf("parse user id %q: %w", body.ID, err))
	}
	return Identity{ID: id, Username: body.Username}, nil
}

// withHTTPClient routes x/oauth2 traffic through the configured HTTP client.
func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func pairFromToken(tok *oauth2.Token) TokenPair {
	return TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}
