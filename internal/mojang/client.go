// Package mojang is a thin typed client for the Mojang account lookup APIs.
package mojang

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/craftlink/craftlink/internal/apperr"
)

const (
	defaultAPIBase     = "https://api.mojang.com"
	defaultSessionBase = "https://sessionserver.mojang.com"
)

// Account maps a Minecraft username to its account id.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProfileProperty is an entry of the signed profile blob (skin/cape data).
type ProfileProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Profile is the full session-server profile for an account id.
type Profile struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Properties []ProfileProperty `json:"properties"`
}

// Client talks to the Mojang profile and session-server endpoints.
type Client struct {
	http        *http.Client
	apiBase     string
	sessionBase string
}

// Option customizes a Client, mainly for tests.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURLs points the client at alternate endpoints (test servers).
func WithBaseURLs(apiBase, sessionBase string) Option {
	return func(c *Client) {
		c.apiBase = strings.TrimRight(apiBase, "/")
		c.sessionBase = strings.TrimRight(sessionBase, "/")
	}
}

// NewClient creates a Mojang client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:        http.DefaultClient,
		apiBase:     defaultAPIBase,
		sessionBase: defaultSessionBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UUIDByUsername resolves a Minecraft username to its account id.
func (c *Client) UUIDByUsername(ctx context.Context, username string) (Account, error) {
	u := c.apiBase + "/users/profiles/minecraft/" + url.PathEscape(username)
	var acc Account
	if err := c.getJSON(ctx, u, &acc, "mojang.uuid_by_username"); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// ProfileByUUID resolves an account id to its current profile, including the
// signed properties blob.
func (c *Client) ProfileByUUID(ctx context.Context, uuid string) (Profile, error) {
	u := c.sessionBase + "/session/minecraft/profile/" + url.PathEscape(uuid)
	var p Profile
	if err := c.getJSON(ctx, u, &p, "mojang.profile_by_uuid"); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst any, op string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Upstream(op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Upstream(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.Upstream(op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return apperr.Upstream(op, err)
	}
	return nil
}
