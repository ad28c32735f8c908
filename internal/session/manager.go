// Package session owns the server-side session and token lifecycle: issuing
// sessions after login, resolving them from the client cookie, rotating the
// token pair on re-login, and revoking on logout.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/craftlink/craftlink/internal/apperr"
	"github.com/craftlink/craftlink/internal/config"
	"github.com/craftlink/craftlink/internal/db/models"
	"github.com/craftlink/craftlink/internal/discord"
	"github.com/craftlink/craftlink/internal/repository"
)

// CookieName is the session cookie issued to browsers. The value is sealed
// with securecookie and carries only the session identifier.
const CookieName = "craftlink.session"

// DefaultLifetime bounds sessions when the upstream token response carries
// no expiry. Discord access tokens normally live for seven days.
const DefaultLifetime = 7 * 24 * time.Hour

// TokenService is the slice of the Discord client the manager needs.
type TokenService interface {
	Refresh(ctx context.Context, refreshToken string) (discord.TokenPair, error)
	Revoke(ctx context.Context, token string) error
}

// Session is a resolved session row together with its owning user.
type Session struct {
	models.Session
	User models.User
}

// Fingerprint derives the cache fingerprint for this session. Cached
// upstream lookups are keyed by it so they never leak across users.
func (s *Session) Fingerprint() string {
	sum := sha256.Sum256([]byte(s.ID))
	return hex.EncodeToString(sum[:])
}

// Manager creates, resolves, rotates, and revokes sessions. It is the only
// component that mutates session rows.
type Manager struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   TokenService
	codec    *securecookie.SecureCookie
	clock    clock.Clock
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the manager's clock, used by tests.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

// NewManager creates a session manager sealing cookies with the given keys.
func NewManager(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens TokenService,
	cookie config.CookieConfig,
	opts ...Option,
) *Manager {
	m := &Manager{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		codec:    securecookie.New(cookie.HashKey, cookie.BlockKey),
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's view of the current time. Handlers use it when
// checking Session.Alive.
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// Issue persists the identity's user row if unseen, creates a fresh session
// holding the token pair, and returns the sealed cookie value.
func (m *Manager) Issue(ctx context.Context, identity discord.Identity, pair discord.TokenPair) (string, error) {
	err := m.users.CreateIfAbsent(ctx, &models.User{
		DiscordID:       identity.ID,
		DiscordUsername: identity.Username,
	})
	if err != nil {
		return "", fmt.Errorf("persist user: %w", err)
	}

	expiresAt := pair.Expiry
	if expiresAt.IsZero() {
		expiresAt = m.clock.Now().Add(DefaultLifetime)
	}

	sess := &models.Session{
		ID:           uuid.NewString(),
		UserID:       identity.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    expiresAt,
		CreatedAt:    m.clock.Now(),
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}

	sealed, err := m.codec.Encode(CookieName, sess.ID)
	if err != nil {
		return "", fmt.Errorf("seal session cookie: %w", err)
	}
	return sealed, nil
}

// Resolve validates the sealed cookie value and loads the session and its
// user. Any failure - tampered cookie, malformed identifier, missing rows -
// yields apperr.ErrNotFound; callers treat that as "anonymous" unless
// authentication is mandatory.
func (m *Manager) Resolve(ctx context.Context, cookieValue string) (*Session, error) {
	var id string
	if err := m.codec.Decode(CookieName, cookieValue, &id); err != nil {
		return nil, fmt.Errorf("decode session cookie: %w", apperr.ErrNotFound)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("malformed session id: %w", apperr.ErrNotFound)
	}

	sess, err := m.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user, err := m.users.GetByDiscordID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	return &Session{Session: *sess, User: *user}, nil
}

// Refresh rotates a still-valid session on re-login: the stored refresh
// token buys a fresh pair upstream, the old session is marked expired
// (append-only revocation), and a new session is issued.
func (m *Manager) Refresh(ctx context.Context, s *Session) (string, error) {
	pair, err := m.tokens.Refresh(ctx, s.RefreshToken)
	if err != nil {
		return "", err
	}

	if err := m.sessions.MarkExpired(ctx, s.ID); err != nil {
		return "", fmt.Errorf("expire rotated session: %w", err)
	}

	return m.Issue(ctx, discord.Identity{ID: s.User.DiscordID, Username: s.User.DiscordUsername}, pair)
}

// Revoke marks the session expired and invalidates both tokens upstream.
// Upstream revocation is best-effort: failures are logged, never surfaced,
// and never block clearing the client cookie.
func (m *Manager) Revoke(ctx context.Context, s *Session) error {
	if err := m.sessions.MarkExpired(ctx, s.ID); err != nil {
		return fmt.Errorf("expire session: %w", err)
	}

	if err := m.tokens.Revoke(ctx, s.AccessToken); err != nil {
		log.Printf("WARNING: revoke access token for session %s: %v", s.ID, err)
	}
	if err := m.tokens.Revoke(ctx, s.RefreshToken); err != nil {
		log.Printf("WARNING: revoke refresh token for session %s: %v", s.ID, err)
	}
	return nil
}
