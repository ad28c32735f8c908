package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftlink/craftlink/internal/apperr"
	"github.com/craftlink/craftlink/internal/config"
	"github.com/craftlink/craftlink/internal/db/models"
	"github.com/craftlink/craftlink/internal/discord"
	"github.com/craftlink/craftlink/internal/mojang"
	"github.com/craftlink/craftlink/internal/session"
)

type fakeOAuth struct {
	pair        discord.TokenPair
	identity    discord.Identity
	exchangeErr error
	selfErr     error
	exchanged   []string
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://discord.test/oauth2/authorize?state=" + state
}

func (f *fakeOAuth) Exchange(_ context.Context, code string) (discord.TokenPair, error) {
	f.exchanged = append(f.exchanged, code)
	if f.exchangeErr != nil {
		return discord.TokenPair{}, f.exchangeErr
	}
	return f.pair, nil
}

func (f *fakeOAuth) Self(_ context.Context, _ string) (discord.Identity, error) {
	if f.selfErr != nil {
		return discord.Identity{}, f.selfErr
	}
	return f.identity, nil
}

type fakeSessionService struct {
	byCookie   map[string]*session.Session
	issued     []discord.Identity
	refreshed  []string
	refreshErr error
	revoked    []string
	revokeErr  error
}

func newFakeSessionService() *fakeSessionService {
	return &fakeSessionService{byCookie: make(map[string]*session.Session)}
}

func (f *fakeSessionService) add(cookie string, sess *session.Session) {
	f.byCookie[cookie] = sess
}

func (f *fakeSessionService) Issue(_ context.Context, identity discord.Identity, pair discord.TokenPair) (string, error) {
	f.issued = append(f.issued, identity)
	cookie := "issued-cookie"
	f.byCookie[cookie] = &session.Session{
		Session: models.Session{
			ID:           "issued-session",
			UserID:       identity.ID,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresAt:    time.Now().Add(time.Hour),
		},
		User: models.User{DiscordID: identity.ID, DiscordUsername: identity.Username},
	}
	return cookie, nil
}

func (f *fakeSessionService) Resolve(_ context.Context, cookieValue string) (*session.Session, error) {
	sess, ok := f.byCookie[cookieValue]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return sess, nil
}

func (f *fakeSessionService) Refresh(_ context.Context, s *session.Session) (string, error) {
	f.refreshed = append(f.refreshed, s.ID)
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	cookie := "rotated-cookie"
	f.byCookie[cookie] = &session.Session{
		Session: models.Session{ID: "rotated-session", UserID: s.UserID, ExpiresAt: time.Now().Add(time.Hour)},
		User:    s.User,
	}
	return cookie, nil
}

func (f *fakeSessionService) Revoke(_ context.Context, s *session.Session) error {
	f.revoked = append(f.revoked, s.ID)
	return f.revokeErr
}

func (f *fakeSessionService) Now() time.Time { return time.Now() }

type fakeBindings struct {
	account   mojang.Account
	profile   mojang.Profile
	discord   string
	rebindErr error
	lookupErr error
	rebound   []string
}

func (f *fakeBindings) Rebind(_ context.Context, sess *session.Session, username string) (mojang.Account, error) {
	if sess == nil {
		return mojang.Account{}, apperr.ErrUnauthenticated
	}
	f.rebound = append(f.rebound, username)
	if f.rebindErr != nil {
		return mojang.Account{}, f.rebindErr
	}
	return f.account, nil
}

func (f *fakeBindings) MinecraftAccountByName(_ context.Context, _ *session.Session, _ string) (mojang.Account, error) {
	if f.lookupErr != nil {
		return mojang.Account{}, f.lookupErr
	}
	return f.account, nil
}

func (f *fakeBindings) MinecraftProfileByUUID(_ context.Context, _ *session.Session, _ string) (mojang.Profile, error) {
	if f.lookupErr != nil {
		return mojang.Profile{}, f.lookupErr
	}
	return f.profile, nil
}

func (f *fakeBindings) DiscordNameByID(_ context.Context, _ *session.Session, _ int64) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	return f.discord, nil
}

type fakeUserRepo struct {
	banned []string
	banErr error
}

func (f *fakeUserRepo) CreateIfAbsent(_ context.Context, _ *models.User) error { return nil }
func (f *fakeUserRepo) GetByDiscordID(_ context.Context, _ int64) (*models.User, error) {
	return nil, apperr.ErrNotFound
}
func (f *fakeUserRepo) BindMinecraftAccount(_ context.Context, _ int64, _ string) (*string, error) {
	return nil, nil
}
func (f *fakeUserRepo) BanByMinecraftUUID(_ context.Context, mcUUID string) error {
	if f.banErr != nil {
		return f.banErr
	}
	f.banned = append(f.banned, mcUUID)
	return nil
}
func (f *fakeUserRepo) List(_ context.Context) ([]models.User, error) { return nil, nil }

type testEnv struct {
	server   *Server
	oauth    *fakeOAuth
	sessions *fakeSessionService
	bindings *fakeBindings
	users    *fakeUserRepo
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		BaseURL:     "https://app.example.com",
		AdminSecret: "s3cret",
	}
	oauth := &fakeOAuth{
		pair:     discord.TokenPair{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)},
		identity: discord.Identity{ID: 123, Username: "dinnerbone"},
	}
	sessions := newFakeSessionService()
	bindings := &fakeBindings{
		account: mojang.Account{ID: "069a79f444e94726a5befca90e38aaf5", Name: "Notch"},
		profile: mojang.Profile{ID: "069a79f444e94726a5befca90e38aaf5", Name: "Notch"},
		discord: "dinnerbone",
	}
	users := &fakeUserRepo{}
	srv := New(cfg, oauth, sessions, bindings, users)
	return &testEnv{
		server:   srv,
		oauth:    oauth,
		sessions: sessions,
		bindings: bindings,
		users:    users,
		router:   srv.Router(),
	}
}

func (e *testEnv) loggedIn() *http.Cookie {
	e.sessions.add("valid-cookie", &session.Session{
		Session: models.Session{ID: "session-1", UserID: 123, ExpiresAt: time.Now().Add(time.Hour)},
		User:    models.User{DiscordID: 123, DiscordUsername: "dinnerbone"},
	})
	return &http.Cookie{Name: session.CookieName, Value: "valid-cookie"}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestLogin_AnonymousRedirectsToConsent(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/login/discord", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	assert.Contains(t, location, "https://discord.test/oauth2/authorize?state=")

	state := cookieByName(t, rec, stateCookieName)
	require.NotNil(t, state, "consent redirect must set the state cookie")
	assert.True(t, strings.HasSuffix(location, state.Value), "redirect state must match the cookie")
	assert.Empty(t, e.sessions.refreshed)
}

func TestLogin_LiveSessionRotatesInsteadOfConsent(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/login/discord", nil)
	req.AddCookie(e.loggedIn())

	rec := e.do(req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Location"))
	assert.Equal(t, []string{"session-1"}, e.sessions.refreshed)

	c := cookieByName(t, rec, session.CookieName)
	require.NotNil(t, c)
	assert.Equal(t, "rotated-cookie", c.Value)
}

func TestLogin_FailedRotationFallsBackToConsent(t *testing.T) {
	e := newTestEnv(t)
	e.sessions.refreshErr = apperr.Upstream("discord.refresh", errors.New("invalid_grant"))
	req := httptest.NewRequest(http.MethodGet, "/login/discord", nil)
	req.AddCookie(e.loggedIn())

	rec := e.do(req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "https://discord.test/oauth2/authorize")
}

func TestCallback_HappyPath(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=the-code&state=abc123", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "abc123"})

	rec := e.do(req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Location"))
	assert.Equal(t, []string{"the-code"}, e.oauth.exchanged)
	require.Len(t, e.sessions.issued, 1)
	assert.Equal(t, int64(123), e.sessions.issued[0].ID)

	c := cookieByName(t, rec, session.CookieName)
	require.NotNil(t, c)
	assert.Equal(t, "issued-cookie", c.Value)
	assert.True(t, c.HttpOnly)
}

func TestCallback_StateMismatch(t *testing.T) {
	e := newTestEnv(t)

	for name, req := range map[string]*http.Request{
		"no state cookie": httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=x&state=abc", nil),
		"wrong state": func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=x&state=abc", nil)
			r.AddCookie(&http.Cookie{Name: stateCookieName, Value: "different"})
			return r
		}(),
	} {
		rec := e.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	assert.Empty(t, e.oauth.exchanged, "a failed state check must not reach the token endpoint")
}

func TestCallback_ExchangeFailureIsBadGateway(t *testing.T) {
	e := newTestEnv(t)
	e.oauth.exchangeErr = apperr.Upstream("discord.exchange", errors.New("boom"))
	req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=x&state=abc", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "abc"})

	rec := e.do(req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestLogout_RevokesAndClearsCookie(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/logout/discord", nil)
	req.AddCookie(e.loggedIn())

	rec := e.do(req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, []string{"session-1"}, e.sessions.revoked)

	c := cookieByName(t, rec, session.CookieName)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.True(t, c.Expires.Before(time.Now()))
}

func TestLogout_RequiresSession(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/logout/discord", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/users/@me", nil)
	req.AddCookie(e.loggedIn())

	rec := e.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"discord_id": "123",
		"discord_username": "dinnerbone",
		"minecraft_uuid": null,
		"banned": false
	}`, rec.Body.String())
}

func TestMe_ExpiredSessionIsAnonymous(t *testing.T) {
	e := newTestEnv(t)
	e.sessions.add("stale-cookie", &session.Session{
		Session: models.Session{ID: "session-9", UserID: 123, ExpiresAt: time.Now().Add(-time.Hour)},
		User:    models.User{DiscordID: 123},
	})
	req := httptest.NewRequest(http.MethodGet, "/users/@me", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "stale-cookie"})

	rec := e.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsernameChange(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/minecraft/username/change", strings.NewReader(`{"username":"Notch"}`))
	req.AddCookie(e.loggedIn())

	rec := e.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Notch"}, e.bindings.rebound)
	assert.JSONEq(t, `{
		"minecraft_uuid": "069a79f444e94726a5befca90e38aaf5",
		"minecraft_name": "Notch"
	}`, rec.Body.String())
}

func TestUsernameChange_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"collision", apperr.ErrCollision, http.StatusConflict},
		{"banned", apperr.ErrForbidden, http.StatusForbidden},
		{"upstream", apperr.Upstream("mojang.uuid_by_username", errors.New("boom")), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t)
			e.bindings.rebindErr = tc.err
			req := httptest.NewRequest(http.MethodPost, "/minecraft/username/change", strings.NewReader(`{"username":"Notch"}`))
			req.AddCookie(e.loggedIn())

			rec := e.do(req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestUsernameChange_MalformedBody(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/minecraft/username/change", strings.NewReader("not-json"))
	req.AddCookie(e.loggedIn())

	rec := e.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, e.bindings.rebound)
}

func TestMinecraftUsernameToID(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/users/username_to_id/minecraft?username=Notch", nil)
	req.AddCookie(e.loggedIn())

	rec := e.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"069a79f444e94726a5befca90e38aaf5","name":"Notch"}`, rec.Body.String())
}

func TestMinecraftUsernameToID_MissingParam(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/users/username_to_id/minecraft", nil)
	req.AddCookie(e.loggedIn())

	rec := e.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMinecraftIDToProfile(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/users/id_to_username/minecraft/069a79f444e94726a5befca90e38aaf5", nil)
	req.AddCookie(e.loggedIn())

	rec := e.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"id": "069a79f444e94726a5befca90e38aaf5",
		"name": "Notch",
		"properties": null
	}`, rec.Body.String())
}

func TestDiscordIDToUsername(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/users/id_to_username/discord/123", nil)
	req.AddCookie(e.loggedIn())

	rec := e.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"123","username":"dinnerbone"}`, rec.Body.String())
}

func TestDiscordIDToUsername_NonNumericID(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/users/id_to_username/discord/not-a-number", nil)
	req.AddCookie(e.loggedIn())

	rec := e.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookups_RequireSession(t *testing.T) {
	e := newTestEnv(t)
	paths := []string{
		"/users/@me",
		"/users/username_to_id/minecraft?username=Notch",
		"/users/id_to_username/minecraft/069a79f444e94726a5befca90e38aaf5",
		"/users/id_to_username/discord/123",
	}
	for _, path := range paths {
		rec := e.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminBan(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/ban", strings.NewReader(`{"minecraft_uuid":"069a79f444e94726a5befca90e38aaf5"}`))
	req.Header.Set(adminSecretHeader, "s3cret")

	rec := e.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"069a79f444e94726a5befca90e38aaf5"}, e.users.banned)
}

func TestAdminBan_WrongSecret(t *testing.T) {
	e := newTestEnv(t)
	for name, secret := range map[string]string{"wrong": "nope", "empty": ""} {
		req := httptest.NewRequest(http.MethodPost, "/admin/ban", strings.NewReader(`{"minecraft_uuid":"x"}`))
		if secret != "" {
			req.Header.Set(adminSecretHeader, secret)
		}
		rec := e.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
	assert.Empty(t, e.users.banned)
}

func TestAdminBan_UnknownAccount(t *testing.T) {
	e := newTestEnv(t)
	e.users.banErr = apperr.ErrNotFound
	req := httptest.NewRequest(http.MethodPost, "/admin/ban", strings.NewReader(`{"minecraft_uuid":"unknown"}`))
	req.Header.Set(adminSecretHeader, "s3cret")

	rec := e.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminBan_MissingBody(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/ban", strings.NewReader(`{}`))
	req.Header.Set(adminSecretHeader, "s3cret")

	rec := e.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
