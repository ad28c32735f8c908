package server

import (
	"crypto/subtle"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/craftlink/craftlink/internal/session"
)

// stateCookieName holds the OAuth state between the login redirect and the
// provider callback.
const stateCookieName = "craftlink.oauth_state"

const stateCookieLifetime = 10 * time.Minute

// handleLogin starts (or short-circuits) the Discord login flow. A request
// that already carries a live session skips the consent screen entirely: the
// stored refresh token is rotated for a fresh pair and a new session replaces
// the old one. Everyone else is sent to the Discord authorization page.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if sess := s.currentSession(r); sess != nil {
		sealed, err := s.sessions.Refresh(r.Context(), sess)
		if err == nil {
			s.setSessionCookie(w, r, sealed)
			http.Redirect(w, r, s.cfg.BaseURL, http.StatusFound)
			return
		}
		// A dead refresh token is not fatal; fall through to consent.
		log.Printf("login: session rotation failed, falling back to consent: %v", err)
	}

	state := hex.EncodeToString(securecookie.GenerateRandomKey(16))
	s.setStateCookie(w, r, state)
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

// handleCallback finishes the login flow: state check, code exchange,
// identity fetch, session issue, redirect home.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stored := s.readStateCookie(r)
	s.clearStateCookie(w, r)
	if state == "" || stored == "" || subtle.ConstantTimeCompare([]byte(state), []byte(stored)) != 1 {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	pair, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	identity, err := s.oauth.Self(r.Context(), pair.AccessToken)
	if err != nil {
		writeError(w, err)
		return
	}

	sealed, err := s.sessions.Issue(r.Context(), identity, pair)
	if err != nil {
		log.Printf("callback: issue session for discord user %d: %v", identity.ID, err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	s.setSessionCookie(w, r, sealed)
	http.Redirect(w, r, s.cfg.BaseURL, http.StatusFound)
}

// handleLogout revokes the current session and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	if err := s.sessions.Revoke(r.Context(), sess); err != nil {
		log.Printf("logout: revoke session %s: %v", sess.ID, err)
		http.Error(w, "failed to revoke session", http.StatusInternalServerError)
		return
	}

	s.clearSessionCookie(w, r)
	http.Redirect(w, r, s.cfg.BaseURL, http.StatusFound)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, sealed string) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sealed,
		Path:     "/",
		Expires:  s.sessions.Now().Add(session.DefaultLifetime),
		HttpOnly: true,
		Secure:   r.URL.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   r.URL.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) setStateCookie(w http.ResponseWriter, r *http.Request, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  s.sessions.Now().Add(stateCookieLifetime),
		HttpOnly: true,
		Secure:   r.URL.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) readStateCookie(r *http.Request) string {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) clearStateCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   r.URL.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	})
}
