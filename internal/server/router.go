// Package server assembles the HTTP surface: OAuth login and logout, the
// rebind endpoint, cached identity lookups, and the admin ban endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/craftlink/craftlink/internal/apperr"
	"github.com/craftlink/craftlink/internal/config"
	"github.com/craftlink/craftlink/internal/discord"
	"github.com/craftlink/craftlink/internal/mojang"
	"github.com/craftlink/craftlink/internal/repository"
	"github.com/craftlink/craftlink/internal/session"
)

// OAuthService is the slice of the Discord client the handlers need.
type OAuthService interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (discord.TokenPair, error)
	Self(ctx context.Context, accessToken string) (discord.Identity, error)
}

// SessionService is the slice of the session manager the handlers need.
type SessionService interface {
	Issue(ctx context.Context, identity discord.Identity, pair discord.TokenPair) (string, error)
	Resolve(ctx context.Context, cookieValue string) (*session.Session, error)
	Refresh(ctx context.Context, s *session.Session) (string, error)
	Revoke(ctx context.Context, s *session.Session) error
	Now() time.Time
}

// BindingService is the slice of the binding coordinator the handlers need.
type BindingService interface {
	Rebind(ctx context.Context, sess *session.Session, username string) (mojang.Account, error)
	MinecraftAccountByName(ctx context.Context, sess *session.Session, username string) (mojang.Account, error)
	MinecraftProfileByUUID(ctx context.Context, sess *session.Session, uuid string) (mojang.Profile, error)
	DiscordNameByID(ctx context.Context, sess *session.Session, id int64) (string, error)
}

// Server holds the handler dependencies.
type Server struct {
	cfg      *config.Config
	oauth    OAuthService
	sessions SessionService
	bindings BindingService
	users    repository.UserRepository
}

// New creates a Server.
func New(
	cfg *config.Config,
	oauth OAuthService,
	sessions SessionService,
	bindings BindingService,
	users repository.UserRepository,
) *Server {
	return &Server{
		cfg:      cfg,
		oauth:    oauth,
		sessions: sessions,
		bindings: bindings,
		users:    users,
	}
}

// DefaultCORSOptions returns the shared CORS policy for browser clients.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Admin-Secret"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// Router assembles the chi router with shared middleware and all routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(DefaultCORSOptions()))

	r.Get("/login/discord", s.handleLogin)
	r.Get("/auth/discord/callback", s.handleCallback)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/logout/discord", s.handleLogout)
		r.Post("/minecraft/username/change", s.handleUsernameChange)
		r.Get("/users/@me", s.handleMe)
		r.Get("/users/username_to_id/minecraft", s.handleMinecraftUsernameToID)
		r.Get("/users/id_to_username/minecraft/{id}", s.handleMinecraftIDToProfile)
		r.Get("/users/id_to_username/discord/{id}", s.handleDiscordIDToUsername)
	})

	r.Post("/admin/ban", s.handleAdminBan)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}

type ctxKey int

const sessionCtxKey ctxKey = iota

// currentSession resolves the sealed session cookie into a live session.
// Every failure mode - no cookie, tampered value, missing rows, expired
// session - yields nil: the request is simply anonymous.
func (s *Server) currentSession(r *http.Request) *session.Session {
	c, err := r.Cookie(session.CookieName)
	if err != nil {
		return nil
	}
	sess, err := s.sessions.Resolve(r.Context(), c.Value)
	if err != nil {
		return nil
	}
	if !sess.Alive(s.sessions.Now()) {
		return nil
	}
	return sess
}

// requireSession rejects anonymous requests and stashes the resolved session
// in the request context for the handler.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := s.currentSession(r)
		if sess == nil {
			writeError(w, apperr.ErrUnauthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionCtxKey).(*session.Session)
	return sess
}
