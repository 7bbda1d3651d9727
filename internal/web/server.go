package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/go-moodify/internal/logging"
	"github.com/justestif/go-moodify/internal/store"
)

// DefaultAddr is the default server address.
const DefaultAddr = "127.0.0.1:8080"

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = 10 * time.Minute
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr       string
	JWTSecret  string
	SessionTTL time.Duration
	Logger     *log.Logger
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	server   *http.Server
	sessions *SessionStore
	handlers *Handlers
	tokens   *tokenIssuer
	logger   *log.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, backend Backend, gateway store.Gateway) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	logger := logging.OrDiscard(cfg.Logger)

	sessions := NewSessionStore(cfg.SessionTTL)
	tokens := &tokenIssuer{secret: []byte(cfg.JWTSecret), ttl: cfg.SessionTTL, now: time.Now}

	s := &Server{
		router:   chi.NewRouter(),
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
		handlers: &Handlers{
			backend:  backend,
			store:    gateway,
			sessions: sessions,
			logins:   newPendingLogins(),
			tokens:   tokens,
			logger:   logger,
		},
	}

	s.setupMiddleware()
	s.setupRoutes()

	// WriteTimeout covers a whole run, which makes several completion calls
	// and can wait out the per-session interval.
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handlers.Health)

	// Auth routes
	s.router.Get("/auth/login", s.handlers.Login)
	s.router.Get("/callback", s.handlers.Callback)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Post("/auth/logout", s.handlers.Logout)
		r.Post("/playlists", s.handlers.CreatePlaylist)
		r.Post("/playlists/latest", s.handlers.CreateFromLatest)
		r.Post("/responses", s.handlers.SubmitResponses)
		r.Get("/responses/latest", s.handlers.LatestResponses)
		r.Get("/selections", s.handlers.Selections)
		r.Get("/me/playlists", s.handlers.Playlists)
	})
}

// requireSession resolves the bearer token to a live session.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("%w: missing bearer token", ErrInvalidSession))
			return
		}

		claims, err := s.tokens.verify(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		session := s.sessions.Get(claims.SessionID)
		if session == nil || session.UserID != claims.Subject {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("%w: session not found", ErrInvalidSession))
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(start).Round(time.Millisecond),
			"id", middleware.GetReqID(r.Context()),
		)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", "http://"+s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

loop:
	for {
		select {
		case err := <-errCh:
			return err
		case <-sweep.C:
			if n := s.sessions.DeleteExpired(); n > 0 {
				s.logger.Debug("expired sessions removed", "count", n)
			}
		case <-ctx.Done():
			s.logger.Info("shutting down server")
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
