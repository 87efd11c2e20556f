package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sluicedb/sluice/internal/access"
	"github.com/sluicedb/sluice/internal/auth"
	"github.com/sluicedb/sluice/internal/handler"
	"github.com/sluicedb/sluice/internal/server/middleware"
	"github.com/sluicedb/sluice/internal/session"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host               string
	Port               int
	ShutdownTimeout    time.Duration
	CORSOrigins        []string
	LoginRatePerMinute int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ShutdownTimeout:    30 * time.Second,
		CORSOrigins:        []string{"*"},
		LoginRatePerMinute: 30,
	}
}

// Server is the top-level HTTP server for Sluice. It owns the Chi router,
// the authentication engine, and the session manager.
type Server struct {
	cfg        Config
	router     chi.Router
	engine     *auth.Engine
	sessions   *session.Manager
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, engine *auth.Engine, sessions *session.Manager, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		sessions: sessions,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Health check (no auth required) ---
	r.Get("/healthz", s.handleHealthz)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		authHandler := handler.NewAuthHandler(s.engine, s.sessions)
		usersHandler := handler.NewUsersHandler(s.engine)

		// Login is unauthenticated and IP rate limited; logout is
		// self-authenticated through its own bearer token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.LoginRateLimit(s.cfg.LoginRatePerMinute))
			r.Post("/auth/session", authHandler.Login)
		})
		r.Delete("/auth/session", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.sessions))
			r.Get("/auth/identity", authHandler.Identity)
		})

		// User management requires the admin capability.
		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.Authenticate(s.sessions))
			r.Use(middleware.RequireCapability(access.Admin))

			r.Get("/", usersHandler.List)
			r.Post("/", usersHandler.Create)
			r.Delete("/{username}", usersHandler.Delete)
			r.Post("/{username}/password", usersHandler.SetPassword)
			r.Post("/{username}/role", usersHandler.SetRole)
			r.Post("/{username}/activate", usersHandler.Activate)
			r.Post("/{username}/deactivate", usersHandler.Deactivate)
			r.Post("/{username}/unlock", usersHandler.Unlock)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
