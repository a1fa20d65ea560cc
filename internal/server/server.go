// Package server is the composition root: it opens the store, builds the
// GitHub adapters, services and handlers, and defines every route.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → store (sqlite | postgres)
//	              → github.Client → github.CachingSource ─┐
//	              → auth.TokenService, auth.Sealer        ├→ LeaderboardService → handlers
//	              → github.ProfileFetcher ─────────────────┴→ AuthService
//	LeaderboardService → BatchService → Scheduler
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/easgit/internal/auth"
	"github.com/sakif/easgit/internal/config"
	"github.com/sakif/easgit/internal/github"
	"github.com/sakif/easgit/internal/handler"
	"github.com/sakif/easgit/internal/metrics"
	"github.com/sakif/easgit/internal/middleware"
	"github.com/sakif/easgit/internal/repository"
	"github.com/sakif/easgit/internal/repository/postgres"
	sqliteRepo "github.com/sakif/easgit/internal/repository/sqlite"
	"github.com/sakif/easgit/internal/service"
)

// store is what both database packages provide.
type store interface {
	repository.UserRepository
	repository.StatisticsRepository
	Ping(ctx context.Context) error
	Close() error
}

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the store and the scheduler; Start stops the scheduler and
// closes the store on shutdown.
type Server struct {
	router    *chi.Mux
	cfg       *config.Config
	logger    *slog.Logger
	db        store
	metrics   *metrics.Manager
	scheduler *service.Scheduler
}

// New wires every dependency. The returned Server has not started anything
// yet; call Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.NewManager(),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DSN)
	default:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		return sqliteRepo.New(cfg.Path)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes builds the services and configures all middleware and routes.
//
// ROUTE STRUCTURE:
// GET    /healthz                              → store ping
// GET    /metrics                              → Prometheus exposition
// GET    /auth/github/login                    → OAuth redirect (when configured)
// GET    /auth/github/callback                 → OAuth callback (when configured)
// POST   /auth/logout                          → clear session cookie
// GET    /api/leaderboard                      → ranked list
// GET    /api/leaderboard/position/{username}  → one user's rank
// GET    /api/stats/{username}                 → stored statistics
// GET    /api/me                               → session user       [JWT]
// POST   /api/leaderboard/refresh              → refresh own stats  [JWT]
// POST   /api/admin/refresh-all                → batch refresh      [X-Admin-Key]
func (s *Server) setupRoutes() error {
	cfg := s.cfg

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	sealer := auth.NewSealer(cfg.Auth.JWTSecret)

	adminKeys, err := auth.NewKeyVerifier(cfg.Auth.AdminKeyHash)
	if err != nil {
		return fmt.Errorf("creating admin key verifier: %w", err)
	}
	if !adminKeys.Enabled() {
		s.logger.Warn("auth.admin_key_hash not set, admin endpoints are disabled")
	}

	httpClient := &http.Client{Timeout: cfg.GitHub.Timeout}
	client := github.NewClient(cfg.GitHub.GraphQLURL, httpClient, s.logger)
	source := github.NewSource(client, cfg.Cache.TTL, s.metrics)

	profiles, err := github.NewProfileFetcher(cfg.GitHub.APIURL, httpClient)
	if err != nil {
		return fmt.Errorf("creating profile fetcher: %w", err)
	}

	leaderboard := service.NewLeaderboardService(s.db, source, service.LeaderboardConfig{
		DefaultLimit: cfg.Leaderboard.DefaultLimit,
		MaxLimit:     cfg.Leaderboard.MaxLimit,
		FetchTimeout: cfg.Leaderboard.FetchTimeout,
	}, s.metrics, s.logger)
	authService := service.NewAuthService(s.db, tokens, sealer, profiles, s.logger)
	batch := service.NewBatchService(s.db, sealer, leaderboard, cfg.Scheduler.RatePerSecond, s.metrics, s.logger)
	s.scheduler = service.NewScheduler(batch, cfg.Scheduler.Interval, s.logger)

	var provider *auth.GitHubProvider
	if cfg.OAuthEnabled() {
		provider = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}

	authHandler := handler.NewAuthHandler(provider, authService, leaderboard, tokens.TTL(), s.logger)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboard, authService, s.logger)
	adminHandler := handler.NewAdminHandler(batch, s.logger)

	// === Global Middleware ===
	// The logger sits outside Recoverer so recovered panics are logged as 500s.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", handler.Healthcheck(s.db, s.logger))
	s.router.Handle("/metrics", s.metrics.Handler())

	if provider != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	} else {
		s.logger.Warn("GitHub OAuth not configured, login routes are disabled")
	}
	s.router.Post("/auth/logout", authHandler.HandleLogout)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/leaderboard", leaderboardHandler.HandleLeaderboard)
		r.Get("/leaderboard/position/{username}", leaderboardHandler.HandlePosition)
		r.Get("/stats/{username}", leaderboardHandler.HandleStats)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authHandler.HandleMe)
			r.Post("/leaderboard/refresh", leaderboardHandler.HandleRefresh)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdminKey(adminKeys))
			r.Post("/refresh-all", adminHandler.HandleRefreshAll)
		})
	})

	return nil
}

// Start runs the scheduler and the HTTP server and handles graceful shutdown.
//
// On SIGINT/SIGTERM:
//  1. Stop the scheduler (an in-flight batch is cancelled)
//  2. Stop accepting new HTTP connections and drain in-flight requests
//  3. Close the store
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}

	s.scheduler.Start(context.Background())
	defer s.scheduler.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.HTTP.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.cfg.HTTP.Port)),
			slog.String("database", s.cfg.Database.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		s.scheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the store without starting the server.
func (s *Server) Close() error {
	s.scheduler.Stop()
	return s.db.Close()
}
