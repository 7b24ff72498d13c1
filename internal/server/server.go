// Package server is the composition root: it opens the store, builds the
// services and handlers, mounts the routes and runs the HTTP server.
//
// Dependency chain:
//
//	config.Config → repository.Store → service.* → handler.* → chi routes
//
// Each layer receives only what it needs; handlers never see the store and
// services never see HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/readme-studio/internal/auth"
	"github.com/sakif/readme-studio/internal/config"
	"github.com/sakif/readme-studio/internal/github"
	"github.com/sakif/readme-studio/internal/handler"
	"github.com/sakif/readme-studio/internal/middleware"
	"github.com/sakif/readme-studio/internal/ratelimit"
	"github.com/sakif/readme-studio/internal/readme"
	"github.com/sakif/readme-studio/internal/repository"
	"github.com/sakif/readme-studio/internal/repository/mongodb"
	"github.com/sakif/readme-studio/internal/repository/postgres"
	sqliteRepo "github.com/sakif/readme-studio/internal/repository/sqlite"
	"github.com/sakif/readme-studio/internal/service"
)

// Server owns the router and every resource that must be released on
// shutdown: the store and the rate limiter.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   repository.Store
	limiter ratelimit.Limiter
	metrics *middleware.Metrics
}

// New wires the application from cfg. The caller must Close the Server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	limiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		limiter: limiter,
		metrics: middleware.NewMetrics(),
	}

	if err := s.setupRoutes(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// OpenStore opens the backend selected by DB_DRIVER. SQL backends migrate
// to the latest schema; Mongo ensures its unique index.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("server: opening postgres: %w", err)
		}
		logger.Info("store opened", slog.String("driver", cfg.DBDriver))
		return store, nil

	case config.DriverMongo:
		store, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("server: opening mongo: %w", err)
		}
		logger.Info("store opened", slog.String("driver", cfg.DBDriver), slog.String("database", cfg.MongoDatabase))
		return store, nil

	default:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("server: creating database directory: %w", err)
			}
		}
		store, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("server: opening sqlite: %w", err)
		}
		logger.Info("store opened", slog.String("driver", config.DriverSQLite), slog.String("path", cfg.DBPath))
		return store, nil
	}
}

// newLimiter prefers Redis so several instances share one budget, and
// falls back to memory when REDIS_ADDR is unset.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemory(), nil
	}
	rl, err := ratelimit.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	return rl, nil
}

// setupRoutes mounts:
//
//	GET  /healthz                 store ping
//	GET  /metrics                 Prometheus
//	POST /api/auth/google-login   rate limited
//	POST /api/auth/github-login   rate limited
//	POST /api/auth/manual-login   rate limited
//	POST /api/auth/logout
//	GET  /api/auth/get-user       RequireAuth
//	GET  /api/auth/repos          RequireAuth
//	POST /api/readme              RequireAuth, only with GEMINI_API_KEY
//
// Middleware order: request id, real ip (TRUST_PROXY only), recoverer,
// logging, metrics, CORS.
func (s *Server) setupRoutes(ctx context.Context) error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	passwords, err := auth.NewPasswordService(cfg.BcryptCost)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(s.store, tokens, passwords, s.logger, service.WithPhoneRegion(cfg.PhoneRegion))
	repoService := service.NewRepoService(s.store, github.NewClient(cfg.GitHubAPIURL, cfg.UpstreamTimeout))

	authHandler := handler.NewAuthHandler(authService, cfg.Cookie(), s.metrics, s.logger)
	repoHandler := handler.NewRepoHandler(repoService, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	requireAuth := auth.RequireAuth(tokens, handler.RejectUnauthenticated(s.logger), s.logger)
	limitLogin := ratelimit.Middleware(s.limiter, "login", cfg.LoginRateLimit, cfg.LoginRateWindow, ratelimit.KeyByIP,
		func(w http.ResponseWriter, r *http.Request) {
			s.metrics.RateLimited(r.URL.Path)
			handler.RejectRateLimited(s.logger)(w, r)
		})

	r := s.router
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))
	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.NotFound(handler.NotFound)

	r.Get("/healthz", healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limitLogin)
			r.Post("/google-login", authHandler.HandleGoogleLogin)
			r.Post("/github-login", authHandler.HandleGitHubLogin)
			r.Post("/manual-login", authHandler.HandleManualLogin)
		})
		r.Post("/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/get-user", authHandler.HandleGetUser)
			r.Get("/repos", repoHandler.HandleList)
		})
	})

	if cfg.GeminiAPIKey == "" {
		s.logger.Warn("GEMINI_API_KEY not set; /api/readme is disabled")
		return nil
	}
	gen, err := readme.NewGemini(ctx, readme.Config{
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.GeminiModel,
		Endpoint: cfg.GeminiEndpoint,
		Timeout:  cfg.UpstreamTimeout,
	})
	if err != nil {
		return err
	}
	readmeHandler := handler.NewReadmeHandler(service.NewReadmeService(gen, s.logger), s.logger)
	r.With(requireAuth).Post("/api/readme", readmeHandler.HandleDraft)

	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the limiter and the store.
func (s *Server) Close() error {
	return errors.Join(s.limiter.Close(), s.store.Close())
}

// Start serves until SIGINT/SIGTERM or ctx is cancelled, then drains
// in-flight requests for up to 30 seconds and closes the store.
func (s *Server) Start(ctx context.Context) error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.UpstreamTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.Any("config", s.config),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
