package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/stdcheck/internal/api"
	"github.com/jackzampolin/stdcheck/internal/config"
	"github.com/jackzampolin/stdcheck/internal/home"
	"github.com/jackzampolin/stdcheck/internal/knowledge"
	"github.com/jackzampolin/stdcheck/internal/providers"
	"github.com/jackzampolin/stdcheck/internal/raster"
	"github.com/jackzampolin/stdcheck/internal/server/endpoints"
	"github.com/jackzampolin/stdcheck/internal/svcctx"
)

// Server is the stdcheck HTTP server. It owns the report database and the
// knowledge engine handle; a LightRAG container started on first use is
// stopped on shutdown.
type Server struct {
	httpServer *http.Server
	deps       Deps
	docker     *knowledge.DockerManager
	logger     *slog.Logger

	// runtime holds all core services for context enrichment
	runtime *Runtime

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 7861)
	Port string
	// Home is the data directory (default: ~/.stdcheck)
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger

	// DBPath, Vision, Rasterizer and Knowledge replace the configured
	// components. Used by tests and offline runs.
	DBPath     string
	Vision     providers.VisionClient
	Rasterizer raster.Rasterizer
	Knowledge  *knowledge.Handle
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "7861"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		dir, err := home.New("")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.Home = dir
	}

	s := &Server{
		logger: cfg.Logger,
		deps: Deps{
			ConfigManager: cfg.ConfigManager,
			Home:          cfg.Home,
			Logger:        cfg.Logger,
			DBPath:        cfg.DBPath,
			Rasterizer:    cfg.Rasterizer,
			Knowledge:     cfg.Knowledge,
		},
	}

	if cfg.Vision != nil {
		registry := providers.NewRegistry()
		registry.SetLogger(cfg.Logger)
		registry.Set(cfg.Vision)
		s.deps.Registry = registry
	}

	// The status endpoint reports on the container when Docker runs the engine.
	if cfg.Knowledge == nil && cfg.ConfigManager != nil {
		c := cfg.ConfigManager.Get()
		if c.Knowledge.Docker.Enabled {
			kcfg := c.KnowledgeConfig(cfg.Home.RAGPath(), cfg.Home.Path())
			docker, err := knowledge.NewDockerManager(kcfg.Docker)
			if err != nil {
				cfg.Logger.Warn("docker unavailable, container status disabled", "error", err)
			} else {
				s.docker = docker
			}
		}
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{Docker: s.docker}) {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	// Analysis runs inside the upload request, one vision call per page.
	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start opens the database, wires the services and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	rt, err := NewRuntime(ctx, s.deps)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	s.mu.Lock()
	s.runtime = rt
	s.mu.Unlock()

	if s.deps.ConfigManager != nil {
		s.deps.ConfigManager.OnChange(rt.Reload)
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops HTTP, then the knowledge engine and the database.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.mu.Lock()
	rt := s.runtime
	s.runtime = nil
	s.mu.Unlock()

	if rt != nil {
		if err := rt.Close(shutdownCtx); err != nil {
			s.logger.Error("service shutdown error", "error", err)
		}
	}
	if s.docker != nil {
		if err := s.docker.Close(); err != nil {
			s.logger.Error("docker client close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Services returns the wired services, or nil before Start.
func (s *Server) Services() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runtime == nil {
		return nil
	}
	return s.runtime.Services
}

// Handler returns the root handler, including service injection.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if services := s.Services(); services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the report service is wired.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if services := s.Services(); services == nil || services.Reports == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
