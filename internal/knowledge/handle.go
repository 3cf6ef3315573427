// Package knowledge provides the process-wide handle to the LightRAG engine
// that answers standards questions.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultDockerHealthTimeout = 120 * time.Second

// Config configures the default engine setup.
type Config struct {
	// BaseURL of an already running LightRAG server. Ignored when Docker is
	// enabled; the container's URL is used instead.
	BaseURL    string
	APIKey     string
	WorkingDir string
	Timeout    time.Duration

	// HealthTimeout bounds the wait for the server to answer /health.
	HealthTimeout time.Duration

	DockerEnabled bool
	Docker        DockerConfig

	Logger *slog.Logger
}

// SetupFunc builds an engine. stop, when non-nil, releases what setup
// started; it runs on Handle.Stop.
type SetupFunc func(ctx context.Context) (engine Engine, stop func(context.Context) error, err error)

// Handle initialises the engine once and hands the same instance to every
// caller. Concurrent first callers block until setup finishes. A failed
// setup leaves the handle uninitialised so the next caller tries again.
type Handle struct {
	setup  SetupFunc
	logger *slog.Logger

	// setupMu serialises setup and Stop. mu guards the fields below and is
	// never held across setup, so status reads do not wait on it.
	setupMu sync.Mutex
	mu      sync.Mutex

	done       bool
	inProgress bool
	engine     Engine
	stop       func(context.Context) error

	setups  int
	lastErr string
	readyAt time.Time
}

// Status is a snapshot of the handle for status endpoints.
type Status struct {
	Initialized bool      `json:"initialized"`
	InProgress  bool      `json:"in_progress"`
	Setups      int       `json:"setups"`
	LastError   string    `json:"last_error,omitempty"`
	ReadyAt     time.Time `json:"ready_at,omitempty"`
}

// NewHandle creates a handle using the default setup for cfg.
func NewHandle(cfg Config) *Handle {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return NewHandleWithSetup(DefaultSetup(cfg), cfg.Logger)
}

// NewHandleWithSetup creates a handle around a custom setup.
func NewHandleWithSetup(setup SetupFunc, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{setup: setup, logger: logger}
}

// Engine returns the engine, running setup on first use.
func (h *Handle) Engine(ctx context.Context) (Engine, error) {
	if engine, ok := h.ready(); ok {
		return engine, nil
	}

	h.setupMu.Lock()
	defer h.setupMu.Unlock()

	// Another caller may have finished setup while this one waited.
	if engine, ok := h.ready(); ok {
		return engine, nil
	}

	h.mu.Lock()
	h.setups++
	h.inProgress = true
	setup := h.setups
	h.mu.Unlock()

	start := time.Now()
	h.logger.Info("initializing knowledge engine", "setup", setup)

	engine, stop, err := h.setup(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.inProgress = false
	if err != nil {
		h.lastErr = err.Error()
		h.logger.Warn("knowledge engine setup failed", "setup", setup, "error", err)
		return nil, fmt.Errorf("knowledge engine setup failed: %w", err)
	}

	h.engine = engine
	h.stop = stop
	h.done = true
	h.lastErr = ""
	h.readyAt = time.Now()
	h.logger.Info("knowledge engine ready", "elapsed_ms", time.Since(start).Milliseconds())
	return engine, nil
}

func (h *Handle) ready() (Engine, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine, h.done
}

// Initialized reports whether setup has completed.
func (h *Handle) Initialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Ping initialises the engine if needed and checks its health.
func (h *Handle) Ping(ctx context.Context) error {
	engine, err := h.Engine(ctx)
	if err != nil {
		return err
	}
	if hc, ok := engine.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

// Status returns a snapshot of the handle.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{
		Initialized: h.done,
		InProgress:  h.inProgress,
		Setups:      h.setups,
		LastError:   h.lastErr,
		ReadyAt:     h.readyAt,
	}
}

// Stop releases whatever setup started. The engine is not reused afterwards
// without a new setup.
func (h *Handle) Stop(ctx context.Context) error {
	h.setupMu.Lock()
	defer h.setupMu.Unlock()

	h.mu.Lock()
	stop := h.stop
	h.done = false
	h.engine = nil
	h.stop = nil
	h.mu.Unlock()

	if stop == nil {
		return nil
	}
	return stop(ctx)
}

// DefaultSetup creates the working directory, starts the LightRAG container
// when enabled, waits for the server to report healthy and returns an HTTP
// engine for it. Only a container this setup started is stopped later.
func DefaultSetup(cfg Config) SetupFunc {
	return func(ctx context.Context) (Engine, func(context.Context) error, error) {
		logger := cfg.Logger
		if logger == nil {
			logger = slog.Default()
		}

		if cfg.WorkingDir != "" {
			abs, err := filepath.Abs(cfg.WorkingDir)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid working dir: %w", err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return nil, nil, fmt.Errorf("failed to create working dir: %w", err)
			}
			cfg.WorkingDir = abs
		}

		baseURL := cfg.BaseURL
		healthTimeout := cfg.HealthTimeout
		var stop func(context.Context) error

		if cfg.DockerEnabled {
			dcfg := cfg.Docker
			if dcfg.DataPath == "" {
				dcfg.DataPath = cfg.WorkingDir
			}
			if dcfg.APIKey == "" {
				dcfg.APIKey = cfg.APIKey
			}
			mgr, err := NewDockerManager(dcfg)
			if err != nil {
				return nil, nil, err
			}
			started, err := mgr.Start(ctx)
			if err != nil {
				_ = mgr.Close()
				return nil, nil, err
			}
			logger.Info("lightrag container up", "url", mgr.URL(), "started", started)

			baseURL = mgr.URL()
			if healthTimeout == 0 {
				healthTimeout = defaultDockerHealthTimeout
			}
			if started {
				stop = func(ctx context.Context) error {
					defer mgr.Close()
					return mgr.Stop(ctx)
				}
			} else {
				stop = func(context.Context) error { return mgr.Close() }
			}
		}

		if baseURL == "" {
			return nil, nil, fmt.Errorf("knowledge.base_url is not set and docker is disabled")
		}

		engine := NewHTTPEngine(HTTPEngineConfig{
			BaseURL: baseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
		if err := WaitHealthy(ctx, engine, healthTimeout); err != nil {
			if stop != nil {
				_ = stop(context.WithoutCancel(ctx))
			}
			return nil, nil, fmt.Errorf("knowledge engine not healthy at %s: %w", baseURL, err)
		}
		return engine, stop, nil
	}
}
