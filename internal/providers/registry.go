package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNoVisionClient is returned when no vision client is configured.
var ErrNoVisionClient = errors.New("no vision client configured")

// VisionConfig selects and configures the active vision client.
type VisionConfig struct {
	Type      string // "http" (default), "openai", "mock"
	BaseURL   string
	APIKey    string // Resolved API key
	Model     string
	MaxTokens int
	Timeout   time.Duration
	RateLimit float64 // Requests per second, 0 = unlimited
}

// Registry holds the active vision client and swaps it on config reload.
// It implements VisionClient itself, so callers keep a single reference
// across reloads.
type Registry struct {
	mu     sync.RWMutex
	client VisionClient
	cfg    VisionConfig
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// NewRegistryFromConfig creates a registry with the configured client.
func NewRegistryFromConfig(cfg VisionConfig) (*Registry, error) {
	r := NewRegistry()
	if err := r.Reload(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Set installs a client directly. Used by tests and the mock wiring.
func (r *Registry) Set(client VisionClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = client
}

// Reload rebuilds the client when the configuration changed.
func (r *Registry) Reload(cfg VisionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil && r.cfg == cfg {
		return nil
	}

	client, err := createVisionClient(cfg)
	if err != nil {
		return err
	}

	updated := r.client != nil
	r.client = client
	r.cfg = cfg
	if r.logger != nil {
		msg := "registered vision client"
		if updated {
			msg = "updated vision client"
		}
		r.logger.Info(msg, "type", client.Name(), "model", client.Model(), "base_url", cfg.BaseURL)
	}
	return nil
}

// Vision returns the active client.
func (r *Registry) Vision() (VisionClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, ErrNoVisionClient
	}
	return r.client, nil
}

// Name returns the active client's name, or "" when none is set.
func (r *Registry) Name() string {
	c, err := r.Vision()
	if err != nil {
		return ""
	}
	return c.Name()
}

// Model returns the active client's model, or "" when none is set.
func (r *Registry) Model() string {
	c, err := r.Vision()
	if err != nil {
		return ""
	}
	return c.Model()
}

// Analyze delegates to the active client.
func (r *Registry) Analyze(ctx context.Context, image []byte, instruction string) (*RawResponse, error) {
	c, err := r.Vision()
	if err != nil {
		return nil, err
	}
	return c.Analyze(ctx, image, instruction)
}

// LimiterStatus reports the active client's pacing state, if it has one.
func (r *Registry) LimiterStatus() (RateLimiterStatus, bool) {
	c, err := r.Vision()
	if err != nil {
		return RateLimiterStatus{}, false
	}
	if l, ok := c.(interface{ Limiter() *RateLimiter }); ok {
		return l.Limiter().Status(), true
	}
	return RateLimiterStatus{}, false
}

// createVisionClient creates a vision client based on type.
func createVisionClient(cfg VisionConfig) (VisionClient, error) {
	switch cfg.Type {
	case "", CompletionsName:
		return NewCompletionsClient(CompletionsConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
			RPS:       cfg.RateLimit,
		}), nil
	case OpenAIVisionName:
		return NewOpenAIVisionClient(OpenAIVisionConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
			RPS:       cfg.RateLimit,
		}), nil
	case MockClientName:
		return NewMockVisionClient(), nil
	default:
		return nil, fmt.Errorf("unknown vision client type: %q", cfg.Type)
	}
}

var _ VisionClient = (*Registry)(nil)
