package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// Query modes understood by the LightRAG server.
const (
	ModeLocal  = "local"
	ModeGlobal = "global"
	ModeHybrid = "hybrid"
	ModeNaive  = "naive"
	ModeMix    = "mix"
)

const defaultQueryTimeout = 120 * time.Second

// QueryParam controls how the engine answers a question.
type QueryParam struct {
	Mode            string
	OnlyNeedContext bool
}

// Engine answers questions against the standards knowledge base.
type Engine interface {
	Query(ctx context.Context, question string, param QueryParam) (string, error)
}

// HealthChecker is implemented by engines that can report readiness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// StatusError is a non-2xx answer from the engine.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("knowledge engine error %d: %s", e.StatusCode, e.Body)
}

// HTTPEngine talks to a LightRAG server over its REST API.
type HTTPEngine struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPEngineConfig configures an HTTPEngine.
type HTTPEngineConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewHTTPEngine creates a client for the LightRAG server at cfg.BaseURL.
func NewHTTPEngine(cfg HTTPEngineConfig) *HTTPEngine {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultQueryTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPEngine{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  hc,
	}
}

// BaseURL returns the server address.
func (e *HTTPEngine) BaseURL() string {
	return e.baseURL
}

type queryRequest struct {
	Query           string `json:"query"`
	Mode            string `json:"mode"`
	OnlyNeedContext bool   `json:"only_need_context"`
}

type queryResponse struct {
	Response string `json:"response"`
}

// Query posts the question to /query and returns the answer text.
func (e *HTTPEngine) Query(ctx context.Context, question string, param QueryParam) (string, error) {
	if param.Mode == "" {
		param.Mode = ModeHybrid
	}
	body, err := json.Marshal(queryRequest{
		Query:           question,
		Mode:            param.Mode,
		OnlyNeedContext: param.OnlyNeedContext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	e.authorize(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("knowledge query failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}

	var out queryResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to decode query response: %w", err)
	}
	// The answer is forwarded as received, empty or not.
	return out.Response, nil
}

// Health checks the server's /health endpoint once.
func (e *HTTPEngine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	e.authorize(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}
	return nil
}

// WaitHealthy polls Health about once per second until it succeeds or
// timeout elapses. A timeout under one second checks once.
func WaitHealthy(ctx context.Context, hc HealthChecker, timeout time.Duration) error {
	attempts := uint(timeout.Seconds())
	if attempts < 1 {
		attempts = 1
	}
	return retry.Do(
		func() error { return hc.Health(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(1*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (e *HTTPEngine) authorize(req *http.Request) {
	if e.apiKey != "" {
		req.Header.Set("X-API-Key", e.apiKey)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var (
	_ Engine        = (*HTTPEngine)(nil)
	_ HealthChecker = (*HTTPEngine)(nil)
)
