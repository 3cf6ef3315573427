package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	CompletionsName      = "http"
	DefaultVisionModel   = "qwen2.5-vl-7b-instruct"
	DefaultMaxTokens     = 2048
	defaultVisionTimeout = 120 * time.Second
)

// CompletionsConfig holds configuration for the hand-rolled chat-completions client.
type CompletionsConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// RPS paces outgoing requests; 0 disables pacing.
	RPS        float64
	HTTPClient *http.Client // Optional (tests)
}

// CompletionsClient implements VisionClient against any OpenAI-compatible
// /chat/completions endpoint.
type CompletionsClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
	limiter   *RateLimiter
}

// NewCompletionsClient creates a new chat-completions vision client.
func NewCompletionsClient(cfg CompletionsConfig) *CompletionsClient {
	if cfg.Model == "" {
		cfg.Model = DefaultVisionModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultVisionTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &CompletionsClient{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    httpClient,
		limiter:   NewRateLimiter(cfg.RPS),
	}
}

// Name returns the client identifier.
func (c *CompletionsClient) Name() string {
	return CompletionsName
}

// Model returns the configured model.
func (c *CompletionsClient) Model() string {
	return c.model
}

// Limiter exposes the request pacer for status reporting.
func (c *CompletionsClient) Limiter() *RateLimiter {
	return c.limiter
}

// Analyze sends one image and instruction. The request is built from scratch
// on every call.
func (c *CompletionsClient) Analyze(ctx context.Context, image []byte, instruction string) (*RawResponse, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("vision base URL not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	requestID := uuid.New().String()

	body, err := json.Marshal(completionsRequest{
		Model: c.model,
		Messages: []completionsMessage{{
			Role: "user",
			Content: []completionsContent{
				{Type: "image_url", ImageURL: &completionsImageURL{URL: PNGDataURL(image)}},
				{Type: "text", Text: instruction},
			},
		}},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out RawResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	// Some gateways report model failures in-band with a 200.
	if out.Error != nil {
		return nil, out.Error
	}

	out.RequestID = requestID
	out.ExecutionTime = time.Since(start)
	return &out, nil
}

// PNGDataURL encodes PNG bytes as a base64 data URL.
func PNGDataURL(image []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
}

type completionsRequest struct {
	Model     string               `json:"model"`
	Messages  []completionsMessage `json:"messages"`
	MaxTokens int                  `json:"max_tokens,omitempty"`
}

type completionsMessage struct {
	Role    string               `json:"role"`
	Content []completionsContent `json:"content"`
}

type completionsContent struct {
	Type     string               `json:"type"`
	Text     string               `json:"text,omitempty"`
	ImageURL *completionsImageURL `json:"image_url,omitempty"`
}

type completionsImageURL struct {
	URL string `json:"url"`
}

var _ VisionClient = (*CompletionsClient)(nil)
