package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const OpenAIVisionName = "openai"

// OpenAIVisionConfig configures the SDK-backed vision client.
type OpenAIVisionConfig struct {
	APIKey     string
	BaseURL    string // Optional; any OpenAI-compatible endpoint
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	RPS        float64
	HTTPClient *http.Client // Optional (tests)
}

// OpenAIVisionClient implements VisionClient using the official OpenAI SDK.
// SDK-level retries are disabled so each Analyze call is exactly one attempt.
type OpenAIVisionClient struct {
	model     string
	maxTokens int
	client    openai.Client
	limiter   *RateLimiter
}

// NewOpenAIVisionClient creates a new SDK-backed vision client.
func NewOpenAIVisionClient(cfg OpenAIVisionConfig) *OpenAIVisionClient {
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

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIVisionClient{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    openai.NewClient(opts...),
		limiter:   NewRateLimiter(cfg.RPS),
	}
}

// Name returns the provider identifier.
func (c *OpenAIVisionClient) Name() string {
	return OpenAIVisionName
}

// Model returns the configured model.
func (c *OpenAIVisionClient) Model() string {
	return c.model
}

// Limiter exposes the request pacer for status reporting.
func (c *OpenAIVisionClient) Limiter() *RateLimiter {
	return c.limiter
}

// Analyze sends one image and instruction through the SDK.
func (c *OpenAIVisionClient) Analyze(ctx context.Context, image []byte, instruction string) (*RawResponse, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	requestID := uuid.New().String()

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: PNGDataURL(image),
				}),
				openai.TextContentPart(instruction),
			}),
		},
		MaxTokens: openai.Int(int64(c.maxTokens)),
	}, option.WithHeader("X-Request-ID", requestID))
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if completion == nil {
		return nil, fmt.Errorf("openai chat completion returned nil response")
	}

	out := &RawResponse{
		ID:            completion.ID,
		Model:         completion.Model,
		Choices:       make([]Choice, 0, len(completion.Choices)),
		RequestID:     requestID,
		ExecutionTime: time.Since(start),
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	for _, ch := range completion.Choices {
		out.Choices = append(out.Choices, Choice{
			Index:        int(ch.Index),
			Message:      ChoiceMessage{Role: string(ch.Message.Role), Content: ch.Message.Content},
			FinishReason: string(ch.FinishReason),
		})
	}
	return out, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Message}
	}
	return fmt.Errorf("request failed: %w", err)
}

var _ VisionClient = (*OpenAIVisionClient)(nil)
