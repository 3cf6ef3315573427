// Package llmcall records every external model or knowledge-engine attempt
// for traceability. One row per attempt, successful or not.
package llmcall

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/stdcheck/internal/providers"
)

// Operations recorded by the pipeline.
const (
	OpVisionAnalyze  = "vision.analyze"
	OpKnowledgeQuery = "knowledge.query"
)

// maxResponseChars caps stored response text.
const maxResponseChars = 32 * 1024

// Call represents one recorded attempt.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	ReportID string `json:"report_id,omitempty"`
	Page     int    `json:"page,omitempty"`

	Operation string `json:"operation"`
	Attempt   int    `json:"attempt"`

	// Model info
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Token usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	Response string `json:"response,omitempty"`

	// Status
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions provides context for recording a call.
type RecordOptions struct {
	ReportID  string
	Page      int
	Operation string
	Attempt   int
	Provider  string
	Model     string
	Latency   time.Duration
}

// New creates a Call from options and the attempt's outcome.
func New(opts RecordOptions, response string, err error) *Call {
	call := &Call{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		LatencyMs: int(opts.Latency.Milliseconds()),
		ReportID:  opts.ReportID,
		Page:      opts.Page,
		Operation: opts.Operation,
		Attempt:   opts.Attempt,
		Provider:  opts.Provider,
		Model:     opts.Model,
		Response:  clip(response),
		Success:   err == nil,
	}
	if err != nil {
		call.Error = err.Error()
	}
	return call
}

// FromVisionResponse creates a Call from a vision attempt.
func FromVisionResponse(resp *providers.RawResponse, err error, opts RecordOptions) *Call {
	if opts.Operation == "" {
		opts.Operation = OpVisionAnalyze
	}
	call := New(opts, resp.FirstText(), err)
	if resp != nil {
		call.InputTokens = resp.Usage.PromptTokens
		call.OutputTokens = resp.Usage.CompletionTokens
		if resp.Model != "" {
			call.Model = resp.Model
		}
	}
	return call
}

func clip(s string) string {
	if len(s) <= maxResponseChars {
		return s
	}
	return s[:maxResponseChars]
}

type reportIDKey struct{}

// WithReportID attaches a report ID to ctx so recorded calls can be linked
// back to the report that triggered them.
func WithReportID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, reportIDKey{}, id)
}

// ReportIDFrom returns the report ID attached to ctx, if any.
func ReportIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(reportIDKey{}).(string)
	return id
}
