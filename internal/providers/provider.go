package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// VisionClient sends one page image plus an instruction to a multimodal
// chat-completions endpoint. Each call is a single attempt; retrying is the
// caller's job.
type VisionClient interface {
	// Name returns the client kind (e.g., "http", "openai").
	Name() string

	// Model returns the model identifier sent with each request.
	Model() string

	// Analyze submits a PNG image and instruction and returns the decoded response.
	// Transport errors, non-2xx statuses, undecodable bodies and in-band errors
	// are all returned as errors.
	Analyze(ctx context.Context, image []byte, instruction string) (*RawResponse, error)
}

// RawResponse is the decoded chat-completions payload.
type RawResponse struct {
	ID      string    `json:"id,omitempty"`
	Model   string    `json:"model,omitempty"`
	Choices []Choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`

	// Populated by the client, not the endpoint.
	RequestID     string        `json:"request_id,omitempty"`
	ExecutionTime time.Duration `json:"execution_time,omitempty"`
}

// Choice is one candidate output.
type Choice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// ChoiceMessage holds a candidate's text.
type ChoiceMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// Usage reports token counts when the endpoint provides them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError is an in-band error object returned by the endpoint.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

// UnmarshalJSON accepts the error object and the bare string form
// ({"error": "quota exceeded"}) some gateways return.
func (e *APIError) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		*e = APIError{Message: msg}
		return nil
	}
	type apiError APIError
	var obj apiError
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = APIError(obj)
	return nil
}

func (e *APIError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("model API error (code %v): %s", e.Code, e.Message)
	}
	return "model API error: " + e.Message
}

// FirstText returns the first non-empty candidate text, or "" if there is none.
func (r *RawResponse) FirstText() string {
	if r == nil {
		return ""
	}
	for _, c := range r.Choices {
		if strings.TrimSpace(c.Message.Content) != "" {
			return c.Message.Content
		}
	}
	return ""
}

// Texts returns all non-empty candidate texts in order.
func (r *RawResponse) Texts() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, c := range r.Choices {
		if strings.TrimSpace(c.Message.Content) != "" {
			out = append(out, c.Message.Content)
		}
	}
	return out
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model API error (status %d): %s", e.StatusCode, truncate(e.Body, 500))
}

// ErrEmptyImage is returned when Analyze is called without image data.
var ErrEmptyImage = errors.New("empty image")

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// UnmarshalJSON accepts content as a plain string or as an array of typed
// parts, joining the text parts.
func (m *ChoiceMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = ""

	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw.Content, &m.Content); err == nil {
		return nil
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw.Content, &parts); err != nil {
		return fmt.Errorf("unsupported message content: %w", err)
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == "text" || p.Type == "" {
			sb.WriteString(p.Text)
		}
	}
	m.Content = sb.String()
	return nil
}
