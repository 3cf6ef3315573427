package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

var testImage = []byte("\x89PNG\r\n\x1a\nfake-image-data")

func TestCompletionsClient_Analyze(t *testing.T) {
	t.Run("successful analysis", func(t *testing.T) {
		var received completionsRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				t.Errorf("decode request: %v", err)
			}

			resp := map[string]any{
				"id":    "test-id",
				"model": "qwen2.5-vl-7b-instruct",
				"choices": []map[string]any{
					{
						"message": map[string]any{
							"role":    "assistant",
							"content": `{"model": "HRB400E"}`,
						},
						"finish_reason": "stop",
					},
				},
				"usage": map[string]int{
					"prompt_tokens":     100,
					"completion_tokens": 8,
					"total_tokens":      108,
				},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		client := NewCompletionsClient(CompletionsConfig{
			APIKey:  "test-key",
			BaseURL: server.URL + "/",
		})

		resp, err := client.Analyze(context.Background(), testImage, "extract the data")
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if got := resp.FirstText(); got != `{"model": "HRB400E"}` {
			t.Errorf("FirstText() = %q", got)
		}
		if resp.Usage.TotalTokens != 108 {
			t.Errorf("TotalTokens = %d, want 108", resp.Usage.TotalTokens)
		}
		if resp.RequestID == "" {
			t.Error("expected request ID to be set")
		}

		if received.Model != DefaultVisionModel {
			t.Errorf("model = %q, want %q", received.Model, DefaultVisionModel)
		}
		if received.MaxTokens != DefaultMaxTokens {
			t.Errorf("max_tokens = %d, want %d", received.MaxTokens, DefaultMaxTokens)
		}
		if len(received.Messages) != 1 || len(received.Messages[0].Content) != 2 {
			t.Fatalf("unexpected message shape: %+v", received.Messages)
		}
		parts := received.Messages[0].Content
		if parts[0].Type != "image_url" || parts[0].ImageURL == nil {
			t.Fatalf("first part should be the image, got %+v", parts[0])
		}
		if !strings.HasPrefix(parts[0].ImageURL.URL, "data:image/png;base64,") {
			t.Errorf("image URL = %q", parts[0].ImageURL.URL)
		}
		if parts[1].Type != "text" || parts[1].Text != "extract the data" {
			t.Errorf("second part = %+v", parts[1])
		}
	})

	t.Run("in-band error on 200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"error": {"message": "model overloaded", "code": 503}}`))
		}))
		defer server.Close()

		client := NewCompletionsClient(CompletionsConfig{BaseURL: server.URL})
		_, err := client.Analyze(context.Background(), testImage, "q")
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("error = %v, want *APIError", err)
		}
		if apiErr.Message != "model overloaded" {
			t.Errorf("message = %q", apiErr.Message)
		}
	})

	t.Run("in-band string error on 200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"error": "quota exceeded"}`))
		}))
		defer server.Close()

		client := NewCompletionsClient(CompletionsConfig{BaseURL: server.URL})
		_, err := client.Analyze(context.Background(), testImage, "q")
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("error = %v, want *APIError", err)
		}
		if apiErr.Message != "quota exceeded" || apiErr.Code != nil {
			t.Errorf("APIError = %+v", apiErr)
		}
		if err.Error() != "model API error: quota exceeded" {
			t.Errorf("Error() = %q", err.Error())
		}
	})

	t.Run("non-2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewCompletionsClient(CompletionsConfig{BaseURL: server.URL})
		_, err := client.Analyze(context.Background(), testImage, "q")
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("error = %v, want *StatusError", err)
		}
		if statusErr.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d", statusErr.StatusCode)
		}
	})

	t.Run("undecodable body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>not json</html>"))
		}))
		defer server.Close()

		client := NewCompletionsClient(CompletionsConfig{BaseURL: server.URL})
		if _, err := client.Analyze(context.Background(), testImage, "q"); err == nil {
			t.Error("expected error for undecodable body")
		}
	})

	t.Run("single attempt per call", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewCompletionsClient(CompletionsConfig{BaseURL: server.URL})
		client.Analyze(context.Background(), testImage, "q")
		if got := hits.Load(); got != 1 {
			t.Errorf("server hits = %d, want 1", got)
		}
	})

	t.Run("empty image", func(t *testing.T) {
		client := NewCompletionsClient(CompletionsConfig{BaseURL: "http://unused"})
		if _, err := client.Analyze(context.Background(), nil, "q"); !errors.Is(err, ErrEmptyImage) {
			t.Errorf("error = %v, want ErrEmptyImage", err)
		}
	})
}

func TestRawResponse_FirstText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string content", `{"choices":[{"message":{"content":"hello"}}]}`, "hello"},
		{"skips empty candidates", `{"choices":[{"message":{"content":"  "}},{"message":{"content":"second"}}]}`, "second"},
		{"content parts", `{"choices":[{"message":{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}}]}`, "ab"},
		{"null content", `{"choices":[{"message":{"content":null}}]}`, ""},
		{"no choices", `{"choices":[]}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r RawResponse
			if err := json.Unmarshal([]byte(tt.body), &r); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := r.FirstText(); got != tt.want {
				t.Errorf("FirstText() = %q, want %q", got, tt.want)
			}
		})
	}

	var nilResp *RawResponse
	if nilResp.FirstText() != "" {
		t.Error("nil response should have no text")
	}
}
