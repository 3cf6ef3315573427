package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockVisionClient is a VisionClient for testing and offline runs.
type MockVisionClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string
	ModelName    string

	// Script, when set, decides each call's outcome. call is 1-based.
	Script func(call int, image []byte, instruction string) (*RawResponse, error)

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	instructions []string
}

// NewMockVisionClient creates a new mock client with sensible defaults.
func NewMockVisionClient() *MockVisionClient {
	return &MockVisionClient{
		ResponseText: `{"product": "mock"}`,
		ModelName:    "mock-vision",
	}
}

// Name returns the client identifier.
func (c *MockVisionClient) Name() string {
	return MockClientName
}

// Model returns the mock model name.
func (c *MockVisionClient) Model() string {
	return c.ModelName
}

// Analyze returns a canned or scripted response.
func (c *MockVisionClient) Analyze(ctx context.Context, image []byte, instruction string) (*RawResponse, error) {
	count := int(c.requestCount.Add(1))

	c.mu.Lock()
	c.instructions = append(c.instructions, instruction)
	c.mu.Unlock()

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.Script != nil {
		return c.Script(count, image, instruction)
	}
	if c.ShouldFail {
		return nil, fmt.Errorf("mock client configured to fail")
	}
	if c.FailAfter > 0 && count > c.FailAfter {
		return nil, fmt.Errorf("mock client failed after %d requests", c.FailAfter)
	}
	return TextResponse(c.ResponseText), nil
}

// RequestCount returns the number of requests made.
func (c *MockVisionClient) RequestCount() int {
	return int(c.requestCount.Load())
}

// Instructions returns the instructions received so far.
func (c *MockVisionClient) Instructions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.instructions...)
}

// Reset clears the request counter and history.
func (c *MockVisionClient) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.instructions = nil
	c.mu.Unlock()
}

// TextResponse builds a single-choice response holding text.
func TextResponse(text string) *RawResponse {
	return &RawResponse{
		Model: "mock-vision",
		Choices: []Choice{{
			Message:      ChoiceMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
	}
}

var _ VisionClient = (*MockVisionClient)(nil)
