package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// FakeRasterizer renders page N as the bytes "page-N" without poppler.
type FakeRasterizer struct {
	Pages int
}

// PageCount returns the configured page count.
func (f *FakeRasterizer) PageCount(_ context.Context, _ string) (int, error) {
	return f.Pages, nil
}

// RenderPage returns a stand-in image for page.
func (f *FakeRasterizer) RenderPage(_ context.Context, _ string, page int) ([]byte, error) {
	if page < 1 || page > f.Pages {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	return []byte(fmt.Sprintf("page-%d", page)), nil
}

// LightRAG is an httptest stand-in for a LightRAG server. It answers
// /health and /query; Answer is returned for every query.
type LightRAG struct {
	*httptest.Server

	mu      sync.Mutex
	answer  string
	status  int
	queries []string
}

// NewLightRAG starts a fake LightRAG server closed with the test.
func NewLightRAG(t *testing.T, answer string) *LightRAG {
	t.Helper()
	l := &LightRAG{answer: answer, status: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		l.mu.Lock()
		l.queries = append(l.queries, req.Query)
		status, answer := l.status, l.answer
		l.mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"response": answer})
	})

	l.Server = httptest.NewServer(mux)
	t.Cleanup(l.Close)
	return l
}

// SetStatus makes /query fail with status until reset to 200.
func (l *LightRAG) SetStatus(status int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = status
}

// Queries returns the questions received so far.
func (l *LightRAG) Queries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.queries...)
}
