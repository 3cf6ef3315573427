package compliance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/stdcheck/internal/knowledge"
	"github.com/jackzampolin/stdcheck/internal/llmcall"
	"github.com/jackzampolin/stdcheck/internal/retry"
	"github.com/jackzampolin/stdcheck/internal/storage"
)

type instantTimer struct{}

func (instantTimer) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

type query struct {
	question string
	param    knowledge.QueryParam
}

// scriptedEngine fails the first failN queries, then answers.
type scriptedEngine struct {
	mu      sync.Mutex
	failN   int
	answer  string
	queries []query
}

func (e *scriptedEngine) Query(ctx context.Context, question string, param knowledge.QueryParam) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, query{question, param})
	if len(e.queries) <= e.failN {
		return "", errors.New("engine busy")
	}
	return e.answer, nil
}

func (e *scriptedEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queries)
}

// engineSource fails setup failSetups times before handing out engine.
type engineSource struct {
	engine     knowledge.Engine
	failSetups int
	setups     int
}

func (s *engineSource) Engine(ctx context.Context) (knowledge.Engine, error) {
	s.setups++
	if s.setups <= s.failSetups {
		return nil, errors.New("knowledge engine setup failed: connection refused")
	}
	return s.engine, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newChecker(t *testing.T, src EngineSource, cfg Config) *Checker {
	t.Helper()
	cfg.Engines = src
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.Policy{MaxAttempts: 3, Delay: time.Second, Backoff: 2}
	}
	cfg.Logger = quietLogger()
	cfg.Timer = instantTimer{}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestCheck_QuestionAndParams(t *testing.T) {
	engine := &scriptedEngine{answer: "该报告符合国家标准。"}
	c := newChecker(t, &engineSource{engine: engine}, Config{})

	verdict, err := c.Check(context.Background(), `{"抗拉强度": "585 MPa"}`)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if verdict != "该报告符合国家标准。" {
		t.Errorf("verdict = %q, want the engine's answer unchanged", verdict)
	}

	if engine.count() != 1 {
		t.Fatalf("queries = %d, want 1", engine.count())
	}
	q := engine.queries[0]
	if !strings.HasPrefix(q.question, DefaultQuestionPrefix) {
		t.Errorf("question missing prefix: %q", q.question)
	}
	if !strings.HasSuffix(q.question, `{"抗拉强度": "585 MPa"}`) {
		t.Errorf("question missing report info: %q", q.question)
	}
	if q.param.Mode != knowledge.ModeHybrid || q.param.OnlyNeedContext {
		t.Errorf("param = %+v, want hybrid without context-only", q.param)
	}
}

func TestCheck_CustomPrefix(t *testing.T) {
	engine := &scriptedEngine{answer: "compliant"}
	c := newChecker(t, &engineSource{engine: engine}, Config{QuestionPrefix: "Does this meet GB/T 228.1?\n"})

	if _, err := c.Check(context.Background(), "report"); err != nil {
		t.Fatal(err)
	}
	if got := engine.queries[0].question; got != "Does this meet GB/T 228.1?\nreport" {
		t.Errorf("question = %q", got)
	}
}

func TestCheck_EmptyReport(t *testing.T) {
	engine := &scriptedEngine{answer: "x"}
	c := newChecker(t, &engineSource{engine: engine}, Config{})

	for _, info := range []string{"", "   ", "\n\t"} {
		if _, err := c.Check(context.Background(), info); !errors.Is(err, ErrEmptyReport) {
			t.Errorf("Check(%q) error = %v, want ErrEmptyReport", info, err)
		}
	}
	if engine.count() != 0 {
		t.Errorf("engine queried %d times for empty input", engine.count())
	}
}

func TestCheck_RetriesQueryFailures(t *testing.T) {
	engine := &scriptedEngine{failN: 2, answer: "ok"}
	c := newChecker(t, &engineSource{engine: engine}, Config{})

	verdict, err := c.Check(context.Background(), "report")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if verdict != "ok" || engine.count() != 3 {
		t.Errorf("verdict = %q after %d queries", verdict, engine.count())
	}
}

func TestCheck_RetriesSetupFailures(t *testing.T) {
	engine := &scriptedEngine{answer: "ok"}
	src := &engineSource{engine: engine, failSetups: 1}
	c := newChecker(t, src, Config{})

	if _, err := c.Check(context.Background(), "report"); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if src.setups != 2 || engine.count() != 1 {
		t.Errorf("setups = %d, queries = %d; want 2 and 1", src.setups, engine.count())
	}
}

func TestCheck_ExhaustionReturnsCallError(t *testing.T) {
	engine := &scriptedEngine{failN: 100}
	c := newChecker(t, &engineSource{engine: engine}, Config{})

	_, err := c.Check(context.Background(), "report")
	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("error = %v, want *CallError", err)
	}
	if callErr.Attempts != 3 || callErr.Op != llmcall.OpKnowledgeQuery {
		t.Errorf("CallError = %+v", callErr)
	}
	if !strings.Contains(err.Error(), "engine busy") {
		t.Errorf("error should carry the last failure: %v", err)
	}
	if engine.count() != 3 {
		t.Errorf("queries = %d, want 3", engine.count())
	}
}

func TestCheck_SetPolicy(t *testing.T) {
	engine := &scriptedEngine{failN: 100}
	c := newChecker(t, &engineSource{engine: engine}, Config{})
	c.SetPolicy(retry.Policy{MaxAttempts: 1})

	_, err := c.Check(context.Background(), "report")
	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.Attempts != 1 {
		t.Fatalf("error = %v, want one attempt", err)
	}
	if c.Policy().MaxAttempts != 1 {
		t.Errorf("Policy() = %+v", c.Policy())
	}
}

func TestCheck_CancelledContext(t *testing.T) {
	engine := &scriptedEngine{answer: "ok"}
	c := newChecker(t, &engineSource{engine: engine}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Check(ctx, "report"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if engine.count() != 0 {
		t.Errorf("engine queried after cancellation")
	}
}

func TestCheck_Cache(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		engine := &scriptedEngine{answer: "ok"}
		c := newChecker(t, &engineSource{engine: engine}, Config{CacheTTL: time.Minute})

		for i := 0; i < 3; i++ {
			if _, err := c.Check(context.Background(), "same report"); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := c.Check(context.Background(), "other report"); err != nil {
			t.Fatal(err)
		}
		if engine.count() != 2 {
			t.Errorf("queries = %d, want 2", engine.count())
		}
		if c.CachedVerdicts() != 2 {
			t.Errorf("CachedVerdicts() = %d, want 2", c.CachedVerdicts())
		}

		c.ClearCache()
		c.Check(context.Background(), "same report")
		if engine.count() != 3 {
			t.Errorf("queries after clear = %d, want 3", engine.count())
		}
	})

	t.Run("disabled", func(t *testing.T) {
		engine := &scriptedEngine{answer: "ok"}
		c := newChecker(t, &engineSource{engine: engine}, Config{})

		c.Check(context.Background(), "same report")
		c.Check(context.Background(), "same report")
		if engine.count() != 2 {
			t.Errorf("queries = %d, want 2", engine.count())
		}
	})

	t.Run("failures are not cached", func(t *testing.T) {
		engine := &scriptedEngine{failN: 3, answer: "ok"}
		c := newChecker(t, &engineSource{engine: engine}, Config{CacheTTL: time.Minute})

		if _, err := c.Check(context.Background(), "report"); err == nil {
			t.Fatal("expected first check to fail")
		}
		if v, err := c.Check(context.Background(), "report"); err != nil || v != "ok" {
			t.Errorf("second check = %q, %v", v, err)
		}
	})
}

func TestCheck_RecordsAttempts(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, ":memory:", quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	store, err := llmcall.NewStore(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	engine := &scriptedEngine{failN: 1, answer: "ok"}
	c := newChecker(t, &engineSource{engine: engine}, Config{Recorder: llmcall.NewRecorder(store, quietLogger())})

	if _, err := c.Check(llmcall.WithReportID(ctx, "rep-1"), "report"); err != nil {
		t.Fatal(err)
	}

	calls, err := store.List(ctx, llmcall.QueryFilter{ReportID: "rep-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("recorded %d calls, want 2", len(calls))
	}
	if calls[0].Success || calls[0].Attempt != 1 || !calls[1].Success || calls[1].Attempt != 2 {
		t.Errorf("calls = %+v", calls)
	}
	for _, call := range calls {
		if call.Operation != llmcall.OpKnowledgeQuery || call.Provider != ProviderName {
			t.Errorf("call = %+v", call)
		}
	}
}

func TestNew_RequiresEngineSource(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without engine source")
	}
}

func TestCheck_EmptyAnswerIsNotRetried(t *testing.T) {
	engine := &scriptedEngine{answer: ""}
	c := newChecker(t, &engineSource{engine: engine}, Config{})

	verdict, err := c.Check(context.Background(), "抗拉强度 585 MPa")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if verdict != "" {
		t.Errorf("verdict = %q, want empty", verdict)
	}
	if engine.count() != 1 {
		t.Errorf("queries = %d, want 1", engine.count())
	}
}
