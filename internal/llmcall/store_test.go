package llmcall

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackzampolin/stdcheck/internal/providers"
	"github.com/jackzampolin/stdcheck/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, ":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(ctx, db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestStore_InsertAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rec := NewRecorder(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	base := RecordOptions{ReportID: "r1", Page: 2, Provider: "http", Model: "m", Latency: 150 * time.Millisecond}

	first := base
	first.Attempt = 1
	rec.RecordCall(ctx, FromVisionResponse(nil, errors.New("status 502"), first))

	second := base
	second.Attempt = 2
	resp := providers.TextResponse("page text")
	resp.Usage = providers.Usage{PromptTokens: 10, CompletionTokens: 3}
	rec.RecordCall(ctx, FromVisionResponse(resp, nil, second))

	rec.Record(ctx, RecordOptions{ReportID: "r2", Operation: OpKnowledgeQuery, Attempt: 1}, "verdict", nil)

	calls, err := store.List(ctx, QueryFilter{ReportID: "r1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}

	if calls[0].Success || calls[0].Error != "status 502" || calls[0].Attempt != 1 {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[0].Operation != OpVisionAnalyze {
		t.Errorf("operation = %q, want %q", calls[0].Operation, OpVisionAnalyze)
	}
	if !calls[1].Success || calls[1].Response != "page text" || calls[1].InputTokens != 10 {
		t.Errorf("second call = %+v", calls[1])
	}
	if calls[1].LatencyMs != 150 || calls[1].Page != 2 {
		t.Errorf("second call timing/page = %+v", calls[1])
	}

	failed := false
	onlyFailed, err := store.List(ctx, QueryFilter{Success: &failed})
	if err != nil {
		t.Fatalf("List(failed) error = %v", err)
	}
	if len(onlyFailed) != 1 {
		t.Errorf("failed calls = %d, want 1", len(onlyFailed))
	}

	got, err := store.Get(ctx, calls[1].ID)
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp did not round-trip")
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), RecordOptions{}, "", nil)
	NewRecorder(nil, nil).RecordCall(context.Background(), &Call{})
}
