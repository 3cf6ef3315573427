package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackzampolin/stdcheck/internal/extract"
)

func TestStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	r := &Report{
		Filename:     "tensile.pdf",
		SHA256:       "abc",
		SizeBytes:    1024,
		Pages:        2,
		PageOutcomes: []PageOutcome{{Page: 1, Attempts: 3, Error: "status 502"}, {Page: 2, OK: true, Attempts: 1}},
		SelectedPage: 2,
		RawText:      "raw",
		Record:       extract.Record{"抗拉强度": "585 MPa", "nested": map[string]any{"a": float64(1)}},
		SchemaIssues: []string{"/x: bad"},
		Status:       StatusExtracted,
		Message:      MsgExtracted,
	}
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if r.ID == "" || r.CreatedAt.IsZero() {
		t.Fatalf("Create() did not assign id/timestamps: %+v", r)
	}

	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Filename != "tensile.pdf" || got.Pages != 2 || got.SelectedPage != 2 {
		t.Errorf("Get() = %+v", got)
	}
	if len(got.PageOutcomes) != 2 || got.PageOutcomes[0].Error != "status 502" || !got.PageOutcomes[1].OK {
		t.Errorf("page outcomes = %+v", got.PageOutcomes)
	}
	if got.Record["抗拉强度"] != "585 MPa" {
		t.Errorf("record = %v", got.Record)
	}
	if nested, ok := got.Record["nested"].(map[string]any); !ok || nested["a"] != float64(1) {
		t.Errorf("nested record = %v", got.Record["nested"])
	}
	if len(got.SchemaIssues) != 1 || got.CheckedAt != nil {
		t.Errorf("issues = %v, checked_at = %v", got.SchemaIssues, got.CheckedAt)
	}
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, r.CreatedAt)
	}

	checked := time.Now().UTC()
	got.Verdict = "合格"
	got.Outcome = "compliant"
	got.CheckedAt = &checked
	got.Status = StatusChecked
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	again, _ := store.Get(ctx, r.ID)
	if again.Status != StatusChecked || again.Verdict != "合格" || again.CheckedAt == nil || !again.CheckedAt.Equal(checked) {
		t.Errorf("after update = %+v", again)
	}
	if !again.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("created_at changed on update")
	}
}

func TestStore_NoRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	r := &Report{Filename: "a.pdf", SHA256: "x", Status: StatusFailed}
	if err := store.Create(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.HasRecord() || got.Record != nil {
		t.Errorf("record = %v, want nil", got.Record)
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v", err)
	}
	if err := store.Update(ctx, &Report{ID: "missing", Status: StatusFailed}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v", err)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, status := range []Status{StatusExtracted, StatusFailed, StatusExtracted} {
		r := &Report{
			Filename:  "r.pdf",
			SHA256:    "same",
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("List() = %d reports, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Errorf("reports not newest first at %d", i)
		}
	}

	extracted, _ := store.List(ctx, ListFilter{Status: StatusExtracted})
	if len(extracted) != 2 {
		t.Errorf("status filter = %d, want 2", len(extracted))
	}
	page, _ := store.List(ctx, ListFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || !page[0].CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("pagination = %+v", page)
	}
}
