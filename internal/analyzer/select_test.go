package analyzer

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackzampolin/stdcheck/internal/providers"
)

func failures(n int) []PageResult {
	out := make([]PageResult, n)
	for i := range out {
		out[i] = PageResult{Page: i + 1, Err: fmt.Sprintf("error %d", i+1), Attempts: 3}
	}
	return out
}

func TestSelect_AllFailedSummary(t *testing.T) {
	tests := []struct {
		pages     int
		wantShown int
		wantMore  string
	}{
		{1, 1, ""},
		{3, 3, ""},
		{4, 3, "(and 1 more)"},
		{10, 3, "(and 7 more)"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d pages", tt.pages), func(t *testing.T) {
			results := failures(tt.pages)
			_, err := Select(results)

			var noUsable *NoUsablePageError
			if !errors.As(err, &noUsable) {
				t.Fatalf("error = %v, want *NoUsablePageError", err)
			}
			if len(noUsable.Failures) != tt.pages {
				t.Errorf("Failures = %d, want %d", len(noUsable.Failures), tt.pages)
			}

			msg := err.Error()
			if got := strings.Count(msg, ": error "); got != tt.wantShown {
				t.Errorf("listed %d pages, want %d: %s", got, tt.wantShown, msg)
			}
			if tt.wantMore == "" && strings.Contains(msg, "more)") {
				t.Errorf("unexpected remainder in %q", msg)
			}
			if tt.wantMore != "" && !strings.HasSuffix(msg, tt.wantMore) {
				t.Errorf("message %q should end with %q", msg, tt.wantMore)
			}

			// Same input, same message.
			_, again := Select(failures(tt.pages))
			if again.Error() != msg {
				t.Errorf("summary not deterministic: %q vs %q", again.Error(), msg)
			}
		})
	}
}

func TestSelect_MessageFormat(t *testing.T) {
	_, err := Select(failures(5))
	want := "no usable page in 5 page(s): page 1: error 1; page 2: error 2; page 3: error 3 (and 2 more)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSelect_SkipsEmptyText(t *testing.T) {
	results := []PageResult{
		{Page: 1, Response: providers.TextResponse("   "), Attempts: 1},
		{Page: 2, Response: &providers.RawResponse{}, Attempts: 1},
		{Page: 3, Response: providers.TextResponse("real"), Attempts: 1},
	}
	best, err := Select(results)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if best.Page != 3 {
		t.Errorf("Select() page = %d, want 3", best.Page)
	}

	_, err = Select(results[:2])
	if err == nil || !strings.Contains(err.Error(), "page 1: response contained no text") {
		t.Errorf("error = %v", err)
	}
}

func TestSelect_LaterPagesIgnored(t *testing.T) {
	results := []PageResult{
		{Page: 1, Err: "boom"},
		{Page: 2, Response: providers.TextResponse("second")},
		{Page: 3, Response: providers.TextResponse("third")},
	}
	best, err := Select(results)
	if err != nil {
		t.Fatal(err)
	}
	if best.Text() != "second" {
		t.Errorf("Text() = %q, want second", best.Text())
	}
}
