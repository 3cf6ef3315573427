package analyzer

import (
	"fmt"
	"strings"
)

// maxListedFailures caps how many page errors appear in a summary.
const maxListedFailures = 3

// PageFailure is one unusable page in a NoUsablePageError.
type PageFailure struct {
	Page int    `json:"page"`
	Err  string `json:"error"`
}

// NoUsablePageError reports that no page produced usable text.
type NoUsablePageError struct {
	Pages    int
	Failures []PageFailure
}

func (e *NoUsablePageError) Error() string {
	if e.Pages == 0 {
		return "no usable page: document has no pages"
	}

	shown := e.Failures
	if len(shown) > maxListedFailures {
		shown = shown[:maxListedFailures]
	}
	parts := make([]string, 0, len(shown))
	for _, f := range shown {
		parts = append(parts, fmt.Sprintf("page %d: %s", f.Page, f.Err))
	}

	msg := fmt.Sprintf("no usable page in %d page(s): %s", e.Pages, strings.Join(parts, "; "))
	if rest := len(e.Failures) - len(shown); rest > 0 {
		msg += fmt.Sprintf(" (and %d more)", rest)
	}
	return msg
}

// Select returns the first page, by ascending page number, whose response has
// non-empty text. No other page is consulted once one is found.
func Select(results []PageResult) (*PageResult, error) {
	noUsable := &NoUsablePageError{Pages: len(results)}
	for i := range results {
		r := results[i]
		if r.Text() != "" {
			return &r, nil
		}
		msg := r.Err
		if msg == "" {
			msg = "response contained no text"
		}
		noUsable.Failures = append(noUsable.Failures, PageFailure{Page: r.Page, Err: msg})
	}
	return nil, noUsable
}
