// Package extract recovers a structured record from free-form model output.
//
// Recovery stops at the first success, in this order:
//
//  1. the whole text as strict JSON;
//  2. a fenced block tagged json (case-insensitive), strict then repaired;
//  3. brace-delimited substrings of at least MinCandidateLen characters,
//     first with a pattern allowing one level of nested braces, then with a
//     permissive non-greedy pattern, each strict then repaired.
//
// Finding nothing is a normal outcome; callers fall back to the raw text.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"
)

// MinCandidateLen filters short brace fragments out of the scan. It counts
// characters, not bytes.
const MinCandidateLen = 50

// Record is a recovered mapping of report fields.
type Record map[string]any

// Method names the step that produced a record.
type Method string

const (
	MethodNone         Method = ""
	MethodWhole        Method = "whole"
	MethodFenced       Method = "fenced"
	MethodFencedRepair Method = "fenced_repaired"
	MethodNested       Method = "nested_braces"
	MethodNestedRepair Method = "nested_braces_repaired"
	MethodLoose        Method = "loose_braces"
	MethodLooseRepair  Method = "loose_braces_repaired"
)

var (
	fencedJSON   = regexp.MustCompile("(?is)```json[ \\t]*\\r?\\n?(.*?)```")
	nestedBraces = regexp.MustCompile(`\{(?:[^{}]|\{[^{}]*\})*\}`)
	looseBraces  = regexp.MustCompile(`(?s)\{.*?\}`)
)

// Extract returns the recovered record and true, or nil and false when
// nothing could be recovered.
func Extract(text string) (Record, bool) {
	rec, method := ExtractWithMethod(text)
	return rec, method != MethodNone
}

// ExtractWithMethod is Extract that also reports which step succeeded.
func ExtractWithMethod(text string) (Record, Method) {
	if rec, ok := parseStrict(text); ok {
		return rec, MethodWhole
	}

	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		if rec, ok := parseStrict(inner); ok {
			return rec, MethodFenced
		}
		if rec, ok := parseRepaired(inner); ok {
			return rec, MethodFencedRepair
		}
	}

	scans := []struct {
		re     *regexp.Regexp
		strict Method
		repair Method
	}{
		{nestedBraces, MethodNested, MethodNestedRepair},
		{looseBraces, MethodLoose, MethodLooseRepair},
	}
	for _, scan := range scans {
		for _, candidate := range scan.re.FindAllString(text, -1) {
			if utf8.RuneCountInString(candidate) < MinCandidateLen {
				continue
			}
			if rec, ok := parseStrict(candidate); ok {
				return rec, scan.strict
			}
			if rec, ok := parseRepaired(candidate); ok {
				return rec, scan.repair
			}
		}
	}

	return nil, MethodNone
}

// parseStrict accepts only a JSON object.
func parseStrict(s string) (Record, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal([]byte(s), &rec); err != nil || rec == nil {
		return nil, false
	}
	return rec, true
}

// parseRepaired fixes common syntax damage (single quotes, trailing commas,
// missing closers, comments) and then parses strictly.
func parseRepaired(s string) (rec Record, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			rec, ok = nil, false
		}
	}()
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, false
	}
	return parseStrict(repaired)
}
