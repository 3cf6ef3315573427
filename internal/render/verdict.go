package render

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Outcome is a coarse reading of a verdict.
type Outcome string

const (
	OutcomeCompliant    Outcome = "compliant"
	OutcomeNonCompliant Outcome = "non_compliant"
	OutcomePartial      Outcome = "partial"
	OutcomeUnknown      Outcome = "unknown"
)

var (
	partialTerms = []string{
		"部分符合", "基本符合", "部分指标", "部分合格",
		"partially compliant", "partially meets", "partial compliance",
	}
	negativeTerms = []string{
		"不符合", "不合格", "未达到", "没有达到", "不满足", "未满足", "低于标准",
		"does not comply", "do not comply", "non-compliant", "noncompliant", "not compliant",
		"does not meet", "do not meet", "fails to meet", "failed to meet", "not in compliance",
		"does not conform",
	}
	positiveTerms = []string{
		"符合", "合格", "满足", "达到",
		"complies", "comply", "compliant", "meets", "conforms", "in compliance",
	}
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// Verdict renders verdict prose as HTML and classifies it. The prose is
// markdown as produced by the knowledge engine; raw HTML in it is dropped.
func Verdict(prose string) (template.HTML, Outcome) {
	var buf bytes.Buffer
	buf.WriteString(`<div class="verdict">` + "\n")
	if err := markdown.Convert([]byte(prose), &buf); err != nil {
		buf.Reset()
		buf.WriteString(`<div class="verdict">` + "\n")
		buf.WriteString(string(RawText(prose)))
	}
	buf.WriteString("</div>\n")
	return template.HTML(buf.String()), Classify(prose)
}

// Classify reads the outcome from keyword tables. Negative phrases are
// removed before looking for positive ones, so "不符合" alone is not read
// as compliance; finding both kinds means partial compliance.
func Classify(prose string) Outcome {
	text := strings.ToLower(prose)
	if strings.TrimSpace(text) == "" {
		return OutcomeUnknown
	}
	if containsAny(text, partialTerms) {
		return OutcomePartial
	}

	negative := containsAny(text, negativeTerms)
	rest := text
	for _, term := range negativeTerms {
		rest = strings.ReplaceAll(rest, term, " ")
	}
	positive := containsAny(rest, positiveTerms)

	switch {
	case negative && positive:
		return OutcomePartial
	case negative:
		return OutcomeNonCompliant
	case positive:
		return OutcomeCompliant
	default:
		return OutcomeUnknown
	}
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
