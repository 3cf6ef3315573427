// Package render turns extracted report records and compliance verdicts into
// HTML fragments. Every function is pure.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"html/template"
	"sort"
	"strconv"
	"strings"
)

// maxDepth bounds nested tables; deeper values are shown as JSON.
const maxDepth = 6

// ErrEmptyRecord is returned for a record with no fields.
var ErrEmptyRecord = errors.New("record has no fields")

type field struct {
	key   string
	value any
}

// Record renders a structured report as sectioned key/value tables. Fields
// are placed by the synonym table; unknown keys go to the "other" section.
// Nested mappings become nested tables and sequences become lists.
func Record(record map[string]any) (template.HTML, error) {
	if len(record) == 0 {
		return "", ErrEmptyRecord
	}

	grouped := make(map[SectionID][]field)
	for _, key := range sortedKeys(record) {
		value := record[key]
		if id, ok := containerSection(key); ok {
			if inner, isMap := value.(map[string]any); isMap {
				for _, k := range sortedKeys(inner) {
					grouped[id] = append(grouped[id], field{k, inner[k]})
				}
				continue
			}
		}
		id := SectionFor(key)
		grouped[id] = append(grouped[id], field{key, value})
	}

	var sb strings.Builder
	sb.WriteString(`<div class="report">` + "\n")
	for _, sec := range Sections {
		fields := grouped[sec.ID]
		if len(fields) == 0 {
			continue
		}
		fmt.Fprintf(&sb, `<section class="report-section" data-section="%s">`+"\n", sec.ID)
		fmt.Fprintf(&sb, "<h3>%s</h3>\n", html.EscapeString(sec.Title))
		writeTable(&sb, fields, 0)
		sb.WriteString("</section>\n")
	}
	sb.WriteString("</div>\n")

	return template.HTML(sb.String()), nil
}

// RawText renders unstructured model output as preformatted text.
func RawText(text string) template.HTML {
	return template.HTML(`<pre class="raw-text">` + html.EscapeString(text) + "</pre>\n")
}

func writeTable(sb *strings.Builder, fields []field, depth int) {
	sb.WriteString(`<table class="kv"><tbody>` + "\n")
	for _, f := range fields {
		sb.WriteString("<tr><th>")
		sb.WriteString(html.EscapeString(f.key))
		sb.WriteString("</th><td>")
		writeValue(sb, f.value, depth+1)
		sb.WriteString("</td></tr>\n")
	}
	sb.WriteString("</tbody></table>\n")
}

func writeValue(sb *strings.Builder, v any, depth int) {
	if depth > maxDepth {
		data, _ := json.Marshal(v)
		sb.WriteString("<code>" + html.EscapeString(string(data)) + "</code>")
		return
	}

	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			sb.WriteString(`<span class="empty">{}</span>`)
			return
		}
		fields := make([]field, 0, len(val))
		for _, k := range sortedKeys(val) {
			fields = append(fields, field{k, val[k]})
		}
		writeTable(sb, fields, depth)
	case []any:
		if len(val) == 0 {
			sb.WriteString(`<span class="empty">[]</span>`)
			return
		}
		sb.WriteString("<ul>")
		for _, item := range val {
			sb.WriteString("<li>")
			writeValue(sb, item, depth+1)
			sb.WriteString("</li>")
		}
		sb.WriteString("</ul>")
	default:
		sb.WriteString(html.EscapeString(scalar(val)))
	}
}

func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
