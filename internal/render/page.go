package render

import (
	"bytes"
	"html/template"
)

// PageData is the content of a standalone report page.
type PageData struct {
	Title   string
	Status  string
	Message string
	Body    template.HTML // Record tables or raw text
	Verdict template.HTML // Empty when no check has run
	Outcome Outcome
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="zh">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 960px; margin: 2em auto; color: #222; }
table.kv { border-collapse: collapse; width: 100%; margin-bottom: 1em; }
table.kv th, table.kv td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; vertical-align: top; }
table.kv th { background: #f5f5f5; width: 30%; }
pre.raw-text { white-space: pre-wrap; background: #f8f8f8; padding: 1em; }
.status { color: #555; }
.outcome-compliant { color: #18794e; }
.outcome-non_compliant { color: #c62828; }
.outcome-partial { color: #b26a00; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="status">{{.Status}}{{if .Message}}: {{.Message}}{{end}}</p>
<h2>报告信息 / Report information</h2>
{{.Body}}
{{if .Verdict}}<h2 class="outcome-{{.Outcome}}">合规性分析 / Compliance ({{.Outcome}})</h2>
{{.Verdict}}{{end}}
</body>
</html>
`))

// Page renders a complete HTML document.
func Page(data PageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
