// Package reports keeps the history of analyzed reports and drives the
// extraction and compliance steps for each one.
package reports

import (
	"errors"
	"time"

	"github.com/jackzampolin/stdcheck/internal/extract"
)

// Status is the lifecycle state of a report.
type Status string

const (
	StatusAnalyzing   Status = "analyzing"
	StatusExtracted   Status = "extracted"
	StatusFailed      Status = "failed"
	StatusChecked     Status = "checked"
	StatusCheckFailed Status = "check_failed"
)

// User-facing status messages.
const (
	MsgUploadRequired   = "please upload a PDF file"
	MsgExtracted        = "PDF information extracted"
	MsgAnalysisFailed   = "PDF analysis failed: "
	MsgProcessingError  = "error processing PDF: "
	MsgNoResult         = "no PDF analysis result was returned"
	MsgAnalyzeFirst     = "please upload and analyze a PDF report first"
	MsgComplianceFailed = "compliance analysis failed: "
	MsgComplianceDone   = "compliance analysis complete"
)

var (
	// ErrNotFound is returned when a report does not exist.
	ErrNotFound = errors.New("report not found")
	// ErrNotPDF is returned for uploads that are not PDF documents.
	ErrNotPDF = errors.New(MsgUploadRequired)
)

// PageOutcome summarizes one page of the analysis.
type PageOutcome struct {
	Page     int    `json:"page"`
	OK       bool   `json:"ok"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Report is one uploaded document and everything derived from it.
type Report struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	SHA256      string `json:"sha256"`
	SizeBytes   int64  `json:"size_bytes"`
	UploadPath  string `json:"upload_path,omitempty"`
	Instruction string `json:"instruction,omitempty"`

	// Extraction
	Pages         int            `json:"pages"`
	PageOutcomes  []PageOutcome  `json:"page_outcomes,omitempty"`
	SelectedPage  int            `json:"selected_page,omitempty"`
	RawText       string         `json:"raw_text,omitempty"`
	Record        extract.Record `json:"record,omitempty"`
	ExtractMethod string         `json:"extract_method,omitempty"`
	SchemaIssues  []string       `json:"schema_issues,omitempty"`

	// ReportInfo is the text submitted for the compliance check. It starts as
	// the model's raw answer and may be edited.
	ReportInfo string `json:"report_info,omitempty"`

	// Compliance
	Verdict   string     `json:"verdict,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`

	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRecord reports whether structured data was recovered.
func (r *Report) HasRecord() bool {
	return len(r.Record) > 0
}
