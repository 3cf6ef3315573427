package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/jackzampolin/stdcheck/internal/analyzer"
	"github.com/jackzampolin/stdcheck/internal/compliance"
	"github.com/jackzampolin/stdcheck/internal/extract"
	"github.com/jackzampolin/stdcheck/internal/llmcall"
	"github.com/jackzampolin/stdcheck/internal/providers"
	"github.com/jackzampolin/stdcheck/internal/storage"
	"github.com/jackzampolin/stdcheck/internal/testutil"
)

type fakeAnalyzer struct {
	results   []analyzer.PageResult
	err       error
	gotPath   string
	gotReport string
	pathSeen  bool
}

func (f *fakeAnalyzer) AnalyzePDF(ctx context.Context, path, instruction string) ([]analyzer.PageResult, error) {
	f.gotPath = path
	f.gotReport = llmcall.ReportIDFrom(ctx)
	_, err := os.Stat(path)
	f.pathSeen = err == nil
	return f.results, f.err
}

type fakeChecker struct {
	verdict string
	err     error
	infos   []string
}

func (f *fakeChecker) Check(ctx context.Context, info string) (string, error) {
	f.infos = append(f.infos, info)
	if strings.TrimSpace(info) == "" {
		return "", compliance.ErrEmptyReport
	}
	return f.verdict, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, ":memory:", quietLogger())
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

func newTestService(t *testing.T, an PDFAnalyzer, ch ComplianceChecker, uploadDir string) *Service {
	t.Helper()
	schema, err := extract.LoadSchema("")
	if err != nil {
		t.Fatal(err)
	}
	svc, err := NewService(ServiceConfig{
		Store:     newTestStore(t),
		Analyzer:  an,
		Checker:   ch,
		Schema:    schema,
		UploadDir: uploadDir,
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func success(page int, text string) analyzer.PageResult {
	return analyzer.PageResult{Page: page, Response: providers.TextResponse(text), Attempts: 1}
}

func failure(page int, msg string) analyzer.PageResult {
	return analyzer.PageResult{Page: page, Err: msg, Attempts: 3}
}

func TestAnalyze_ExtractsFromFirstUsablePage(t *testing.T) {
	answer := "```json\n{\"产品型号\": \"HRB400E\", \"抗拉强度\": \"585 MPa\"}\n```"
	an := &fakeAnalyzer{results: []analyzer.PageResult{
		failure(1, "status 502"),
		success(2, answer),
		success(3, "ignored"),
	}}
	uploads := t.TempDir()
	svc := newTestService(t, an, &fakeChecker{}, uploads)

	report, err := svc.Analyze(context.Background(), "/tmp/report.pdf", testutil.MinimalPDF(3), "")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if report.Status != StatusExtracted || report.Message != MsgExtracted {
		t.Errorf("status = %s, message = %q", report.Status, report.Message)
	}
	if report.Filename != "report.pdf" || len(report.SHA256) != 64 {
		t.Errorf("filename = %q, sha256 = %q", report.Filename, report.SHA256)
	}
	if report.SelectedPage != 2 || report.RawText != answer || report.ReportInfo != answer {
		t.Errorf("selected page %d, raw %q", report.SelectedPage, report.RawText)
	}
	if report.Record["产品型号"] != "HRB400E" || report.ExtractMethod != string(extract.MethodFenced) {
		t.Errorf("record = %v via %q", report.Record, report.ExtractMethod)
	}
	if len(report.SchemaIssues) != 0 {
		t.Errorf("schema issues = %v", report.SchemaIssues)
	}
	if len(report.PageOutcomes) != 3 || report.PageOutcomes[0].OK || !report.PageOutcomes[1].OK {
		t.Errorf("page outcomes = %+v", report.PageOutcomes)
	}

	if !an.pathSeen || !strings.HasPrefix(an.gotPath, uploads) || report.UploadPath != an.gotPath {
		t.Errorf("upload path %q (analyzer saw %q, exists=%v)", report.UploadPath, an.gotPath, an.pathSeen)
	}
	if an.gotReport != report.ID {
		t.Errorf("analyzer context report id = %q, want %q", an.gotReport, report.ID)
	}

	stored, err := svc.Store().Get(context.Background(), report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusExtracted || stored.Record["抗拉强度"] != "585 MPa" {
		t.Errorf("stored report = %+v", stored)
	}
}

func TestAnalyze_NoStructureKeepsRawText(t *testing.T) {
	an := &fakeAnalyzer{results: []analyzer.PageResult{success(1, "产品型号 HRB400E，抗拉强度 585 MPa")}}
	svc := newTestService(t, an, &fakeChecker{}, "")

	report, err := svc.Analyze(context.Background(), "r.pdf", testutil.MinimalPDF(1), "")
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != StatusExtracted || report.HasRecord() {
		t.Errorf("status = %s, record = %v", report.Status, report.Record)
	}
	if report.RawText == "" || report.ExtractMethod != "" {
		t.Errorf("raw = %q, method = %q", report.RawText, report.ExtractMethod)
	}
	if report.UploadPath != "" {
		t.Errorf("temporary upload should not be recorded: %q", report.UploadPath)
	}
	if an.pathSeen {
		if _, err := os.Stat(an.gotPath); !os.IsNotExist(err) {
			t.Errorf("temporary upload %q was not removed", an.gotPath)
		}
	}
}

func TestAnalyze_Failures(t *testing.T) {
	tests := []struct {
		name       string
		analyzer   *fakeAnalyzer
		wantPrefix string
	}{
		{
			name:       "unreadable document",
			analyzer:   &fakeAnalyzer{err: fmt.Errorf("%w: malformed xref", analyzer.ErrDocument)},
			wantPrefix: MsgProcessingError,
		},
		{
			name:       "no pages",
			analyzer:   &fakeAnalyzer{},
			wantPrefix: MsgNoResult,
		},
		{
			name: "every page failed",
			analyzer: &fakeAnalyzer{results: []analyzer.PageResult{
				failure(1, "status 502"), failure(2, "timeout"),
			}},
			wantPrefix: MsgAnalysisFailed + "no usable page in 2 page(s)",
		},
		{
			name:       "cancelled",
			analyzer:   &fakeAnalyzer{results: []analyzer.PageResult{failure(1, "x")}, err: context.Canceled},
			wantPrefix: MsgAnalysisFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.analyzer, &fakeChecker{}, "")
			report, err := svc.Analyze(context.Background(), "r.pdf", testutil.MinimalPDF(1), "")
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			if report.Status != StatusFailed {
				t.Errorf("status = %s, want failed", report.Status)
			}
			if !strings.HasPrefix(report.Message, tt.wantPrefix) {
				t.Errorf("message = %q, want prefix %q", report.Message, tt.wantPrefix)
			}
		})
	}
}

func TestAnalyze_RejectsNonPDF(t *testing.T) {
	svc := newTestService(t, &fakeAnalyzer{}, &fakeChecker{}, "")
	for _, data := range [][]byte{nil, []byte("hello world")} {
		if _, err := svc.Analyze(context.Background(), "x.txt", data, ""); !errors.Is(err, ErrNotPDF) {
			t.Errorf("Analyze(%q) error = %v, want ErrNotPDF", data, err)
		}
	}
	list, _ := svc.Store().List(context.Background(), ListFilter{})
	if len(list) != 0 {
		t.Errorf("rejected uploads were stored: %d", len(list))
	}
}

func TestCheck(t *testing.T) {
	an := &fakeAnalyzer{results: []analyzer.PageResult{success(1, `{"抗拉强度": "585 MPa", "note": "long enough text here"}`)}}

	t.Run("success", func(t *testing.T) {
		ch := &fakeChecker{verdict: "该报告各项指标均符合国家标准。"}
		svc := newTestService(t, an, ch, "")
		report, _ := svc.Analyze(context.Background(), "r.pdf", testutil.MinimalPDF(1), "")

		checked, err := svc.Check(context.Background(), report.ID)
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if checked.Status != StatusChecked || checked.Message != MsgComplianceDone {
			t.Errorf("status = %s, message = %q", checked.Status, checked.Message)
		}
		if checked.Verdict != ch.verdict || checked.Outcome != "compliant" || checked.CheckedAt == nil {
			t.Errorf("verdict = %q, outcome = %q", checked.Verdict, checked.Outcome)
		}
		if len(ch.infos) != 1 || ch.infos[0] != report.ReportInfo {
			t.Errorf("checker got %q", ch.infos)
		}
	})

	t.Run("engine failure", func(t *testing.T) {
		ch := &fakeChecker{err: &compliance.CallError{Op: "knowledge.query", Attempts: 3, Err: errors.New("engine busy")}}
		svc := newTestService(t, an, ch, "")
		report, _ := svc.Analyze(context.Background(), "r.pdf", testutil.MinimalPDF(1), "")

		checked, err := svc.Check(context.Background(), report.ID)
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if checked.Status != StatusCheckFailed || !strings.HasPrefix(checked.Message, MsgComplianceFailed) {
			t.Errorf("status = %s, message = %q", checked.Status, checked.Message)
		}
		if !strings.Contains(checked.Message, "engine busy") {
			t.Errorf("message should carry the cause: %q", checked.Message)
		}
	})

	t.Run("empty info", func(t *testing.T) {
		svc := newTestService(t, an, &fakeChecker{verdict: "x"}, "")
		report, _ := svc.Analyze(context.Background(), "r.pdf", testutil.MinimalPDF(1), "")
		if _, err := svc.UpdateInfo(context.Background(), report.ID, "  "); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Check(context.Background(), report.ID); !errors.Is(err, compliance.ErrEmptyReport) {
			t.Errorf("Check() error = %v, want ErrEmptyReport", err)
		}
	})

	t.Run("missing report", func(t *testing.T) {
		svc := newTestService(t, an, &fakeChecker{}, "")
		if _, err := svc.Check(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Check() error = %v, want ErrNotFound", err)
		}
	})
}

func TestUpdateInfo_ClearsVerdictAndReextracts(t *testing.T) {
	an := &fakeAnalyzer{results: []analyzer.PageResult{success(1, "plain text answer")}}
	ch := &fakeChecker{verdict: "不符合要求"}
	svc := newTestService(t, an, ch, "")
	ctx := context.Background()

	report, _ := svc.Analyze(ctx, "r.pdf", testutil.MinimalPDF(1), "")
	if _, err := svc.Check(ctx, report.ID); err != nil {
		t.Fatal(err)
	}

	edited := `{"产品型号": "HRB500E", "屈服强度": "520 MPa", "备注": "edited by hand"}`
	updated, err := svc.UpdateInfo(ctx, report.ID, edited)
	if err != nil {
		t.Fatalf("UpdateInfo() error = %v", err)
	}
	if updated.ReportInfo != edited || updated.Record["产品型号"] != "HRB500E" {
		t.Errorf("info = %q, record = %v", updated.ReportInfo, updated.Record)
	}
	if updated.Verdict != "" || updated.CheckedAt != nil || updated.Status != StatusExtracted {
		t.Errorf("stale verdict kept: %+v", updated)
	}
	if updated.RawText != "plain text answer" {
		t.Errorf("raw model output should be preserved, got %q", updated.RawText)
	}
}

func TestDelete_RemovesUpload(t *testing.T) {
	an := &fakeAnalyzer{results: []analyzer.PageResult{success(1, "answer")}}
	svc := newTestService(t, an, &fakeChecker{}, t.TempDir())
	ctx := context.Background()

	report, _ := svc.Analyze(ctx, "r.pdf", testutil.MinimalPDF(1), "")
	if err := svc.Delete(ctx, report.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(report.UploadPath); !os.IsNotExist(err) {
		t.Errorf("upload still present: %v", err)
	}
	if err := svc.Delete(ctx, report.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestCheckText(t *testing.T) {
	svc := newTestService(t, &fakeAnalyzer{}, &fakeChecker{verdict: "部分符合"}, "")
	verdict, outcome, err := svc.CheckText(context.Background(), "info")
	if err != nil || verdict != "部分符合" || outcome != "partial" {
		t.Errorf("CheckText() = %q, %q, %v", verdict, outcome, err)
	}
	if _, _, err := svc.CheckText(context.Background(), ""); !errors.Is(err, compliance.ErrEmptyReport) {
		t.Errorf("CheckText(\"\") error = %v", err)
	}
}
