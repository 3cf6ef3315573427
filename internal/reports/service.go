package reports

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackzampolin/stdcheck/internal/analyzer"
	"github.com/jackzampolin/stdcheck/internal/compliance"
	"github.com/jackzampolin/stdcheck/internal/extract"
	"github.com/jackzampolin/stdcheck/internal/llmcall"
	"github.com/jackzampolin/stdcheck/internal/render"
)

// PDFAnalyzer runs the vision model over every page of a PDF.
type PDFAnalyzer interface {
	AnalyzePDF(ctx context.Context, path, instruction string) ([]analyzer.PageResult, error)
}

// ComplianceChecker turns report info into verdict prose.
type ComplianceChecker interface {
	Check(ctx context.Context, reportInfo string) (string, error)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Store    *Store
	Analyzer PDFAnalyzer
	Checker  ComplianceChecker
	Schema   *extract.Schema // Optional; nil skips validation
	// UploadDir keeps uploaded PDFs. Empty means uploads are discarded after
	// analysis.
	UploadDir string
	Logger    *slog.Logger
}

// Service runs the extract and compliance steps and records their outcome.
// Step failures are reported on the Report itself (Status and Message);
// returned errors mean the report could not be created, found or saved.
type Service struct {
	store     *Store
	analyzer  PDFAnalyzer
	checker   ComplianceChecker
	schema    *extract.Schema
	uploadDir string
	logger    *slog.Logger
}

// NewService creates a report service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("report store is required")
	}
	if cfg.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if cfg.Checker == nil {
		return nil, errors.New("compliance checker is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:     cfg.Store,
		analyzer:  cfg.Analyzer,
		checker:   cfg.Checker,
		schema:    cfg.Schema,
		uploadDir: cfg.UploadDir,
		logger:    cfg.Logger,
	}, nil
}

// Store returns the underlying report store.
func (s *Service) Store() *Store {
	return s.store
}

// IsPDF reports whether data looks like a PDF document.
func IsPDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

// AnalyzeFile reads a PDF from disk and analyzes it.
func (s *Service) AnalyzeFile(ctx context.Context, path, instruction string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Analyze(ctx, filepath.Base(path), data, instruction)
}

// Analyze stores the upload, extracts report info from the first usable
// page and recovers a structured record from it when possible.
func (s *Service) Analyze(ctx context.Context, filename string, data []byte, instruction string) (*Report, error) {
	if len(data) == 0 || !IsPDF(data) {
		return nil, ErrNotPDF
	}

	sum := sha256.Sum256(data)
	report := &Report{
		Filename:    filepath.Base(filename),
		SHA256:      hex.EncodeToString(sum[:]),
		SizeBytes:   int64(len(data)),
		Instruction: instruction,
		Status:      StatusAnalyzing,
	}
	if err := s.store.Create(ctx, report); err != nil {
		return nil, err
	}

	logger := s.logger.With("report_id", report.ID, "filename", report.Filename)
	logger.Info("report uploaded", "size_bytes", report.SizeBytes, "sha256", report.SHA256[:12])

	path, cleanup, err := s.saveUpload(report.ID, data)
	if err != nil {
		s.fail(report, MsgProcessingError+err.Error())
		return report, s.store.Update(context.WithoutCancel(ctx), report)
	}
	defer cleanup()
	report.UploadPath = path
	if s.uploadDir == "" {
		report.UploadPath = ""
	}

	start := time.Now()
	results, err := s.analyzer.AnalyzePDF(llmcall.WithReportID(ctx, report.ID), path, instruction)
	report.Pages = len(results)
	report.PageOutcomes = pageOutcomes(results)

	switch {
	case errors.Is(err, analyzer.ErrDocument):
		s.fail(report, MsgProcessingError+err.Error())
	case err != nil:
		s.fail(report, MsgAnalysisFailed+err.Error())
	case len(results) == 0:
		s.fail(report, MsgNoResult)
	default:
		s.applySelection(report, results)
	}

	logger.Info("report analyzed",
		"status", report.Status,
		"pages", report.Pages,
		"selected_page", report.SelectedPage,
		"extract_method", report.ExtractMethod,
		"schema_issues", len(report.SchemaIssues),
		"elapsed_ms", time.Since(start).Milliseconds())

	if err := s.store.Update(context.WithoutCancel(ctx), report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) applySelection(report *Report, results []analyzer.PageResult) {
	best, err := analyzer.Select(results)
	if err != nil {
		s.fail(report, MsgAnalysisFailed+err.Error())
		return
	}

	text := best.Text()
	report.SelectedPage = best.Page
	report.RawText = text
	report.ReportInfo = text
	s.applyRecord(report, text)
	report.Status = StatusExtracted
	report.Message = MsgExtracted
}

// applyRecord recovers structure from text. Finding none is not a failure;
// the raw text stays the report's content.
func (s *Service) applyRecord(report *Report, text string) {
	record, method := extract.ExtractWithMethod(text)
	report.Record = record
	report.ExtractMethod = string(method)
	report.SchemaIssues = extract.Validate(s.schema, record)
}

func (s *Service) fail(report *Report, msg string) {
	report.Status = StatusFailed
	report.Message = msg
}

// UpdateInfo replaces the report info submitted for compliance checks.
// Any earlier verdict is cleared since it no longer matches the info.
func (s *Service) UpdateInfo(ctx context.Context, id, info string) (*Report, error) {
	report, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report.ReportInfo = info
	s.applyRecord(report, info)
	report.Verdict = ""
	report.Outcome = ""
	report.CheckedAt = nil
	if strings.TrimSpace(info) != "" {
		report.Status = StatusExtracted
		report.Message = MsgExtracted
	}

	if err := s.store.Update(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Check runs the compliance query for a stored report. An empty report
// info returns compliance.ErrEmptyReport and leaves the report untouched.
func (s *Service) Check(ctx context.Context, id string) (*Report, error) {
	report, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	verdict, err := s.checker.Check(llmcall.WithReportID(ctx, report.ID), report.ReportInfo)
	if errors.Is(err, compliance.ErrEmptyReport) {
		return report, err
	}

	if err != nil {
		report.Status = StatusCheckFailed
		report.Message = MsgComplianceFailed + err.Error()
		s.logger.Warn("compliance check failed", "report_id", report.ID, "error", err)
	} else {
		now := time.Now().UTC()
		report.Verdict = verdict
		report.Outcome = string(render.Classify(verdict))
		report.CheckedAt = &now
		report.Status = StatusChecked
		report.Message = MsgComplianceDone
		s.logger.Info("compliance checked", "report_id", report.ID, "outcome", report.Outcome)
	}

	if err := s.store.Update(context.WithoutCancel(ctx), report); err != nil {
		return nil, err
	}
	return report, nil
}

// CheckText runs the compliance query for ad hoc report info without
// storing anything.
func (s *Service) CheckText(ctx context.Context, info string) (string, render.Outcome, error) {
	verdict, err := s.checker.Check(ctx, info)
	if err != nil {
		return "", render.OutcomeUnknown, err
	}
	return verdict, render.Classify(verdict), nil
}

// Delete removes a report and its stored upload.
func (s *Service) Delete(ctx context.Context, id string) error {
	report, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if report.UploadPath != "" {
		if err := os.Remove(report.UploadPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove upload", "path", report.UploadPath, "error", err)
		}
	}
	return nil
}

// saveUpload writes data where the analyzer can read it. The cleanup func
// removes temporary copies and leaves kept uploads alone.
func (s *Service) saveUpload(id string, data []byte) (string, func(), error) {
	if s.uploadDir != "" {
		if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("failed to create upload dir: %w", err)
		}
		path := filepath.Join(s.uploadDir, id+".pdf")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", nil, fmt.Errorf("failed to save upload: %w", err)
		}
		return path, func() {}, nil
	}

	f, err := os.CreateTemp("", "stdcheck-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to save upload: %w", err)
	}
	f.Close()
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

func pageOutcomes(results []analyzer.PageResult) []PageOutcome {
	out := make([]PageOutcome, 0, len(results))
	for _, r := range results {
		out = append(out, PageOutcome{
			Page:     r.Page,
			OK:       r.OK(),
			Attempts: r.Attempts,
			Error:    r.Err,
		})
	}
	return out
}
