// Package analyzer drives page rasterization and the vision client across a
// whole document, tolerating per-page failures.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/stdcheck/internal/llmcall"
	"github.com/jackzampolin/stdcheck/internal/providers"
	"github.com/jackzampolin/stdcheck/internal/raster"
	"github.com/jackzampolin/stdcheck/internal/retry"
)

// DefaultInstruction asks the model for the tensile report's key data as JSON.
const DefaultInstruction = "请详细分析这份拉伸测试报告，提取出产品的关键信息，比如产品型号、参数等，以及所有的关键数据，可能的维度包括但不限于最大力、屈服强度、抗拉强度、断后伸长率等，并以JSON格式返回。"

// ErrDocument marks a document that could not be opened. It is never retried.
var ErrDocument = errors.New("document could not be opened")

// PageResult is the outcome for one page. Exactly one of Response and Err is set.
type PageResult struct {
	Page     int                    `json:"page"`
	Response *providers.RawResponse `json:"response,omitempty"`
	Err      string                 `json:"error,omitempty"`
	Attempts int                    `json:"attempts"`
}

// OK reports whether the page produced a response.
func (r PageResult) OK() bool {
	return r.Response != nil && r.Err == ""
}

// Text returns the page's first candidate text.
func (r PageResult) Text() string {
	if !r.OK() {
		return ""
	}
	return r.Response.FirstText()
}

// Config configures an Analyzer.
type Config struct {
	Rasterizer raster.Rasterizer
	Vision     providers.VisionClient
	Policy     retry.Policy
	Recorder   *llmcall.Recorder // Optional
	Logger     *slog.Logger
	Timer      retry.Timer // Optional (tests)
}

// Analyzer runs the per-page extraction loop.
type Analyzer struct {
	rasterizer raster.Rasterizer
	vision     providers.VisionClient
	recorder   *llmcall.Recorder
	logger     *slog.Logger
	timer      retry.Timer

	mu     sync.RWMutex
	policy retry.Policy
}

// New creates an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	if cfg.Rasterizer == nil {
		return nil, fmt.Errorf("rasterizer is required")
	}
	if cfg.Vision == nil {
		return nil, fmt.Errorf("vision client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Analyzer{
		rasterizer: cfg.Rasterizer,
		vision:     cfg.Vision,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		timer:      cfg.Timer,
		policy:     cfg.Policy,
	}, nil
}

// SetPolicy replaces the retry policy used for subsequent pages.
func (a *Analyzer) SetPolicy(p retry.Policy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.policy = p
}

// Policy returns the current retry policy.
func (a *Analyzer) Policy() retry.Policy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policy
}

// AnalyzePDF returns one PageResult per page, in page order. Page failures are
// recorded and the loop moves on; only a document that cannot be opened fails
// the call (with ErrDocument). If ctx ends mid-document, the results gathered
// so far are returned with the context error.
func (a *Analyzer) AnalyzePDF(ctx context.Context, path, instruction string) ([]PageResult, error) {
	if instruction == "" {
		instruction = DefaultInstruction
	}

	pages, err := a.rasterizer.PageCount(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocument, err)
	}

	logger := a.logger.With("path", path, "report_id", llmcall.ReportIDFrom(ctx))
	logger.Info("analyzing document", "pages", pages)
	start := time.Now()

	results := make([]PageResult, 0, pages)
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := a.analyzePage(ctx, path, page, instruction, logger)
		results = append(results, res)
		if !res.OK() && ctx.Err() != nil {
			return results, ctx.Err()
		}
	}

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	logger.Info("document analyzed",
		"pages", pages,
		"failed_pages", failed,
		"elapsed_ms", time.Since(start).Milliseconds())

	return results, nil
}

func (a *Analyzer) analyzePage(ctx context.Context, path string, page int, instruction string, logger *slog.Logger) PageResult {
	image, err := a.rasterizer.RenderPage(ctx, path, page)
	if err != nil {
		logger.Warn("page rasterization failed", "page", page, "error", err)
		return PageResult{Page: page, Err: fmt.Sprintf("rasterize: %v", err)}
	}

	attempts := 0
	opts := []retry.Option{
		retry.WithName("vision.analyze"),
		retry.WithLogger(logger.With("page", page)),
	}
	if a.timer != nil {
		opts = append(opts, retry.WithTimer(a.timer))
	}

	resp, err := retry.DoWithData(ctx, a.Policy(), func(ctx context.Context) (*providers.RawResponse, error) {
		attempts++
		callStart := time.Now()
		resp, err := a.vision.Analyze(ctx, image, instruction)
		a.recorder.RecordCall(ctx, llmcall.FromVisionResponse(resp, err, llmcall.RecordOptions{
			ReportID: llmcall.ReportIDFrom(ctx),
			Page:     page,
			Attempt:  attempts,
			Provider: a.vision.Name(),
			Model:    a.vision.Model(),
			Latency:  time.Since(callStart),
		}))
		return resp, err
	}, opts...)

	if err != nil {
		logger.Warn("page analysis failed", "page", page, "attempts", attempts, "error", err)
		return PageResult{Page: page, Err: err.Error(), Attempts: attempts}
	}
	if resp == nil {
		return PageResult{Page: page, Err: "empty response", Attempts: attempts}
	}

	logger.Debug("page analyzed", "page", page, "attempts", attempts, "chars", len(resp.FirstText()))
	return PageResult{Page: page, Response: resp, Attempts: attempts}
}
