// Package compliance asks the standards knowledge engine whether an extracted
// report meets the applicable national standards.
package compliance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jackzampolin/stdcheck/internal/knowledge"
	"github.com/jackzampolin/stdcheck/internal/llmcall"
	"github.com/jackzampolin/stdcheck/internal/retry"
)

// DefaultQuestionPrefix precedes the report info in every question. It asks
// whether the report meets national standards, whether every indicator meets
// its requirement, and for the reasoning.
const DefaultQuestionPrefix = "请判断这份报告是否符合国家标准，包括其中的每个指标是否都达到了国家标准的要求，并给出判断依据。\n"

// ProviderName labels recorded knowledge calls.
const ProviderName = "lightrag"

// ErrEmptyReport is returned when there is no report info to check.
var ErrEmptyReport = errors.New("report info is empty: upload and analyze a PDF report first")

// CallError reports a knowledge query that failed after all attempts.
type CallError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// EngineSource hands out the knowledge engine, initialising it on demand.
// *knowledge.Handle implements it.
type EngineSource interface {
	Engine(ctx context.Context) (knowledge.Engine, error)
}

// Config configures a Checker.
type Config struct {
	Engines        EngineSource
	Policy         retry.Policy
	QuestionPrefix string // defaults to DefaultQuestionPrefix
	Mode           string // defaults to hybrid

	// CacheTTL memoises verdicts per question. Zero disables the cache.
	CacheTTL time.Duration
	Recorder *llmcall.Recorder // Optional
	Logger   *slog.Logger
	Timer    retry.Timer // Optional, for tests
}

// Checker builds the standards question and submits it to the engine.
type Checker struct {
	engines  EngineSource
	prefix   string
	mode     string
	recorder *llmcall.Recorder
	logger   *slog.Logger
	timer    retry.Timer
	cache    *gocache.Cache

	mu     sync.RWMutex
	policy retry.Policy
}

// New creates a Checker.
func New(cfg Config) (*Checker, error) {
	if cfg.Engines == nil {
		return nil, errors.New("engine source is required")
	}
	if cfg.QuestionPrefix == "" {
		cfg.QuestionPrefix = DefaultQuestionPrefix
	}
	if cfg.Mode == "" {
		cfg.Mode = knowledge.ModeHybrid
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Checker{
		engines:  cfg.Engines,
		prefix:   cfg.QuestionPrefix,
		mode:     cfg.Mode,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		timer:    cfg.Timer,
		policy:   cfg.Policy,
	}
	if cfg.CacheTTL > 0 {
		c.cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return c, nil
}

// SetPolicy replaces the retry policy for subsequent checks.
func (c *Checker) SetPolicy(p retry.Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
}

// Policy returns the current retry policy.
func (c *Checker) Policy() retry.Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// Question returns the full question submitted for reportInfo.
func (c *Checker) Question(reportInfo string) string {
	return c.prefix + reportInfo
}

// Check returns the engine's verdict prose for reportInfo, exactly as the
// engine produced it. Engine setup and query failures are retried alike;
// once the attempts are spent the result is a *CallError.
func (c *Checker) Check(ctx context.Context, reportInfo string) (string, error) {
	if strings.TrimSpace(reportInfo) == "" {
		return "", ErrEmptyReport
	}

	question := c.Question(reportInfo)
	key := cacheKey(question)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			c.logger.Debug("compliance verdict served from cache", "key", key[:12])
			return v.(string), nil
		}
	}

	policy := c.Policy()
	reportID := llmcall.ReportIDFrom(ctx)
	param := knowledge.QueryParam{Mode: c.mode, OnlyNeedContext: false}
	attempt := 0

	opts := []retry.Option{retry.WithName(llmcall.OpKnowledgeQuery), retry.WithLogger(c.logger)}
	if c.timer != nil {
		opts = append(opts, retry.WithTimer(c.timer))
	}

	start := time.Now()
	verdict, err := retry.DoWithData(ctx, policy, func(ctx context.Context) (string, error) {
		attempt++
		attemptStart := time.Now()

		answer, err := c.query(ctx, question, param)
		c.recorder.Record(ctx, llmcall.RecordOptions{
			ReportID:  reportID,
			Operation: llmcall.OpKnowledgeQuery,
			Attempt:   attempt,
			Provider:  ProviderName,
			Model:     c.mode,
			Latency:   time.Since(attemptStart),
		}, answer, err)
		return answer, err
	}, opts...)
	if err != nil {
		if attempt == 0 {
			// The context ended before the first attempt.
			return "", err
		}
		return "", &CallError{Op: llmcall.OpKnowledgeQuery, Attempts: attempt, Err: err}
	}

	c.logger.Info("compliance check complete",
		"report_id", reportID,
		"attempts", attempt,
		"elapsed_ms", time.Since(start).Milliseconds())

	if c.cache != nil {
		c.cache.Set(key, verdict, gocache.DefaultExpiration)
	}
	return verdict, nil
}

// ClearCache drops all memoised verdicts.
func (c *Checker) ClearCache() {
	if c.cache != nil {
		c.cache.Flush()
	}
}

// CachedVerdicts returns the number of memoised verdicts.
func (c *Checker) CachedVerdicts() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.ItemCount()
}

func (c *Checker) query(ctx context.Context, question string, param knowledge.QueryParam) (string, error) {
	engine, err := c.engines.Engine(ctx)
	if err != nil {
		return "", err
	}
	return engine.Query(ctx, question, param)
}

func cacheKey(question string) string {
	sum := sha256.Sum256([]byte(question))
	return hex.EncodeToString(sum[:])
}
