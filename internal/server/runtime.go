package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/stdcheck/internal/analyzer"
	"github.com/jackzampolin/stdcheck/internal/compliance"
	"github.com/jackzampolin/stdcheck/internal/config"
	"github.com/jackzampolin/stdcheck/internal/extract"
	"github.com/jackzampolin/stdcheck/internal/home"
	"github.com/jackzampolin/stdcheck/internal/knowledge"
	"github.com/jackzampolin/stdcheck/internal/llmcall"
	"github.com/jackzampolin/stdcheck/internal/providers"
	"github.com/jackzampolin/stdcheck/internal/raster"
	"github.com/jackzampolin/stdcheck/internal/reports"
	"github.com/jackzampolin/stdcheck/internal/storage"
	"github.com/jackzampolin/stdcheck/internal/svcctx"
)

// Deps selects what a Runtime is built from. Optional fields left nil are
// built from the configuration.
type Deps struct {
	Config        *config.Config // Defaults to ConfigManager.Get() or DefaultConfig()
	ConfigManager *config.Manager
	Home          *home.Dir
	Logger        *slog.Logger

	// DBPath overrides the database location. ":memory:" keeps nothing.
	DBPath string

	Registry   *providers.Registry
	Rasterizer raster.Rasterizer
	Knowledge  *knowledge.Handle
}

// Runtime owns the services shared by the server and the local CLI commands.
type Runtime struct {
	Services *svcctx.Services
	Analyzer *analyzer.Analyzer
	Checker  *compliance.Checker

	db     *sql.DB
	logger *slog.Logger
}

// NewRuntime opens the database and wires the extract and compliance
// services. The knowledge engine is not contacted until the first check.
func NewRuntime(ctx context.Context, deps Deps) (*Runtime, error) {
	if deps.Home == nil {
		return nil, errors.New("home directory is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil && deps.ConfigManager != nil {
		cfg = deps.ConfigManager.Get()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger

	if err := deps.Home.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}

	registry := deps.Registry
	if registry == nil {
		registry = providers.NewRegistry()
		registry.SetLogger(logger)
		if err := registry.Reload(cfg.VisionConfig()); err != nil {
			return nil, fmt.Errorf("failed to configure vision client: %w", err)
		}
	}

	rasterizer := deps.Rasterizer
	if rasterizer == nil {
		rasterizer = raster.NewPoppler(raster.Config{Zoom: cfg.Vision.Zoom})
	}

	handle := deps.Knowledge
	if handle == nil {
		kcfg := cfg.KnowledgeConfig(deps.Home.RAGPath(), deps.Home.Path())
		kcfg.Logger = logger
		handle = knowledge.NewHandle(kcfg)
	}

	dbPath := deps.DBPath
	if dbPath == "" {
		dbPath = cfg.Storage.DBPath
	}
	if dbPath == "" {
		dbPath = deps.Home.DBPath()
	}
	db, err := storage.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{db: db, logger: logger}
	if err := rt.wire(ctx, cfg, deps, registry, rasterizer, handle); err != nil {
		_ = db.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) wire(ctx context.Context, cfg *config.Config, deps Deps, registry *providers.Registry, rasterizer raster.Rasterizer, handle *knowledge.Handle) error {
	logger := rt.logger

	callStore, err := llmcall.NewStore(ctx, rt.db)
	if err != nil {
		return err
	}
	recorder := llmcall.NewRecorder(callStore, logger)

	reportStore, err := reports.NewStore(ctx, rt.db)
	if err != nil {
		return err
	}

	rt.Analyzer, err = analyzer.New(analyzer.Config{
		Rasterizer: rasterizer,
		Vision:     registry,
		Policy:     cfg.RetryPolicy(),
		Recorder:   recorder,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	rt.Checker, err = compliance.New(compliance.Config{
		Engines:        handle,
		Policy:         cfg.RetryPolicy(),
		QuestionPrefix: cfg.Knowledge.QuestionPrefix,
		Mode:           cfg.Knowledge.Mode,
		CacheTTL:       cfg.Knowledge.CacheTTL,
		Recorder:       recorder,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	schema, err := extract.LoadSchema(cfg.Report.SchemaFile)
	if err != nil {
		return err
	}

	uploadDir := ""
	if cfg.Report.KeepUploads {
		uploadDir = deps.Home.UploadsPath()
	}
	svc, err := reports.NewService(reports.ServiceConfig{
		Store:     reportStore,
		Analyzer:  rt.Analyzer,
		Checker:   rt.Checker,
		Schema:    schema,
		UploadDir: uploadDir,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	rt.Services = &svcctx.Services{
		Reports:       svc,
		Knowledge:     handle,
		Registry:      registry,
		ConfigManager: deps.ConfigManager,
		Logger:        logger,
		Home:          deps.Home,
		LLMCallStore:  callStore,
	}
	return nil
}

// Reload applies a changed configuration to the running services. The
// knowledge engine keeps its connection; engine settings apply on restart.
func (rt *Runtime) Reload(cfg *config.Config) {
	if err := rt.Services.Registry.Reload(cfg.VisionConfig()); err != nil {
		rt.logger.Error("failed to reload vision client", "error", err)
	}
	rt.Analyzer.SetPolicy(cfg.RetryPolicy())
	rt.Checker.SetPolicy(cfg.RetryPolicy())
	rt.logger.Info("services reloaded from config")
}

// Close stops the knowledge engine if this runtime started it and closes
// the database.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if h := rt.Services.Knowledge; h != nil {
		if err := h.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("knowledge engine stop: %w", err))
		}
	}
	if err := rt.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}
	return errors.Join(errs...)
}
