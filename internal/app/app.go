// Package app wires configuration into a runnable enricher: provider, rate limiter,
// job registry, runner and HTTP server.
package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/palantir/palantir-compute-module-wine-enricher/internal/config"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/enrich"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/enrich/anthropic"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/enrich/gemini"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/enrich/openai"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/jobs"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/pipeline"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/web"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
	localio "github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/io/local"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/protect"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/table"
)

// App holds the long-lived pieces shared by every run.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	dialect table.Dialect
	runner  *pipeline.Runner
}

// New builds the configured provider and a runner around it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProvider(cfg, enrich.Traced(provider, logger.Named("provider")), logger), nil
}

// NewWithProvider is New with an already constructed provider.
func NewWithProvider(cfg *config.Config, provider core.Completer, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []enrich.Option{
		enrich.WithRequestTimeout(cfg.Pipeline.RequestTimeout),
		enrich.WithDefaultLanguage(cfg.Pipeline.DefaultLanguage),
		enrich.WithLogger(logger.Named("enrich")),
	}
	if cfg.Pipeline.RateLimitRPS > 0 {
		opts = append(opts, enrich.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Pipeline.RateLimitRPS), 1)))
	}

	dialect := table.DefaultDialect
	runner := pipeline.NewRunner(jobs.NewRegistry(), enrich.New(provider, opts...), logger,
		pipeline.WithKeywords(protect.WithExtra(cfg.Pipeline.ProtectedExtraKeywords)),
		pipeline.WithDialect(dialect),
	)
	return &App{
		cfg:     cfg,
		logger:  logger,
		dialect: dialect,
		runner:  runner,
	}
}

// NewProvider returns the completion provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg *config.Config) (core.Completer, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return gemini.New(ctx, gemini.Config{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			BaseURL:         cfg.Gemini.BaseURL,
			SearchGrounding: cfg.Gemini.SearchGrounding,
		})
	case config.ProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
		})
	case config.ProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.Anthropic.APIKey,
			Model:   cfg.Anthropic.Model,
			BaseURL: cfg.Anthropic.BaseURL,
		})
	case config.ProviderStub:
		return enrich.Stub{}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Runner returns the shared runner.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}

// Server returns an HTTP server backed by the shared runner.
func (a *App) Server() *web.Server {
	return web.NewServer(a.runner, web.Options{
		DefaultLanguage:   a.cfg.Pipeline.DefaultLanguage,
		PreviewRows:       a.cfg.Pipeline.PreviewRows,
		MaxUploadBytes:    a.cfg.Server.MaxUploadBytes,
		MaxConcurrentJobs: a.cfg.Server.MaxConcurrentJobs,
		JobSlotWait:       a.cfg.Server.JobSlotWait,
	}, a.logger)
}

// RunLocal enriches the table at inputPath and writes it to outputPath. A cancelled
// run still writes its partial table.
func (a *App) RunLocal(ctx context.Context, inputPath, outputPath, language string, opts pipeline.Options) (pipeline.Result, error) {
	t, err := localio.ReadTableFile(inputPath, a.dialect)
	if err != nil {
		return pipeline.Result{}, err
	}
	if strings.TrimSpace(language) == "" {
		language = a.cfg.Pipeline.DefaultLanguage
	}
	res, err := a.runner.Run(ctx, t, language, opts)
	if err != nil {
		return res, err
	}
	if err := localio.WriteTableFile(outputPath, res.Table, a.dialect); err != nil {
		return res, err
	}
	return res, nil
}

// PreviewReport is the preview of a local table.
type PreviewReport struct {
	table.Preview
	ProtectedColumns []string
}

// Preview reads the table at path and returns its first rows. No provider is called.
func (a *App) Preview(path string, rows int) (PreviewReport, error) {
	t, err := localio.ReadTableFile(path, a.dialect)
	if err != nil {
		return PreviewReport{}, err
	}
	if rows <= 0 {
		rows = a.cfg.Pipeline.PreviewRows
	}
	return PreviewReport{
		Preview:          t.Preview(rows),
		ProtectedColumns: a.runner.Classify(t.Headers).Headers(),
	}, nil
}
