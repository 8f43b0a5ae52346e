package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/palantir/palantir-compute-module-wine-enricher/internal/app"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/config"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/enrich"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/logging"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/pipeline"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/version"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/redact"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
		return
	case "local":
		os.Exit(runLocal(ctx, os.Args[2:]))
	case "preview":
		os.Exit(runPreview(os.Args[2:]))
	case "serve":
		os.Exit(runServe(ctx, os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runLocal(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("local", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := configFlag(fs)
	inputPath := fs.String("input", "", "Input CSV file path")
	outputPath := fs.String("output", "", "Output CSV file path")
	language := fs.String("language", "", "Language for generated values (env: DEFAULT_LANGUAGE)")
	provider := fs.String("provider", "", "gemini, openai, anthropic or stub (env: PROVIDER)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inputPath == "" || *outputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "local requires --input and --output")
		return 2
	}

	cfg, code := loadConfig(*configPath, func(c *config.Config) {
		if p := strings.TrimSpace(*provider); p != "" {
			c.Provider = strings.ToLower(p)
		}
	}, true)
	if cfg == nil {
		return code
	}
	logger, code := newLogger(cfg)
	if logger == nil {
		return code
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "provider config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	// The first interrupt cancels the job at the next row; the partial table is
	// still written. A second interrupt exits immediately.
	processID := uuid.NewString()
	stop := watchInterrupts(func() {
		logger.Warn("interrupt received, cancelling run", zap.String("process_id", processID))
		a.Runner().RequestCancel(processID)
	}, func() { os.Exit(130) })

	res, err := a.RunLocal(ctx, *inputPath, *outputPath, *language, pipeline.Options{
		ProcessID: processID,
		OnRow: func(ev pipeline.RowEvent) {
			logger.Debug("row done",
				zap.Int("row", ev.Index+1),
				zap.String("status", string(ev.Status)),
				zap.Int("completed", ev.Completed),
				zap.Int("total", ev.Total),
			)
		},
	})
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "local run failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	printSummary(os.Stdout, res, *outputPath)
	return 0
}

// watchInterrupts calls first on the first SIGINT or SIGTERM and second on the next one.
// The returned stop func ends the watch and waits for the watcher to exit.
func watchInterrupts(first, second func()) (stop func()) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for n := 0; ; n++ {
			select {
			case <-done:
				return
			case <-sigs:
				if n == 0 {
					first()
					continue
				}
				second()
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
			<-exited
		})
	}
}

func runPreview(args []string) int {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := configFlag(fs)
	inputPath := fs.String("input", "", "Input CSV file path")
	rows := fs.Int("rows", 0, "Number of rows to show (env: PREVIEW_ROWS)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "preview requires --input")
		return 2
	}

	// Preview never calls a provider, so provider settings are not validated.
	cfg, code := loadConfig(*configPath, nil, false)
	if cfg == nil {
		return code
	}
	a := app.NewWithProvider(cfg, enrich.Stub{}, nil)
	p, err := a.Preview(*inputPath, *rows)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "preview failed: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Headers          []string `json:"headers"`
		Rows             any      `json:"rows"`
		TotalRows        int      `json:"totalRows"`
		ProtectedColumns []string `json:"protectedColumns"`
	}{p.Headers, p.Rows, p.TotalRows, p.ProtectedColumns}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "write preview: %v\n", err)
		return 1
	}
	return 0
}

func runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := configFlag(fs)
	addr := fs.String("addr", "", "Listen address (env: SERVER_ADDR)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, code := loadConfig(*configPath, func(c *config.Config) {
		if a := strings.TrimSpace(*addr); a != "" {
			c.Server.Addr = a
		}
	}, true)
	if cfg == nil {
		return code
	}
	logger, code := newLogger(cfg)
	if logger == nil {
		return code
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "provider config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	srv := a.Server()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.Server.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", zap.String("error", redact.Secrets(err.Error())))
		return 1
	}
	return 0
}

func runConfig(args []string) int {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, code := loadConfig(*configPath, nil, false)
	if cfg == nil {
		return code
	}
	if err := cfg.WriteYAML(os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "write config: %v\n", err)
		return 1
	}
	return 0
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", strings.TrimSpace(os.Getenv("ENRICHER_CONFIG")), "Optional YAML config file (env: ENRICHER_CONFIG)")
}

// loadConfig returns nil and an exit code on failure.
func loadConfig(path string, override func(*config.Config), validate bool) (*config.Config, int) {
	cfg, err := config.Load(path)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return nil, 2
	}
	if override != nil {
		override(cfg)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
			return nil, 2
		}
	}
	return cfg, 0
}

func newLogger(cfg *config.Config) (*zap.Logger, int) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logging config error: %v\n", err)
		return nil, 2
	}
	return logger, 0
}

func printSummary(w io.Writer, res pipeline.Result, outputPath string) {
	_, _ = fmt.Fprintf(w, "process %s: %d/%d rows handled (filled=%d skipped=%d failed=%d)\n",
		res.ProcessID, res.CompletedRows, res.TotalRows, res.FilledRows, res.SkippedRows, res.FailedRows)
	if len(res.ProtectedColumns) > 0 {
		_, _ = fmt.Fprintf(w, "protected columns: %s\n", strings.Join(res.ProtectedColumns, ", "))
	}
	if res.Cancelled {
		_, _ = fmt.Fprintf(w, "cancelled: partial output written to %s\n", outputPath)
		return
	}
	_, _ = fmt.Fprintf(w, "output written to %s\n", outputPath)
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `enricher: fills missing wine catalog fields with an LLM

Usage:
  enricher <command> [flags]

Commands:
  local    Enrich a local CSV file and write the result
  preview  Show the first rows and protected columns of a CSV file
  serve    Run the HTTP API
  config   Print the effective configuration as YAML
  version  Print the version

Examples:
  enricher local --input wines.csv --output enriched.csv --language English
  PROVIDER=stub enricher local --input wines.csv --output dry-run.csv
  enricher serve --addr :8080

`)
	config.Usage(w)
}
