// Package pipeline drives row enrichment across a whole table.
//
// Rows are visited strictly in order by one worker. Cancellation is checked before
// every row and inside the enricher before its provider call; rows not reached are
// returned exactly as parsed. A failure confined to one row keeps that row unchanged
// and the run moves on. The job record is removed on every exit path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/palantir-compute-module-wine-enricher/internal/enrich"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/jobs"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/protect"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/redact"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/table"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/worker"
)

// RowEnricher enriches one row on behalf of a job.
type RowEnricher interface {
	Enrich(ctx context.Context, job enrich.Cancellation, req enrich.Request) (enrich.Outcome, error)
}

// RowStatus is what happened to one row.
type RowStatus string

const (
	RowEnriched RowStatus = "enriched"
	RowSkipped  RowStatus = "skipped"
	RowFailed   RowStatus = "failed"
)

// RowEvent is reported after each handled row.
type RowEvent struct {
	ProcessID string
	// Index is 0-based.
	Index     int
	Status    RowStatus
	Filled    []string
	Err       error
	Completed int
	Total     int
}

// Options configures one run.
type Options struct {
	// ProcessID lets the caller pick the job id (so it can cancel a synchronous run).
	// Empty means a random UUID.
	ProcessID string

	// OnRow is invoked after every handled row, on the run goroutine.
	OnRow func(RowEvent)
}

// Result is the outcome of one run. A cancelled run is a partial result, not an error.
type Result struct {
	ProcessID        string
	Table            table.Table
	CSV              string
	Headers          []string
	ProtectedColumns []string

	// CompletedRows counts rows handled (enriched, skipped, or failed and kept),
	// excluding the row at which cancellation was observed.
	CompletedRows int
	TotalRows     int
	FilledRows    int
	SkippedRows   int
	FailedRows    int
	Cancelled     bool
}

// Runner runs the enrichment pipeline.
type Runner struct {
	registry *jobs.Registry
	enricher RowEnricher
	logger   *zap.Logger
	keywords []string
	dialect  table.Dialect
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithKeywords replaces the protected-keyword list.
func WithKeywords(keywords []string) RunnerOption {
	return func(r *Runner) {
		if len(keywords) > 0 {
			r.keywords = keywords
		}
	}
}

// WithDialect sets the table dialect used by RunCSV.
func WithDialect(d table.Dialect) RunnerOption {
	return func(r *Runner) { r.dialect = d }
}

// NewRunner returns a Runner that registers jobs in registry.
func NewRunner(registry *jobs.Registry, enricher RowEnricher, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		registry: registry,
		enricher: enricher,
		logger:   logger.Named("pipeline"),
		keywords: protect.Keywords,
		dialect:  table.DefaultDialect,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCSV parses text, runs the pipeline and serializes the result. A malformed table
// fails before any provider call.
func (r *Runner) RunCSV(ctx context.Context, text, language string, opts Options) (Result, error) {
	t, err := r.Parse(text)
	if err != nil {
		return Result{}, err
	}
	res, err := r.Run(ctx, t, language, opts)
	if err != nil {
		return res, err
	}
	res.CSV = r.dialect.Serialize(res.Table)
	return res, nil
}

// Run enriches a copy of t. The input table is not modified.
func (r *Runner) Run(ctx context.Context, t table.Table, language string, opts Options) (Result, error) {
	job, err := r.registry.Start(ctx, opts.ProcessID)
	if err != nil {
		return Result{}, fmt.Errorf("start job: %w", err)
	}
	defer r.registry.Finish(job)

	protected := r.Classify(t.Headers)
	out := t.Clone()
	total := len(out.Rows)
	job.SetTotal(total)

	res := Result{
		ProcessID:        job.ID(),
		Headers:          append([]string(nil), out.Headers...),
		ProtectedColumns: protected.Headers(),
		TotalRows:        total,
	}

	log := r.logger.With(zap.String("process_id", job.ID()), zap.String("language", language))
	log.Info("run start",
		zap.Int("rows", total),
		zap.Int("headers", len(out.Headers)),
		zap.Strings("protected_columns", res.ProtectedColumns),
	)
	start := time.Now()

	indexes := make([]int, total)
	for i := range indexes {
		indexes[i] = i
	}

	process := func(ctx context.Context, i int) (enrich.Outcome, error) {
		return r.enricher.Enrich(ctx, job, enrich.Request{
			Row:       out.Rows[i],
			Headers:   out.Headers,
			Protected: protected,
			Language:  language,
		})
	}

	rep, err := worker.Sequential(job.Context(), indexes, process, worker.Options[int, enrich.Outcome]{
		Stop: job.Cancelled,
		IsFatal: func(err error) bool {
			return errors.Is(err, core.ErrCancelled) || job.Context().Err() != nil
		},
		OnResult: func(wr worker.Result[int, enrich.Outcome]) error {
			ev := RowEvent{ProcessID: job.ID(), Index: wr.Input, Total: total}
			switch {
			case wr.Err != nil:
				res.FailedRows++
				ev.Status = RowFailed
				ev.Err = wr.Err
				log.Warn("row kept unchanged",
					zap.Int("row", wr.Input+1),
					zap.Bool("transient", core.IsTransient(wr.Err)),
					zap.String("error", redact.Secrets(wr.Err.Error())),
				)
			case wr.Output.Skipped:
				res.SkippedRows++
				ev.Status = RowSkipped
			default:
				out.Rows[wr.Input] = wr.Output.Row
				if len(wr.Output.Filled) > 0 {
					res.FilledRows++
				}
				ev.Status = RowEnriched
				ev.Filled = wr.Output.Filled
				log.Debug("row enriched",
					zap.Int("row", wr.Input+1),
					zap.Strings("filled", wr.Output.Filled),
					zap.String("layer", wr.Output.Layer.String()),
					zap.String("model", wr.Output.Model),
				)
			}
			job.Advance()
			ev.Completed, _ = job.Progress()
			if opts.OnRow != nil {
				opts.OnRow(ev)
			}
			return nil
		},
	})
	if err != nil {
		return Result{}, err
	}

	res.Table = out
	res.CompletedRows = len(rep.Results)
	res.Cancelled = rep.Stopped

	fields := []zap.Field{
		zap.Int("completed", res.CompletedRows),
		zap.Int("total", total),
		zap.Int("filled", res.FilledRows),
		zap.Int("skipped", res.SkippedRows),
		zap.Int("failed", res.FailedRows),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
	}
	if res.Cancelled {
		reason := "cancel requested"
		if !job.Cancelled() && rep.StopErr != nil {
			reason = rep.StopErr.Error()
		}
		log.Info("run cancelled", append(fields, zap.String("reason", reason))...)
		return res, nil
	}
	log.Info("run complete", fields...)
	return res, nil
}

// Parse parses text with the runner's dialect.
func (r *Runner) Parse(text string) (table.Table, error) {
	return r.dialect.Parse(text)
}

// Classify returns the protected headers under the runner's keyword list.
func (r *Runner) Classify(headers []string) protect.Set {
	return protect.ClassifyWith(headers, r.keywords)
}

// Status is a snapshot of a live job.
type Status struct {
	ProcessID     string
	Started       time.Time
	Cancelled     bool
	CompletedRows int
	TotalRows     int
}

// Status reports the progress of a live job. Finished jobs are not found.
func (r *Runner) Status(processID string) (Status, bool) {
	job, ok := r.registry.Get(processID)
	if !ok {
		return Status{}, false
	}
	completed, total := job.Progress()
	return Status{
		ProcessID:     job.ID(),
		Started:       job.Started(),
		Cancelled:     job.Cancelled(),
		CompletedRows: completed,
		TotalRows:     total,
	}, true
}

// RequestCancel asks the named job to stop at its next row boundary. Unknown ids
// are ignored.
func (r *Runner) RequestCancel(processID string) bool {
	return r.registry.RequestCancel(processID)
}

// IsCancelled reports whether the named live job has been cancelled.
func (r *Runner) IsCancelled(processID string) bool {
	return r.registry.IsCancelled(processID)
}

// Cleanup force-clears a job record.
func (r *Runner) Cleanup(processID string) {
	r.registry.Remove(processID)
}
