// Package enrich fills empty, unprotected cells of one row from a text-completion reply.
package enrich

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/completion"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
)

// DefaultRequestTimeout bounds one provider call.
const DefaultRequestTimeout = 60 * time.Second

var errEmptyReply = errors.New("provider returned an empty reply")

// Enricher runs the per-row decision, prompt, provider call and merge.
type Enricher struct {
	provider core.Completer
	timeout  time.Duration
	limiter  *rate.Limiter
	language string
	logger   *zap.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithRequestTimeout bounds each provider call. Values <= 0 keep the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLimiter makes every provider call wait on l. The limiter may be shared by
// several enrichers so concurrent jobs respect one provider quota.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Enricher) { e.limiter = l }
}

// WithDefaultLanguage sets the language used when a request leaves it blank.
func WithDefaultLanguage(lang string) Option {
	return func(e *Enricher) {
		if strings.TrimSpace(lang) != "" {
			e.language = strings.TrimSpace(lang)
		}
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Enricher that calls provider.
func New(provider core.Completer, opts ...Option) *Enricher {
	e := &Enricher{
		provider: provider,
		timeout:  DefaultRequestTimeout,
		language: DefaultLanguage,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich fills the empty unprotected cells of req.Row.
//
// A row with nothing to fill is returned as-is without a provider call. If job is
// cancelled before the call, or while it is in flight, Enrich returns
// core.ErrCancelled. Every other failure returns the original row with a
// *core.RowError; the caller keeps the row and moves on.
func (e *Enricher) Enrich(ctx context.Context, job Cancellation, req Request) (Outcome, error) {
	out := Outcome{Row: req.Row}
	if !NeedsEnrichment(req.Row, req.Headers, req.Protected) {
		out.Skipped = true
		return out, nil
	}

	description := Describe(req.Row, req.Headers, req.Protected)
	missing := MissingFields(req.Row, req.Headers, req.Protected)

	if job != nil && job.Cancelled() {
		return out, core.ErrCancelled
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = e.language
	}
	prompt := BuildPrompt(description, missing, language)

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return e.fail(job, out, core.RowErrorLimiter, err)
		}
	}

	reqCtx, cancel := context.WithTimeout(WithMissingFields(ctx, missing), e.timeout)
	defer cancel()
	resp, err := e.provider.Complete(reqCtx, prompt)
	if err != nil {
		return e.fail(job, out, core.RowErrorProvider, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return e.fail(job, out, core.RowErrorEmptyReply, errEmptyReply)
	}

	parsed, layer := completion.ParseWithLayer(resp.Text)
	row, filled := Apply(req.Row, req.Headers, req.Protected, parsed)

	e.logger.Debug("row reply applied",
		zap.String("layer", layer.String()),
		zap.Int("parsed_fields", len(parsed)),
		zap.Strings("missing", missing),
		zap.Strings("filled", filled),
	)

	out.Row = row
	out.Filled = filled
	out.Layer = layer
	out.Model = resp.Model
	out.Sources = resp.Sources
	out.WebSearchQueries = resp.WebSearchQueries
	return out, nil
}

func (e *Enricher) fail(job Cancellation, out Outcome, kind core.RowErrorKind, err error) (Outcome, error) {
	if job != nil && job.Cancelled() {
		return out, core.ErrCancelled
	}
	return out, &core.RowError{Kind: kind, Err: err}
}
