package enrich

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/redact"
)

type tracedCompleter struct {
	next   core.Completer
	logger *zap.Logger
}

// Traced wraps next so every call logs its request size, duration and outcome.
// Error text is redacted before it is logged.
func Traced(next core.Completer, logger *zap.Logger) core.Completer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &tracedCompleter{next: next, logger: logger}
}

func (t *tracedCompleter) Complete(ctx context.Context, prompt string) (core.Completion, error) {
	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.Debug("completion request",
		zap.Int("prompt_bytes", len(prompt)),
		zap.String("deadline_in", deadlineIn),
	)

	start := time.Now()
	out, err := t.next.Complete(ctx, prompt)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		t.logger.Warn("completion failed",
			zap.Duration("duration", elapsed),
			zap.Bool("transient", core.IsTransient(err)),
			zap.Bool("aborted", errors.Is(err, context.Canceled)),
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			zap.String("error", redact.Secrets(err.Error())),
		)
		return out, err
	}

	t.logger.Info("completion ok",
		zap.Duration("duration", elapsed),
		zap.String("model", out.Model),
		zap.Int("reply_bytes", len(out.Text)),
		zap.Int("sources", len(out.Sources)),
		zap.Strings("web_search_queries", out.WebSearchQueries),
	)
	return out, nil
}
