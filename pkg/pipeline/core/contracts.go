package core

import (
	"context"
	"errors"
	"fmt"
)

// Completion is one reply from a text-completion provider.
type Completion struct {
	Text string
	// Model is the model that produced the reply, when the provider reports it.
	Model string
	// Sources and WebSearchQueries are filled by providers that ground replies in web search.
	Sources          []string
	WebSearchQueries []string
}

// Completer sends one prompt to a text-completion provider.
//
// ctx is the abort handle: cancelling it must release the in-flight request.
type Completer interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// CompleteFunc adapts a function to the Completer interface.
type CompleteFunc func(ctx context.Context, prompt string) (Completion, error)

func (f CompleteFunc) Complete(ctx context.Context, prompt string) (Completion, error) {
	return f(ctx, prompt)
}

// ErrCancelled reports that the job was cancelled. A cancelled run is a partial result,
// not a failure.
var ErrCancelled = errors.New("job cancelled")

// RowErrorKind classifies why one row could not be enriched.
type RowErrorKind string

const (
	RowErrorProvider   RowErrorKind = "provider"
	RowErrorEmptyReply RowErrorKind = "empty_reply"
	RowErrorLimiter    RowErrorKind = "rate_limiter"
)

// RowError is a failure confined to one row. The row is kept as it was and the run
// continues.
type RowError struct {
	Kind RowErrorKind
	Err  error
}

func (e *RowError) Error() string {
	if e == nil {
		return "row enrichment failed"
	}
	if e.Err == nil {
		return fmt.Sprintf("row enrichment failed (%s)", e.Kind)
	}
	return fmt.Sprintf("row enrichment failed (%s): %v", e.Kind, e.Err)
}

func (e *RowError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TransientError marks a provider failure that would likely succeed later (rate limits,
// 5xx, timeouts). Nothing retries automatically; the mark is used for logging and
// reporting.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether err is, or wraps, a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
