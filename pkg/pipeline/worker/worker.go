package worker

import (
	"context"
)

// Options controls a Sequential run.
type Options[In any, Out any] struct {
	// Stop is consulted before each item. Returning true ends the run without
	// processing that item.
	Stop func() bool

	// IsFatal reports whether a processing error ends the run. The failing item is
	// not included in the report. Nil treats every error as non-fatal.
	IsFatal func(error) bool

	// OnResult is invoked after each item, in input order. An error ends the run and
	// is returned.
	OnResult func(Result[In, Out]) error
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Index  int
	Input  In
	Output Out
	Err    error
}

// Report is the processed prefix of the input.
type Report[In any, Out any] struct {
	Results []Result[In, Out]
	// Stopped is true when the run ended before the last item (Stop, a fatal error,
	// or context cancellation).
	Stopped bool
	// StopErr is the fatal or context error that ended the run, if any.
	StopErr error
}

// Sequential runs process over items strictly in order, one at a time. There are no
// retries: each item is attempted at most once.
func Sequential[In any, Out any](
	ctx context.Context,
	items []In,
	process func(context.Context, In) (Out, error),
	opts Options[In, Out],
) (Report[In, Out], error) {
	rep := Report[In, Out]{Results: make([]Result[In, Out], 0, len(items))}

	for i, item := range items {
		if opts.Stop != nil && opts.Stop() {
			rep.Stopped = true
			return rep, nil
		}
		if err := ctx.Err(); err != nil {
			rep.Stopped = true
			rep.StopErr = err
			return rep, nil
		}

		out, err := process(ctx, item)
		if err != nil && opts.IsFatal != nil && opts.IsFatal(err) {
			rep.Stopped = true
			rep.StopErr = err
			return rep, nil
		}

		res := Result[In, Out]{Index: i, Input: item, Output: out, Err: err}
		rep.Results = append(rep.Results, res)
		if opts.OnResult != nil {
			if err := opts.OnResult(res); err != nil {
				return rep, err
			}
		}
	}
	return rep, nil
}
