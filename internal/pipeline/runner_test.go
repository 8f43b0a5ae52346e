package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/palantir/palantir-compute-module-wine-enricher/internal/enrich"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/jobs"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/pipeline"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/table"
)

const fiveWines = "Name;Region;Price\n" +
	"Barolo;;40\n" +
	"Chianti;;12\n" +
	"Soave;;9\n" +
	"Barbera;;11\n" +
	"Amarone;;55\n"

type callCounter struct {
	calls atomic.Int32
	fn    func(call int32, prompt string) (core.Completion, error)
}

func (c *callCounter) Complete(ctx context.Context, prompt string) (core.Completion, error) {
	n := c.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return core.Completion{}, err
	}
	return c.fn(n, prompt)
}

func regionReply(int32, string) (core.Completion, error) {
	return core.Completion{Text: `{"Region":"Italy","Price":"999"}`}, nil
}

func newRunner(p core.Completer) (*pipeline.Runner, *jobs.Registry) {
	reg := jobs.NewRegistry()
	return pipeline.NewRunner(reg, enrich.New(p), zap.NewNop()), reg
}

func TestRunCSV_FillsUnprotectedBlanks(t *testing.T) {
	p := &callCounter{fn: regionReply}
	r, reg := newRunner(p)

	res, err := r.RunCSV(context.Background(), fiveWines, "English", pipeline.Options{})
	require.NoError(t, err)

	assert.False(t, res.Cancelled)
	assert.Equal(t, 5, res.CompletedRows)
	assert.Equal(t, 5, res.TotalRows)
	assert.Equal(t, 5, res.FilledRows)
	assert.Equal(t, []string{"Price"}, res.ProtectedColumns)
	assert.Equal(t, int32(5), p.calls.Load())
	for _, row := range res.Table.Rows {
		assert.Equal(t, "Italy", row["Region"])
		assert.NotEqual(t, "999", row["Price"], "protected column must not be written")
	}
	assert.True(t, strings.HasPrefix(res.CSV, "Name;Region;Price\nBarolo;Italy;40\n"))
	assert.NotEmpty(t, res.ProcessID)
	assert.Empty(t, reg.Active(), "job record must be removed")
}

func TestRunCSV_MultiLineRepliesReparse(t *testing.T) {
	p := &callCounter{fn: func(call int32, _ string) (core.Completion, error) {
		if call == 1 {
			return core.Completion{Text: "Region: Piedmont,\nLanghe hills\nGrape: Nebbiolo"}, nil
		}
		return core.Completion{Text: `{"Region":"Tuscany\r\n\r\nChianti Classico","Grape":"Sangiovese"}`}, nil
	}}
	r, _ := newRunner(p)

	res, err := r.RunCSV(context.Background(), "Name;Region;Grape\nBarolo;;\nChianti;;\n", "English", pipeline.Options{})
	require.NoError(t, err)
	assert.Equal(t, "Name;Region;Grape\nBarolo;Piedmont, Langhe hills;Nebbiolo\nChianti;Tuscany Chianti Classico;Sangiovese", res.CSV)

	again, err := table.Parse(res.CSV)
	require.NoError(t, err, "enriched output must parse again")
	assert.Equal(t, res.Table, again)
	assert.Equal(t, res.CSV, table.Serialize(again))
}

func TestRun_CancelAfterSecondRow(t *testing.T) {
	p := &callCounter{fn: regionReply}
	r, reg := newRunner(p)

	in, err := table.Parse(fiveWines)
	require.NoError(t, err)
	original := in.Clone()

	res, err := r.Run(context.Background(), in, "Italian", pipeline.Options{
		ProcessID: "proc-cancel",
		OnRow: func(ev pipeline.RowEvent) {
			if ev.Index == 1 {
				assert.True(t, r.RequestCancel(ev.ProcessID))
				assert.True(t, r.IsCancelled(ev.ProcessID))
			}
		},
	})
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, 2, res.CompletedRows)
	assert.Equal(t, 5, res.TotalRows)
	assert.Equal(t, "proc-cancel", res.ProcessID)
	assert.Equal(t, int32(2), p.calls.Load())
	for i := 2; i < 5; i++ {
		assert.Equal(t, original.Rows[i], res.Table.Rows[i], "row %d must stay as parsed", i+1)
	}
	assert.Equal(t, "Italy", res.Table.Rows[0]["Region"])
	assert.Equal(t, original, in, "input table must not be modified")
	assert.Empty(t, reg.Active())
	assert.False(t, r.IsCancelled("proc-cancel"), "finished jobs are forgotten")
}

func TestRun_ProviderErrorOnOneRowKeepsGoing(t *testing.T) {
	p := &callCounter{fn: func(call int32, prompt string) (core.Completion, error) {
		if call == 3 {
			return core.Completion{}, errors.New("connection reset by peer")
		}
		return regionReply(call, prompt)
	}}
	r, _ := newRunner(p)

	var events []pipeline.RowEvent
	res, err := r.RunCSV(context.Background(), fiveWines, "", pipeline.Options{
		OnRow: func(ev pipeline.RowEvent) { events = append(events, ev) },
	})
	require.NoError(t, err)

	assert.False(t, res.Cancelled)
	assert.Equal(t, 5, res.CompletedRows)
	assert.Equal(t, 1, res.FailedRows)
	assert.Equal(t, 4, res.FilledRows)
	require.Len(t, res.Table.Rows, 5)
	assert.Equal(t, table.Row{"Name": "Soave", "Region": "", "Price": "9"}, res.Table.Rows[2])
	assert.Equal(t, "Italy", res.Table.Rows[3]["Region"])

	require.Len(t, events, 5)
	assert.Equal(t, pipeline.RowFailed, events[2].Status)
	var rowErr *core.RowError
	assert.ErrorAs(t, events[2].Err, &rowErr)
	assert.Equal(t, 5, events[4].Completed)
}

func TestRun_CompleteRowsAreSkipped(t *testing.T) {
	p := &callCounter{fn: regionReply}
	r, _ := newRunner(p)

	res, err := r.RunCSV(context.Background(), "Name;Region;SKU\nBarolo;Piedmont;\nChianti;;A1\n", "", pipeline.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SkippedRows)
	assert.Equal(t, 2, res.CompletedRows)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, "Name;Region;SKU\nBarolo;Piedmont;\nChianti;Italy;A1", res.CSV)
}

func TestRunCSV_MalformedInputMakesNoCalls(t *testing.T) {
	p := &callCounter{fn: regionReply}
	r, reg := newRunner(p)

	_, err := r.RunCSV(context.Background(), "Name;Region\n\"Barolo;\n", "", pipeline.Options{})
	assert.ErrorIs(t, err, table.ErrMalformedInput)
	assert.Equal(t, int32(0), p.calls.Load())
	assert.Empty(t, reg.Active())
}

func TestRun_DuplicateProcessID(t *testing.T) {
	r, reg := newRunner(&callCounter{fn: regionReply})
	_, err := reg.Start(context.Background(), "busy")
	require.NoError(t, err)

	_, err = r.RunCSV(context.Background(), fiveWines, "", pipeline.Options{ProcessID: "busy"})
	assert.ErrorIs(t, err, jobs.ErrJobExists)
}

func TestRun_ParentContextCancelledStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &callCounter{fn: func(call int32, prompt string) (core.Completion, error) {
		if call == 1 {
			cancel()
			return core.Completion{}, context.Canceled
		}
		return regionReply(call, prompt)
	}}
	r, reg := newRunner(p)

	res, err := r.RunCSV(ctx, fiveWines, "", pipeline.Options{})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 0, res.CompletedRows, "the row whose call was aborted is not counted")
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Empty(t, reg.Active())
}

func TestRunnerCleanup(t *testing.T) {
	r, reg := newRunner(&callCounter{fn: regionReply})
	_, err := reg.Start(context.Background(), "stale")
	require.NoError(t, err)

	r.Cleanup("stale")
	assert.Empty(t, reg.Active())
	assert.False(t, r.RequestCancel("stale"))
}

func TestRun_EmptyTable(t *testing.T) {
	r, _ := newRunner(&callCounter{fn: regionReply})
	res, err := r.RunCSV(context.Background(), "", "", pipeline.Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalRows)
	assert.Equal(t, "", res.CSV)
}

func TestRunnerStatus(t *testing.T) {
	r, _ := newRunner(&callCounter{fn: regionReply})
	var (
		mid   pipeline.Status
		found bool
	)

	res, err := r.RunCSV(context.Background(), fiveWines, "", pipeline.Options{
		ProcessID: "proc-status",
		OnRow: func(ev pipeline.RowEvent) {
			if ev.Index == 2 {
				mid, found = r.Status(ev.ProcessID)
			}
		},
	})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, mid.CompletedRows)
	assert.Equal(t, 5, mid.TotalRows)
	assert.False(t, mid.Cancelled)

	_, found = r.Status(res.ProcessID)
	assert.False(t, found, "finished jobs are not reported")
}

func TestRunnerClassifyUsesConfiguredKeywords(t *testing.T) {
	r := pipeline.NewRunner(jobs.NewRegistry(), enrich.New(enrich.Stub{}), nil, pipeline.WithKeywords([]string{"vintage"}))
	assert.Equal(t, []string{"Vintage"}, r.Classify([]string{"Name", "Vintage", "Price"}).Headers())
}
