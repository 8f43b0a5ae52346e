// Package processor is a minimal downstream enrichment step built on the public
// pipeline packages: it fills empty, unprotected cells from a Completer reply.
package processor

import (
	"context"
	"strings"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/completion"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/protect"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/table"
)

type Processor struct {
	Headers   []string
	Protected protect.Set
	Provider  core.Completer
}

func (p Processor) Process(ctx context.Context, row table.Row) (table.Row, error) {
	var missing []string
	for _, h := range p.Headers {
		if !p.Protected.Has(h) && row.IsEmpty(h) {
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return row, nil
	}
	resp, err := p.Provider.Complete(ctx, "fill: "+strings.Join(missing, ","))
	if err != nil {
		return row, err
	}
	out := row.Clone()
	for k, v := range completion.Parse(resp.Text) {
		if !p.Protected.Has(k) && out.IsEmpty(k) {
			out[k] = v
		}
	}
	return out, nil
}
