package enrich

import (
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/completion"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/protect"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/table"
)

// DefaultLanguage is the target language when a request does not name one.
const DefaultLanguage = "Italian"

// Request is one row to enrich plus the table context it needs.
type Request struct {
	Row       table.Row
	Headers   []string
	Protected protect.Set
	Language  string
}

// Outcome is the row after enrichment. On any failure Row is the input row unchanged.
type Outcome struct {
	Row table.Row

	// Skipped is true when the row had nothing to fill and no provider call was made.
	Skipped bool
	// Filled lists the headers that received a value, in header order.
	Filled []string

	Layer            completion.Layer
	Model            string
	Sources          []string
	WebSearchQueries []string
}

// Cancellation is the job state the enricher consults before and after a provider call.
type Cancellation interface {
	Cancelled() bool
}
