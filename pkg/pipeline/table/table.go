// Package table implements the delimited-text table model used by the enrichment pipeline.
//
// A Table keeps its header order; rows are maps keyed by header name so that callers can
// look values up by column without tracking indexes. Parsing and serialization share one
// Dialect so that Serialize(Parse(x)) is stable for already-normalized input.
package table

import (
	"strings"
)

// DefaultPreviewRows is the number of rows returned by preview callers that do not ask for
// a specific size.
const DefaultPreviewRows = 15

// Row is one record keyed by header name. Absent headers read as the empty string.
type Row map[string]string

// Get returns the value for header, or "" when absent.
func (r Row) Get(header string) string {
	if r == nil {
		return ""
	}
	return r[header]
}

// IsEmpty reports whether the value for header is blank (absent or whitespace only).
func (r Row) IsEmpty(header string) bool {
	return strings.TrimSpace(r.Get(header)) == ""
}

// Clone returns a copy of the row that shares no state with r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered header list plus ordered rows.
type Table struct {
	Headers []string
	Rows    []Row
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := Table{
		Headers: append([]string(nil), t.Headers...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Preview is the first rows of a table plus the total row count.
type Preview struct {
	Headers   []string `json:"headers"`
	Rows      []Row    `json:"rows"`
	TotalRows int      `json:"totalRows"`
}

// Preview returns the headers, the first n rows and the total row count.
func (t Table) Preview(n int) Preview {
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = t.Rows[i].Clone()
	}
	return Preview{
		Headers:   append([]string(nil), t.Headers...),
		Rows:      rows,
		TotalRows: len(t.Rows),
	}
}
