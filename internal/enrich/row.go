package enrich

import (
	"strings"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/protect"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/table"
)

// NeedsEnrichment reports whether at least one unprotected header is empty in row.
func NeedsEnrichment(row table.Row, headers []string, protected protect.Set) bool {
	for _, h := range headers {
		if !protected.Has(h) && row.IsEmpty(h) {
			return true
		}
	}
	return false
}

// Describe renders the known unprotected values as "header: value" lines in header order.
func Describe(row table.Row, headers []string, protected protect.Set) string {
	var lines []string
	for _, h := range headers {
		if protected.Has(h) || row.IsEmpty(h) {
			continue
		}
		lines = append(lines, h+": "+row.Get(h))
	}
	return strings.Join(lines, "\n")
}

// MissingFields returns the empty unprotected headers in header order.
func MissingFields(row table.Row, headers []string, protected protect.Set) []string {
	var out []string
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		if !protected.Has(h) && row.IsEmpty(h) {
			out = append(out, h)
		}
	}
	return out
}

// Apply merges parsed into a copy of row. A value is taken only when its key is a known
// header, the header is not protected, and the row's current value is empty. Line breaks
// in a value are folded into single spaces, since a table line cannot hold them. It
// returns the merged row and the headers that were filled.
func Apply(row table.Row, headers []string, protected protect.Set, parsed map[string]string) (table.Row, []string) {
	out := row.Clone()
	var filled []string
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		if protected.Has(h) || !row.IsEmpty(h) {
			continue
		}
		v, ok := parsed[h]
		if !ok {
			continue
		}
		if v = singleLine(v); v == "" {
			continue
		}
		out[h] = v
		filled = append(filled, h)
	}
	return out, filled
}

// singleLine joins the non-blank lines of v with single spaces.
func singleLine(v string) string {
	if !strings.ContainsAny(v, "\r\n") {
		return v
	}
	v = strings.ReplaceAll(v, "\r\n", "\n")
	v = strings.ReplaceAll(v, "\r", "\n")
	var parts []string
	for _, line := range strings.Split(v, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}
