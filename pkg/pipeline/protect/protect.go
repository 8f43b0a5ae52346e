// Package protect decides which columns enrichment must never write.
package protect

import (
	"strings"
)

// Keywords is the canonical protected-keyword list. A header containing any of these
// (case-insensitive, anywhere in the header text) is protected.
//
// Changing this list changes which columns enrichment may ever touch.
var Keywords = []string{
	// media
	"product thumbnail",
	"thumbnail",
	"image",
	// identifiers
	"sku",
	"id",
	"barcode",
	"ean",
	"upc",
	"gtin",
	"code",
	// pricing
	"price",
	"cost",
	"discount",
	"tax",
	// inventory and logistics
	"inventory",
	"stock",
	"quantity",
	"weight",
	"shipping",
	"dimension",
	// catalog metadata
	"rating",
	"url",
	"link",
	"category",
	"status",
	"variant",
}

// Set is the set of protected header names computed for one table.
type Set struct {
	order   []string
	members map[string]struct{}
}

// Has reports whether header is protected.
func (s Set) Has(header string) bool {
	_, ok := s.members[header]
	return ok
}

// Len returns the number of protected headers.
func (s Set) Len() int {
	return len(s.order)
}

// Headers returns the protected headers in the order they appear in the table.
func (s Set) Headers() []string {
	return append([]string{}, s.order...)
}

// Classify returns the protected headers using Keywords.
func Classify(headers []string) Set {
	return ClassifyWith(headers, Keywords)
}

// ClassifyWith returns the headers that contain any of keywords, ignoring case.
// Blank keywords are ignored.
func ClassifyWith(headers []string, keywords []string) Set {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}

	s := Set{members: make(map[string]struct{})}
	for _, h := range headers {
		if _, seen := s.members[h]; seen {
			continue
		}
		lh := strings.ToLower(h)
		for _, k := range lowered {
			if strings.Contains(lh, k) {
				s.members[h] = struct{}{}
				s.order = append(s.order, h)
				break
			}
		}
	}
	return s
}

// WithExtra returns Keywords followed by extra, skipping blanks and duplicates.
func WithExtra(extra []string) []string {
	out := append([]string(nil), Keywords...)
	seen := make(map[string]struct{}, len(out))
	for _, k := range out {
		seen[k] = struct{}{}
	}
	for _, k := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
