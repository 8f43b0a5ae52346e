package enrich

import (
	"context"
)

type contextKey string

const missingFieldsKey contextKey = "missing_fields"

// WithMissingFields attaches the exact header names a prompt asks for. The prompt joins
// them with ", ", which is ambiguous for headers that contain that separator.
func WithMissingFields(ctx context.Context, missing []string) context.Context {
	return context.WithValue(ctx, missingFieldsKey, append([]string(nil), missing...))
}

// MissingFieldsFrom returns the header names attached by WithMissingFields.
func MissingFieldsFrom(ctx context.Context) ([]string, bool) {
	missing, ok := ctx.Value(missingFieldsKey).([]string)
	if !ok {
		return nil, false
	}
	return append([]string(nil), missing...), true
}
