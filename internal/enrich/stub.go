package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
)

// Stub is an offline provider that answers every missing field with "<field> (stub)".
// It is used for dry runs and tests. The fields come from WithMissingFields when the
// context carries them, otherwise from the prompt's missing-fields line.
type Stub struct{}

var _ core.Completer = Stub{}

func (Stub) Complete(ctx context.Context, prompt string) (core.Completion, error) {
	if err := ctx.Err(); err != nil {
		return core.Completion{}, err
	}
	missing, ok := MissingFieldsFrom(ctx)
	if !ok {
		missing = missingFromPrompt(prompt)
	}
	reply := make(map[string]string, len(missing))
	for _, f := range missing {
		if f = strings.TrimSpace(f); f != "" {
			reply[f] = f + " (stub)"
		}
	}
	b, err := json.Marshal(reply)
	if err != nil {
		return core.Completion{}, err
	}
	return core.Completion{Text: string(b), Model: "stub"}, nil
}

// missingFromPrompt reads the missing-fields line. A header containing ", " comes back
// split in two.
func missingFromPrompt(prompt string) []string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, missingFieldsLabel); ok {
			return strings.Split(rest, ", ")
		}
	}
	return nil
}
