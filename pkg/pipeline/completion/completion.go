// Package completion turns a free-text model reply into field/value pairs.
//
// Replies are tried against four layers in order, first success wins:
//
//	ParseStrict    the whole reply is one JSON object
//	ParseFenced    a fenced code block holds one JSON object
//	ParseEmbedded  a balanced {...} span somewhere in the reply is a JSON object
//	ParseLines     "key: value" lines, each value running until the next key line
//
// Each layer is exported so its failure mode can be tested on its own. Parse never
// fails; exhausting every layer yields an empty map.
package completion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparseable is returned by a layer that could not extract any fields.
var ErrUnparseable = errors.New("completion: reply is not parseable")

// Layer identifies which parsing strategy produced a result.
type Layer int

const (
	LayerNone Layer = iota
	LayerStrict
	LayerFenced
	LayerEmbedded
	LayerLines
)

func (l Layer) String() string {
	switch l {
	case LayerStrict:
		return "strict"
	case LayerFenced:
		return "fenced"
	case LayerEmbedded:
		return "embedded"
	case LayerLines:
		return "lines"
	default:
		return "none"
	}
}

// thinkTagPattern matches a reasoning block some models emit before the answer.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\r?\n?(.*?)```")

// keyLinePattern matches "key: value" with optional list bullets and bold markers.
var keyLinePattern = regexp.MustCompile(`^\s*(?:[-*•]\s+)?(?:\*\*|__)?(\p{L}[\p{L}\p{N} _.'()-]{0,63}?)(?:\*\*|__)?\s*:(?:\*\*|__)?(.*)$`)

// Parse returns the fields found in raw, or an empty map.
func Parse(raw string) map[string]string {
	out, _ := ParseWithLayer(raw)
	return out
}

// ParseWithLayer is Parse plus the layer that succeeded (LayerNone on exhaustion).
func ParseWithLayer(raw string) (map[string]string, Layer) {
	s := thinkTagPattern.ReplaceAllString(raw, "")

	layers := []struct {
		layer Layer
		parse func(string) (map[string]string, error)
	}{
		{LayerStrict, ParseStrict},
		{LayerFenced, ParseFenced},
		{LayerEmbedded, ParseEmbedded},
		{LayerLines, ParseLines},
	}
	for _, l := range layers {
		if out, err := l.parse(s); err == nil {
			return out, l.layer
		}
	}
	return map[string]string{}, LayerNone
}

// ParseStrict parses s as exactly one JSON object (surrounding whitespace allowed).
func ParseStrict(s string) (map[string]string, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, fmt.Errorf("%w: not a JSON object", ErrUnparseable)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	out := make(map[string]string, len(fields))
	for k, raw := range fields {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		v, ok := textValue(raw)
		if !ok {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// ParseFenced strict-parses the body of the first fenced code block in s.
func ParseFenced(s string) (map[string]string, error) {
	m := fencePattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: no fenced block", ErrUnparseable)
	}
	return ParseStrict(m[1])
}

// ParseEmbedded strict-parses the first balanced {...} span in s that is a valid
// object. Spans are tried left to right.
func ParseEmbedded(s string) (map[string]string, error) {
	for start, end := range objectEnds(s) {
		if end == 0 {
			continue
		}
		if out, err := ParseStrict(s[start:end]); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: no embedded object", ErrUnparseable)
}

// ParseLines extracts "key: value" pairs. A key starts at the beginning of a line;
// its value continues over following lines until the next key line. Fence marker
// lines are ignored.
func ParseLines(s string) (map[string]string, error) {
	out := make(map[string]string)
	var (
		key   string
		value []string
	)
	flush := func() {
		if key == "" {
			return
		}
		if v := strings.TrimSpace(strings.Join(value, "\n")); v != "" {
			out[key] = v
		}
	}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		if k, rest, ok := keyLine(line); ok {
			flush()
			key, value = k, []string{rest}
			continue
		}
		if key != "" {
			value = append(value, line)
		}
	}
	flush()
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no key/value lines", ErrUnparseable)
	}
	return out, nil
}

func keyLine(line string) (key, rest string, ok bool) {
	m := keyLinePattern.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	// "https://..." continuing a value is not a key.
	if strings.HasPrefix(m[2], "//") {
		return "", "", false
	}
	key = strings.TrimSpace(m[1])
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(m[2]), true
}

// objectEnds maps each '{' in s to the end of the balanced span it opens, or 0 when the
// span never closes. Braces inside JSON strings are skipped. A brace met outside a
// string is settled by the scan that meets it, so only braces that every earlier scan
// saw as string content start a new scan.
func objectEnds(s string) []int {
	ends := make([]int, len(s))
	settled := make([]bool, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '{' && !settled[i] {
			scanObject(s, i, ends, settled)
		}
	}
	return ends
}

// scanObject scans from the '{' at start until it closes or s runs out, recording the
// end of every nested object on the way.
func scanObject(s string, start int, ends []int, settled []bool) {
	var (
		open     []int
		inString bool
		escaped  bool
	)
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			settled[i] = true
			open = append(open, i)
		case '}':
			top := open[len(open)-1]
			open = open[:len(open)-1]
			ends[top] = i + 1
			if len(open) == 0 {
				return
			}
		}
	}
}

// textValue renders a JSON value as text. null reports false.
func textValue(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", false
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		return s, true
	case 't', 'f':
		return string(trimmed), true
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return string(trimmed), true
		}
		return buf.String(), true
	}
	// Integers keep their exact digits; float64 would round past 2^53.
	if !bytes.ContainsAny(trimmed, ".eE") {
		return string(trimmed), true
	}
	f, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		return string(trimmed), true
	}
	if math.Abs(f) < 1e15 && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10), true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
