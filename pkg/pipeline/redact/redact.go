package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b((?:gemini|openai|anthropic)[_-]?)?api[_-]?key\b\s*[:=]\s*[^\s"'&]+`)

	// Query-string keys (Gemini REST) and x-api-key headers (Anthropic).
	queryKeyRe  = regexp.MustCompile(`([?&]key=)[^\s"'&]+`)
	headerKeyRe = regexp.MustCompile(`(?i)\bx-(?:goog-)?api-key\b\s*:\s*[^\s"']+`)

	// Provider key shapes that show up bare: OpenAI/Anthropic "sk-..." and Google "AIza...".
	bareKeyRe = regexp.MustCompile(`\b(?:sk-(?:ant-)?[A-Za-z0-9_-]{16,}|AIza[0-9A-Za-z_-]{30,})`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = headerKeyRe.ReplaceAllString(out, "<redacted_header>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = queryKeyRe.ReplaceAllString(out, "${1}<redacted>")
	out = bareKeyRe.ReplaceAllString(out, "<redacted_key>")
	return strings.TrimSpace(out)
}
