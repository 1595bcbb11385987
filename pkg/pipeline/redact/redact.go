package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Header-style "Api-Key: <value>" as echoed by some HTTP error bodies.
	apiKeyHeaderRe = regexp.MustCompile(`(?i)\bapi-key\s*:\s*[^\s"',]+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|key|(?:gemini|lookup|rocketreach)[_-]?api[_-]?key)\b\s*[:=]\s*[^\s"'&]+`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyHeaderRe.ReplaceAllString(out, "Api-Key: <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	return strings.TrimSpace(out)
}

// Truncate redacts s and caps it at max bytes, appending "..." when cut. The
// cut backs off to a rune boundary. Newlines are flattened so the result fits
// on one log line.
func Truncate(s string, max int) string {
	if s == "" {
		return ""
	}
	cut := false
	if max > 0 && len(s) > max {
		end := max
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		s = s[:end]
		cut = true
	}
	s = Secrets(s)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if cut {
		return s + "..."
	}
	return s
}
