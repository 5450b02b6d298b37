// Package redact strips secret values from strings before they are logged
// or posted back into a room.
//
// Redaction works on string representations and relies on callers to pass
// the right secrets. Keeping secrets out of call sites still comes first.
package redact

import "strings"

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

// MinLen is the shortest value String will redact; shorter values would
// match common substrings.
const MinLen = 4

// String replaces every occurrence of each secret in s with Placeholder.
func String(s string, secrets ...string) string {
	for _, v := range secrets {
		if len(v) < MinLen {
			continue
		}
		s = strings.ReplaceAll(s, v, Placeholder)
	}
	return s
}

// Usable drops empty and too-short values so a hot path can skip them once.
func Usable(secrets []string) []string {
	var out []string
	for _, s := range secrets {
		if len(s) >= MinLen {
			out = append(out, s)
		}
	}
	return out
}

var sensitiveWords = []string{"password", "passwd", "token", "secret", "api_key", "apikey", "credential", "authorization"}

// SensitiveKey reports whether an attribute or field name suggests it
// holds a secret ("access_token", "NOTION_TOKEN", "api_key").
func SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, w := range sensitiveWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
