// Package text holds rune-safe helpers for splitting and bounding chat
// messages. Every length in this package is measured in runes, never bytes,
// so Hangul and CJK text is never cut mid-character.
package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkSize is the maximum runes per delivered chunk when callers do
// not configure one.
const DefaultChunkSize = 1900

// Chunk splits s into consecutive pieces of at most size runes. Joining the
// returned pieces yields s unchanged. An empty s returns nil.
//
// Splits prefer the last newline inside the window so that paragraphs stay
// intact; when a window has no newline the split is a hard cut at size.
func Chunk(s string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if s == "" {
		return nil
	}

	var chunks []string
	rest := []rune(s)
	for len(rest) > size {
		cut := size
		if i := lastNewline(rest[:size]); i > 0 {
			cut = i + 1 // keep the newline with the preceding chunk
		}
		chunks = append(chunks, string(rest[:cut]))
		rest = rest[cut:]
	}
	if len(rest) > 0 {
		chunks = append(chunks, string(rest))
	}
	return chunks
}

func lastNewline(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == '\n' {
			return i
		}
	}
	return -1
}

// Truncate returns s cut to at most max runes and reports whether it cut
// anything. max <= 0 disables truncation.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	rs := []rune(s)
	return string(rs[:max]), true
}

// Len returns the rune length of s.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// HasHanRun reports whether s contains at least one Han ideograph. Hangul
// syllables do not count.
func HasHanRun(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// IsBlank reports whether s is empty or only whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
