package helpers

import (
	"regexp"
	"strings"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Shorten truncates s to at most width characters, appending placeholder when
// truncation happens. It prefers breaking at a word boundary near the cut so
// the placeholder never splits a word. The result, placeholder included, never
// exceeds width.
func Shorten(s string, width int, placeholder string) string {
	if width <= 0 {
		return ""
	}
	if len(s) <= width {
		return s
	}
	cut := width - len(placeholder)
	if cut <= 0 {
		return placeholder[:width]
	}
	head := s[:cut]
	if idx := strings.LastIndexByte(head, ' '); idx > 0 {
		head = head[:idx]
	}
	return strings.TrimRight(head, " ") + placeholder
}

// NormalizeWhitespace collapses runs of whitespace into single spaces and trims
// the ends.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
