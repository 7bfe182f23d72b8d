// Package textutil provides the small text transforms the stores share:
// normalization for duplicate detection and excerpting for rollup
// summaries.
package textutil

import (
	"regexp"
	"strings"
)

var (
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lowercases text, strips punctuation, and collapses whitespace.
// Two facts that normalize identically are treated as duplicates.
func Normalize(text string) string {
	t := strings.ToLower(text)
	t = punctRe.ReplaceAllString(t, "")
	t = spaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// Excerpt returns the first line of text, truncated to max runes with an
// ellipsis when shortened.
func Excerpt(text string, max int) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	r := []rune(line)
	if len(r) <= max {
		return line
	}
	return string(r[:max]) + "..."
}
