package grading

import "strings"

// normalize trims surrounding whitespace and case-folds. Inner whitespace
// and punctuation are significant.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
