// Package words counts words in transcribed page content.
package words

import (
	"regexp"
	"unicode"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Count strips markup from s and counts maximal runs of Unicode letter,
// mark, or number characters. Combining marks extend the current run, so
// a diacritic-bearing Arabic token counts as a single word.
func Count(s string) int {
	if s == "" {
		return 0
	}
	stripped := tagPattern.ReplaceAllString(s, " ")

	count := 0
	inWord := false
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r) {
			if !inWord {
				count++
				inWord = true
			}
		} else {
			inWord = false
		}
	}
	return count
}

// CountAll sums Count over all parts.
func CountAll(parts ...string) int {
	total := 0
	for _, p := range parts {
		total += Count(p)
	}
	return total
}
