package crud

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// passwordMinLength is the minimum number of characters of a password.
	passwordMinLength = 8

	// maxSimilarity is the ratio from which a password counts as too similar to an attribute.
	maxSimilarity = 0.7
)

// nonWordRegex splits on runs of anything but letters, digits and underscores, in any script.
var nonWordRegex = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// isNumeric reports whether s consists of digits only.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// tooSimilar reports whether the password resembles the attribute value
// (the username or the email address) or any of its word-separated parts.
// Comparison is case-insensitive.
func tooSimilar(password, value string) bool {
	if password == "" || value == "" {
		return false
	}
	password = strings.ToLower(password)
	value = strings.ToLower(value)
	pwLen := utf8.RuneCountInString(password)

	parts := append([]string{value}, nonWordRegex.Split(value, -1)...)
	for _, part := range parts {
		partLen := utf8.RuneCountInString(part)
		if partLen == 0 {
			continue
		}
		// A long password cannot be mostly made of a much shorter part.
		if pwLen >= 10*partLen && float64(partLen) < 0.35*float64(pwLen) {
			continue
		}
		if similarity(password, part) >= maxSimilarity {
			return true
		}
	}
	return false
}

// similarity returns 2*M/T, where T is the total number of characters of a and b
// and M the number of characters they have in common, regardless of position.
// It is an upper bound of the longest matching blocks ratio and cheap to compute.
func similarity(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	avail := make(map[rune]int)
	for _, r := range b {
		avail[r]++
	}
	matches := 0
	for _, r := range a {
		if avail[r] > 0 {
			avail[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}
