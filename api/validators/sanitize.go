package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims the input and caps it at maxLen characters, the same
// unit the validator's max tag counts. Invalid UTF-8 is replaced.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(strings.ToValidUTF8(input, "\uFFFD"))
	if maxLen <= 0 || utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}
	count := 0
	for i := range trimmed {
		if count == maxLen {
			return trimmed[:i]
		}
		count++
	}
	return trimmed
}
