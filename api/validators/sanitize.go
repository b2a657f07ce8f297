package validators

import "strings"

// SanitizeString trims surrounding whitespace and enforces maxLen (bytes).
// A maxLen of zero or less means unbounded.
func SanitizeString(input string, maxLen int) string {
	out := strings.TrimSpace(input)
	if maxLen <= 0 || len(out) <= maxLen {
		return out
	}
	return out[:maxLen]
}
