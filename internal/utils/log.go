package utils

import "strings"

// TruncateForLog shortens the provided string to the specified limit, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	return TruncateRunes(s, limit, "...")
}

// TruncateRunes cuts s to at most limit runes and appends suffix when something was cut.
// It never splits a multi-byte character.
func TruncateRunes(s string, limit int, suffix string) string {
	if limit < 0 {
		limit = 0
	}
	count := 0
	for idx := range s {
		if count == limit {
			return s[:idx] + suffix
		}
		count++
	}
	return s
}
