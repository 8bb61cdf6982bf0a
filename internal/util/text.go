package util

import "strings"

// SanitizeDBText drops invalid UTF-8 and NUL bytes, both of which Postgres
// rejects in text columns.
func SanitizeDBText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// Preview shortens s to at most n runes for log output.
func Preview(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
