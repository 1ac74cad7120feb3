package utils

import (
	"html"
	"strings"
)

func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}

// Truncate cuts s to at most max bytes without leaving a partial UTF-8 sequence.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.ToValidUTF8(s[:max], "")
}

// SanitizeInput trims s, escapes HTML metacharacters and bounds the result to max bytes.
func SanitizeInput(s string, max int) string {
	return Truncate(html.EscapeString(strings.TrimSpace(s)), max)
}
