package logger

import (
	"sort"
	"strings"
)

// MaskSensitive shortens a secret for logging: first 5 and last 5 characters
// with the middle elided. Values of 10 characters or fewer are fully masked.
func MaskSensitive(value string) string {
	if len(value) <= 10 {
		return "***"
	}
	return value[:5] + "***" + value[len(value)-5:]
}

// MaskCookies renders a cookie map with every value masked, for debug logs
// that must never leak live session material.
func MaskCookies(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+MaskSensitive(cookies[name]))
	}
	return strings.Join(pairs, ", ")
}
