package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxPathLength is the maximum length for URL paths in logs
	MaxPathLength = 500
	// MaxTimelineIDLength is the maximum length for timeline IDs in logs
	MaxTimelineIDLength = 128
	// MaxErrorMessageLength is the maximum length for error messages in logs
	MaxErrorMessageLength = 1000
	// MaxGeneralStringLength is the maximum length for general strings in logs
	MaxGeneralStringLength = 2000
	// MaxFactoidLength is the maximum length for raw factoids in logs
	MaxFactoidLength = 300
)

// SanitizePath sanitizes a URL path for safe logging
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeString removes control characters, repairs UTF-8 and truncates to maxLength
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	s = sanitizeFilterRunes(s)
	if len(s) > maxLength {
		s = truncate(s, maxLength) + "..."
	}
	return s
}

// SanitizeFactoid flattens a raw factoid to one line for logging. Factoids
// may carry a multi-line description.
func SanitizeFactoid(raw string) string {
	raw = strings.NewReplacer("\r\n", " | ", "\n", " | ", "\r", " | ").Replace(raw)
	return SanitizeString(raw, MaxFactoidLength)
}

// SanitizeError sanitizes an error message for safe logging
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// SanitizeTimelineID sanitizes a timeline ID for safe logging
func SanitizeTimelineID(timelineID string) string {
	return SanitizeString(timelineID, MaxTimelineIDLength)
}

// sanitizeFilterRunes validates UTF-8 and removes control characters (keeps printable, space, tab, newline, CR).
func sanitizeFilterRunes(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
