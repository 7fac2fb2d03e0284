package utils

import (
	"log"
	"regexp"
	"strings"
)

// Logf prints consistent server logs.
func Logf(format string, v ...any) {
	log.Printf("[Quill] "+format, v...)
}

// ErrJSON produces a standard JSON error response.
func ErrJSON(msg string) map[string]any {
	return map[string]any{
		"ok":    false,
		"error": msg,
	}
}

var unsafeFilenameRX = regexp.MustCompile(`[^0-9A-Za-z._\-]+`)

// SanitizeFilename reduces a name to a filesystem-safe token.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeFilenameRX.ReplaceAllString(name, "-")
	return strings.Trim(name, "-.")
}
