package collector

import (
	"regexp"
	"strings"
)

// Field length caps for the lead-capture form.
const (
	MaxNameLen       = 99
	MaxEmailLen      = 99
	MaxOccupationLen = 49
	MaxUseCaseLen    = 499
	MaxEmailTotalLen = 100
)

var (
	dangerousChars = regexp.MustCompile(`[<>"'&]`)
	emailShape     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	statKeyUnsafe  = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// SanitizeInput trims, caps the length, and strips the characters that
// could carry stored markup if this value is ever rendered.
func SanitizeInput(input string, maxLength int) string {
	s := strings.TrimSpace(input)
	if runes := []rune(s); len(runes) > maxLength {
		s = string(runes[:maxLength])
	}
	return dangerousChars.ReplaceAllString(s, "")
}

// ValidateEmail enforces the RFC-light local@domain.tld shape.
func ValidateEmail(email string) bool {
	return emailShape.MatchString(email) && len(email) <= MaxEmailTotalLen
}

// SanitizeStatKey turns an arbitrary label into a storage-safe counter
// key: every non-alphanumeric character becomes an underscore.
func SanitizeStatKey(label string) string {
	return statKeyUnsafe.ReplaceAllString(label, "_")
}
