package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]*$`)
	controlRegex    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// MaxIdentifierLength bounds patient IDs, bed references and actor IDs
const MaxIdentifierLength = 64

// ValidateIdentifier checks a patient ID, bed reference or actor ID
func ValidateIdentifier(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(value) > MaxIdentifierLength {
		return fmt.Errorf("%s exceeds %d characters", field, MaxIdentifierLength)
	}
	if !identifierRegex.MatchString(value) {
		return fmt.Errorf("%s contains invalid characters: %q", field, value)
	}
	return nil
}

// SanitizeString removes control characters (keeping tab and newlines),
// trims surrounding space and truncates to maxRunes when positive.
func SanitizeString(s string, maxRunes int) string {
	s = strings.TrimSpace(controlRegex.ReplaceAllString(s, ""))
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		s = string([]rune(s)[:maxRunes])
	}
	return s
}
