package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	controlCharRegex  = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
)

// maxTextLength caps free-text claim fields
const maxTextLength = 2000

// ValidateCurrencyCode checks for a three-letter ISO 4217 style code, case-insensitively
func ValidateCurrencyCode(code string) error {
	if !currencyCodeRegex.MatchString(strings.ToUpper(strings.TrimSpace(code))) {
		return fmt.Errorf("invalid currency code: %q", code)
	}
	return nil
}

// SanitizeText strips control characters (tabs and newlines are kept), trims and caps the length
func SanitizeText(s string) string {
	s = strings.TrimSpace(controlCharRegex.ReplaceAllString(s, ""))
	if r := []rune(s); len(r) > maxTextLength {
		s = string(r[:maxTextLength])
	}
	return s
}
