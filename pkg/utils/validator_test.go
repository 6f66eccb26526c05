package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCurrencyCode(t *testing.T) {
	for _, ok := range []string{"USD", "eur", " gbp "} {
		assert.NoError(t, ValidateCurrencyCode(ok), ok)
	}
	for _, bad := range []string{"", "US", "USDT", "U$D", "12A"} {
		assert.Error(t, ValidateCurrencyCode(bad), bad)
	}
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "taxi\tfare\nairport", SanitizeText("  taxi\tfare\nairport\x00\x1b "))
	assert.Len(t, []rune(SanitizeText(strings.Repeat("é", 3000))), maxTextLength)
}
