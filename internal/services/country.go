package services

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold strips combining marks so accented spellings compare equal to
// their ASCII forms.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// isSupportedShippingCountry accepts the native name, its ASCII-folded
// variant, the English name, and the ISO code. Shipping is Hungary only.
func isSupportedShippingCountry(country string) bool {
	normalised := strings.ToLower(strings.TrimSpace(country))
	if normalised == "" {
		return false
	}
	if folded, _, err := transform.String(asciiFold, normalised); err == nil {
		normalised = folded
	}
	switch normalised {
	case "magyarorszag", "hungary", "hu":
		return true
	}
	return false
}
