package services

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlug   = regexp.MustCompile(`[^a-z0-9]+`)
	multiDash = regexp.MustCompile(`-+`)
)

// MakeSlug builds a URL-safe token from title and artist.
// Example: "Blue Horizon", "Jürgen Maß" -> "blue-horizon-jurgen-ma"
func MakeSlug(title, artist string) string {
	base := strings.TrimSpace(title + " " + artist)

	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, base); err == nil {
		base = folded
	}

	base = strings.ToLower(base)
	base = nonSlug.ReplaceAllString(base, "-")
	base = multiDash.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")

	if base == "" {
		base = "artwork"
	}
	return base
}
