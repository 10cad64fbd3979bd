package validation

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const maxArtworkIDLength = 64

var (
	artworkIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	ugcPolicy      = bluemonday.UGCPolicy()
)

// ValidateArtworkID reports whether id is usable as an artwork identifier.
// Identifiers name media directories, so they must be a single safe path token.
func ValidateArtworkID(id string) bool {
	if id == "" || len(id) > maxArtworkIDLength {
		return false
	}
	if strings.Contains(id, "..") {
		return false
	}
	return artworkIDRegex.MatchString(id)
}

// SanitizeString removes potentially harmful characters
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// SanitizeText normalizes free text for storage: NUL bytes are dropped, line
// endings become \n and surrounding whitespace is trimmed. Markup is kept as typed.
func SanitizeText(input string) string {
	input = SanitizeString(input)
	return strings.ReplaceAll(input, "\r\n", "\n")
}

// SafeHTML renders stored free text as HTML through the UGC policy, so simple
// formatting survives and scripts, handlers and unknown tags do not.
func SafeHTML(input string) string {
	return ugcPolicy.Sanitize(input)
}
