package realtime

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// textPolicy strips every tag and attribute, leaving only text content.
var textPolicy = bluemonday.StrictPolicy()

// SanitizeText removes all markup from user-supplied text and trims
// surrounding whitespace. Applied to every free-text field before length
// checks.
func SanitizeText(s string) string {
	return strings.TrimSpace(textPolicy.Sanitize(s))
}
