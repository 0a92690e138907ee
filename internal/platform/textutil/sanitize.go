package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips markup, normalises to NFC, collapses whitespace runs, and truncates to maxRunes.
// A non-positive maxRunes disables truncation.
func PlainText(value string, maxRunes int) string {
	cleaned := html.UnescapeString(strictPolicy.Sanitize(value))
	cleaned = norm.NFC.String(cleaned)

	var b strings.Builder
	b.Grow(len(cleaned))
	space := false
	count := 0
	for _, r := range strings.TrimSpace(cleaned) {
		if unicode.IsSpace(r) {
			if space {
				continue
			}
			space = true
			r = ' '
		} else {
			if unicode.IsControl(r) {
				continue
			}
			space = false
		}
		if maxRunes > 0 && count == maxRunes {
			break
		}
		b.WriteRune(r)
		count++
	}
	return strings.TrimSpace(b.String())
}
