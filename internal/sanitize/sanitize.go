// Package sanitize cleans text that comes from outside authportal (the auth
// API's error messages, user-agent strings) before it is shown or stored.
// Uses bluemonday's strict policy, which strips every tag and leaves text.
package sanitize

import (
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// maxTextLen caps the length of sanitized text in runes.
const maxTextLen = 300

// policy is the singleton bluemonday policy. Initialized once via sync.Once
// for thread-safe lazy initialization.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text strips markup and control characters from input, collapses
// whitespace and truncates to a display-friendly length. The result is
// plain text: it still has to be escaped on output like any other string.
func Text(input string) string {
	if input == "" {
		return ""
	}
	// StrictPolicy entity-encodes what it keeps; undo that so templates
	// don't double-escape.
	stripped := html.UnescapeString(getPolicy().Sanitize(input))

	stripped = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, stripped)
	stripped = strings.Join(strings.Fields(stripped), " ")

	if runes := []rune(stripped); len(runes) > maxTextLen {
		stripped = string(runes[:maxTextLen]) + "…"
	}
	return stripped
}
