// Package sanitize strips unsafe markup from user-supplied event text.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	StrictPolicy = bluemonday.StrictPolicy()

	// UGCPolicy allows safe user-generated formatting such as <p>, <b>, <a>, lists.
	UGCPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML and returns trimmed plain text. Entities produced by
// the policy are decoded because titles are served as JSON, not HTML.
func Text(input string) string {
	return strings.TrimSpace(html.UnescapeString(StrictPolicy.Sanitize(input)))
}

// HTML keeps safe formatting and drops scripts, frames, event handlers and styles.
func HTML(input string) string {
	return strings.TrimSpace(UGCPolicy.Sanitize(input))
}
