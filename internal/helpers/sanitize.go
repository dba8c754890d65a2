package helpers

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	plainTextOnce   sync.Once
	plainTextPolicy *bluemonday.Policy
)

// PlainTextPolicy returns a singleton bluemonday policy that strips every
// element and attribute, including the contents of script and style blocks.
func PlainTextPolicy() *bluemonday.Policy {
	plainTextOnce.Do(func() {
		plainTextPolicy = bluemonday.StrictPolicy()
	})
	return plainTextPolicy
}

// StripMarkup reduces an HTML fragment to readable plain text: tags and
// script/style bodies removed, entities decoded, whitespace collapsed. Tool
// APIs hand back event descriptions and snippets as raw HTML, so everything
// surfaced to the model goes through here first.
func StripMarkup(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return NormalizeWhitespace(html.UnescapeString(PlainTextPolicy().Sanitize(s)))
}
