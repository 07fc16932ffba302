// Package escape HTML-escapes interpolated values and re-checks
// runtime-bound URL values for unsafe schemes.
//
// Escaping is the default for every interpolation; the only bypass is the
// parse-time raw marker, which is baked into the AST before any data is
// seen, so data content can never toggle escaping off.
package escape

import (
	"strings"

	qerrors "github.com/conneroisu/quill/internal/errors"
)

// escaper covers the five characters that break out of HTML text and
// attribute contexts. Written out rather than delegated so the escaped
// set is auditable next to the validator policy.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// HTML escapes a value for interpolation into markup.
func HTML(s string) string {
	return escaper.Replace(s)
}

// unsafeSchemes are URL schemes that execute or smuggle code when placed
// in href/src attributes.
var unsafeSchemes = []string{"javascript:", "vbscript:", "data:"}

// HasUnsafeScheme reports whether a URL value begins with a scheme that
// must never reach a href/src attribute. Whitespace and control
// characters are stripped first because browsers ignore them when
// parsing schemes.
func HasUnsafeScheme(value string) bool {
	var b strings.Builder
	for _, r := range value {
		if r <= ' ' {
			continue
		}
		b.WriteRune(r)
		if b.Len() > 16 {
			break
		}
	}
	cleaned := strings.ToLower(b.String())
	for _, scheme := range unsafeSchemes {
		if strings.HasPrefix(cleaned, scheme) {
			return true
		}
	}
	return false
}

// CheckURL is the render-time re-check for interpolations that sit in a
// href/src value position. Compile-time constant URLs are handled by the
// validator; values bound from data are only knowable here.
func CheckURL(value string) error {
	if HasUnsafeScheme(value) {
		return &qerrors.RenderError{
			Kind:    qerrors.UnsafeURL,
			Message: "url value has unsafe scheme",
		}
	}
	return nil
}
