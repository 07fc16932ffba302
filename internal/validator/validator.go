// Package validator rejects structurally unsafe templates after parsing
// and before any code generation.
//
// Validation is a single total walk over the AST, strictly separate from
// rendering: a template that fails here is never compiled, cached or
// rendered, which lets adversarial templates be tested without ever being
// executed.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conneroisu/quill/internal/ast"
	qerrors "github.com/conneroisu/quill/internal/errors"
	"github.com/conneroisu/quill/internal/escape"
)

// Policy configures what markup a template may produce.
type Policy struct {
	// AllowedTags is the element allow-list. Nil selects DefaultTags.
	// script is rejected regardless of the configured set.
	AllowedTags map[string]bool

	// AllowedAttributes restricts attribute names when non-nil. The
	// engine's structured on-* binding attributes and data-* attributes
	// are always permitted; native on* handler attributes never are.
	AllowedAttributes map[string]bool
}

// DefaultTags is the built-in element allow-list.
func DefaultTags() map[string]bool {
	tags := []string{
		"a", "abbr", "article", "aside", "audio", "b", "blockquote", "br",
		"button", "caption", "code", "col", "colgroup", "dd", "div", "dl",
		"dt", "em", "fieldset", "figcaption", "figure", "footer", "form",
		"h1", "h2", "h3", "h4", "h5", "h6", "header", "hr", "i", "img",
		"input", "label", "legend", "li", "main", "nav", "ol", "optgroup",
		"option", "p", "pre", "section", "select", "small", "source",
		"span", "strong", "sub", "sup", "table", "tbody", "td", "textarea",
		"tfoot", "th", "thead", "time", "tr", "u", "ul", "video",
	}
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}

// inlineHandlerPattern matches native event handler attributes such as
// onclick. The engine's own on-click style binding carries a handler name
// for the mounting layer and never executes as code, so it is exempt.
var inlineHandlerPattern = regexp.MustCompile(`^on[a-z]+$`)

// Validate walks the whole tree once and returns the first violation.
func Validate(root *ast.Root, policy Policy) error {
	tags := policy.AllowedTags
	if tags == nil {
		tags = DefaultTags()
	}
	var violation *qerrors.SecurityError
	ast.Inspect(root, func(n ast.Node) bool {
		if violation != nil {
			return false
		}
		elem, ok := n.(*ast.Element)
		if !ok {
			return true
		}
		violation = checkElement(elem, tags, policy.AllowedAttributes)
		return violation == nil
	})
	if violation != nil {
		return violation
	}
	return nil
}

func checkElement(elem *ast.Element, tags, attrs map[string]bool) *qerrors.SecurityError {
	tag := strings.ToLower(elem.Tag)
	if tag == "script" || !tags[tag] {
		return securityError(qerrors.ViolationDisallowedTag, elem.Span(), "<%s>", tag)
	}
	for _, attr := range elem.Attrs {
		name := strings.ToLower(attr.Name)
		if inlineHandlerPattern.MatchString(name) {
			return securityError(qerrors.ViolationInlineHandler, attr.Span(), "%s=%q", name, attr.Value)
		}
		if structuredBinding(name) || strings.HasPrefix(name, "data-") {
			continue
		}
		if attrs != nil && !attrs[name] {
			return securityError(qerrors.ViolationDisallowedAttribute, attr.Span(), "%s", name)
		}
		if (name == "href" || name == "src") && escape.HasUnsafeScheme(attr.Value) {
			return securityError(qerrors.ViolationUnsafeURL, attr.Span(), "%s=%q", name, attr.Value)
		}
	}
	return nil
}

// structuredBinding reports whether the attribute is the engine's own
// event-binding syntax (on-click, on-submit, ...).
func structuredBinding(name string) bool {
	return strings.HasPrefix(name, "on-") && len(name) > 3
}

func securityError(kind qerrors.SecurityViolation, span ast.Span, format string, args ...any) *qerrors.SecurityError {
	return &qerrors.SecurityError{
		Kind:   kind,
		Node:   fmt.Sprintf(format, args...),
		Line:   span.Line,
		Column: span.Column,
	}
}
