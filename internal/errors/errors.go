// Package errors defines the error taxonomy of the quill compilation
// pipeline.
//
// Errors split into two families. Compile errors (LexError, ParseError,
// SecurityError) are fatal for a template: a template that fails to compile
// is never cached and never rendered, and every compile error carries the
// source position it was raised at. Render errors (RenderError) are fatal
// for a single render call only; the compiled template that produced one
// remains valid and reusable with other contexts.
package errors

import (
	"errors"
	"fmt"
)

// LexError reports an unterminated or malformed marker found while
// tokenizing template source.
type LexError struct {
	Message string
	Line    int
	Column  int
	Offset  int
}

// Error implements the error interface
func (e *LexError) Error() string {
	return fmt.Sprintf("%d:%d: lex error: %s", e.Line, e.Column, e.Message)
}

// ParseError reports a structural error found while building the AST:
// unmatched block terminators, stray else markers, malformed expressions,
// or references to partials that are not defined anywhere.
type ParseError struct {
	Message string
	Line    int
	Column  int
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: parse error: %s", e.Line, e.Column, e.Message)
}

// SecurityViolation identifies the class of construct the validator
// rejected.
type SecurityViolation int

const (
	ViolationDisallowedTag SecurityViolation = iota
	ViolationInlineHandler
	ViolationUnsafeURL
	ViolationDisallowedAttribute
)

// String returns the string representation of the violation
func (v SecurityViolation) String() string {
	switch v {
	case ViolationDisallowedTag:
		return "disallowed tag"
	case ViolationInlineHandler:
		return "inline event handler"
	case ViolationUnsafeURL:
		return "unsafe url scheme"
	case ViolationDisallowedAttribute:
		return "disallowed attribute"
	default:
		return "unknown violation"
	}
}

// SecurityError reports a construct rejected by the security validator.
// Node describes the offending node in source terms (tag or attribute
// name plus the value that triggered the rejection).
type SecurityError struct {
	Kind   SecurityViolation
	Node   string
	Line   int
	Column int
}

// Error implements the error interface
func (e *SecurityError) Error() string {
	return fmt.Sprintf("%d:%d: security error: %s: %s", e.Line, e.Column, e.Kind, e.Node)
}

// RenderErrorKind identifies why a render call failed.
type RenderErrorKind int

const (
	UnknownHelper RenderErrorKind = iota
	TypeMismatch
	UnresolvedPath
	UnsafeURL
	BadPartial
)

// String returns the string representation of the render error kind
func (k RenderErrorKind) String() string {
	switch k {
	case UnknownHelper:
		return "unknown helper"
	case TypeMismatch:
		return "type mismatch"
	case UnresolvedPath:
		return "unresolved path"
	case UnsafeURL:
		return "unsafe url"
	case BadPartial:
		return "bad partial"
	default:
		return "unknown"
	}
}

// RenderError reports a failure during a render call. Name carries the
// helper or partial name for UnknownHelper/BadPartial, Expr the failing
// expression for the other kinds.
type RenderError struct {
	Kind    RenderErrorKind
	Name    string
	Expr    string
	Message string
}

// Error implements the error interface
func (e *RenderError) Error() string {
	subject := e.Name
	if subject == "" {
		subject = e.Expr
	}
	if e.Message != "" {
		return fmt.Sprintf("render error: %s: %s: %s", e.Kind, subject, e.Message)
	}
	return fmt.Sprintf("render error: %s: %s", e.Kind, subject)
}

// IsCompileError reports whether err belongs to the compile-time family.
// Templates that produce a compile error must not be cached or rendered.
func IsCompileError(err error) bool {
	var le *LexError
	var pe *ParseError
	var se *SecurityError
	return errors.As(err, &le) || errors.As(err, &pe) || errors.As(err, &se)
}

// IsRenderError reports whether err is a render-time failure that leaves
// the compiled template reusable.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}
