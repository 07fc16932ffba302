package lexer

import "fmt"

// Kind classifies a token.
type Kind int

const (
	TokenText        Kind = iota // plain text run
	TokenExprOpen                // {{
	TokenRawOpen                 // {{&
	TokenHelperOpen              // {{~
	TokenBlockOpen               // {{#
	TokenBlockClose              // {{/
	TokenPartialOpen             // {{>
	TokenComment                 // {{! ... }} including the close
	TokenExprClose               // }}
	TokenIdent                   // names, keywords, @-variables
	TokenNumber                  // 12, 3.25
	TokenString                  // 'foo', "foo"
	TokenPunct                   // operators and punctuation
	TokenEOF
	TokenError
)

// String returns the string representation of the token kind
func (k Kind) String() string {
	switch k {
	case TokenText:
		return "text"
	case TokenExprOpen:
		return "{{"
	case TokenRawOpen:
		return "{{&"
	case TokenHelperOpen:
		return "{{~"
	case TokenBlockOpen:
		return "{{#"
	case TokenBlockClose:
		return "{{/"
	case TokenPartialOpen:
		return "{{>"
	case TokenComment:
		return "comment"
	case TokenExprClose:
		return "}}"
	case TokenIdent:
		return "ident"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenPunct:
		return "punct"
	case TokenEOF:
		return "eof"
	case TokenError:
		return "error"
	default:
		return "unknown"
	}
}

// Position is a location in template source. Line and Column are 1-based,
// Offset is the byte offset from the start of the source.
type Position struct {
	Line   int
	Column int
	Offset int
}

// String returns the string representation of the position
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is one lexed unit. Tokens are immutable once produced.
type Token struct {
	Kind  Kind
	Value string
	Pos   Position
}

// String returns the string representation of the token
func (t Token) String() string {
	if t.Kind == TokenText && len(t.Value) > 24 {
		return fmt.Sprintf("%s(%q...)", t.Kind, t.Value[:24])
	}
	return fmt.Sprintf("%s(%q)", t.Kind, t.Value)
}
