// Package parser builds the template AST by recursive descent over the
// lexer's token stream. Parsing is a pure function of the source text and
// the set of globally registered partial names; it performs no rendering
// and no I/O.
package parser

import (
	"regexp"

	"github.com/conneroisu/quill/internal/ast"
	qerrors "github.com/conneroisu/quill/internal/errors"
	"github.com/conneroisu/quill/internal/lexer"
)

// Options configures one parse call.
type Options struct {
	// PartialDefined reports whether a partial name is registered
	// globally. Local {{#partial}} definitions seen earlier in the same
	// template are checked first; a reference matching neither fails the
	// parse. Nil means no global partials exist.
	PartialDefined func(name string) bool

	// RawOutput permits the {{& expr}} raw marker. When false the marker
	// is a parse error, so raw output cannot be smuggled into an engine
	// configured without it.
	RawOutput bool
}

// Parse builds the AST for one template source.
func Parse(source string, opts Options) (*ast.Root, error) {
	p := &parser{
		stream: lexer.Tokenize(source),
		opts:   opts,
		locals: make(map[string]bool),
	}
	children, end, err := p.parseChildren("", lexer.Position{Line: 1, Column: 1})
	if err != nil {
		return nil, err
	}
	if end.kind != termEOF {
		return nil, p.errAt(end.pos, "unexpected block terminator")
	}
	return &ast.Root{
		Children: children,
		Pos:      ast.Span{Line: 1, Column: 1},
	}, nil
}

type parser struct {
	stream *lexer.Stream
	buf    []lexer.Token
	opts   Options
	locals map[string]bool
	// lastText is the verbatim text immediately preceding the marker
	// being parsed, used to detect href/src value positions.
	lastText string
	// carry is the start tag the previous text run ended inside of, when
	// a marker interrupted its attribute region.
	carry *openTag
}

type terminator int

const (
	termEOF terminator = iota
	termBlockEnd
	termElse
	termElseIf
)

type bodyEnd struct {
	kind terminator
	cond ast.Expr
	pos  lexer.Position
}

func (p *parser) next() lexer.Token {
	if len(p.buf) > 0 {
		t := p.buf[0]
		p.buf = p.buf[1:]
		return t
	}
	return p.stream.Next()
}

// peek looks ahead n tokens (n >= 1) without consuming.
func (p *parser) peek(n int) lexer.Token {
	for len(p.buf) < n {
		p.buf = append(p.buf, p.stream.Next())
	}
	return p.buf[n-1]
}

func (p *parser) errAt(pos lexer.Position, msg string) *qerrors.ParseError {
	return &qerrors.ParseError{Message: msg, Line: pos.Line, Column: pos.Column}
}

// lexFailure surfaces the lexer's own error when a TokenError arrives.
func (p *parser) lexFailure(tok lexer.Token) error {
	if err := p.stream.Err(); err != nil {
		return err
	}
	return &qerrors.LexError{
		Message: tok.Value,
		Line:    tok.Pos.Line,
		Column:  tok.Pos.Column,
		Offset:  tok.Pos.Offset,
	}
}

func (p *parser) expectIdent() (lexer.Token, error) {
	tok := p.next()
	if tok.Kind != lexer.TokenIdent {
		return tok, p.errAt(tok.Pos, "expected identifier, got "+tok.Kind.String())
	}
	return tok, nil
}

func (p *parser) expectClose() error {
	tok := p.next()
	if tok.Kind != lexer.TokenExprClose {
		if tok.Kind == lexer.TokenError {
			return p.lexFailure(tok)
		}
		return p.errAt(tok.Pos, "expected }}, got "+tok.Kind.String())
	}
	return nil
}

func (p *parser) acceptPunct(value string) bool {
	if t := p.peek(1); t.Kind == lexer.TokenPunct && t.Value == value {
		p.next()
		return true
	}
	return false
}

func (p *parser) expectPunct(value string) error {
	tok := p.next()
	if tok.Kind != lexer.TokenPunct || tok.Value != value {
		return p.errAt(tok.Pos, "expected "+value)
	}
	return nil
}

// urlValuePattern matches text that ends inside a href/src attribute
// value, which flags the following interpolation for the render-time URL
// scheme re-check.
var urlValuePattern = regexp.MustCompile(`(?i)(href|src)\s*=\s*["']?$`)

// parseChildren parses nodes until the matching terminator for blockName
// ("" at top level, terminated by EOF).
func (p *parser) parseChildren(blockName string, openPos lexer.Position) ([]ast.Node, bodyEnd, error) {
	var nodes []ast.Node
	for {
		tok := p.next()
		switch tok.Kind {
		case lexer.TokenEOF:
			if blockName != "" {
				return nil, bodyEnd{}, p.errAt(openPos, "unclosed {{#"+blockName+"}} block")
			}
			return nodes, bodyEnd{kind: termEOF, pos: tok.Pos}, nil

		case lexer.TokenError:
			return nil, bodyEnd{}, p.lexFailure(tok)

		case lexer.TokenText:
			nodes = append(nodes, p.scanText(tok.Value, tok.Pos)...)
			p.lastText = tok.Value

		case lexer.TokenComment:
			// Comments emit nothing and are dropped here.

		case lexer.TokenExprOpen:
			if t := p.peek(1); t.Kind == lexer.TokenIdent && t.Value == "else" {
				end, err := p.parseElseMarker(blockName, tok.Pos)
				if err != nil {
					return nil, bodyEnd{}, err
				}
				return nodes, end, nil
			}
			n, err := p.parseInterpolation(tok.Pos, false)
			if err != nil {
				return nil, bodyEnd{}, err
			}
			nodes = append(nodes, n)
			p.lastText = ""

		case lexer.TokenRawOpen:
			if !p.opts.RawOutput {
				return nil, bodyEnd{}, p.errAt(tok.Pos, "raw output is disabled")
			}
			n, err := p.parseInterpolation(tok.Pos, true)
			if err != nil {
				return nil, bodyEnd{}, err
			}
			nodes = append(nodes, n)
			p.lastText = ""

		case lexer.TokenHelperOpen:
			n, err := p.parseHelperCall(tok.Pos)
			if err != nil {
				return nil, bodyEnd{}, err
			}
			nodes = append(nodes, n)
			p.lastText = ""

		case lexer.TokenBlockOpen:
			n, err := p.parseBlock(tok.Pos)
			if err != nil {
				return nil, bodyEnd{}, err
			}
			nodes = append(nodes, n)
			p.lastText = ""

		case lexer.TokenBlockClose:
			name, err := p.expectIdent()
			if err != nil {
				return nil, bodyEnd{}, err
			}
			if err := p.expectClose(); err != nil {
				return nil, bodyEnd{}, err
			}
			if name.Value != blockName {
				return nil, bodyEnd{}, p.errAt(tok.Pos, "unmatched block terminator {{/"+name.Value+"}}")
			}
			return nodes, bodyEnd{kind: termBlockEnd, pos: tok.Pos}, nil

		case lexer.TokenPartialOpen:
			n, err := p.parsePartialRef(tok.Pos)
			if err != nil {
				return nil, bodyEnd{}, err
			}
			nodes = append(nodes, n)
			p.lastText = ""

		default:
			return nil, bodyEnd{}, p.errAt(tok.Pos, "unexpected token "+tok.Kind.String())
		}
	}
}

// parseElseMarker consumes {{else}} or {{else if cond}} after the opening
// delimiter, validating it against the enclosing block.
func (p *parser) parseElseMarker(blockName string, pos lexer.Position) (bodyEnd, error) {
	p.next() // else
	switch blockName {
	case "if", "unless", "each":
	default:
		return bodyEnd{}, p.errAt(pos, "{{else}} outside of if, unless or each")
	}
	if t := p.peek(1); t.Kind == lexer.TokenIdent && t.Value == "if" {
		if blockName != "if" {
			return bodyEnd{}, p.errAt(pos, "{{else if}} is only valid inside {{#if}}")
		}
		p.next()
		cond, err := p.parseExpr()
		if err != nil {
			return bodyEnd{}, err
		}
		if err := p.expectClose(); err != nil {
			return bodyEnd{}, err
		}
		return bodyEnd{kind: termElseIf, cond: cond, pos: pos}, nil
	}
	if err := p.expectClose(); err != nil {
		return bodyEnd{}, err
	}
	return bodyEnd{kind: termElse, pos: pos}, nil
}

func (p *parser) parseInterpolation(pos lexer.Position, raw bool) (ast.Node, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectClose(); err != nil {
		return nil, err
	}
	return &ast.Interpolation{
		Expr:       expr,
		Raw:        raw,
		URLContext: !raw && urlValuePattern.MatchString(p.lastText),
		Pos:        ast.SpanAt(pos),
	}, nil
}

func (p *parser) parseHelperCall(pos lexer.Position) (ast.Node, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	var args []ast.Expr
	for {
		t := p.peek(1)
		if t.Kind == lexer.TokenExprClose {
			p.next()
			break
		}
		if t.Kind == lexer.TokenEOF || t.Kind == lexer.TokenError {
			return nil, p.errAt(pos, "unterminated helper call")
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return &ast.HelperCall{Name: name.Value, Args: args, Pos: ast.SpanAt(pos)}, nil
}

func (p *parser) parseBlock(pos lexer.Position) (ast.Node, error) {
	keyword, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch keyword.Value {
	case "if":
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectClose(); err != nil {
			return nil, err
		}
		return p.parseIfTail(cond, pos)
	case "unless":
		return p.parseUnless(pos)
	case "each":
		return p.parseEach(pos)
	case "with":
		return p.parseWith(pos)
	case "partial":
		return p.parsePartialDef(pos)
	default:
		return nil, p.errAt(keyword.Pos, "unknown block "+keyword.Value)
	}
}

// parseIfTail parses the body of an if whose condition and closing }} have
// already been consumed, lowering any else-if chain into nested If nodes.
func (p *parser) parseIfTail(cond ast.Expr, pos lexer.Position) (*ast.If, error) {
	then, end, err := p.parseChildren("if", pos)
	if err != nil {
		return nil, err
	}
	node := &ast.If{Cond: cond, Then: then, Pos: ast.SpanAt(pos)}
	switch end.kind {
	case termBlockEnd:
		return node, nil
	case termElse:
		els, end2, err := p.parseChildren("if", pos)
		if err != nil {
			return nil, err
		}
		if end2.kind != termBlockEnd {
			return nil, p.errAt(end2.pos, "duplicate {{else}} in if block")
		}
		node.Else = els
		return node, nil
	case termElseIf:
		inner, err := p.parseIfTail(end.cond, end.pos)
		if err != nil {
			return nil, err
		}
		node.Else = []ast.Node{inner}
		return node, nil
	default:
		return nil, p.errAt(pos, "unclosed {{#if}} block")
	}
}

func (p *parser) parseUnless(pos lexer.Position) (*ast.Unless, error) {
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectClose(); err != nil {
		return nil, err
	}
	body, end, err := p.parseChildren("unless", pos)
	if err != nil {
		return nil, err
	}
	node := &ast.Unless{Cond: cond, Body: body, Pos: ast.SpanAt(pos)}
	if end.kind == termElse {
		els, end2, err := p.parseChildren("unless", pos)
		if err != nil {
			return nil, err
		}
		if end2.kind != termBlockEnd {
			return nil, p.errAt(end2.pos, "duplicate {{else}} in unless block")
		}
		node.Else = els
	}
	return node, nil
}

func (p *parser) parseEach(pos lexer.Position) (*ast.Each, error) {
	item, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	in, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if in.Value != "in" {
		return nil, p.errAt(in.Pos, "each syntax: {{#each item in sequence}}")
	}
	seq, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectClose(); err != nil {
		return nil, err
	}
	body, end, err := p.parseChildren("each", pos)
	if err != nil {
		return nil, err
	}
	node := &ast.Each{Item: item.Value, Seq: seq, Body: body, Pos: ast.SpanAt(pos)}
	if end.kind == termElse {
		els, end2, err := p.parseChildren("each", pos)
		if err != nil {
			return nil, err
		}
		if end2.kind != termBlockEnd {
			return nil, p.errAt(end2.pos, "duplicate {{else}} in each block")
		}
		node.Else = els
	}
	return node, nil
}

func (p *parser) parseWith(pos lexer.Position) (*ast.With, error) {
	target, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectClose(); err != nil {
		return nil, err
	}
	body, end, err := p.parseChildren("with", pos)
	if err != nil {
		return nil, err
	}
	if end.kind != termBlockEnd {
		return nil, p.errAt(end.pos, "unclosed {{#with}} block")
	}
	return &ast.With{Target: target, Body: body, Pos: ast.SpanAt(pos)}, nil
}

func (p *parser) parsePartialDef(pos lexer.Position) (*ast.PartialDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectClose(); err != nil {
		return nil, err
	}
	body, end, err := p.parseChildren("partial", pos)
	if err != nil {
		return nil, err
	}
	if end.kind != termBlockEnd {
		return nil, p.errAt(end.pos, "unclosed {{#partial}} block")
	}
	// Definition must precede any reference in the same template.
	p.locals[name.Value] = true
	return &ast.PartialDef{Name: name.Value, Body: body, Pos: ast.SpanAt(pos)}, nil
}

// parsePartialRef parses {{> name [contextExpr] [key=value]...}}. The
// name must be defined locally before this point or registered globally.
func (p *parser) parsePartialRef(pos lexer.Position) (*ast.PartialRef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	node := &ast.PartialRef{Name: name.Value, Pos: ast.SpanAt(pos)}
	for {
		t := p.peek(1)
		if t.Kind == lexer.TokenExprClose {
			p.next()
			break
		}
		if t.Kind == lexer.TokenEOF || t.Kind == lexer.TokenError {
			return nil, p.errAt(pos, "unterminated partial reference")
		}
		if t.Kind == lexer.TokenIdent {
			if eq := p.peek(2); eq.Kind == lexer.TokenPunct && eq.Value == "=" {
				p.next() // key
				p.next() // =
				val, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				node.Bindings = append(node.Bindings, ast.Binding{Key: t.Value, Value: val})
				continue
			}
		}
		if node.Context != nil {
			return nil, p.errAt(t.Pos, "partial reference takes at most one context expression")
		}
		ctx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Context = ctx
	}
	if !p.locals[name.Value] && (p.opts.PartialDefined == nil || !p.opts.PartialDefined(name.Value)) {
		return nil, p.errAt(pos, "partial "+name.Value+" is not defined")
	}
	return node, nil
}
