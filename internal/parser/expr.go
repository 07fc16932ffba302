package parser

import (
	"strconv"
	"strings"

	"github.com/conneroisu/quill/internal/ast"
	"github.com/conneroisu/quill/internal/eval"
	"github.com/conneroisu/quill/internal/lexer"
)

// Expression grammar, loosest to tightest binding:
//
//	ternary    cond ? a : b
//	or         || / or
//	and        && / and
//	equality   == !=
//	compare    < <= > >=
//	additive   + -
//	multiply   * / %
//	unary      ! -
//	postfix    path segments, [n] indexing, allow-listed method calls
//	primary    literal, path head, helper call, ( ... )
func (p *parser) parseExpr() (ast.Expr, error) {
	return p.parseTernary()
}

func (p *parser) parseTernary() (ast.Expr, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.acceptPunct("?") {
		return cond, nil
	}
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &ast.CondExpr{Cond: cond, Then: then, Else: els, Pos: cond.Span()}, nil
}

func (p *parser) parseOr() (ast.Expr, error) {
	return p.parseLogical("||", "or", p.parseAnd)
}

func (p *parser) parseAnd() (ast.Expr, error) {
	return p.parseLogical("&&", "and", p.parseEquality)
}

func (p *parser) parseLogical(punct, word string, next func() (ast.Expr, error)) (ast.Expr, error) {
	l, err := next()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek(1)
		isPunct := t.Kind == lexer.TokenPunct && t.Value == punct
		isWord := t.Kind == lexer.TokenIdent && t.Value == word
		if !isPunct && !isWord {
			return l, nil
		}
		p.next()
		r, err := next()
		if err != nil {
			return nil, err
		}
		l = &ast.BinaryExpr{Op: punct, L: l, R: r, Pos: l.Span()}
	}
}

func (p *parser) parseEquality() (ast.Expr, error) {
	return p.parseBinary([]string{"==", "!="}, p.parseComparison)
}

func (p *parser) parseComparison() (ast.Expr, error) {
	return p.parseBinary([]string{"<", "<=", ">", ">="}, p.parseAdditive)
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	return p.parseBinary([]string{"+", "-"}, p.parseMultiplicative)
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	return p.parseBinary([]string{"*", "/", "%"}, p.parseUnary)
}

func (p *parser) parseBinary(ops []string, next func() (ast.Expr, error)) (ast.Expr, error) {
	l, err := next()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek(1)
		if t.Kind != lexer.TokenPunct || !contains(ops, t.Value) {
			return l, nil
		}
		p.next()
		r, err := next()
		if err != nil {
			return nil, err
		}
		l = &ast.BinaryExpr{Op: t.Value, L: l, R: r, Pos: l.Span()}
	}
}

func (p *parser) parseUnary() (ast.Expr, error) {
	t := p.peek(1)
	if t.Kind == lexer.TokenPunct && (t.Value == "!" || t.Value == "-") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: t.Value, X: x, Pos: ast.SpanAt(t.Pos)}, nil
	}
	return p.parsePostfix()
}

// parsePostfix extends a primary with path segments, bracket indexing and
// allow-listed method calls.
func (p *parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek(1)
		if t.Kind != lexer.TokenPunct {
			return e, nil
		}
		switch t.Value {
		case ".":
			p.next()
			e, err = p.parseSegmentOrMethod(e)
			if err != nil {
				return nil, err
			}
		case "[":
			idx, err := p.parseIndexSegment()
			if err != nil {
				return nil, err
			}
			path, ok := e.(*ast.PathExpr)
			if !ok {
				return nil, p.errAt(t.Pos, "indexing is only valid on data paths")
			}
			path.Segments = append(path.Segments, ast.PathSeg{Index: idx, IsIndex: true})
		default:
			return e, nil
		}
	}
}

// parseSegmentOrMethod handles what follows a dot: a bracketed index, a
// plain path segment, or name( which is a method call checked against the
// allow-list at parse time.
func (p *parser) parseSegmentOrMethod(recv ast.Expr) (ast.Expr, error) {
	if t := p.peek(1); t.Kind == lexer.TokenPunct && t.Value == "[" {
		idx, err := p.parseIndexSegment()
		if err != nil {
			return nil, err
		}
		path, ok := recv.(*ast.PathExpr)
		if !ok {
			return nil, p.errAt(t.Pos, "indexing is only valid on data paths")
		}
		path.Segments = append(path.Segments, ast.PathSeg{Index: idx, IsIndex: true})
		return path, nil
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if t := p.peek(1); t.Kind == lexer.TokenPunct && t.Value == "(" {
		if !eval.IsAllowedMethod(name.Value) {
			return nil, p.errAt(name.Pos, "method "+name.Value+" is not permitted (allowed: "+
				strings.Join(eval.AllowedMethods(), ", ")+")")
		}
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return &ast.MethodExpr{Recv: recv, Name: name.Value, Args: args, Pos: ast.SpanAt(name.Pos)}, nil
	}
	path, ok := recv.(*ast.PathExpr)
	if !ok {
		return nil, p.errAt(name.Pos, "property access is only valid on data paths")
	}
	path.Segments = append(path.Segments, ast.PathSeg{Name: name.Value})
	return path, nil
}

// parseIndexSegment consumes [number].
func (p *parser) parseIndexSegment() (int, error) {
	if err := p.expectPunct("["); err != nil {
		return 0, err
	}
	tok := p.next()
	if tok.Kind != lexer.TokenNumber {
		return 0, p.errAt(tok.Pos, "expected index number")
	}
	idx, err := strconv.Atoi(tok.Value)
	if err != nil {
		return 0, p.errAt(tok.Pos, "invalid index "+tok.Value)
	}
	if err := p.expectPunct("]"); err != nil {
		return 0, err
	}
	return idx, nil
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	tok := p.next()
	switch tok.Kind {
	case lexer.TokenNumber:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errAt(tok.Pos, "invalid number "+tok.Value)
		}
		return &ast.LiteralExpr{Value: f, Pos: ast.SpanAt(tok.Pos)}, nil

	case lexer.TokenString:
		return &ast.LiteralExpr{Value: tok.Value, Pos: ast.SpanAt(tok.Pos)}, nil

	case lexer.TokenIdent:
		switch tok.Value {
		case "true":
			return &ast.LiteralExpr{Value: true, Pos: ast.SpanAt(tok.Pos)}, nil
		case "false":
			return &ast.LiteralExpr{Value: false, Pos: ast.SpanAt(tok.Pos)}, nil
		case "null":
			return &ast.LiteralExpr{Value: nil, Pos: ast.SpanAt(tok.Pos)}, nil
		}
		if t := p.peek(1); t.Kind == lexer.TokenPunct && t.Value == "(" {
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			return &ast.CallExpr{Name: tok.Value, Args: args, Pos: ast.SpanAt(tok.Pos)}, nil
		}
		return &ast.PathExpr{
			Segments: []ast.PathSeg{{Name: tok.Value}},
			Pos:      ast.SpanAt(tok.Pos),
		}, nil

	case lexer.TokenPunct:
		if tok.Value == "(" {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
		return nil, p.errAt(tok.Pos, "malformed expression: unexpected "+tok.Value)

	case lexer.TokenError:
		return nil, p.lexFailure(tok)

	default:
		return nil, p.errAt(tok.Pos, "malformed expression: unexpected "+tok.Kind.String())
	}
}

// parseArgList consumes ( expr, expr, ... ).
func (p *parser) parseArgList() ([]ast.Expr, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []ast.Expr
	if p.acceptPunct(")") {
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.acceptPunct(")") {
			return args, nil
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
	}
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
