package parser

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/quill/internal/ast"
	"github.com/conneroisu/quill/internal/lexer"
)

// openTag tracks a start tag interrupted by a marker. quote is the
// attribute-value quote left open at the cut, if any.
type openTag struct {
	tag   string
	quote byte
}

// scanText splits one verbatim text run into Text and Element nodes.
//
// Complete constant start tags become Element nodes carrying their exact
// source slice, re-emitted verbatim at render. A tag interrupted by a
// marker is lifted in pieces so its constant parts still reach the
// validator: the prefix becomes an Element with the tag name and every
// attribute completed before the cut, and each following text run inside
// the tag contributes an Element with the constant attributes it holds,
// until the closing >. Dynamic attribute values themselves are covered by
// the render-time checks.
func (p *parser) scanText(text string, base lexer.Position) []ast.Node {
	var nodes []ast.Node
	rest := 0
	i := 0
	if p.carry != nil {
		node, end := p.continueTag(text, base)
		if node != nil {
			nodes = append(nodes, node)
		}
		rest, i = end, end
	}
	for i < len(text) {
		lt := strings.IndexByte(text[i:], '<')
		if lt == -1 {
			break
		}
		lt += i
		if lt+1 >= len(text) || !isTagNameStart(text[lt+1]) {
			i = lt + 1
			continue
		}
		gt := findTagEnd(text, lt+1)
		if gt == -1 {
			limit := len(text)
			if next := strings.IndexByte(text[lt+1:], '<'); next != -1 {
				limit = lt + 1 + next
			}
			elem, carry := openTagPrefix(text[lt:limit], localPos(base, text, lt))
			if elem == nil {
				i = lt + 1
				continue
			}
			if lt > rest {
				nodes = append(nodes, &ast.Text{
					Value: text[rest:lt],
					Pos:   ast.SpanAt(localPos(base, text, rest)),
				})
			}
			nodes = append(nodes, elem)
			if limit == len(text) {
				// The tag runs into the marker that ended this run.
				p.carry = carry
			}
			rest, i = limit, limit
			continue
		}
		raw := text[lt : gt+1]
		elem := parseTag(raw, localPos(base, text, lt))
		if elem == nil {
			i = lt + 1
			continue
		}
		if lt > rest {
			nodes = append(nodes, &ast.Text{
				Value: text[rest:lt],
				Pos:   ast.SpanAt(localPos(base, text, rest)),
			})
		}
		nodes = append(nodes, elem)
		rest = gt + 1
		i = gt + 1
	}
	if rest < len(text) {
		nodes = append(nodes, &ast.Text{
			Value: text[rest:],
			Pos:   ast.SpanAt(localPos(base, text, rest)),
		})
	}
	return nodes
}

// continueTag consumes the portion of text still inside the carried tag
// and lifts the constant attributes it contains. The returned node covers
// the consumed slice verbatim, so output is byte-identical to plain text.
func (p *parser) continueTag(text string, base lexer.Position) (ast.Node, int) {
	carry := p.carry
	remnant := 0
	if carry.quote != 0 {
		end := strings.IndexByte(text, carry.quote)
		if end == -1 {
			// The whole run sits inside one dynamic attribute value.
			return &ast.Text{Value: text, Pos: ast.SpanAt(base)}, len(text)
		}
		remnant = end + 1
	}
	gt := findTagEnd(text, remnant)
	if gt == -1 {
		attrs, quote := constantAttrPrefix(text[remnant:])
		carry.quote = quote
		return liftAttrs(carry.tag, attrs, text, base), len(text)
	}
	p.carry = nil
	return liftAttrs(carry.tag, text[remnant:gt], text[:gt+1], base), gt + 1
}

// openTagPrefix lifts the constant prefix of a tag cut off by a marker:
// the tag name plus the attribute region up to the cut.
func openTagPrefix(raw string, pos lexer.Position) (*ast.Element, *openTag) {
	name := raw[1:]
	end := 0
	for end < len(name) && isTagNameChar(name[end]) {
		end++
	}
	if end == 0 {
		return nil, nil
	}
	attrs, quote := constantAttrPrefix(name[end:])
	elem := liftedTag(name[:end], attrs, pos)
	if elem == nil {
		return nil, nil
	}
	elem.Raw = raw
	return elem, &openTag{tag: elem.Tag, quote: quote}
}

// liftAttrs rebuilds an isolated tag from the carried name and a constant
// attribute fragment, falling back to plain text when the fragment holds
// nothing parseable.
func liftAttrs(tag, attrs, raw string, base lexer.Position) ast.Node {
	elem := liftedTag(tag, attrs, base)
	if elem == nil {
		return &ast.Text{Value: raw, Pos: ast.SpanAt(base)}
	}
	elem.Raw = raw
	return elem
}

func liftedTag(tag, attrs string, pos lexer.Position) *ast.Element {
	return parseTag("<"+tag+" "+attrs+">", pos)
}

// constantAttrPrefix returns the checkable constant portion of an
// attribute region cut off by a marker: every complete attribute, plus
// the bare name of the attribute whose value the marker interrupts. The
// second result is the quote character left open at the cut.
func constantAttrPrefix(s string) (string, byte) {
	var quote byte
	clean := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
				clean = i + 1
			}
		case c == '"' || c == '\'':
			quote = c
		case isSpaceByte(c):
			clean = i + 1
		}
	}
	if quote == 0 {
		return s, 0
	}
	cut := s[:clean]
	if eq := strings.IndexByte(s[clean:], '='); eq != -1 {
		cut += " " + strings.TrimSpace(s[clean:clean+eq])
	}
	return cut, quote
}

func isTagNameStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isTagNameChar(c byte) bool {
	return isTagNameStart(c) || (c >= '0' && c <= '9') || c == '-'
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// findTagEnd returns the offset of the > closing the tag that starts just
// before from, honoring quoted attribute values. -1 when the tag is not
// closed within this text run.
func findTagEnd(text string, from int) int {
	var quote byte
	for i := from; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i
		case c == '<':
			// A fresh < means the first one never closed.
			return -1
		}
	}
	return -1
}

// parseTag runs the html tokenizer over one isolated tag to extract the
// tag name and its constant attributes.
func parseTag(raw string, pos lexer.Position) *ast.Element {
	tz := html.NewTokenizer(strings.NewReader(raw))
	tt := tz.Next()
	if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
		return nil
	}
	tok := tz.Token()
	elem := &ast.Element{
		Tag: tok.Data,
		Raw: raw,
		Pos: ast.SpanAt(pos),
	}
	for _, a := range tok.Attr {
		elem.Attrs = append(elem.Attrs, &ast.Attribute{
			Name:  a.Key,
			Value: a.Val,
			Pos:   ast.SpanAt(pos),
		})
	}
	return elem
}

// localPos shifts the token base position by an offset inside the run.
func localPos(base lexer.Position, text string, off int) lexer.Position {
	line := base.Line
	col := base.Column
	for i := 0; i < off; i++ {
		if text[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return lexer.Position{Line: line, Column: col, Offset: base.Offset + off}
}
