// Package ast defines the abstract syntax tree a parsed template compiles
// from. The node set is closed: every node type lives in this package and
// implements the sealed Node interface, so dispatch sites can switch
// exhaustively over the fixed kinds. Nodes are immutable once the security
// validator has approved the tree, and ownership is strictly tree shaped;
// a child belongs to exactly one parent.
package ast

import "github.com/conneroisu/quill/internal/lexer"

// Span is the source location a node was parsed at, kept for diagnostics.
type Span struct {
	Line   int
	Column int
	Offset int
}

// SpanAt converts a lexer position into a node span.
func SpanAt(p lexer.Position) Span {
	return Span{Line: p.Line, Column: p.Column, Offset: p.Offset}
}

// Node is implemented by every AST node. The unexported method seals the
// interface to this package.
type Node interface {
	Span() Span
	node()
}

// Root is the top of a parsed template.
type Root struct {
	Children []Node
	Pos      Span
}

// Text is a verbatim run of template text.
type Text struct {
	Value string
	Pos   Span
}

// Interpolation is {{ expr }} or {{& expr }}. Raw is decided at parse time
// and cannot be changed afterwards; URLContext marks interpolations that
// sit in a href/src attribute value position and get their rendered value
// re-checked for unsafe schemes at render time.
type Interpolation struct {
	Expr       Expr
	Raw        bool
	URLContext bool
	Pos        Span
}

// HelperCall is the {{~name arg...}} shorthand.
type HelperCall struct {
	Name string
	Args []Expr
	Pos  Span
}

// If is {{#if}}...{{else}}...{{/if}}. An {{else if}} chain is lowered at
// parse time into a nested If as the sole node of the Else arm.
type If struct {
	Cond Expr
	Then []Node
	Else []Node
	Pos  Span
}

// Unless renders its body when the condition is falsy.
type Unless struct {
	Cond Expr
	Body []Node
	Else []Node
	Pos  Span
}

// Each is {{#each item in seq}}. The body renders once per element with a
// fresh scope frame binding Item, @index, @key, @first and @last; the Else
// arm renders exactly once when the sequence is empty or absent.
type Each struct {
	Item string
	Seq  Expr
	Body []Node
	Else []Node
	Pos  Span
}

// With rebases the scope root for its body.
type With struct {
	Target Expr
	Body   []Node
	Pos    Span
}

// PartialDef is a {{#partial name}} local definition. It emits nothing
// where it appears.
type PartialDef struct {
	Name string
	Body []Node
	Pos  Span
}

// Binding is one key=value argument of a partial reference.
type Binding struct {
	Key   string
	Value Expr
}

// PartialRef is {{> name [contextExpr] [key=value]...}}.
type PartialRef struct {
	Name     string
	Context  Expr // nil keeps the caller's scope root
	Bindings []Binding
	Pos      Span
}

// Element is a complete static markup tag lifted out of a text run. It
// renders as its verbatim source text; the structured tag name and
// attributes exist for the security validator. Tags whose attributes are
// split by an interpolation never become elements and stay plain text.
type Element struct {
	Tag   string
	Attrs []*Attribute
	Raw   string
	Pos   Span
}

// Attribute is one compile-time constant attribute of an Element.
type Attribute struct {
	Name  string
	Value string
	Pos   Span
}

func (n *Root) Span() Span          { return n.Pos }
func (n *Text) Span() Span          { return n.Pos }
func (n *Interpolation) Span() Span { return n.Pos }
func (n *HelperCall) Span() Span    { return n.Pos }
func (n *If) Span() Span            { return n.Pos }
func (n *Unless) Span() Span        { return n.Pos }
func (n *Each) Span() Span          { return n.Pos }
func (n *With) Span() Span          { return n.Pos }
func (n *PartialDef) Span() Span    { return n.Pos }
func (n *PartialRef) Span() Span    { return n.Pos }
func (n *Element) Span() Span       { return n.Pos }
func (n *Attribute) Span() Span     { return n.Pos }

func (*Root) node()          {}
func (*Text) node()          {}
func (*Interpolation) node() {}
func (*HelperCall) node()    {}
func (*If) node()            {}
func (*Unless) node()        {}
func (*Each) node()          {}
func (*With) node()          {}
func (*PartialDef) node()    {}
func (*PartialRef) node()    {}
func (*Element) node()       {}
func (*Attribute) node()     {}

// Inspect walks the tree in document order, calling f for every node.
// Children are visited only while f returns true for their parent.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch x := n.(type) {
	case *Root:
		inspectAll(x.Children, f)
	case *If:
		inspectAll(x.Then, f)
		inspectAll(x.Else, f)
	case *Unless:
		inspectAll(x.Body, f)
		inspectAll(x.Else, f)
	case *Each:
		inspectAll(x.Body, f)
		inspectAll(x.Else, f)
	case *With:
		inspectAll(x.Body, f)
	case *PartialDef:
		inspectAll(x.Body, f)
	case *Element:
		for _, a := range x.Attrs {
			Inspect(a, f)
		}
	}
}

func inspectAll(nodes []Node, f func(Node) bool) {
	for _, c := range nodes {
		Inspect(c, f)
	}
}
