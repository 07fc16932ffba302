package ast

import (
	"fmt"
	"strings"
)

// Expr is implemented by every expression node. Sealed like Node.
type Expr interface {
	Span() Span
	String() string
	expr()
}

// PathSeg is one segment of a dotted/indexed path.
type PathSeg struct {
	Name    string
	Index   int
	IsIndex bool
}

// PathExpr is a dotted/bracketed data path such as a.b or a.[0].c.
type PathExpr struct {
	Segments []PathSeg
	Pos      Span
}

// LiteralExpr holds a string, float64, bool or nil constant.
type LiteralExpr struct {
	Value any
	Pos   Span
}

// UnaryExpr is !x or -x.
type UnaryExpr struct {
	Op  string
	X   Expr
	Pos Span
}

// BinaryExpr is a two-operand operator application. Logical && and || are
// evaluated with short-circuiting.
type BinaryExpr struct {
	Op   string
	L, R Expr
	Pos  Span
}

// CondExpr is the ternary cond ? then : else.
type CondExpr struct {
	Cond, Then, Else Expr
	Pos              Span
}

// CallExpr is a helper invocation inside an expression: name(args...).
type CallExpr struct {
	Name string
	Args []Expr
	Pos  Span
}

// MethodExpr is an allow-listed method call on a receiver value. The
// parser rejects names outside the fixed allow-list, so no arbitrary
// method dispatch survives into the AST.
type MethodExpr struct {
	Recv Expr
	Name string
	Args []Expr
	Pos  Span
}

func (e *PathExpr) Span() Span    { return e.Pos }
func (e *LiteralExpr) Span() Span { return e.Pos }
func (e *UnaryExpr) Span() Span   { return e.Pos }
func (e *BinaryExpr) Span() Span  { return e.Pos }
func (e *CondExpr) Span() Span    { return e.Pos }
func (e *CallExpr) Span() Span    { return e.Pos }
func (e *MethodExpr) Span() Span  { return e.Pos }

func (*PathExpr) expr()    {}
func (*LiteralExpr) expr() {}
func (*UnaryExpr) expr()   {}
func (*BinaryExpr) expr()  {}
func (*CondExpr) expr()    {}
func (*CallExpr) expr()    {}
func (*MethodExpr) expr()  {}

// String renders the path in source form, used in diagnostics.
func (e *PathExpr) String() string {
	var b strings.Builder
	for i, s := range e.Segments {
		if s.IsIndex {
			fmt.Fprintf(&b, ".[%d]", s.Index)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Name)
	}
	return b.String()
}

func (e *LiteralExpr) String() string {
	if s, ok := e.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", e.Value)
}

func (e *UnaryExpr) String() string {
	return e.Op + e.X.String()
}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("%s %s %s", e.L, e.Op, e.R)
}

func (e *CondExpr) String() string {
	return fmt.Sprintf("%s ? %s : %s", e.Cond, e.Then, e.Else)
}

func (e *CallExpr) String() string {
	return e.Name + "(" + joinExprs(e.Args) + ")"
}

func (e *MethodExpr) String() string {
	return e.Recv.String() + "." + e.Name + "(" + joinExprs(e.Args) + ")"
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
