// Package compiler turns a validated AST into a reusable render program.
//
// Compilation composes one closure per node ahead of time; rendering
// invokes the composed tree without revisiting the AST. A compiled
// Program is immutable and pure with respect to its AST: identical
// (template, context) pairs always produce identical output, and
// programs are shared read-only across concurrent render calls.
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conneroisu/quill/internal/ast"
	qerrors "github.com/conneroisu/quill/internal/errors"
	"github.com/conneroisu/quill/internal/escape"
	"github.com/conneroisu/quill/internal/eval"
)

// maxPartialDepth bounds partial recursion through the global registry.
const maxPartialDepth = 64

// PartialResolver resolves globally registered partials at render time,
// so registrations after compilation (last-writer-wins) take effect.
type PartialResolver interface {
	Resolve(name string) (*Program, bool)
}

// renderFn renders one compiled node into the render context.
type renderFn func(rc *renderContext) error

// renderContext is the per-call state threaded through the closure tree.
// Output accumulates in a private buffer; callers only see it when the
// whole render succeeded, so errors never leave truncated markup behind.
type renderContext struct {
	scope    *eval.Scope
	ev       *eval.Evaluator
	partials PartialResolver
	out      *strings.Builder
	depth    int
}

// Program is a compiled template.
type Program struct {
	root   renderFn
	locals map[string]renderFn
}

// Compile builds the render program for a validated AST.
func Compile(root *ast.Root) (*Program, error) {
	c := &compiler{locals: make(map[string]renderFn)}
	fn, err := c.compileNodes(root.Children)
	if err != nil {
		return nil, err
	}
	return &Program{root: fn, locals: c.locals}, nil
}

// Render executes the program against a scope. On error the partial
// buffer is discarded and only the error is returned.
func (p *Program) Render(sc *eval.Scope, ev *eval.Evaluator, partials PartialResolver) (string, error) {
	rc := &renderContext{
		scope:    sc,
		ev:       ev,
		partials: partials,
		out:      &strings.Builder{},
	}
	if err := p.root(rc); err != nil {
		return "", err
	}
	return rc.out.String(), nil
}

type compiler struct {
	locals map[string]renderFn
}

func (c *compiler) compileNodes(nodes []ast.Node) (renderFn, error) {
	fns := make([]renderFn, 0, len(nodes))
	for _, n := range nodes {
		fn, err := c.compileNode(n)
		if err != nil {
			return nil, err
		}
		if fn != nil {
			fns = append(fns, fn)
		}
	}
	return func(rc *renderContext) error {
		for _, fn := range fns {
			if err := fn(rc); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

// compileNode dispatches over the closed node set. The default arm only
// fires if a node kind is added without a compile rule, which the engine
// tests exercise.
func (c *compiler) compileNode(n ast.Node) (renderFn, error) {
	switch x := n.(type) {
	case *ast.Text:
		value := x.Value
		return func(rc *renderContext) error {
			rc.out.WriteString(value)
			return nil
		}, nil

	case *ast.Element:
		raw := x.Raw
		return func(rc *renderContext) error {
			rc.out.WriteString(raw)
			return nil
		}, nil

	case *ast.Interpolation:
		return c.compileInterpolation(x), nil

	case *ast.HelperCall:
		// The shorthand shares the evaluator's helper dispatch.
		call := &ast.CallExpr{Name: x.Name, Args: x.Args, Pos: x.Pos}
		return func(rc *renderContext) error {
			v, err := rc.ev.Eval(call, rc.scope)
			if err != nil {
				return err
			}
			rc.out.WriteString(escape.HTML(eval.ToString(v)))
			return nil
		}, nil

	case *ast.If:
		return c.compileIf(x)

	case *ast.Unless:
		return c.compileUnless(x)

	case *ast.Each:
		return c.compileEach(x)

	case *ast.With:
		return c.compileWith(x)

	case *ast.PartialDef:
		body, err := c.compileNodes(x.Body)
		if err != nil {
			return nil, err
		}
		c.locals[x.Name] = body
		// The definition site emits nothing.
		return nil, nil

	case *ast.PartialRef:
		return c.compilePartialRef(x)

	default:
		return nil, fmt.Errorf("internal: no compile rule for node %T", n)
	}
}

func (c *compiler) compileInterpolation(x *ast.Interpolation) renderFn {
	expr := x.Expr
	raw := x.Raw
	urlContext := x.URLContext
	return func(rc *renderContext) error {
		s, err := rc.ev.EvalString(expr, rc.scope)
		if err != nil {
			return err
		}
		if urlContext {
			if err := escape.CheckURL(s); err != nil {
				return err
			}
		}
		if !raw {
			s = escape.HTML(s)
		}
		rc.out.WriteString(s)
		return nil
	}
}

func (c *compiler) compileIf(x *ast.If) (renderFn, error) {
	cond := x.Cond
	then, err := c.compileNodes(x.Then)
	if err != nil {
		return nil, err
	}
	els, err := c.compileNodes(x.Else)
	if err != nil {
		return nil, err
	}
	return func(rc *renderContext) error {
		v, err := rc.ev.Eval(cond, rc.scope)
		if err != nil {
			return err
		}
		if eval.Truthy(v) {
			return then(rc)
		}
		return els(rc)
	}, nil
}

func (c *compiler) compileUnless(x *ast.Unless) (renderFn, error) {
	cond := x.Cond
	body, err := c.compileNodes(x.Body)
	if err != nil {
		return nil, err
	}
	els, err := c.compileNodes(x.Else)
	if err != nil {
		return nil, err
	}
	return func(rc *renderContext) error {
		v, err := rc.ev.Eval(cond, rc.scope)
		if err != nil {
			return err
		}
		if !eval.Truthy(v) {
			return body(rc)
		}
		return els(rc)
	}, nil
}

func (c *compiler) compileEach(x *ast.Each) (renderFn, error) {
	item := x.Item
	seq := x.Seq
	body, err := c.compileNodes(x.Body)
	if err != nil {
		return nil, err
	}
	els, err := c.compileNodes(x.Else)
	if err != nil {
		return nil, err
	}
	return func(rc *renderContext) error {
		v, err := rc.ev.Eval(seq, rc.scope)
		if err != nil {
			return err
		}
		values, keys := sequenceOf(v)
		if len(values) == 0 {
			// The else arm renders exactly once for empty or absent
			// sequences.
			return els(rc)
		}
		for i, val := range values {
			var key any
			if keys != nil {
				key = keys[i]
			}
			rc.scope.PushEach(item, val, i, len(values), key)
			err := body(rc)
			rc.scope.Pop()
			if err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func (c *compiler) compileWith(x *ast.With) (renderFn, error) {
	target := x.Target
	body, err := c.compileNodes(x.Body)
	if err != nil {
		return nil, err
	}
	return func(rc *renderContext) error {
		v, err := rc.ev.Eval(target, rc.scope)
		if err != nil {
			return err
		}
		rc.scope.PushWith(v)
		err = body(rc)
		rc.scope.Pop()
		return err
	}, nil
}

func (c *compiler) compilePartialRef(x *ast.PartialRef) (renderFn, error) {
	name := x.Name
	ctxExpr := x.Context
	bindings := x.Bindings
	locals := c.locals
	return func(rc *renderContext) error {
		if rc.depth >= maxPartialDepth {
			return &qerrors.RenderError{
				Kind:    qerrors.BadPartial,
				Name:    name,
				Message: "partial recursion too deep",
			}
		}
		target, ok := locals[name]
		if !ok {
			prog, found := resolveGlobal(rc, name)
			if !found {
				return &qerrors.RenderError{Kind: qerrors.BadPartial, Name: name}
			}
			target = prog.root
		}
		frames := 0
		if ctxExpr != nil {
			v, err := rc.ev.Eval(ctxExpr, rc.scope)
			if err != nil {
				return err
			}
			rc.scope.PushWith(v)
			frames++
		}
		if len(bindings) > 0 {
			vars := make(map[string]any, len(bindings))
			for _, b := range bindings {
				v, err := rc.ev.Eval(b.Value, rc.scope)
				if err != nil {
					popFrames(rc, frames)
					return err
				}
				vars[b.Key] = v
			}
			rc.scope.PushVars(vars)
			frames++
		}
		rc.depth++
		err := target(rc)
		rc.depth--
		popFrames(rc, frames)
		return err
	}, nil
}

func resolveGlobal(rc *renderContext, name string) (*Program, bool) {
	if rc.partials == nil {
		return nil, false
	}
	return rc.partials.Resolve(name)
}

func popFrames(rc *renderContext, n int) {
	for i := 0; i < n; i++ {
		rc.scope.Pop()
	}
}

// sequenceOf normalizes an each target into ordered values. Maps iterate
// in sorted key order so rendering stays deterministic; the matching keys
// slice feeds @key.
func sequenceOf(v any) ([]any, []any) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []any:
		return x, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]any, len(keys))
		anyKeys := make([]any, len(keys))
		for i, k := range keys {
			values[i] = x[k]
			anyKeys[i] = k
		}
		return values, anyKeys
	}
	return reflectSequence(v)
}
