package eval

import (
	"github.com/conneroisu/quill/internal/ast"
	qerrors "github.com/conneroisu/quill/internal/errors"
)

// Helpers is the read-only view of a helper registry the evaluator
// dispatches through.
type Helpers interface {
	Exists(name string) bool
	Call(name string, args []any) (any, error)
}

// Evaluator evaluates expressions against a scope. It holds no per-render
// state and is safe to share across concurrent render calls.
type Evaluator struct {
	Helpers Helpers
	Strict  bool
}

// Eval resolves an expression to a value. Unresolved paths yield nil
// unless Strict promotes them to a RenderError.
func (ev *Evaluator) Eval(e ast.Expr, sc *Scope) (any, error) {
	switch x := e.(type) {
	case *ast.LiteralExpr:
		return x.Value, nil

	case *ast.PathExpr:
		v, ok := sc.Resolve(x.Segments)
		if !ok {
			if ev.Strict {
				return nil, &qerrors.RenderError{
					Kind: qerrors.UnresolvedPath,
					Expr: x.String(),
				}
			}
			return nil, nil
		}
		return v, nil

	case *ast.UnaryExpr:
		v, err := ev.Eval(x.X, sc)
		if err != nil {
			return nil, err
		}
		if x.Op == "!" {
			return !Truthy(v), nil
		}
		f, ok := ToFloat(v)
		if !ok {
			return nil, ev.exprError(x, &qerrors.RenderError{
				Kind:    qerrors.TypeMismatch,
				Message: "unary - on non-numeric value",
			})
		}
		return -f, nil

	case *ast.BinaryExpr:
		// Logical operators short-circuit and yield the deciding operand,
		// not a boolean, so {{name || 'anon'}} renders a fallback value.
		if x.Op == "&&" || x.Op == "||" {
			l, err := ev.Eval(x.L, sc)
			if err != nil {
				return nil, err
			}
			lt := Truthy(l)
			if (x.Op == "&&" && !lt) || (x.Op == "||" && lt) {
				return l, nil
			}
			return ev.Eval(x.R, sc)
		}
		l, err := ev.Eval(x.L, sc)
		if err != nil {
			return nil, err
		}
		r, err := ev.Eval(x.R, sc)
		if err != nil {
			return nil, err
		}
		v, err := binary(x.Op, l, r)
		if err != nil {
			return nil, ev.exprError(x, err)
		}
		return v, nil

	case *ast.CondExpr:
		c, err := ev.Eval(x.Cond, sc)
		if err != nil {
			return nil, err
		}
		if Truthy(c) {
			return ev.Eval(x.Then, sc)
		}
		return ev.Eval(x.Else, sc)

	case *ast.CallExpr:
		if ev.Helpers == nil || !ev.Helpers.Exists(x.Name) {
			return nil, &qerrors.RenderError{
				Kind: qerrors.UnknownHelper,
				Name: x.Name,
			}
		}
		args, err := ev.evalArgs(x.Args, sc)
		if err != nil {
			return nil, err
		}
		return ev.Helpers.Call(x.Name, args)

	case *ast.MethodExpr:
		recv, err := ev.Eval(x.Recv, sc)
		if err != nil {
			return nil, err
		}
		args, err := ev.evalArgs(x.Args, sc)
		if err != nil {
			return nil, err
		}
		v, err := callMethod(x.Name, recv, args)
		if err != nil {
			return nil, ev.exprError(x, err)
		}
		return v, nil

	default:
		return nil, &qerrors.RenderError{
			Kind:    qerrors.TypeMismatch,
			Message: "unknown expression node",
		}
	}
}

// EvalString evaluates an expression and converts the result to its
// rendered text form.
func (ev *Evaluator) EvalString(e ast.Expr, sc *Scope) (string, error) {
	v, err := ev.Eval(e, sc)
	if err != nil {
		return "", err
	}
	return ToString(v), nil
}

func (ev *Evaluator) evalArgs(exprs []ast.Expr, sc *Scope) ([]any, error) {
	args := make([]any, len(exprs))
	for i, a := range exprs {
		v, err := ev.Eval(a, sc)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// exprError stamps the failing expression onto a render error that was
// produced below the expression level.
func (ev *Evaluator) exprError(e ast.Expr, err error) error {
	if re, ok := err.(*qerrors.RenderError); ok && re.Expr == "" {
		re.Expr = e.String()
	}
	return err
}
