package eval

import (
	"math"

	qerrors "github.com/conneroisu/quill/internal/errors"
)

// binary applies one non-logical binary operator. Logical && and || are
// short-circuited in the evaluator and never reach here.
func binary(op string, l, r any) (any, error) {
	switch op {
	case "+":
		lf, lok := ToFloat(l)
		rf, rok := ToFloat(r)
		if lok && rok {
			return lf + rf, nil
		}
		// + is string concatenation when either operand is non-numeric.
		return ToString(l) + ToString(r), nil
	case "-", "*", "/", "%":
		lf, lok := ToFloat(l)
		rf, rok := ToFloat(r)
		if !lok || !rok {
			return nil, &qerrors.RenderError{
				Kind:    qerrors.TypeMismatch,
				Message: "operator " + op + " requires numeric operands",
			}
		}
		switch op {
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			if rf == 0 {
				return nil, &qerrors.RenderError{
					Kind:    qerrors.TypeMismatch,
					Message: "division by zero",
				}
			}
			return lf / rf, nil
		default:
			if rf == 0 {
				return nil, &qerrors.RenderError{
					Kind:    qerrors.TypeMismatch,
					Message: "division by zero",
				}
			}
			return math.Mod(lf, rf), nil
		}
	case "<", "<=", ">", ">=":
		return compare(op, l, r)
	case "==":
		return Equal(l, r), nil
	case "!=":
		return !Equal(l, r), nil
	default:
		return nil, &qerrors.RenderError{
			Kind:    qerrors.TypeMismatch,
			Message: "unsupported operator " + op,
		}
	}
}

// compare orders two numbers or two strings; anything else is a type
// mismatch, fatal for the render call.
func compare(op string, l, r any) (any, error) {
	if lf, ok := ToFloat(l); ok {
		if rf, ok := ToFloat(r); ok {
			return applyOrder(op, compareFloats(lf, rf)), nil
		}
	}
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			return applyOrder(op, compareStrings(ls, rs)), nil
		}
	}
	return nil, &qerrors.RenderError{
		Kind:    qerrors.TypeMismatch,
		Message: "cannot compare incompatible types with " + op,
	}
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func applyOrder(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	default:
		return cmp >= 0
	}
}
