package eval

import (
	"math"
	"reflect"
	"sort"
	"strings"

	qerrors "github.com/conneroisu/quill/internal/errors"
)

// methodImpl is one entry of the closed method allow-list. Method-style
// calls in expressions dispatch only through this table; there is no
// reflective method invocation on context values anywhere in the engine.
type methodImpl struct {
	minArgs int
	maxArgs int
	fn      func(recv any, args []any) (any, error)
}

var methodTable = map[string]methodImpl{
	"upper": {0, 0, func(recv any, _ []any) (any, error) {
		return strings.ToUpper(ToString(recv)), nil
	}},
	"lower": {0, 0, func(recv any, _ []any) (any, error) {
		return strings.ToLower(ToString(recv)), nil
	}},
	"trim": {0, 0, func(recv any, _ []any) (any, error) {
		return strings.TrimSpace(ToString(recv)), nil
	}},
	"length": {0, 0, func(recv any, _ []any) (any, error) {
		return lengthOf(recv), nil
	}},
	"first": {0, 0, func(recv any, _ []any) (any, error) {
		return elementAt(recv, 0), nil
	}},
	"last": {0, 0, func(recv any, _ []any) (any, error) {
		return elementAt(recv, -1), nil
	}},
	"reverse": {0, 0, func(recv any, _ []any) (any, error) {
		return reverseValue(recv), nil
	}},
	"contains": {1, 1, func(recv any, args []any) (any, error) {
		return containsValue(recv, args[0]), nil
	}},
	"startsWith": {1, 1, func(recv any, args []any) (any, error) {
		return strings.HasPrefix(ToString(recv), ToString(args[0])), nil
	}},
	"endsWith": {1, 1, func(recv any, args []any) (any, error) {
		return strings.HasSuffix(ToString(recv), ToString(args[0])), nil
	}},
	"indexOf": {1, 1, func(recv any, args []any) (any, error) {
		return indexOfValue(recv, args[0]), nil
	}},
	"abs": {0, 0, numericMethod(math.Abs)},
	"round": {0, 0, numericMethod(func(f float64) float64 {
		return math.Round(f)
	})},
	"floor": {0, 0, numericMethod(math.Floor)},
	"ceil":  {0, 0, numericMethod(math.Ceil)},
}

// IsAllowedMethod reports whether name is in the method allow-list. The
// parser consults this so disallowed method calls fail at compile time.
func IsAllowedMethod(name string) bool {
	_, ok := methodTable[name]
	return ok
}

// AllowedMethods returns the sorted allow-list, for diagnostics.
func AllowedMethods() []string {
	names := make([]string, 0, len(methodTable))
	for name := range methodTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func callMethod(name string, recv any, args []any) (any, error) {
	m, ok := methodTable[name]
	if !ok {
		return nil, &qerrors.RenderError{
			Kind:    qerrors.TypeMismatch,
			Name:    name,
			Message: "method is not in the allow-list",
		}
	}
	if len(args) < m.minArgs || len(args) > m.maxArgs {
		return nil, &qerrors.RenderError{
			Kind:    qerrors.TypeMismatch,
			Name:    name,
			Message: "wrong number of method arguments",
		}
	}
	return m.fn(recv, args)
}

func numericMethod(f func(float64) float64) func(any, []any) (any, error) {
	return func(recv any, _ []any) (any, error) {
		v, ok := ToFloat(recv)
		if !ok {
			return nil, &qerrors.RenderError{
				Kind:    qerrors.TypeMismatch,
				Message: "numeric method on non-numeric value",
			}
		}
		return f(v), nil
	}
}

func lengthOf(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return len([]rune(x))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	}
	return 0
}

// elementAt returns the first (idx 0) or last (idx -1) element of a
// string or sequence, nil when empty.
func elementAt(v any, idx int) any {
	if s, ok := v.(string); ok {
		runes := []rune(s)
		if len(runes) == 0 {
			return ""
		}
		if idx == -1 {
			return string(runes[len(runes)-1])
		}
		return string(runes[0])
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return nil
		}
		if idx == -1 {
			return rv.Index(rv.Len() - 1).Interface()
		}
		return rv.Index(0).Interface()
	}
	return nil
}

func reverseValue(v any) any {
	if s, ok := v.(string); ok {
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[rv.Len()-1-i] = rv.Index(i).Interface()
		}
		return out
	}
	return v
}

func containsValue(v, needle any) bool {
	if s, ok := v.(string); ok {
		return strings.Contains(s, ToString(needle))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if Equal(rv.Index(i).Interface(), needle) {
				return true
			}
		}
	}
	return false
}

func indexOfValue(v, needle any) int {
	if s, ok := v.(string); ok {
		return strings.Index(s, ToString(needle))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if Equal(rv.Index(i).Interface(), needle) {
				return i
			}
		}
	}
	return -1
}
