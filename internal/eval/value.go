package eval

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/conneroisu/quill/internal/ast"
)

// descend walks the remaining path segments into a value.
func descend(v any, segments []ast.PathSeg) (any, bool) {
	cur := v
	for _, seg := range segments {
		var ok bool
		if seg.IsIndex {
			cur, ok = indexInto(cur, seg.Index)
		} else {
			cur, ok = fieldOf(cur, seg.Name)
		}
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// fieldOf looks one name up in a map, struct or pointer value.
func fieldOf(v any, name string) (any, bool) {
	if v == nil {
		return nil, false
	}
	// Fast path for the common context shape.
	if m, ok := v.(map[string]any); ok {
		val, ok := m[name]
		return val, ok
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, false
		}
		return fieldOf(rv.Elem().Interface(), name)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(name))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Struct:
		fv := rv.FieldByName(name)
		if fv.IsValid() && fv.CanInterface() {
			return fv.Interface(), true
		}
		// Tolerate lowercase template paths against exported fields.
		fv = rv.FieldByNameFunc(func(n string) bool {
			return equalFold(n, name)
		})
		if fv.IsValid() && fv.CanInterface() {
			return fv.Interface(), true
		}
		return nil, false
	default:
		return nil, false
	}
}

// indexInto resolves a [n] segment against a slice or array.
func indexInto(v any, idx int) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, false
		}
		return indexInto(rv.Elem().Interface(), idx)
	case reflect.Slice, reflect.Array:
		if idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	default:
		return nil, false
	}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Truthy reports whether a value selects the then-arm of a conditional.
// False, nil, empty string, zero numbers and empty sequences are falsy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := ToFloat(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// ToFloat converts any numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// ToString converts a value to its rendered text form. Missing values
// render as the empty string.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		if f, ok := ToFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return fmt.Sprintf("%v", v)
	}
}

// Equal compares two values: numerically when both are numeric, otherwise
// by kind-matched comparison with a reflect.DeepEqual fallback.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return reflect.DeepEqual(a, b)
}
