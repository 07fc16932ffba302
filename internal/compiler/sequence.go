package compiler

import (
	"reflect"
	"sort"

	"github.com/conneroisu/quill/internal/eval"
)

// reflectSequence handles each targets that are not the fast-path
// []any / map[string]any shapes: typed slices, arrays and maps.
func reflectSequence(v any) ([]any, []any) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return reflectSequence(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		values := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			values[i] = rv.Index(i).Interface()
		}
		return values, nil
	case reflect.Map:
		type pair struct {
			key   any
			label string
			value any
		}
		pairs := make([]pair, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().Interface()
			pairs = append(pairs, pair{
				key:   k,
				label: eval.ToString(k),
				value: iter.Value().Interface(),
			})
		}
		sort.Slice(pairs, func(i, j int) bool {
			return pairs[i].label < pairs[j].label
		})
		values := make([]any, len(pairs))
		keys := make([]any, len(pairs))
		for i, p := range pairs {
			values[i] = p.value
			keys[i] = p.key
		}
		return values, keys
	default:
		return nil, nil
	}
}
