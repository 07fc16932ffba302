package helpers

import (
	"encoding/json"
	"math"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/quill/internal/eval"
	qerrors "github.com/conneroisu/quill/internal/errors"
)

var titleCaser = cases.Title(language.English)

// registerBuiltins installs the built-in helper set. Every helper is a
// pure function of its arguments.
func registerBuiltins(r *Registry) {
	must := func(name string, minArgs, maxArgs int, fn Func) {
		if err := r.Register(name, minArgs, maxArgs, fn); err != nil {
			panic(err)
		}
	}

	must("uppercase", 1, 1, func(args []any) (any, error) {
		return strings.ToUpper(eval.ToString(args[0])), nil
	})
	must("lowercase", 1, 1, func(args []any) (any, error) {
		return strings.ToLower(eval.ToString(args[0])), nil
	})
	must("capitalize", 1, 1, func(args []any) (any, error) {
		s := eval.ToString(args[0])
		if s == "" {
			return "", nil
		}
		runes := []rune(s)
		runes[0] = unicode.ToUpper(runes[0])
		return string(runes), nil
	})
	must("titlecase", 1, 1, func(args []any) (any, error) {
		return titleCaser.String(eval.ToString(args[0])), nil
	})
	must("trim", 1, 1, func(args []any) (any, error) {
		return strings.TrimSpace(eval.ToString(args[0])), nil
	})
	must("truncate", 2, 3, func(args []any) (any, error) {
		s := eval.ToString(args[0])
		n, err := intArg("truncate", args[1])
		if err != nil {
			return nil, err
		}
		suffix := "…"
		if len(args) == 3 {
			suffix = eval.ToString(args[2])
		}
		runes := []rune(s)
		if n < 0 || len(runes) <= n {
			return s, nil
		}
		return string(runes[:n]) + suffix, nil
	})
	must("replace", 3, 3, func(args []any) (any, error) {
		return strings.ReplaceAll(
			eval.ToString(args[0]),
			eval.ToString(args[1]),
			eval.ToString(args[2]),
		), nil
	})
	must("repeat", 2, 2, func(args []any) (any, error) {
		n, err := intArg("repeat", args[1])
		if err != nil {
			return nil, err
		}
		if n < 0 || n > 1<<16 {
			return nil, helperErr("repeat", "count out of range")
		}
		return strings.Repeat(eval.ToString(args[0]), n), nil
	})
	must("padLeft", 2, 3, padHelper("padLeft", true))
	must("padRight", 2, 3, padHelper("padRight", false))
	must("slugify", 1, 1, func(args []any) (any, error) {
		return slugify(eval.ToString(args[0])), nil
	})
	must("urlencode", 1, 1, func(args []any) (any, error) {
		return url.QueryEscape(eval.ToString(args[0])), nil
	})
	must("join", 1, 2, func(args []any) (any, error) {
		items, ok := toSlice(args[0])
		if !ok {
			return nil, helperErr("join", "first argument must be a sequence")
		}
		sep := ", "
		if len(args) == 2 {
			sep = eval.ToString(args[1])
		}
		parts := make([]string, len(items))
		for i, v := range items {
			parts[i] = eval.ToString(v)
		}
		return strings.Join(parts, sep), nil
	})
	must("split", 2, 2, func(args []any) (any, error) {
		parts := strings.Split(eval.ToString(args[0]), eval.ToString(args[1]))
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	})
	must("length", 1, 1, func(args []any) (any, error) {
		if s, ok := args[0].(string); ok {
			return len([]rune(s)), nil
		}
		if items, ok := toSlice(args[0]); ok {
			return len(items), nil
		}
		if args[0] == nil {
			return 0, nil
		}
		rv := reflect.ValueOf(args[0])
		if rv.Kind() == reflect.Map {
			return rv.Len(), nil
		}
		return 0, nil
	})
	must("first", 1, 1, seqEdgeHelper(false))
	must("last", 1, 1, seqEdgeHelper(true))
	must("reverse", 1, 1, func(args []any) (any, error) {
		if s, ok := args[0].(string); ok {
			runes := []rune(s)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes), nil
		}
		items, ok := toSlice(args[0])
		if !ok {
			return args[0], nil
		}
		out := make([]any, len(items))
		for i, v := range items {
			out[len(items)-1-i] = v
		}
		return out, nil
	})
	must("sort", 1, 1, func(args []any) (any, error) {
		items, ok := toSlice(args[0])
		if !ok {
			return args[0], nil
		}
		out := make([]any, len(items))
		copy(out, items)
		sort.SliceStable(out, func(i, j int) bool {
			if fi, ok := eval.ToFloat(out[i]); ok {
				if fj, ok := eval.ToFloat(out[j]); ok {
					return fi < fj
				}
			}
			return eval.ToString(out[i]) < eval.ToString(out[j])
		})
		return out, nil
	})
	must("default", 2, 2, func(args []any) (any, error) {
		if eval.Truthy(args[0]) {
			return args[0], nil
		}
		return args[1], nil
	})
	must("formatNumber", 1, 2, func(args []any) (any, error) {
		f, ok := eval.ToFloat(args[0])
		if !ok {
			return nil, helperErr("formatNumber", "value is not numeric")
		}
		decimals := 0
		if len(args) == 2 {
			d, err := intArg("formatNumber", args[1])
			if err != nil {
				return nil, err
			}
			decimals = d
		}
		return groupThousands(strconv.FormatFloat(f, 'f', decimals, 64)), nil
	})
	must("formatDate", 1, 2, func(args []any) (any, error) {
		t, err := timeArg(args[0])
		if err != nil {
			return nil, err
		}
		layout := "2006-01-02"
		if len(args) == 2 {
			layout = eval.ToString(args[1])
		}
		return t.Format(layout), nil
	})
	must("round", 1, 1, numberHelper("round", math.Round))
	must("floor", 1, 1, numberHelper("floor", math.Floor))
	must("ceil", 1, 1, numberHelper("ceil", math.Ceil))
	must("abs", 1, 1, numberHelper("abs", math.Abs))
	must("json", 1, 1, func(args []any) (any, error) {
		data, err := json.Marshal(args[0])
		if err != nil {
			return nil, helperErr("json", err.Error())
		}
		return string(data), nil
	})
	must("pluralize", 2, 3, func(args []any) (any, error) {
		count, ok := eval.ToFloat(args[0])
		if !ok {
			return nil, helperErr("pluralize", "count is not numeric")
		}
		singular := eval.ToString(args[1])
		plural := singular + "s"
		if len(args) == 3 {
			plural = eval.ToString(args[2])
		}
		if count == 1 {
			return singular, nil
		}
		return plural, nil
	})
}

func helperErr(name, msg string) error {
	return &qerrors.RenderError{Kind: qerrors.TypeMismatch, Name: name, Message: msg}
}

func intArg(helper string, v any) (int, error) {
	f, ok := eval.ToFloat(v)
	if !ok {
		return 0, helperErr(helper, "expected a numeric argument")
	}
	return int(f), nil
}

func timeArg(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		t, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return time.Time{}, helperErr("formatDate", "value is not an RFC3339 timestamp")
		}
		return t, nil
	default:
		return time.Time{}, helperErr("formatDate", "value is not a date")
	}
}

func numberHelper(name string, f func(float64) float64) Func {
	return func(args []any) (any, error) {
		v, ok := eval.ToFloat(args[0])
		if !ok {
			return nil, helperErr(name, "value is not numeric")
		}
		return f(v), nil
	}
}

func padHelper(name string, left bool) Func {
	return func(args []any) (any, error) {
		s := eval.ToString(args[0])
		width, err := intArg(name, args[1])
		if err != nil {
			return nil, err
		}
		pad := " "
		if len(args) == 3 {
			pad = eval.ToString(args[2])
			if pad == "" {
				pad = " "
			}
		}
		for len([]rune(s)) < width {
			if left {
				s = pad + s
			} else {
				s += pad
			}
		}
		return s, nil
	}
}

func seqEdgeHelper(last bool) Func {
	return func(args []any) (any, error) {
		if s, ok := args[0].(string); ok {
			runes := []rune(s)
			if len(runes) == 0 {
				return "", nil
			}
			if last {
				return string(runes[len(runes)-1]), nil
			}
			return string(runes[0]), nil
		}
		items, ok := toSlice(args[0])
		if !ok || len(items) == 0 {
			return nil, nil
		}
		if last {
			return items[len(items)-1], nil
		}
		return items[0], nil
	}
}

// toSlice normalizes any slice or array into []any.
func toSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

var nonSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = strings.ToLower(s)
	s = nonSlugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// groupThousands inserts comma separators into the integer part of a
// formatted number.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart := s
	frac := ""
	if dot := strings.IndexByte(s, '.'); dot != -1 {
		intPart, frac = s[:dot], s[dot:]
	}
	if len(intPart) > 3 {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}
	out := intPart + frac
	if neg {
		out = "-" + out
	}
	return out
}
