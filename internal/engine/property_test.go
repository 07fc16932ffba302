//go:build property

package engine

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_RenderIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	e := New(nil, nil)

	properties.Property("equal inputs render equal output", prop.ForAll(
		func(name string, count int) bool {
			src := "Hello {{name}}, {{count}} new."
			data := map[string]any{"name": name, "count": count}
			first, err1 := e.Render(src, data)
			second, err2 := e.Render(src, data)
			if err1 != nil || err2 != nil {
				return false
			}
			return first == second
		},
		gen.AnyString(),
		gen.Int(),
	))

	properties.TestingRun(t)
}

func TestProperty_EscapedOutputIsInert(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	e := New(nil, nil)

	properties.Property("interpolated values never emit markup", prop.ForAll(
		func(v string) bool {
			out, err := e.Render("{{v}}", map[string]any{"v": v})
			if err != nil {
				return false
			}
			return !strings.Contains(out, "<") && !strings.Contains(out, ">")
		},
		gen.AnyString(),
	))

	properties.Property("escaping survives surrounding text", prop.ForAll(
		func(v string) bool {
			out, err := e.Render("<p>{{v}}</p>", map[string]any{"v": v})
			if err != nil {
				return false
			}
			inner := strings.TrimSuffix(strings.TrimPrefix(out, "<p>"), "</p>")
			return !strings.ContainsAny(inner, "<>\"'")
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestProperty_CacheNeverExceedsCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	sanitize := strings.NewReplacer("{", "", "<", "")

	properties.Property("template cache stays bounded", prop.ForAll(
		func(sources []string) bool {
			e := New(nil, nil)
			for _, s := range sources {
				// Plain text templates always compile.
				if _, err := e.GetOrCompile("t:" + sanitize.Replace(s)); err != nil {
					return false
				}
			}
			return e.templates.Len() <= e.templates.Capacity()
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}
