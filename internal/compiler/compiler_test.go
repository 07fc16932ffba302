package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/conneroisu/quill/internal/errors"
	"github.com/conneroisu/quill/internal/eval"
	"github.com/conneroisu/quill/internal/helpers"
	"github.com/conneroisu/quill/internal/parser"
)

// stubResolver backs partial tests without pulling in the registry.
type stubResolver map[string]*Program

func (s stubResolver) Resolve(name string) (*Program, bool) {
	p, ok := s[name]
	return p, ok
}

func compile(t *testing.T, source string, opts parser.Options) *Program {
	t.Helper()
	root, err := parser.Parse(source, opts)
	require.NoError(t, err)
	program, err := Compile(root)
	require.NoError(t, err)
	return program
}

func render(t *testing.T, source string, data any) (string, error) {
	t.Helper()
	program := compile(t, source, parser.Options{RawOutput: true})
	ev := &eval.Evaluator{Helpers: helpers.NewWithBuiltins()}
	return program.Render(eval.NewScope(data), ev, nil)
}

func mustRender(t *testing.T, source string, data any) string {
	t.Helper()
	out, err := render(t, source, data)
	require.NoError(t, err)
	return out
}

func TestRender_Interpolation(t *testing.T) {
	data := map[string]any{"a": map[string]any{"b": "John"}}
	assert.Equal(t, "John", mustRender(t, "{{a.b}}", data))
	assert.Equal(t, "", mustRender(t, "{{a.missing}}", data))
}

func TestRender_EscapingByDefault(t *testing.T) {
	data := map[string]any{"v": `<script>alert("x")</script>`}

	out := mustRender(t, "{{v}}", data)
	assert.Equal(t, "&lt;script&gt;alert(&quot;x&quot;)&lt;/script&gt;", out)

	raw := mustRender(t, "{{& v}}", data)
	assert.Equal(t, `<script>alert("x")</script>`, raw)
}

func TestRender_HelperShorthandEscapes(t *testing.T) {
	data := map[string]any{"v": "<b>hi</b>"}
	out := mustRender(t, "{{~uppercase v}}", data)
	assert.Equal(t, "&lt;B&gt;HI&lt;/B&gt;", out)
}

func TestRender_IfElseChain(t *testing.T) {
	src := "{{#if a}}A{{else if b}}B{{else}}C{{/if}}"

	assert.Equal(t, "A", mustRender(t, src, map[string]any{"a": true, "b": true}))
	assert.Equal(t, "B", mustRender(t, src, map[string]any{"b": true}))
	assert.Equal(t, "C", mustRender(t, src, map[string]any{}))
}

func TestRender_Unless(t *testing.T) {
	src := "{{#unless done}}pending{{else}}done{{/unless}}"

	assert.Equal(t, "pending", mustRender(t, src, map[string]any{"done": false}))
	assert.Equal(t, "done", mustRender(t, src, map[string]any{"done": true}))
}

func TestRender_EachOverSlice(t *testing.T) {
	src := "{{#each item in items}}{{@index}}:{{item}}{{#unless @last}},{{/unless}}{{/each}}"
	data := map[string]any{"items": []any{"a", "b", "c"}}

	assert.Equal(t, "0:a,1:b,2:c", mustRender(t, src, data))
}

func TestRender_EachFirstLast(t *testing.T) {
	src := "{{#each x in xs}}{{#if @first}}[{{/if}}{{x}}{{#if @last}}]{{/if}}{{/each}}"
	data := map[string]any{"xs": []any{"1", "2"}}

	assert.Equal(t, "[12]", mustRender(t, src, data))
}

func TestRender_EachElse(t *testing.T) {
	src := "{{#each x in xs}}{{x}}{{else}}empty{{/each}}"

	assert.Equal(t, "empty", mustRender(t, src, map[string]any{"xs": []any{}}))
	assert.Equal(t, "empty", mustRender(t, src, map[string]any{}))
	assert.Equal(t, "a", mustRender(t, src, map[string]any{"xs": []any{"a"}}))
}

func TestRender_EachOverMapIsSortedAndKeyed(t *testing.T) {
	src := "{{#each v in m}}{{@key}}={{v}};{{/each}}"
	data := map[string]any{"m": map[string]any{"b": 2, "a": 1, "c": 3}}

	// Deterministic regardless of map iteration order.
	for i := 0; i < 10; i++ {
		assert.Equal(t, "a=1;b=2;c=3;", mustRender(t, src, data))
	}
}

func TestRender_EachOverTypedSlice(t *testing.T) {
	src := "{{#each n in nums}}{{n}} {{/each}}"
	data := map[string]any{"nums": []int{3, 1, 2}}

	assert.Equal(t, "3 1 2 ", mustRender(t, src, data))
}

func TestRender_NestedEachShadowing(t *testing.T) {
	src := "{{#each row in rows}}{{#each cell in row}}{{cell}}{{/each}}|{{/each}}"
	data := map[string]any{"rows": []any{[]any{"a", "b"}, []any{"c"}}}

	assert.Equal(t, "ab|c|", mustRender(t, src, data))
}

func TestRender_With(t *testing.T) {
	src := "{{#with user.address}}{{city}}, {{zip}}{{/with}}"
	data := map[string]any{
		"user": map[string]any{
			"address": map[string]any{"city": "Oslo", "zip": "0150"},
		},
	}
	assert.Equal(t, "Oslo, 0150", mustRender(t, src, data))
}

func TestRender_WithFallsThroughToOuter(t *testing.T) {
	src := "{{#with inner}}{{name}} sees {{outerName}}{{/with}}"
	data := map[string]any{
		"outerName": "root",
		"inner":     map[string]any{"name": "leaf"},
	}
	assert.Equal(t, "leaf sees root", mustRender(t, src, data))
}

func TestRender_LocalPartial(t *testing.T) {
	src := "{{#partial badge}}[{{label}}]{{/partial}}{{> badge}}{{> badge}}"
	data := map[string]any{"label": "new"}

	assert.Equal(t, "[new][new]", mustRender(t, src, data))
}

func TestRender_PartialWithContext(t *testing.T) {
	src := "{{#partial card}}{{name}}{{/partial}}{{> card user}}"
	data := map[string]any{"user": map[string]any{"name": "Ada"}}

	assert.Equal(t, "Ada", mustRender(t, src, data))
}

func TestRender_PartialWithBindings(t *testing.T) {
	src := "{{#partial link}}{{label}} -> {{url}}{{/partial}}{{> link label='Home' url=base}}"
	data := map[string]any{"base": "/home"}

	assert.Equal(t, "Home -> /home", mustRender(t, src, data))
}

func TestRender_GlobalPartialResolution(t *testing.T) {
	header := compile(t, "== {{title}} ==", parser.Options{})
	resolver := stubResolver{"header": header}

	program := compile(t, "{{> header}}", parser.Options{
		PartialDefined: func(name string) bool { return name == "header" },
	})
	ev := &eval.Evaluator{}
	out, err := program.Render(eval.NewScope(map[string]any{"title": "Docs"}), ev, resolver)
	require.NoError(t, err)
	assert.Equal(t, "== Docs ==", out)
}

func TestRender_LocalPartialShadowsGlobal(t *testing.T) {
	global := compile(t, "global", parser.Options{})
	resolver := stubResolver{"x": global}

	program := compile(t, "{{#partial x}}local{{/partial}}{{> x}}", parser.Options{
		PartialDefined: func(string) bool { return true },
	})
	out, err := program.Render(eval.NewScope(nil), &eval.Evaluator{}, resolver)
	require.NoError(t, err)
	assert.Equal(t, "local", out)
}

func TestRender_MissingGlobalPartialAtRenderTime(t *testing.T) {
	program := compile(t, "{{> gone}}", parser.Options{
		PartialDefined: func(string) bool { return true },
	})
	_, err := program.Render(eval.NewScope(nil), &eval.Evaluator{}, stubResolver{})
	require.Error(t, err)
	re := err.(*qerrors.RenderError)
	assert.Equal(t, qerrors.BadPartial, re.Kind)
	assert.Equal(t, "gone", re.Name)
}

func TestRender_PartialRecursionDepthCapped(t *testing.T) {
	// A self-referencing global partial must fail, not overflow.
	root, err := parser.Parse("{{> loop}}", parser.Options{
		PartialDefined: func(string) bool { return true },
	})
	require.NoError(t, err)
	program, err := Compile(root)
	require.NoError(t, err)

	resolver := stubResolver{"loop": program}
	_, err = program.Render(eval.NewScope(nil), &eval.Evaluator{}, resolver)
	require.Error(t, err)
	re := err.(*qerrors.RenderError)
	assert.Equal(t, qerrors.BadPartial, re.Kind)
	assert.Contains(t, re.Message, "recursion")
}

func TestRender_AllOrNothing(t *testing.T) {
	src := "before {{~nope x}} after"
	out, err := render(t, src, map[string]any{"x": 1})
	require.Error(t, err)
	assert.Empty(t, out, "failed renders must not emit partial output")
}

func TestRender_LogicalFallback(t *testing.T) {
	src := "{{name || 'anon'}}"

	assert.Equal(t, "anon", mustRender(t, src, map[string]any{}))
	assert.Equal(t, "Ada", mustRender(t, src, map[string]any{"name": "Ada"}))
}

func TestRender_CommentsEmitNothing(t *testing.T) {
	assert.Equal(t, "ab", mustRender(t, "a{{! hidden note }}b", nil))
}

func TestRender_URLContextChecked(t *testing.T) {
	src := `<a href="{{link}}">x</a>`

	out, err := render(t, src, map[string]any{"link": "https://example.com"})
	require.NoError(t, err)
	assert.Contains(t, out, "https://example.com")

	_, err = render(t, src, map[string]any{"link": "javascript:alert(1)"})
	require.Error(t, err)
	re := err.(*qerrors.RenderError)
	assert.Equal(t, qerrors.UnsafeURL, re.Kind)
}

func TestRender_StaticMarkupVerbatim(t *testing.T) {
	src := `<div class="card"><p>{{msg}}</p></div>`
	out := mustRender(t, src, map[string]any{"msg": "hi"})
	assert.Equal(t, `<div class="card"><p>hi</p></div>`, out)
}

func TestRender_Deterministic(t *testing.T) {
	src := "{{#each v in m}}{{@key}}:{{v}} {{/each}}{{~formatNumber total 2}}"
	data := map[string]any{
		"m":     map[string]any{"x": 1, "y": 2},
		"total": 1234.5,
	}
	first := mustRender(t, src, data)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, mustRender(t, src, data))
	}
}

func TestProgram_ReusableAcrossRenders(t *testing.T) {
	src := "{{#if n}}{{10 / n}}{{else}}zero{{/if}}"
	p := compile(t, src, parser.Options{})
	ev := &eval.Evaluator{}

	out, err := p.Render(eval.NewScope(map[string]any{"n": 4}), ev, nil)
	require.NoError(t, err)
	assert.Equal(t, "2.5", out)

	out2, err := p.Render(eval.NewScope(map[string]any{"n": 0}), ev, nil)
	require.NoError(t, err)
	assert.Equal(t, "zero", out2)
}
