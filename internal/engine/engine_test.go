package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/quill/internal/config"
	qerrors "github.com/conneroisu/quill/internal/errors"
)

func newEngine(t *testing.T, mutate func(*config.Config)) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg, nil)
}

func TestEngine_RenderPath(t *testing.T) {
	e := newEngine(t, nil)
	data := map[string]any{"a": map[string]any{"b": "John"}}

	out, err := e.Render("{{a.b}}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", out)

	out, err = e.Render("{{a.missing}}", data)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestEngine_StrictMode(t *testing.T) {
	e := newEngine(t, func(cfg *config.Config) {
		cfg.Engine.StrictMode = true
	})

	_, err := e.Render("{{a.missing}}", map[string]any{"a": map[string]any{}})
	require.Error(t, err)
	re, ok := err.(*qerrors.RenderError)
	require.True(t, ok)
	assert.Equal(t, qerrors.UnresolvedPath, re.Kind)
}

func TestEngine_HelperShorthand(t *testing.T) {
	e := newEngine(t, nil)

	out, err := e.Render("{{~uppercase a}}", map[string]any{"a": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "HI", out)
}

func TestEngine_CustomHelper(t *testing.T) {
	e := newEngine(t, nil)
	err := e.RegisterHelper("shout", 1, 1, func(args []any) (any, error) {
		return strings.ToUpper(args[0].(string)) + "!", nil
	})
	require.NoError(t, err)

	out, err := e.Render("{{~shout word}}", map[string]any{"word": "go"})
	require.NoError(t, err)
	assert.Equal(t, "GO!", out)
}

func TestEngine_HelperRegistryFreezesOnFirstRender(t *testing.T) {
	e := newEngine(t, nil)

	_, err := e.Render("static", nil)
	require.NoError(t, err)

	err = e.RegisterHelper("late", 0, 0, func([]any) (any, error) { return nil, nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")
}

func TestEngine_UnknownHelper(t *testing.T) {
	e := newEngine(t, nil)

	_, err := e.Render("{{~nope x}}", map[string]any{"x": 1})
	require.Error(t, err)
	re := err.(*qerrors.RenderError)
	assert.Equal(t, qerrors.UnknownHelper, re.Kind)
	assert.Equal(t, "nope", re.Name)
}

func TestEngine_TemplateCacheHit(t *testing.T) {
	e := newEngine(t, nil)

	first, err := e.GetOrCompile("{{name}}")
	require.NoError(t, err)
	second, err := e.GetOrCompile("{{name}}")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotEmpty(t, first.SourceHash)
}

func TestEngine_FailedCompileNotCached(t *testing.T) {
	e := newEngine(t, nil)

	_, err := e.GetOrCompile("{{#if x}}")
	require.Error(t, err)
	assert.True(t, qerrors.IsCompileError(err))

	// The bad source is recompiled, not served from the cache.
	_, err = e.GetOrCompile("{{#if x}}")
	assert.Error(t, err)
}

func TestEngine_RenderCache(t *testing.T) {
	e := newEngine(t, func(cfg *config.Config) {
		cfg.Engine.RenderCacheCapacity = 16
	})
	data := map[string]any{"n": 1.0}

	first, err := e.Render("{{n}}", data)
	require.NoError(t, err)
	second, err := e.Render("{{n}}", data)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Equal contexts built in different insertion order share the entry.
	third, err := e.Render("{{n}}", map[string]any{"n": 1.0})
	require.NoError(t, err)
	assert.Equal(t, first, third)

	changed, err := e.Render("{{n}}", map[string]any{"n": 2.0})
	require.NoError(t, err)
	assert.Equal(t, "2", changed)
}

func TestEngine_RenderCacheSkipsUnmarshalableContext(t *testing.T) {
	e := newEngine(t, func(cfg *config.Config) {
		cfg.Engine.RenderCacheCapacity = 16
	})
	data := map[string]any{"name": "x", "fn": func() {}}

	out, err := e.Render("{{name}}", data)
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestEngine_RawOutputDisabled(t *testing.T) {
	e := newEngine(t, func(cfg *config.Config) {
		cfg.Engine.RawOutput = false
	})

	_, err := e.Render("{{& v}}", map[string]any{"v": "<b>"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw output is disabled")
}

func TestEngine_GlobalPartials(t *testing.T) {
	e := newEngine(t, nil)
	require.NoError(t, e.RegisterPartial("header", "== {{title}} =="))

	out, err := e.Render("{{> header}} body", map[string]any{"title": "Docs"})
	require.NoError(t, err)
	assert.Equal(t, "== Docs == body", out)
}

func TestEngine_PartialReplacementTakesEffect(t *testing.T) {
	e := newEngine(t, nil)
	require.NoError(t, e.RegisterPartial("p", "one"))

	out, err := e.Render("{{> p}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	// Resolution happens at render time, so the replacement shows up even
	// though the referencing template is cached.
	require.NoError(t, e.RegisterPartial("p", "two"))
	out, err = e.Render("{{> p}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "two", out)
}

func TestEngine_PartialChangeInvalidatesRenderCache(t *testing.T) {
	e := newEngine(t, func(cfg *config.Config) {
		cfg.Engine.RenderCacheCapacity = 16
	})
	require.NoError(t, e.RegisterPartial("p", "one"))

	out, err := e.Render("{{> p}}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	// The memoized output must not survive the replacement.
	require.NoError(t, e.RegisterPartial("p", "two"))
	out, err = e.Render("{{> p}}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "two", out)
}

func TestEngine_UnknownPartialRejectedAtParse(t *testing.T) {
	e := newEngine(t, nil)

	_, err := e.Render("{{> ghost}}", nil)
	require.Error(t, err)
	assert.True(t, qerrors.IsCompileError(err))
}

func TestEngine_BadPartialSourceRejected(t *testing.T) {
	e := newEngine(t, nil)
	err := e.RegisterPartial("bad", "{{#if x}}")
	require.Error(t, err)
	assert.False(t, e.Partials().Defined("bad"))
}

func TestEngine_SecurityPolicyFromConfig(t *testing.T) {
	e := newEngine(t, func(cfg *config.Config) {
		cfg.Engine.AllowedTags = []string{"p", "em"}
	})

	_, err := e.Render("<p>ok <em>x</em></p>", nil)
	require.NoError(t, err)

	_, err = e.Render("<div>no</div>", nil)
	require.Error(t, err)
	se, ok := err.(*qerrors.SecurityError)
	require.True(t, ok)
	assert.Equal(t, qerrors.ViolationDisallowedTag, se.Kind)
}

func TestEngine_ScriptAlwaysRejected(t *testing.T) {
	e := newEngine(t, nil)

	_, err := e.Render("<script>alert(1)</script>", nil)
	require.Error(t, err)
	assert.True(t, qerrors.IsCompileError(err))
}

func TestEngine_SplitTagsStillValidated(t *testing.T) {
	e := newEngine(t, nil)

	// An interpolation in the attribute region must not smuggle the tag
	// past the validator.
	_, err := e.Render(`<script {{x}}>alert(1)</script>`, map[string]any{"x": ""})
	require.Error(t, err)
	se, ok := err.(*qerrors.SecurityError)
	require.True(t, ok)
	assert.Equal(t, qerrors.ViolationDisallowedTag, se.Kind)

	_, err = e.Render(`<div class="{{x}}" onclick="steal()">x</div>`, map[string]any{"x": ""})
	require.Error(t, err)
	se, ok = err.(*qerrors.SecurityError)
	require.True(t, ok)
	assert.Equal(t, qerrors.ViolationInlineHandler, se.Kind)
}

func TestEngine_SplitTagRendersVerbatim(t *testing.T) {
	e := newEngine(t, nil)

	out, err := e.Render(`<div class="{{cls}}">x</div>`, map[string]any{"cls": "card"})
	require.NoError(t, err)
	assert.Equal(t, `<div class="card">x</div>`, out)
}

func TestEngine_NilConfigUsesDefaults(t *testing.T) {
	e := New(nil, nil)

	out, err := e.Render("{{& v}}", map[string]any{"v": "<i>"})
	require.NoError(t, err)
	assert.Equal(t, "<i>", out)
	assert.Equal(t, 256, e.Config().Engine.CacheCapacity)
}

func TestEngine_EscapesByDefault(t *testing.T) {
	e := newEngine(t, nil)

	out, err := e.Render("{{v}}", map[string]any{"v": `<script>`})
	require.NoError(t, err)
	assert.Equal(t, "&lt;script&gt;", out)
}
