// Package engine wires the compilation pipeline together: lexer, parser,
// security validator and compiler feed a bounded template cache, and
// renders run the compiled program through the evaluator and escaper.
//
// Engines are explicitly constructed and self-contained; nothing in this
// package is process-global, so one process can run several engines with
// different configurations side by side.
package engine

import (
	"context"
	"time"

	"github.com/conneroisu/quill/internal/cache"
	"github.com/conneroisu/quill/internal/compiler"
	"github.com/conneroisu/quill/internal/config"
	"github.com/conneroisu/quill/internal/eval"
	"github.com/conneroisu/quill/internal/helpers"
	"github.com/conneroisu/quill/internal/logging"
	"github.com/conneroisu/quill/internal/parser"
	"github.com/conneroisu/quill/internal/registry"
	"github.com/conneroisu/quill/internal/validator"
)

// CompiledTemplate is an immutable compiled render artifact, safe to
// share across concurrent render calls.
type CompiledTemplate struct {
	SourceHash string
	Program    *compiler.Program
	CompiledAt time.Time
}

// Engine owns the caches, the helper registry and the partial registry
// for one template configuration.
type Engine struct {
	cfg       *config.Config
	log       logging.Logger
	helpers   *helpers.Registry
	partials  *registry.PartialRegistry
	templates *cache.LRU
	rendered  *cache.LRU
	policy    validator.Policy
}

// New creates an engine from a validated configuration. The helper
// registry starts with the built-in set; callers add their own helpers
// before the first render.
func New(cfg *config.Config, log logging.Logger) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logging.Nop()
	}
	e := &Engine{
		cfg:       cfg,
		log:       log.WithComponent("engine"),
		helpers:   helpers.NewWithBuiltins(),
		partials:  registry.NewPartialRegistry(),
		templates: cache.NewLRU(cfg.Engine.CacheCapacity),
		policy: validator.Policy{
			AllowedTags:       cfg.TagSet(),
			AllowedAttributes: cfg.AttributeSet(),
		},
	}
	if cfg.Engine.RenderCacheCapacity > 0 {
		e.rendered = cache.NewLRU(cfg.Engine.RenderCacheCapacity)
	}
	return e
}

// Helpers returns the engine's helper registry.
func (e *Engine) Helpers() *helpers.Registry {
	return e.helpers
}

// Partials returns the engine's partial registry.
func (e *Engine) Partials() *registry.PartialRegistry {
	return e.partials
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// RegisterHelper adds a helper before rendering begins.
func (e *Engine) RegisterHelper(name string, minArgs, maxArgs int, fn helpers.Func) error {
	return e.helpers.Register(name, minArgs, maxArgs, fn)
}

// RegisterPartial compiles a partial through the full pipeline and
// registers it globally. Registration is last-writer-wins under the
// registry's lock.
func (e *Engine) RegisterPartial(name, source string) error {
	program, err := e.compile(source)
	if err != nil {
		return err
	}
	e.partials.Register(name, source, program)
	// Memoized output may embed the previous body of this partial.
	if e.rendered != nil {
		e.rendered.Purge()
	}
	e.log.Debug(context.Background(), "partial registered", "name", name)
	return nil
}

// Compile runs the full pipeline without caching, for callers that only
// need validation diagnostics.
func (e *Engine) Compile(source string) (*CompiledTemplate, error) {
	program, err := e.compile(source)
	if err != nil {
		return nil, err
	}
	return &CompiledTemplate{
		SourceHash: cache.SourceHash(source),
		Program:    program,
		CompiledAt: time.Now(),
	}, nil
}

// GetOrCompile returns the cached compiled template for source,
// compiling and caching it on a miss. A template that fails any pipeline
// stage is never cached.
func (e *Engine) GetOrCompile(source string) (*CompiledTemplate, error) {
	v, err := e.templates.GetOrCreate(source, func() (any, error) {
		t, err := e.Compile(source)
		if err != nil {
			return nil, err
		}
		e.log.Debug(context.Background(), "template compiled",
			"hash", t.SourceHash[:12],
			"cached", e.templates.Len(),
		)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CompiledTemplate), nil
}

// Render compiles (or fetches) the template and renders it against the
// data context. With a render cache configured, identical (source,
// context) pairs are served from memory; determinism of the pipeline
// makes the memoized string indistinguishable from a fresh render.
func (e *Engine) Render(source string, data any) (string, error) {
	if e.rendered != nil {
		if key, ok := cache.RenderKey(source, data); ok {
			if out, hit := e.rendered.Get(key); hit {
				return out.(string), nil
			}
			out, err := e.renderFresh(source, data)
			if err != nil {
				return "", err
			}
			e.rendered.Put(key, out)
			return out, nil
		}
	}
	return e.renderFresh(source, data)
}

func (e *Engine) renderFresh(source string, data any) (string, error) {
	t, err := e.GetOrCompile(source)
	if err != nil {
		return "", err
	}
	return e.RenderTemplate(t, data)
}

// RenderTemplate renders an already-compiled template. The helper
// registry is frozen on first use; helpers are setup-time configuration.
func (e *Engine) RenderTemplate(t *CompiledTemplate, data any) (string, error) {
	e.helpers.Freeze()
	scope := eval.NewScope(data)
	ev := &eval.Evaluator{
		Helpers: e.helpers,
		Strict:  e.cfg.Engine.StrictMode,
	}
	return t.Program.Render(scope, ev, e.partials)
}

// compile runs lex, parse, validate and codegen in order. Validation
// completes before any code generation happens.
func (e *Engine) compile(source string) (*compiler.Program, error) {
	root, err := parser.Parse(source, parser.Options{
		PartialDefined: e.partials.Defined,
		RawOutput:      e.cfg.Engine.RawOutput,
	})
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(root, e.policy); err != nil {
		return nil, err
	}
	return compiler.Compile(root)
}
