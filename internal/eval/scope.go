// Package eval resolves template expressions against a data context.
//
// A Scope is an ordered chain of frames, innermost first. Frames are
// created by each (item plus the @-variables) and with (a rebased root)
// and have stack lifetime: they are pushed before a block body renders
// and popped when it returns, and never escape the render call.
package eval

import "github.com/conneroisu/quill/internal/ast"

type frame struct {
	vars    map[string]any
	root    any
	rebased bool
}

// Scope is a chain of context frames used for path resolution.
type Scope struct {
	frames []frame
}

// NewScope creates a scope rooted at the given data context.
func NewScope(root any) *Scope {
	return &Scope{frames: []frame{{root: root, rebased: true}}}
}

// PushWith adds a frame that rebases the path-resolution root.
func (s *Scope) PushWith(root any) {
	s.frames = append(s.frames, frame{root: root, rebased: true})
}

// PushVars adds a frame of named bindings without rebasing the root.
func (s *Scope) PushVars(vars map[string]any) {
	s.frames = append(s.frames, frame{vars: vars})
}

// PushEach adds the frame an each iteration renders under.
func (s *Scope) PushEach(item string, value any, index, length int, key any) {
	vars := map[string]any{
		"@index": index,
		"@first": index == 0,
		"@last":  index == length-1,
	}
	if item != "" {
		vars[item] = value
	}
	if key != nil {
		vars["@key"] = key
	}
	s.frames = append(s.frames, frame{vars: vars})
}

// Pop removes the innermost frame. The root frame is never popped.
func (s *Scope) Pop() {
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Depth returns the number of live frames, used by tests to check the
// stack discipline.
func (s *Scope) Depth() int {
	return len(s.frames)
}

// Resolve walks the frame chain innermost-first looking for the path.
// A name bound in an inner frame shadows the same name further out;
// unshadowed names stay visible through rebased frames.
func (s *Scope) Resolve(segments []ast.PathSeg) (any, bool) {
	if len(segments) == 0 {
		return nil, false
	}
	head := segments[0]
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if !head.IsIndex && f.vars != nil {
			if v, ok := f.vars[head.Name]; ok {
				return descend(v, segments[1:])
			}
		}
		if f.rebased {
			if v, ok := descend(f.root, segments); ok {
				return v, true
			}
		}
	}
	return nil, false
}
