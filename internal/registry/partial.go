// Package registry manages globally registered partials: named template
// fragments referenced with {{> name}} across templates.
package registry

import (
	"sync"
	"time"

	"github.com/conneroisu/quill/internal/cache"
	"github.com/conneroisu/quill/internal/compiler"
)

// PartialInfo holds one registered partial.
type PartialInfo struct {
	Name         string
	Source       string
	Program      *compiler.Program
	Hash         string
	RegisteredAt time.Time
}

// EventType represents the type of partial registry event.
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

// PartialEvent notifies subscribers of a registry change; the serve
// command uses it to trigger live reloads.
type PartialEvent struct {
	Type      EventType
	Partial   *PartialInfo
	Timestamp time.Time
}

// PartialRegistry stores compiled partials under a single lock so that
// concurrent registrations of the same name resolve deterministically:
// last writer wins. It satisfies compiler.PartialResolver.
type PartialRegistry struct {
	partials map[string]*PartialInfo
	mutex    sync.RWMutex
	watchers []chan PartialEvent
}

// NewPartialRegistry creates an empty partial registry.
func NewPartialRegistry() *PartialRegistry {
	return &PartialRegistry{
		partials: make(map[string]*PartialInfo),
		watchers: make([]chan PartialEvent, 0),
	}
}

// Register adds or replaces a partial. The caller compiles and validates
// the program before registration; the registry never stores source that
// failed the pipeline.
func (r *PartialRegistry) Register(name, source string, program *compiler.Program) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeAdded
	if _, exists := r.partials[name]; exists {
		eventType = EventTypeUpdated
	}

	info := &PartialInfo{
		Name:         name,
		Source:       source,
		Program:      program,
		Hash:         cache.SourceHash(source),
		RegisteredAt: time.Now(),
	}
	r.partials[name] = info
	r.notify(PartialEvent{Type: eventType, Partial: info, Timestamp: info.RegisteredAt})
}

// Remove drops a partial by name.
func (r *PartialRegistry) Remove(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	info, exists := r.partials[name]
	if !exists {
		return
	}
	delete(r.partials, name)
	r.notify(PartialEvent{Type: EventTypeRemoved, Partial: info, Timestamp: time.Now()})
}

// Get returns the registered partial info.
func (r *PartialRegistry) Get(name string) (*PartialInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	info, ok := r.partials[name]
	return info, ok
}

// Resolve implements compiler.PartialResolver.
func (r *PartialRegistry) Resolve(name string) (*compiler.Program, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	info, ok := r.partials[name]
	if !ok {
		return nil, false
	}
	return info.Program, true
}

// Defined reports whether name is registered; the parser consults this
// through the engine when resolving {{> name}} references.
func (r *PartialRegistry) Defined(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.partials[name]
	return ok
}

// Names returns all registered partial names.
func (r *PartialRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.partials))
	for name := range r.partials {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered partials.
func (r *PartialRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.partials)
}

// Watch subscribes to registry changes.
func (r *PartialRegistry) Watch() <-chan PartialEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ch := make(chan PartialEvent, 16)
	r.watchers = append(r.watchers, ch)
	return ch
}

// notify must run under the write lock. Slow subscribers drop events
// rather than blocking registration.
func (r *PartialRegistry) notify(event PartialEvent) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
		}
	}
}
