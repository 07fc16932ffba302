package errors

import (
	"fmt"
	"sync"
	"time"
)

// Diagnostic is one collected template error with the source it came from.
type Diagnostic struct {
	Source    string // template name or file path
	Err       error
	Timestamp time.Time
}

// String formats the diagnostic for terminal output.
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Source, d.Err)
}

// ErrorCollector aggregates template diagnostics across compile attempts.
// The watch and serve commands use it to keep reporting every broken
// template instead of stopping at the first one.
type ErrorCollector struct {
	diagnostics []Diagnostic
	mutex       sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		diagnostics: make([]Diagnostic, 0),
	}
}

// Add records a diagnostic for the given source. Nil errors are ignored.
func (ec *ErrorCollector) Add(source string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.diagnostics = append(ec.diagnostics, Diagnostic{
		Source:    source,
		Err:       err,
		Timestamp: time.Now(),
	})
}

// Diagnostics returns a copy of all collected diagnostics.
func (ec *ErrorCollector) Diagnostics() []Diagnostic {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]Diagnostic, len(ec.diagnostics))
	copy(result, ec.diagnostics)
	return result
}

// BySource returns the diagnostics recorded for one source.
func (ec *ErrorCollector) BySource(source string) []Diagnostic {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var out []Diagnostic
	for _, d := range ec.diagnostics {
		if d.Source == source {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors returns true if any diagnostic has been collected.
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.diagnostics) > 0
}

// Clear drops all collected diagnostics.
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.diagnostics = ec.diagnostics[:0]
}
