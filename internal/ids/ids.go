// Package ids mints session and entity identifiers and issues the
// per-prefix counters behind them. The Registry is an explicit service
// value: construct one at process start and hand it to whoever needs
// identifiers.
package ids

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode selects an identifier layout.
type Mode string

const (
	// Simple is "<prefix>.<counter>": readable, unique only within one
	// Registry.
	Simple Mode = "simple"
	// Unique is "<prefix>.<date>.<time>.<pid>.<counter>": readable and
	// unique across processes with reasonable confidence.
	Unique Mode = "unique"
	// UUID is "<prefix>.<uuid>".
	UUID Mode = "uuid"
	// Custom treats the prefix as an fmt template receiving the counter,
	// e.g. "task.%04d".
	Custom Mode = "custom"
)

// Registry issues monotonically increasing counters per prefix. The
// zero value is not usable; call NewRegistry.
type Registry struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewRegistry creates an empty counter registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]uint64)}
}

// Next returns the current counter for prefix and advances it. The
// first call for a prefix returns 0.
func (r *Registry) Next(prefix string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.counters[prefix]
	r.counters[prefix] = n + 1
	return n
}

// Reset sets the counter for prefix back to zero.
func (r *Registry) Reset(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[prefix] = 0
}

// ResetOthers zeroes every counter except the one for prefix.
func (r *Registry) ResetOthers(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range r.counters {
		if p != prefix {
			r.counters[p] = 0
		}
	}
}

// Generate mints one identifier for prefix in the given mode.
func (r *Registry) Generate(prefix string, mode Mode) (string, error) {
	if prefix == "" {
		return "", errors.New("ids: empty prefix")
	}

	switch mode {
	case Simple:
		return fmt.Sprintf("%s.%04d", prefix, r.Next(prefix)), nil

	case Unique:
		now := time.Now()
		return fmt.Sprintf("%s.%s.%s.%06d.%04d",
			prefix,
			now.Format("2006.01.02"),
			now.Format("15.04.05"),
			os.Getpid(),
			r.Next(prefix)), nil

	case UUID:
		return fmt.Sprintf("%s.%s", prefix, uuid.New().String()), nil

	case Custom:
		if !strings.Contains(prefix, "%") {
			return "", fmt.Errorf("ids: custom template %q has no counter verb", prefix)
		}
		key := strings.ReplaceAll(prefix, "%", "")
		return fmt.Sprintf(prefix, r.Next(key)), nil
	}

	return "", fmt.Errorf("ids: unsupported mode %q", mode)
}
