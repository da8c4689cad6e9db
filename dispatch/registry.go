package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
)

// RegisterOption configures a single registration.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	priority int
}

// WithPriority sets the handler's evaluation priority. Higher priorities
// evaluate earlier; handlers with equal priority evaluate in registration
// order. The default priority is 0.
func WithPriority(priority int) RegisterOption {
	return func(o *registerOptions) {
		o.priority = priority
	}
}

// entry pairs a handler with its registration metadata.
type entry struct {
	h        handler.Handler
	priority int
	seq      int // insertion order, the tie-break
}

// Registry maps event kinds to ordered handler sequences.
//
// Registration happens at initialization; Seal forbids further changes so a
// running process cannot be reconfigured mid-flight. A sealed registry is
// safe for unsynchronized concurrent reads.
type Registry struct {
	mu      sync.RWMutex
	entries map[event.Kind][]entry
	nextSeq int
	sealed  bool
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[event.Kind][]entry),
	}
}

// Register adds a handler for every kind it applies to.
//
// It fails with ErrRegistrySealed after Seal, ErrInvalidHandler for a
// handler with no name or no kinds, and ErrDuplicateHandler when the name
// collides with an existing registration for any of the same kinds. A failed
// registration leaves the registry unchanged.
func (r *Registry) Register(h handler.Handler, opts ...RegisterOption) error {
	if h == nil || h.Name() == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidHandler)
	}
	kinds := h.AppliesTo()
	if len(kinds) == 0 {
		return fmt.Errorf("%w: handler %q applies to no event kinds", ErrInvalidHandler, h.Name())
	}

	options := registerOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrRegistrySealed, h.Name())
	}

	// Validate before mutating so a collision on the second kind does not
	// leave a partial registration behind.
	for _, kind := range kinds {
		for _, e := range r.entries[kind] {
			if e.h.Name() == h.Name() {
				return fmt.Errorf("%w: %q already registered for %s", ErrDuplicateHandler, h.Name(), kind)
			}
		}
	}

	seq := r.nextSeq
	r.nextSeq++

	for _, kind := range kinds {
		entries := append(r.entries[kind], entry{h: h, priority: options.priority, seq: seq})
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].priority != entries[j].priority {
				return entries[i].priority > entries[j].priority
			}
			return entries[i].seq < entries[j].seq
		})
		r.entries[kind] = entries
	}
	return nil
}

// HandlersFor returns the handlers for a kind in evaluation order.
// The slice is a copy; an empty sequence (not an error) means none are
// registered.
func (r *Registry) HandlersFor(kind event.Kind) []handler.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.entries[kind]
	handlers := make([]handler.Handler, len(entries))
	for i, e := range entries {
		handlers[i] = e.h
	}
	return handlers
}

// Names returns the handler names for a kind in evaluation order.
func (r *Registry) Names(kind event.Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.entries[kind]
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.h.Name()
	}
	return names
}

// Count returns the total number of registrations across all kinds.
// A handler applying to three kinds counts three times.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, entries := range r.entries {
		total += len(entries)
	}
	return total
}

// Seal irreversibly forbids further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
