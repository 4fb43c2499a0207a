// Package registry holds the effect handlers the dispatch pipeline can
// execute. Each bus owns its own Registry instance; there is no package
// global, so unrelated buses in one process never share handlers and
// tests get isolation for free.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/driftline/activitybus/internal/activity"
)

// DefaultPriority applies to effects registered without an explicit one.
// Lower priorities run earlier when a rule lists multiple effects loaded
// from bundles that order by priority.
const DefaultPriority = 100

// Handler is an effect implementation. It receives the activity under
// dispatch and returns zero or more result entries to append to its
// result trail. Returned errors are recorded as Error entries by the
// dispatcher; they never abort the activity.
type Handler func(ctx context.Context, act activity.Activity) ([]activity.Entry, error)

// Effect is a registered handler with its metadata.
type Effect struct {
	ID       string
	Handler  Handler
	Priority int
	Metadata map[string]any
}

// Descriptor is the inspectable form of an Effect: everything but the
// handler reference. Safe to serialize or persist.
type Descriptor struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Priority int            `json:"priority"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToMap converts the descriptor to a storable record.
func (d Descriptor) ToMap() map[string]any {
	m := map[string]any{
		"id":       d.ID,
		"type":     d.Type,
		"priority": d.Priority,
	}
	if len(d.Metadata) > 0 {
		m["metadata"] = d.Metadata
	}
	return m
}

// Option configures a registration.
type Option func(*Effect)

// WithPriority sets the effect's priority (lower runs earlier).
func WithPriority(priority int) Option {
	return func(e *Effect) { e.Priority = priority }
}

// WithMetadata attaches free-form metadata to the effect.
func WithMetadata(metadata map[string]any) Option {
	return func(e *Effect) { e.Metadata = metadata }
}

// Registry maps effect ids to handlers.
//
// Registration is last-write-wins: re-registering an id replaces the
// prior entry unconditionally. That is the documented contract, not an
// accident: bundles rely on it to override defaults. Registration is
// expected during startup or quiescent periods; the mutex makes
// concurrent use safe but does not make replacement deterministic.
type Registry struct {
	mu      sync.RWMutex
	effects map[string]Effect
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{effects: make(map[string]Effect)}
}

// Register installs or replaces the handler for id.
func (r *Registry) Register(id string, handler Handler, opts ...Option) {
	e := Effect{
		ID:       id,
		Handler:  handler,
		Priority: DefaultPriority,
	}
	for _, opt := range opts {
		opt(&e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects[id] = e
}

// Get returns the effect registered under id.
func (r *Registry) Get(id string) (Effect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.effects[id]
	return e, ok
}

// List returns descriptors for all registered effects, sorted by id.
// Handler references are deliberately excluded so the result can be
// logged, exported, or persisted without exposing executable state.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.effects))
	for _, e := range r.effects {
		out = append(out, Descriptor{
			ID:       e.ID,
			Type:     "Effect",
			Priority: e.Priority,
			Metadata: e.Metadata,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered effects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.effects)
}

// Clear removes all registered effects. Intended for test teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = make(map[string]Effect)
}
