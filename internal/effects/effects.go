// Package effects provides named effect bundles: functions that install
// a related group of handlers into a registry.
//
// There is no dynamic code loading; bundles are registered explicitly in
// the catalog (typically from init, the same convention database/sql
// uses for drivers) and applied by name at startup. Effect ids follow
// the {bundle}.{handler} convention.
package effects

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/driftline/activitybus/internal/registry"
)

// Bundle installs a group of effect handlers into a registry.
type Bundle func(*registry.Registry) error

// LoadError reports an effect bundle that could not be resolved or
// applied.
type LoadError struct {
	Bundle  string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("effect load: bundle %s: %s", e.Bundle, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError reports whether err is an effect load failure.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

var (
	catalogMu sync.RWMutex
	catalog   = make(map[string]Bundle)
)

// Register adds a bundle to the catalog. Panics on a nil bundle or a
// duplicate name: bundle registration is a startup-time wiring error,
// not a runtime condition.
func Register(name string, b Bundle) {
	catalogMu.Lock()
	defer catalogMu.Unlock()

	if b == nil {
		panic("effects: Register bundle is nil")
	}
	if _, dup := catalog[name]; dup {
		panic("effects: Register called twice for bundle " + name)
	}
	catalog[name] = b
}

// Bundles returns the names of all registered bundles, sorted.
func Bundles() []string {
	catalogMu.RLock()
	defer catalogMu.RUnlock()

	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load resolves the named bundles and applies them to the registry,
// then returns the registry's full descriptor list. Fails with a
// *LoadError on the first unknown or failing bundle; handlers installed
// by earlier bundles remain registered.
func Load(reg *registry.Registry, names ...string) ([]registry.Descriptor, error) {
	for _, name := range names {
		catalogMu.RLock()
		b, ok := catalog[name]
		catalogMu.RUnlock()

		if !ok {
			return reg.List(), &LoadError{Bundle: name, Message: "unknown bundle"}
		}
		if err := b(reg); err != nil {
			return reg.List(), &LoadError{Bundle: name, Message: err.Error(), Err: err}
		}
	}
	return reg.List(), nil
}
