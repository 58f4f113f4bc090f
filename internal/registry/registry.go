package registry

import (
	"sort"
)

// Module is the interface that all action modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds all the registered action handlers for a single
// application instance.
type Registry struct {
	ActionRegistry map[string]*RegisteredAction
}

// New creates a registry and registers every given module into it.
func New(modules ...Module) *Registry {
	r := &Registry{
		ActionRegistry: make(map[string]*RegisteredAction),
	}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// Types returns the sorted list of registered action types.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.ActionRegistry))
	for t := range r.ActionRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
