package api

import (
	"context"
	"sort"
	"sync"
)

// Callable is an in-process pipeline step. Arguments arrive as decoded
// JSON values; the returned value is kept on the job for the caller to
// inspect after the run.
type Callable func(ctx context.Context, args map[string]any) (any, error)

// Registry maps stable string identifiers to callables so function steps
// can be persisted by name and rehydrated when an old run record is
// re-executed. Callers populate it before building a recipe.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]Callable
}

// NewRegistry returns an empty callable registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]Callable)}
}

// Register binds name to fn. Re-registering an existing name is a
// ParameterError.
func (r *Registry) Register(name string, fn Callable) error {
	if name == "" {
		return NewParameterError("callable name is required")
	}
	if fn == nil {
		return NewParameterError("callable %s: function is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.fns[name]; dup {
		return NewParameterError("callable already registered: %s", name)
	}
	r.fns[name] = fn
	return nil
}

// Resolve returns the callable registered under name. An unknown name is
// a ParameterError, never a silent skip.
func (r *Registry) Resolve(name string) (Callable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	if !ok {
		return nil, NewParameterError("unknown callable: %s", name)
	}
	return fn, nil
}

// Names lists the registered callable names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.fns))
	for name := range r.fns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
