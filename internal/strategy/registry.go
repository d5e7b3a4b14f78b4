package strategy

import (
	"sort"
	"sync"

	"algotrading/internal/errors"
	"algotrading/internal/schema"
	"algotrading/pkg/exception"
)

// Func evaluates one strategy. It fills the scratch signal from sc.Signal()
// and returns it. args are the raw comma separated values from the definition.
type Func func(sc *Context, args []string) (schema.Signal, error)

// Registry maps method names to strategy functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds fn under name. Names are unique.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" || fn == nil {
		return errors.Wrap(exception.ErrInvalidArgument, "register strategy")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.funcs[name]; ok {
		return errors.Wrapf(exception.ErrStrategyExists, "register %s", name)
	}
	r.funcs[name] = fn
	return nil
}

// Resolve returns the function registered under name.
func (r *Registry) Resolve(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered method names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
