package factor

import (
	"fmt"
	"time"

	"factor-backtest/internal/panel"
	"factor-backtest/internal/store"
)

// ComputeFunc derives one factor panel from stored data over [start, stop].
// Implementations must be pure with respect to the store contents.
type ComputeFunc func(s *store.PanelStore, start, stop time.Time) (*panel.Panel, error)

// Registry is an explicit, ordered mapping from factor name to its
// computation. It replaces name-based dynamic lookup: every factor the system
// can dump or trade is registered here and validated once at startup.
type Registry struct {
	names []string
	funcs map[string]ComputeFunc
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]ComputeFunc)}
}

// Register adds a factor under name. Duplicate names and nil functions are
// configuration mistakes and rejected outright.
func (r *Registry) Register(name string, fn ComputeFunc) error {
	if name == "" {
		return fmt.Errorf("factor name is required")
	}
	if fn == nil {
		return fmt.Errorf("factor %q: compute function is nil", name)
	}
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("factor %q registered twice", name)
	}
	r.names = append(r.names, name)
	r.funcs[name] = fn
	return nil
}

// MustRegister panics on a registration error; intended for package-level
// built-in wiring where a failure is a programming bug.
func (r *Registry) MustRegister(name string, fn ComputeFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Get looks a factor up by name.
func (r *Registry) Get(name string) (ComputeFunc, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the factor names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Validate confirms every registered name resolves. Called at startup so a
// wiring mistake fails the process before any data is touched.
func (r *Registry) Validate() error {
	for _, name := range r.names {
		if r.funcs[name] == nil {
			return fmt.Errorf("factor %q has no compute function", name)
		}
	}
	return nil
}
