package backend

import (
	"sort"
	"sync"

	"github.com/go-faster/errors"
)

// Registry holds the backends that run in this process.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func NewRegistry(bs ...Backend) *Registry {
	r := &Registry{backends: map[string]Backend{}}
	for _, b := range bs {
		r.Register(b)
	}
	return r
}

// DefaultRegistry knows the noiseless qasm_simulator.
func DefaultRegistry() *Registry {
	return NewRegistry(NewSimulator())
}

func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

func (r *Registry) GetBackend(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, errors.Wrap(ErrBackendNotFound, name)
	}
	return b, nil
}

// Backends returns the registered backends sorted by name.
func (r *Registry) Backends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
