package recovery

import (
	"sort"
	"sync"
)

// Registry maps names to handlers. It is safe for concurrent lookups while
// handlers are being registered.
type Registry struct {
	mutex    sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler, 8)}
}

// Register replaces any handler already registered under name.
func (r *Registry) Register(name string, h Handler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.handlers[name] = h
}

// Resolve reports false for unknown names, that is a normal outcome.
func (r *Registry) Resolve(name string) (Handler, bool) {
	if name == "" {
		return nil, false
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) Names() []string {
	r.mutex.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mutex.RUnlock()
	sort.Strings(names)
	return names
}
