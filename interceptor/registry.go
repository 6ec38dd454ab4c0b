package interceptor

import "sync/atomic"

// Registry holds the interceptors of a proxy: at most one cache interceptor in
// its own slot and the generic ones in registration order. Readers always see
// a consistent snapshot, writers replace it.
type Registry struct {
	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	cache    Interceptor
	generics []Interceptor
}

func NewRegistry(cache Interceptor, generics ...Interceptor) *Registry {
	r := &Registry{}
	r.snapshot.Store(&snapshot{
		cache:    cache,
		generics: append([]Interceptor(nil), generics...),
	})
	return r
}

// Cache returns the cache interceptor, nil when none is registered.
func (r *Registry) Cache() Interceptor {
	return r.snapshot.Load().cache
}

// Generics returns the generic interceptors in registration order. The slice
// is shared, callers must not modify it.
func (r *Registry) Generics() []Interceptor {
	return r.snapshot.Load().generics
}

func (r *Registry) HasGenerics() bool {
	return len(r.snapshot.Load().generics) > 0
}

func (r *Registry) SetCache(cache Interceptor) {
	for {
		old := r.snapshot.Load()
		next := &snapshot{cache: cache, generics: old.generics}
		if r.snapshot.CompareAndSwap(old, next) {
			return
		}
	}
}

func (r *Registry) Add(interceptors ...Interceptor) {
	for {
		old := r.snapshot.Load()
		generics := make([]Interceptor, 0, len(old.generics)+len(interceptors))
		generics = append(generics, old.generics...)
		generics = append(generics, interceptors...)
		next := &snapshot{cache: old.cache, generics: generics}
		if r.snapshot.CompareAndSwap(old, next) {
			return
		}
	}
}
