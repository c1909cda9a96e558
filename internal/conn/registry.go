package conn

import (
	"sort"
	"sync"
)

// Registry tracks the live connections of one listener. Listeners never
// share a Registry.
type Registry struct {
	mu    sync.RWMutex
	conns map[uint64]*Info
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uint64]*Info),
	}
}

func (r *Registry) Add(i *Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[i.ID] = i
}

// Remove is a no-op for connections that are not registered.
func (r *Registry) Remove(i *Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, i.ID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the status of every registered connection, oldest first.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	result := make([]Status, 0, len(r.conns))
	for _, i := range r.conns {
		result = append(result, i.Status())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(a, b int) bool {
		if result[a].Created == result[b].Created {
			return result[a].ID < result[b].ID
		}
		return result[a].Created < result[b].Created
	})
	return result
}
