// Package workers holds the built-in workers and the registry the
// orchestrator dispatches through.
package workers

import (
	"fmt"
	"sync"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

// Registry maps worker names to implementations.
// It is thread-safe and can be used concurrently.
type Registry struct {
	mu      sync.RWMutex
	workers map[orchestration.WorkerName]services.Worker
}

var _ services.WorkerRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[orchestration.WorkerName]services.Worker),
	}
}

// Register adds a worker. A worker with the same name is replaced.
// Names outside the fixed worker enumeration are rejected.
func (r *Registry) Register(w services.Worker) error {
	name := w.Name()
	if !name.IsValid() {
		return fmt.Errorf("cannot register unknown worker %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[name] = w
	return nil
}

// Get retrieves a worker by name.
func (r *Registry) Get(name orchestration.WorkerName) (services.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[name]
	return w, ok
}

// Names returns registered workers in canonical order.
func (r *Registry) Names() []orchestration.WorkerName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]orchestration.WorkerName, 0, len(r.workers))
	for _, w := range orchestration.AllWorkers() {
		if _, ok := r.workers[w]; ok {
			names = append(names, w)
		}
	}
	return names
}
