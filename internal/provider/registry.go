package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/finsight/finsight-backend/internal/domain"
)

// Factory builds a fresh adapter instance for one session. Adapters are not
// reused across sessions, so every snapshot task gets its own instance.
type Factory func() domain.ProviderAdapter

// Registry maps provider identifiers onto adapter factories. Implementations
// register themselves once at start-up; resolution afterwards is read-only.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a provider identifier to an adapter factory.
// Registering the same identifier twice is a programming error.
func (r *Registry) Register(id string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("provider %q already registered", id)
	}
	r.factories[id] = factory
	return nil
}

// New builds a fresh adapter session for the given provider identifier.
func (r *Registry) New(id string) (domain.ProviderAdapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", id, domain.ErrUnknownProvider)
	}
	return factory(), nil
}

// IDs lists the registered provider identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
