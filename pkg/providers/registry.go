package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrProviderNotRegistered is returned when a lookup names an unknown provider.
var ErrProviderNotRegistered = errors.New("provider not registered")

// NotRegisteredError reports a lookup for a provider that is not in the registry.
type NotRegisteredError struct {
	// ProviderID is the identifier that was looked up.
	ProviderID string

	// Registered contains the identifiers that are registered.
	Registered []string
}

// Error implements the error interface.
func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("provider %q not registered (registered: %v)", e.ProviderID, e.Registered)
}

// Is implements error matching for errors.Is().
func (e *NotRegisteredError) Is(target error) bool {
	return target == ErrProviderNotRegistered
}

// Registry holds the constructed provider adapters, keyed by identifier.
// It is safe for concurrent use. The composition root populates it at
// startup; the routing core only reads from it.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under its GetName identifier, replacing any
// previous registration with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.GetName()] = p
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, &NotRegisteredError{ProviderID: id, Registered: r.namesLocked()}
	}
	return p, nil
}

// Names returns the registered provider identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.namesLocked()
}

// All returns a snapshot of the registered providers.
func (r *Registry) All() map[string]Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Provider, len(r.providers))
	for id, p := range r.providers {
		out[id] = p
	}
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// namesLocked returns sorted names. Caller must hold at least a read lock.
func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.providers))
	for id := range r.providers {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}
