package llm

import (
	"fmt"
	"sync"
)

// Registry holds named chat clients with a default fallback.
type Registry struct {
	mu          sync.RWMutex
	clients     map[string]Client
	defaultName string
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client under its own name. The first registered
// client becomes the default until SetDefault overrides it.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name()] = c
	if r.defaultName == "" {
		r.defaultName = c.Name()
	}
}

// SetDefault marks a registered client as the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[name]; !ok {
		return fmt.Errorf("llm client %q not registered", name)
	}
	r.defaultName = name
	return nil
}

// Get returns the named client, or the default when name is empty.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("llm client %q not registered", name)
	}
	return c, nil
}

// Default returns the default client.
func (r *Registry) Default() (Client, error) {
	return r.Get("")
}

// Names lists registered client names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
