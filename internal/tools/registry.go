package tools

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry is the name-keyed tool catalog. Registration is
// last-write-wins; a name collision replaces the earlier tool and is
// logged so deployments can spot conflicting sources.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its name, replacing any existing entry.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		slog.Warn("tools.register.conflict", "tool", t.Name())
	}
	r.tools[t.Name()] = t
}

// Unregister removes a tool by name. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sortTools(out)
	return out
}

// ForPrefix returns tools whose name starts with prefix,
// case-insensitively, sorted by name. An empty prefix matches all
// tools.
func (r *Registry) ForPrefix(prefix string) []Tool {
	if prefix == "" {
		return r.All()
	}
	lower := strings.ToLower(prefix)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for name, t := range r.tools {
		if strings.HasPrefix(strings.ToLower(name), lower) {
			out = append(out, t)
		}
	}
	sortTools(out)
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func sortTools(ts []Tool) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Name() < ts[j].Name() })
}
