package gateway

import "sync"

// clientTable is the concurrent map of live connections.
type clientTable struct {
	mu sync.RWMutex
	m  map[string]*Client
}

func (t *clientTable) put(c *Client) {
	t.mu.Lock()
	t.m[c.id] = c
	t.mu.Unlock()
}

func (t *clientTable) get(id string) (*Client, bool) {
	t.mu.RLock()
	c, ok := t.m[id]
	t.mu.RUnlock()
	return c, ok
}

func (t *clientTable) remove(id string) {
	t.mu.Lock()
	delete(t.m, id)
	t.mu.Unlock()
}

func (t *clientTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}
