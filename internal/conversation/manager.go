package conversation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// snapshot is the JSON persistence form of a Context.
type snapshot struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id,omitempty"`
	Messages  []Message       `json:"messages"`
	State     map[string]any  `json:"state,omitempty"`
	Responses []AgentResponse `json:"responses,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Manager keeps conversation contexts by id. With a non-empty dir it
// persists each conversation as a JSON file and reloads them on start.
type Manager struct {
	mu       sync.RWMutex
	contexts map[string]*Context
	dir      string
}

// NewManager creates a manager. dir == "" disables file persistence.
func NewManager(dir string) (*Manager, error) {
	m := &Manager{contexts: make(map[string]*Context), dir: dir}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversations dir: %w", err)
		}
		m.loadAll()
	}
	return m, nil
}

// GetOrCreate returns the context for id, creating it on first use.
func (m *Manager) GetOrCreate(id string) *Context {
	m.mu.RLock()
	c, ok := m.contexts[id]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contexts[id]; ok {
		return c
	}
	c = NewContext(id)
	m.contexts[id] = c
	return c
}

// Get returns the context for id if it exists.
func (m *Manager) Get(id string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contexts[id]
	return c, ok
}

// IDs lists known conversation ids.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.contexts))
	for id := range m.contexts {
		out = append(out, id)
	}
	return out
}

// Save writes the conversation to disk atomically (temp file + rename).
// No-op when persistence is disabled.
func (m *Manager) Save(c *Context) error {
	if m.dir == "" {
		return nil
	}

	c.mu.RLock()
	snap := snapshot{
		ID:        c.ID,
		UserID:    c.UserID,
		Messages:  c.messages,
		State:     c.state,
		Responses: c.responses,
		CreatedAt: c.createdAt,
		UpdatedAt: c.updatedAt,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal conversation %s: %w", c.ID, err)
	}

	path := filepath.Join(m.dir, sanitizeFilename(c.ID)+".json")
	tmp, err := os.CreateTemp(m.dir, ".conversation-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (m *Manager) loadAll() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		slog.Warn("conversation.load.dir_failed", "dir", m.dir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("conversation.load.read_failed", "file", path, "error", err)
			continue
		}
		var snap snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			slog.Warn("conversation.load.parse_failed", "file", path, "error", err)
			continue
		}
		if snap.ID == "" {
			continue
		}
		c := NewContext(snap.ID)
		c.UserID = snap.UserID
		c.messages = snap.Messages
		if snap.State != nil {
			c.state = snap.State
		}
		c.responses = snap.Responses
		c.createdAt = snap.CreatedAt
		c.updatedAt = snap.UpdatedAt
		m.contexts[snap.ID] = c
	}
	if len(m.contexts) > 0 {
		slog.Info("conversation.load.done", "count", len(m.contexts))
	}
}

// sanitizeFilename keeps conversation ids safe as file names.
func sanitizeFilename(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
