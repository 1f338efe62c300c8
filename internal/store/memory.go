package store

import (
	"context"
	"sync"

	"github.com/conductorhq/conductor/internal/conversation"
)

// MemoryHistoryStore is an in-process HistoryStore for standalone mode
// and tests.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	messages map[string][]conversation.Message
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{messages: make(map[string][]conversation.Message)}
}

func (s *MemoryHistoryStore) AddMessage(ctx context.Context, conversationID string, msg conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return nil
}

func (s *MemoryHistoryStore) Messages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]conversation.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

type stateKey struct {
	conversationID string
	agentID        string
}

type toolKey struct {
	conversationID string
	agentID        string
	toolName       string
}

// MemoryAgentStateStore is an in-process AgentStateStore.
type MemoryAgentStateStore struct {
	mu      sync.RWMutex
	states  map[stateKey]map[string]any
	results map[toolKey]string
}

func NewMemoryAgentStateStore() *MemoryAgentStateStore {
	return &MemoryAgentStateStore{
		states:  make(map[stateKey]map[string]any),
		results: make(map[toolKey]string),
	}
}

func (s *MemoryAgentStateStore) Get(ctx context.Context, conversationID, agentID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[stateKey{conversationID, agentID}]
	if !ok {
		return nil, nil
	}
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryAgentStateStore) Save(ctx context.Context, conversationID, agentID string, state map[string]any) error {
	cp := make(map[string]any, len(state))
	for k, v := range state {
		cp[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[stateKey{conversationID, agentID}] = cp
	return nil
}

func (s *MemoryAgentStateStore) SetToolResult(ctx context.Context, conversationID, agentID, toolName, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[toolKey{conversationID, agentID, toolName}] = result
	return nil
}

// ToolResult reads back a stored tool result (used by tests).
func (s *MemoryAgentStateStore) ToolResult(conversationID, agentID, toolName string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[toolKey{conversationID, agentID, toolName}]
	return r, ok
}
