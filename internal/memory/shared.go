// Package memory provides the cross-agent shared conversation memory:
// typed key/value storage scoped by conversation plus a best-effort
// event stream with explicit subscribers.
package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notification published into a conversation's memory.
type Event struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Type           string         `json:"type"`
	Payload        map[string]any `json:"payload,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Subscriber receives published events.
type Subscriber func(Event)

// Shared is the in-process shared conversation memory. Safe for
// concurrent use.
type Shared struct {
	mu     sync.RWMutex
	values map[string]map[string]any
	subs   map[string]Subscriber
}

// NewShared creates an empty shared memory.
func NewShared() *Shared {
	return &Shared{
		values: make(map[string]map[string]any),
		subs:   make(map[string]Subscriber),
	}
}

// Set stores a value under a conversation-scoped key.
func (s *Shared) Set(conversationID, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.values[conversationID]
	if !ok {
		bucket = make(map[string]any)
		s.values[conversationID] = bucket
	}
	bucket[key] = value
}

// Get reads a conversation-scoped value.
func (s *Shared) Get(conversationID, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.values[conversationID]
	if !ok {
		return nil, false
	}
	v, ok := bucket[key]
	return v, ok
}

// Subscribe registers a named subscriber for all published events.
// Re-subscribing under the same id replaces the earlier subscriber.
func (s *Shared) Subscribe(id string, fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[id] = fn
}

// Unsubscribe removes a subscriber. Unknown ids are a no-op.
func (s *Shared) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// PublishEvent fans an event out to all subscribers. Delivery is
// best-effort: a panicking subscriber is logged and does not affect
// the publisher or other subscribers.
func (s *Shared) PublishEvent(conversationID, eventType string, payload map[string]any) {
	ev := Event{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Type:           eventType,
		Payload:        payload,
		Timestamp:      time.Now().UTC(),
	}

	s.mu.RLock()
	subs := make(map[string]Subscriber, len(s.subs))
	for id, fn := range s.subs {
		subs[id] = fn
	}
	s.mu.RUnlock()

	for id, fn := range subs {
		deliver(id, fn, ev)
	}
}

func deliver(id string, fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("memory.subscriber.panic", "subscriber", id, "event", ev.Type, "panic", r)
		}
	}()
	fn(ev)
}
