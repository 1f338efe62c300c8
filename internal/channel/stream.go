package channel

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/conductorhq/conductor/internal/observability"
	"github.com/conductorhq/conductor/pkg/protocol"
)

// Stream is one ordered, terminating sequence of partial-content
// deliveries for a single response. Writes after the terminal event
// are silent no-ops; exactly one terminal message (complete or abort)
// is ever emitted. Single-writer by contract, but guarded anyway.
type Stream struct {
	id             string
	conversationID string
	agentName      string
	mgr            *Manager

	mu       sync.Mutex
	seq      int
	buf      strings.Builder
	terminal bool
}

// BeginStream opens a stream session for one outbound response.
func (m *Manager) BeginStream(conversationID, agentName string) *Stream {
	return &Stream{
		id:             uuid.NewString(),
		conversationID: conversationID,
		agentName:      agentName,
		mgr:            m,
	}
}

// ID returns the stream's identifier.
func (s *Stream) ID() string { return s.id }

// Write appends content to the buffer and emits a mid-stream chunk
// carrying the next sequence number (starting at 1).
func (s *Stream) Write(content string) {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	s.buf.WriteString(content)
	s.mu.Unlock()

	msg := protocol.NewMessage(s.conversationID, protocol.TypeStreamChunk, content)
	msg.AgentName = s.agentName
	msg.IsStreaming = true
	msg.Metadata = map[string]any{
		"stream_id": s.id,
		"sequence":  seq,
	}
	observability.StreamChunksTotal.Inc()
	s.mgr.SendToConversation(s.conversationID, msg)
}

// WriteJSON marshals a structured chunk to JSON text and writes it.
func (s *Stream) WriteJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Write(string(raw))
	return nil
}

// Complete emits the final message carrying the full accumulated
// buffer and the chunk count, then marks the stream terminal.
// Idempotent; a no-op after Abort.
func (s *Stream) Complete() {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return
	}
	s.terminal = true
	content := s.buf.String()
	chunks := s.seq
	s.mu.Unlock()

	msg := protocol.NewMessage(s.conversationID, protocol.TypeAgentResponse, content)
	msg.AgentName = s.agentName
	msg.IsFinal = true
	msg.Metadata = map[string]any{
		"stream_id":   s.id,
		"chunk_count": chunks,
	}
	s.mgr.SendToConversation(s.conversationID, msg)
}

// Abort emits one error-typed message carrying the reason and marks
// the stream terminal. Idempotent; a no-op after Complete.
func (s *Stream) Abort(reason string) {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return
	}
	s.terminal = true
	chunks := s.seq
	s.mu.Unlock()

	if reason == "" {
		reason = "stream aborted"
	}
	msg := protocol.NewMessage(s.conversationID, protocol.TypeError, reason)
	msg.AgentName = s.agentName
	msg.IsFinal = true
	msg.Metadata = map[string]any{
		"stream_id":   s.id,
		"chunk_count": chunks,
	}
	s.mgr.SendToConversation(s.conversationID, msg)
}

// Close auto-completes a still-open stream so disposal never leaks an
// unterminated sequence.
func (s *Stream) Close() {
	s.Complete()
}
