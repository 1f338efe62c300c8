// Package channel tracks live client connections, their conversation
// memberships, and delivers channel messages to them, including
// ordered streaming sessions.
package channel

import (
	"log/slog"
	"sync"
	"time"

	"github.com/conductorhq/conductor/internal/observability"
	"github.com/conductorhq/conductor/pkg/protocol"
)

// Sender is the transport that physically delivers a message to one
// connection. The gateway's WebSocket server implements it.
type Sender interface {
	Deliver(connectionID string, msg protocol.ChannelMessage) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(connectionID string, msg protocol.ChannelMessage) error

// Deliver implements Sender.
func (f SenderFunc) Deliver(connectionID string, msg protocol.ChannelMessage) error {
	return f(connectionID, msg)
}

// ConnectionInfo is a read-only snapshot of one connection.
type ConnectionInfo struct {
	ID            string
	UserID        string
	ConnectedAt   time.Time
	LastActivity  time.Time
	Conversations []string
}

type connState struct {
	id           string
	userID       string
	connectedAt  time.Time
	lastActivity time.Time
	joined       map[string]struct{}
}

// Manager tracks connections and the conversation membership index.
// Membership is symmetric: a connection's joined set and the
// conversation's member set always agree, and empty member sets are
// pruned. All methods are safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	conns   map[string]*connState
	members map[string]map[string]struct{}
	sender  Sender
}

// NewManager creates a manager delivering through sender.
func NewManager(sender Sender) *Manager {
	return &Manager{
		conns:   make(map[string]*connState),
		members: make(map[string]map[string]struct{}),
		sender:  sender,
	}
}

// RegisterConnection adds a connection. Re-registering an id replaces
// the prior state.
func (m *Manager) RegisterConnection(id, userID string) ConnectionInfo {
	now := time.Now().UTC()
	m.mu.Lock()
	if old, ok := m.conns[id]; ok {
		m.removeLocked(old)
	}
	c := &connState{
		id:           id,
		userID:       userID,
		connectedAt:  now,
		lastActivity: now,
		joined:       make(map[string]struct{}),
	}
	m.conns[id] = c
	m.mu.Unlock()

	observability.ActiveConnections.Inc()
	slog.Info("channel.connection.registered", "connection", id, "user", userID)
	return snapshot(c)
}

// UnregisterConnection removes a connection and prunes it from every
// conversation it had joined. Unknown ids are a no-op.
func (m *Manager) UnregisterConnection(id string) {
	m.mu.Lock()
	c, ok := m.conns[id]
	if ok {
		m.removeLocked(c)
	}
	m.mu.Unlock()
	if ok {
		observability.ActiveConnections.Dec()
		slog.Info("channel.connection.unregistered", "connection", id)
	}
}

// removeLocked detaches a connection from all memberships and the
// connection table. Caller holds m.mu.
func (m *Manager) removeLocked(c *connState) {
	for convoID := range c.joined {
		if set, ok := m.members[convoID]; ok {
			delete(set, c.id)
			if len(set) == 0 {
				delete(m.members, convoID)
			}
		}
	}
	delete(m.conns, c.id)
}

// JoinConversation adds the connection to a conversation. Idempotent;
// unknown connections are a logged no-op.
func (m *Manager) JoinConversation(connectionID, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connectionID]
	if !ok {
		slog.Warn("channel.join.unknown_connection", "connection", connectionID, "conversation", conversationID)
		return
	}
	c.joined[conversationID] = struct{}{}
	set, ok := m.members[conversationID]
	if !ok {
		set = make(map[string]struct{})
		m.members[conversationID] = set
	}
	set[connectionID] = struct{}{}
	c.lastActivity = time.Now().UTC()
}

// LeaveConversation removes the connection from a conversation,
// pruning an emptied member set.
func (m *Manager) LeaveConversation(connectionID, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[connectionID]; ok {
		delete(c.joined, conversationID)
	}
	if set, ok := m.members[conversationID]; ok {
		delete(set, connectionID)
		if len(set) == 0 {
			delete(m.members, conversationID)
		}
	}
}

// ConversationConnections returns the member connection ids of a
// conversation.
func (m *Manager) ConversationConnections(conversationID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.members[conversationID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Connection returns a snapshot of one connection.
func (m *Manager) Connection(id string) (ConnectionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	if !ok {
		return ConnectionInfo{}, false
	}
	return snapshot(c), true
}

// TouchActivity refreshes the connection's last-activity time.
func (m *Manager) TouchActivity(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[id]; ok {
		c.lastActivity = time.Now().UTC()
	}
}

// SendToConnection delivers to one connection. Unregistered targets
// are a logged no-op, not an error.
func (m *Manager) SendToConnection(connectionID string, msg protocol.ChannelMessage) {
	m.mu.RLock()
	_, ok := m.conns[connectionID]
	m.mu.RUnlock()
	if !ok {
		slog.Debug("channel.send.unknown_connection", "connection", connectionID)
		return
	}
	m.deliver(connectionID, msg)
}

// SendToConversation fans out to every member connection. Membership
// is snapshotted before delivery so concurrent join/leave neither
// blocks nor fails the fan-out.
func (m *Manager) SendToConversation(conversationID string, msg protocol.ChannelMessage) {
	for _, id := range m.ConversationConnections(conversationID) {
		m.deliver(id, msg)
	}
}

// Broadcast fans out to every registered connection.
func (m *Manager) Broadcast(msg protocol.ChannelMessage) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.deliver(id, msg)
	}
}

func (m *Manager) deliver(connectionID string, msg protocol.ChannelMessage) {
	if m.sender == nil {
		return
	}
	if err := m.sender.Deliver(connectionID, msg); err != nil {
		slog.Debug("channel.deliver.failed", "connection", connectionID, "type", msg.Type, "error", err)
	}
}

func snapshot(c *connState) ConnectionInfo {
	convos := make([]string, 0, len(c.joined))
	for id := range c.joined {
		convos = append(convos, id)
	}
	return ConnectionInfo{
		ID:            c.id,
		UserID:        c.userID,
		ConnectedAt:   c.connectedAt,
		LastActivity:  c.lastActivity,
		Conversations: convos,
	}
}
