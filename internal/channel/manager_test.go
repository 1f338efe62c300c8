package channel

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/conductorhq/conductor/pkg/protocol"
)

// captureSender records deliveries per connection.
type captureSender struct {
	mu   sync.Mutex
	sent map[string][]protocol.ChannelMessage
	fail map[string]bool
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: make(map[string][]protocol.ChannelMessage), fail: make(map[string]bool)}
}

func (c *captureSender) Deliver(connectionID string, msg protocol.ChannelMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[connectionID] {
		return errors.New("connection gone")
	}
	c.sent[connectionID] = append(c.sent[connectionID], msg)
	return nil
}

func (c *captureSender) count(connectionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent[connectionID])
}

func (c *captureSender) messages(connectionID string) []protocol.ChannelMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.ChannelMessage, len(c.sent[connectionID]))
	copy(out, c.sent[connectionID])
	return out
}

func TestRegisterJoinSend(t *testing.T) {
	sender := newCaptureSender()
	m := NewManager(sender)

	m.RegisterConnection("c1", "user-a")
	m.RegisterConnection("c2", "user-b")
	m.JoinConversation("c1", "conv-1")
	m.JoinConversation("c2", "conv-1")
	m.JoinConversation("c2", "conv-1") // idempotent

	got := m.ConversationConnections("conv-1")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("members = %v", got)
	}

	m.SendToConversation("conv-1", protocol.NewMessage("conv-1", protocol.TypeAgentResponse, "hi"))
	if sender.count("c1") != 1 || sender.count("c2") != 1 {
		t.Errorf("fan-out counts = %d/%d, want 1/1", sender.count("c1"), sender.count("c2"))
	}
}

func TestUnregisterPrunesMembership(t *testing.T) {
	m := NewManager(newCaptureSender())
	m.RegisterConnection("c1", "")
	m.JoinConversation("c1", "conv-1")
	m.UnregisterConnection("c1")

	if got := m.ConversationConnections("conv-1"); len(got) != 0 {
		t.Errorf("members after unregister = %v, want empty", got)
	}
	if _, ok := m.Connection("c1"); ok {
		t.Error("connection still present after unregister")
	}
	// Internal member set must be pruned, not just emptied.
	m.mu.RLock()
	_, exists := m.members["conv-1"]
	m.mu.RUnlock()
	if exists {
		t.Error("empty membership set was not pruned")
	}
}

func TestLeaveConversation(t *testing.T) {
	sender := newCaptureSender()
	m := NewManager(sender)
	m.RegisterConnection("c1", "")
	m.JoinConversation("c1", "conv-1")
	m.LeaveConversation("c1", "conv-1")

	m.SendToConversation("conv-1", protocol.NewMessage("conv-1", protocol.TypeThinking, "..."))
	if sender.count("c1") != 0 {
		t.Error("message delivered after leave")
	}
	if info, _ := m.Connection("c1"); len(info.Conversations) != 0 {
		t.Errorf("joined set = %v, want empty", info.Conversations)
	}
}

func TestSendToUnknownConnectionIsNoOp(t *testing.T) {
	sender := newCaptureSender()
	m := NewManager(sender)
	m.SendToConnection("ghost", protocol.NewMessage("conv-1", protocol.TypeError, "x"))
	if sender.count("ghost") != 0 {
		t.Error("delivery to unknown connection")
	}
}

func TestJoinUnknownConnectionIsNoOp(t *testing.T) {
	m := NewManager(newCaptureSender())
	m.JoinConversation("ghost", "conv-1")
	if got := m.ConversationConnections("conv-1"); len(got) != 0 {
		t.Errorf("members = %v, want empty", got)
	}
}

func TestBroadcast(t *testing.T) {
	sender := newCaptureSender()
	m := NewManager(sender)
	m.RegisterConnection("c1", "")
	m.RegisterConnection("c2", "")
	m.RegisterConnection("c3", "")

	m.Broadcast(protocol.ChannelMessage{Type: protocol.TypeError, Content: "shutting down"})
	for _, id := range []string{"c1", "c2", "c3"} {
		if sender.count(id) != 1 {
			t.Errorf("broadcast missed %s", id)
		}
	}
}

func TestDeliveryFailureIsContained(t *testing.T) {
	sender := newCaptureSender()
	sender.fail["c1"] = true
	m := NewManager(sender)
	m.RegisterConnection("c1", "")
	m.RegisterConnection("c2", "")
	m.JoinConversation("c1", "conv-1")
	m.JoinConversation("c2", "conv-1")

	m.SendToConversation("conv-1", protocol.NewMessage("conv-1", protocol.TypeAgentResponse, "hi"))
	if sender.count("c2") != 1 {
		t.Error("failure on one connection must not stop fan-out to others")
	}
}

func TestSendToEmptyConversationIsSilent(t *testing.T) {
	m := NewManager(newCaptureSender())
	// Must not panic or error.
	m.SendToConversation("conv-none", protocol.NewMessage("conv-none", protocol.TypeAgentResponse, "x"))
}
