package heartbeat

import (
	"context"
	"sync"
	"testing"

	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/pkg/protocol"
)

type captureHandler struct {
	mu   sync.Mutex
	got  []protocol.ChannelMessage
	resp protocol.ChannelMessage
}

func (h *captureHandler) Handle(ctx context.Context, msg protocol.ChannelMessage) protocol.ChannelMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, msg)
	return h.resp
}

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	_, err := NewScheduler(config.HeartbeatConfig{Schedule: "not a cron"}, &captureHandler{})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestNewSchedulerDefaults(t *testing.T) {
	s, err := NewScheduler(config.HeartbeatConfig{}, &captureHandler{})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if s.cfg.Schedule != "*/30 * * * *" {
		t.Errorf("schedule = %q", s.cfg.Schedule)
	}
	if s.cfg.ConversationID != "heartbeat" {
		t.Errorf("conversation = %q", s.cfg.ConversationID)
	}
}

func TestFireSendsSyntheticTurn(t *testing.T) {
	h := &captureHandler{resp: protocol.ChannelMessage{Type: protocol.TypeAgentResponse, AgentName: "Discovery"}}
	s, err := NewScheduler(config.HeartbeatConfig{ConversationID: "ops", Prompt: "status?"}, h)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.fire(context.Background())

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.got) != 1 {
		t.Fatalf("turns fired = %d, want 1", len(h.got))
	}
	msg := h.got[0]
	if msg.ConversationID != "ops" || msg.Content != "status?" || msg.Type != protocol.TypeUserMessage {
		t.Errorf("synthetic message = %+v", msg)
	}
	if hb, _ := msg.Metadata["heartbeat"].(bool); !hb {
		t.Error("heartbeat metadata flag missing")
	}
}

func TestFireUsesDefaultPrompt(t *testing.T) {
	h := &captureHandler{resp: protocol.ChannelMessage{Type: protocol.TypeAgentResponse}}
	s, err := NewScheduler(config.HeartbeatConfig{}, h)
	if err != nil {
		t.Fatal(err)
	}
	s.fire(context.Background())

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.got[0].Content != defaultPrompt {
		t.Errorf("prompt = %q", h.got[0].Content)
	}
}
