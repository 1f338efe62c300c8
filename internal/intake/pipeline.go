// Package intake is the client-facing message pipeline: it persists
// inbound messages, emits a transient progress notice, invokes the
// bound agent capability, persists the response, and returns it.
package intake

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conductorhq/conductor/internal/channel"
	"github.com/conductorhq/conductor/internal/conversation"
	"github.com/conductorhq/conductor/internal/store"
	"github.com/conductorhq/conductor/pkg/protocol"
)

// Invoker is the pluggable agent-invocation capability.
type Invoker func(ctx context.Context, convo *conversation.Context, incoming protocol.ChannelMessage) (conversation.AgentResponse, error)

// Pipeline handles inbound user messages. It never propagates
// invocation failures to the caller; they become error-typed messages.
type Pipeline struct {
	conversations *conversation.Manager
	history       store.HistoryStore
	channels      *channel.Manager
	invoker       Invoker
}

// NewPipeline builds a pipeline. invoker may be nil, in which case
// inbound content is echoed back as a placeholder response.
func NewPipeline(conversations *conversation.Manager, history store.HistoryStore, channels *channel.Manager, invoker Invoker) *Pipeline {
	return &Pipeline{
		conversations: conversations,
		history:       history,
		channels:      channels,
		invoker:       invoker,
	}
}

// Handle processes one inbound message and returns the outbound
// channel message. The returned message is not delivered here; the
// transport layer decides between plain delivery and streaming.
func (p *Pipeline) Handle(ctx context.Context, incoming protocol.ChannelMessage) protocol.ChannelMessage {
	convo := p.conversations.GetOrCreate(incoming.ConversationID)

	convo.AddUserMessage(incoming.Content)
	p.persist(ctx, convo.ID, conversation.Message{
		Role:      conversation.RoleUser,
		Content:   incoming.Content,
		Timestamp: incoming.Timestamp,
	})

	// Transient progress notice; deliberately not part of history.
	if p.channels != nil {
		thinking := protocol.NewMessage(convo.ID, protocol.TypeThinking, "Working on it...")
		p.channels.SendToConversation(convo.ID, thinking)
	}

	resp, err := p.invoke(ctx, convo, incoming)
	if err != nil {
		slog.Error("intake.invoke.failed", "conversation", convo.ID, "error", err)
		out := protocol.NewMessage(convo.ID, protocol.TypeError, "Error: "+err.Error())
		return out
	}

	convo.AddResponse(resp)
	convo.AddAgentMessage(resp.Content, resp.AgentName)
	p.persist(ctx, convo.ID, conversation.Message{
		Role:      conversation.RoleAgent,
		Content:   resp.Content,
		AgentName: resp.AgentName,
		Timestamp: resp.Timestamp,
	})
	if err := p.conversations.Save(convo); err != nil {
		slog.Warn("intake.conversation.save_failed", "conversation", convo.ID, "error", err)
	}

	msgType := protocol.TypeAgentResponse
	if !resp.Success {
		msgType = protocol.TypeError
	}
	out := protocol.NewMessage(convo.ID, msgType, resp.Content)
	out.AgentName = resp.AgentName
	out.Metadata = map[string]any{
		"success": resp.Success,
		"tools":   len(resp.ToolsExecuted),
	}
	return out
}

// invoke runs the bound capability, containing panics so a broken
// agent cannot take down the client-facing boundary.
func (p *Pipeline) invoke(ctx context.Context, convo *conversation.Context, incoming protocol.ChannelMessage) (resp conversation.AgentResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent invocation panicked: %v", r)
		}
	}()

	if p.invoker == nil {
		return conversation.AgentResponse{
			AgentID:   "echo",
			AgentName: "Echo",
			Success:   true,
			Content:   incoming.Content,
			Timestamp: incoming.Timestamp,
		}, nil
	}
	return p.invoker(ctx, convo, incoming)
}

func (p *Pipeline) persist(ctx context.Context, conversationID string, msg conversation.Message) {
	if p.history == nil {
		return
	}
	if err := p.history.AddMessage(ctx, conversationID, msg); err != nil {
		slog.Warn("intake.history.persist_failed", "conversation", conversationID, "error", err)
	}
}
