package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/conductorhq/conductor/internal/agent"
	"github.com/conductorhq/conductor/internal/channel"
	"github.com/conductorhq/conductor/internal/conversation"
	"github.com/conductorhq/conductor/pkg/protocol"
)

// Orchestrator routes an inbound message to one agent runtime and runs
// the turn, streaming partial output when the message asks for it.
type Orchestrator struct {
	selector *agent.Selector
	agents   []*agent.Runtime
	channels *channel.Manager
}

// NewOrchestrator builds an orchestrator over the given runtimes.
func NewOrchestrator(selector *agent.Selector, agents []*agent.Runtime, channels *channel.Manager) *Orchestrator {
	return &Orchestrator{selector: selector, agents: agents, channels: channels}
}

// Agents returns the managed runtimes.
func (o *Orchestrator) Agents() []*agent.Runtime { return o.agents }

// Invoke satisfies the intake pipeline's invoker contract. When the
// incoming message carries the stream flag, partial output goes through
// a channel stream and the terminal delivery happens here; the caller
// must not deliver the returned response again in that case.
func (o *Orchestrator) Invoke(ctx context.Context, convo *conversation.Context, incoming protocol.ChannelMessage) (conversation.AgentResponse, error) {
	selected := o.selector.Select(ctx, o.agents, incoming.Content, convo)
	if selected == nil {
		if wantsStream(incoming) {
			// The client only listens on the stream, so the failure
			// must terminate one.
			stream := o.channels.BeginStream(convo.ID, "")
			stream.Abort("no agent available")
		}
		return conversation.AgentResponse{}, errors.New("no agent available")
	}
	slog.Info("orchestrator.selected", "conversation", convo.ID, "agent", selected.Name())

	if wantsStream(incoming) {
		return o.invokeStreaming(ctx, selected, convo), nil
	}
	return selected.Process(ctx, convo), nil
}

func (o *Orchestrator) invokeStreaming(ctx context.Context, selected *agent.Runtime, convo *conversation.Context) conversation.AgentResponse {
	stream := o.channels.BeginStream(convo.ID, selected.Name())
	defer stream.Close()

	resp := selected.ProcessStream(ctx, convo, func(chunk string) {
		stream.Write(chunk)
	})
	if !resp.Success {
		stream.Abort(resp.Content)
		return resp
	}
	stream.Complete()
	return resp
}

// wantsStream reports whether the inbound message asked for streaming
// delivery.
func wantsStream(msg protocol.ChannelMessage) bool {
	v, _ := msg.Metadata["stream"].(bool)
	return v
}
