package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/conductorhq/conductor/internal/conversation"
	"github.com/conductorhq/conductor/internal/llm"
	"github.com/conductorhq/conductor/internal/observability"
	"github.com/conductorhq/conductor/internal/tools"
	"github.com/conductorhq/conductor/pkg/protocol"
)

const (
	// historyLimit bounds how many prior messages enter the prompt.
	historyLimit = 20

	// previewLen bounds the response preview published to shared memory.
	previewLen = 200
)

// turnPhase makes the at-most-one-followup invariant explicit: a turn
// performs one initial model call and, only when at least one tool ran,
// exactly one follow-up call.
type turnPhase int

const (
	phaseInitial turnPhase = iota
	phaseFollowUp
	phaseDone
)

// Process runs one turn for the most recent user message in the
// conversation. The returned response is always well-formed; a failed
// turn carries Success=false and an error message as content.
func (r *Runtime) Process(ctx context.Context, convo *conversation.Context) conversation.AgentResponse {
	return r.run(ctx, convo, nil)
}

// ProcessStream behaves like Process but forwards model text deltas to
// onChunk as they arrive, for both the initial and follow-up calls.
func (r *Runtime) ProcessStream(ctx context.Context, convo *conversation.Context, onChunk llm.StreamHandler) conversation.AgentResponse {
	return r.run(ctx, convo, onChunk)
}

func (r *Runtime) run(ctx context.Context, convo *conversation.Context, onChunk llm.StreamHandler) conversation.AgentResponse {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "agent.turn",
		trace.WithAttributes(
			attribute.String("agent.id", r.def.ID),
			attribute.String("agent.name", r.def.Name),
			attribute.String("conversation.id", convo.ID),
		))
	defer span.End()
	defer func() {
		observability.TurnDuration.WithLabelValues(r.def.Name).Observe(time.Since(start).Seconds())
	}()

	agentState := r.loadState(ctx, convo.ID)

	toolset := r.toolset()
	messages := r.buildMessages(convo)

	execCtx := tools.WithConversationID(ctx, convo.ID)
	execCtx = tools.WithAgentID(execCtx, r.def.ID)
	execCtx = tools.WithWorkflowState(execCtx, convo)

	var executed []conversation.ToolExecution
	var finalText string

	phase := phaseInitial
	for phase != phaseDone {
		switch phase {
		case phaseInitial:
			resp, err := r.invoke(ctx, messages, toolset, onChunk)
			if err != nil {
				return r.failure(convo, err)
			}
			finalText = resp.Content
			if len(resp.ToolCalls) == 0 {
				phase = phaseDone
				break
			}

			records, toolMsgs, ranCount := r.executeTools(execCtx, resp.ToolCalls)
			executed = records
			if ranCount > 0 && ctx.Err() == nil {
				messages = append(messages, llm.Message{
					Role:      llm.RoleAssistant,
					Content:   resp.Content,
					ToolCalls: resp.ToolCalls,
				})
				messages = append(messages, toolMsgs...)
				phase = phaseFollowUp
			} else {
				phase = phaseDone
			}

		case phaseFollowUp:
			resp, err := r.invoke(ctx, messages, toolset, onChunk)
			if err != nil {
				return r.failure(convo, err)
			}
			finalText = resp.Content
			phase = phaseDone
		}
	}

	content, target, reason := parseHandoff(finalText)

	r.saveState(ctx, convo.ID, agentState)
	r.publishResponse(convo.ID, content, executed)

	observability.TurnsTotal.WithLabelValues(r.def.Name, "ok").Inc()
	resp := conversation.AgentResponse{
		AgentID:       r.def.ID,
		AgentName:     r.def.Name,
		Success:       true,
		Content:       content,
		ToolsExecuted: executed,
		Metadata: map[string]any{
			"client": r.client.Name(),
			"tools":  len(executed),
		},
		RequiresHandoff: target != "",
		HandoffTarget:   target,
		HandoffReason:   reason,
		Timestamp:       time.Now().UTC(),
	}
	if target != "" {
		r.publishHandoff(convo.ID, target, reason)
	}
	return resp
}

func (r *Runtime) invoke(ctx context.Context, messages []llm.Message, toolset []tools.Tool, onChunk llm.StreamHandler) (*llm.Response, error) {
	req := llm.Request{
		Model:       r.def.Model,
		Messages:    messages,
		Tools:       tools.Definitions(toolset),
		Temperature: r.def.Temperature,
		MaxTokens:   r.def.MaxTokens,
	}
	callCtx, span := observability.Tracer().Start(ctx, "llm.call",
		trace.WithAttributes(attribute.String("llm.client", r.client.Name())))
	defer span.End()
	if onChunk != nil {
		return r.client.StreamResponse(callCtx, req, onChunk)
	}
	return r.client.GetResponse(callCtx, req)
}

// executeTools runs every requested call, containing per-tool failures.
// It returns one execution record and one tool-result message per
// request, plus the count of calls whose tool was actually found
// (the follow-up call happens only if that count is positive).
func (r *Runtime) executeTools(ctx context.Context, calls []llm.ToolCall) ([]conversation.ToolExecution, []llm.Message, int) {
	records := make([]conversation.ToolExecution, 0, len(calls))
	msgs := make([]llm.Message, 0, len(calls))
	ran := 0

	for _, call := range calls {
		record, resultText := r.executeOne(ctx, call, &ran)
		records = append(records, record)
		msgs = append(msgs, llm.Message{
			Role:       llm.RoleTool,
			Content:    resultText,
			ToolCallID: call.ID,
		})
	}
	return records, msgs, ran
}

func (r *Runtime) executeOne(ctx context.Context, call llm.ToolCall, ran *int) (conversation.ToolExecution, string) {
	tool, ok := r.registry.Lookup(call.Name)
	if !ok {
		slog.Warn("agent.tool.not_found", "agent", r.def.Name, "tool", call.Name)
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "not_found").Inc()
		text := "Error: tool '" + call.Name + "' is not available"
		return conversation.ToolExecution{
			ToolName: call.Name,
			Success:  false,
			Error:    text,
		}, text
	}

	*ran++
	start := time.Now()
	toolCtx, span := observability.Tracer().Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	var result string
	err := r.validator.Validate(tool, call.Arguments)
	if err == nil {
		result, err = tool.Execute(toolCtx, call.Arguments)
	}
	duration := time.Since(start)

	if err != nil {
		slog.Warn("agent.tool.failed", "agent", r.def.Name, "tool", call.Name, "error", err)
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "error").Inc()
		text := "Error: " + err.Error()
		return conversation.ToolExecution{
			ToolName: call.Name,
			Success:  false,
			Error:    text,
			Duration: duration,
		}, text
	}

	observability.ToolExecutionsTotal.WithLabelValues(call.Name, "ok").Inc()
	if r.state != nil {
		convoID := tools.ConversationIDFromCtx(ctx)
		if serr := r.state.SetToolResult(ctx, convoID, r.def.ID, call.Name, result); serr != nil {
			slog.Warn("agent.state.tool_result_failed", "agent", r.def.Name, "tool", call.Name, "error", serr)
		}
	}
	return conversation.ToolExecution{
		ToolName: call.Name,
		Success:  true,
		Result:   result,
		Duration: duration,
	}, result
}

// buildMessages assembles the prompt: the agent's instructions, then
// at most the last historyLimit messages in original order.
func (r *Runtime) buildMessages(convo *conversation.Context) []llm.Message {
	history := convo.RecentHistory(historyLimit)
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: r.def.Instructions})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == conversation.RoleAgent {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	return messages
}

// toolset returns this agent's scoped tools plus the shared core set.
func (r *Runtime) toolset() []tools.Tool {
	seen := make(map[string]bool)
	var out []tools.Tool
	for _, t := range r.registry.ForPrefix(r.def.ToolPrefix) {
		if !seen[t.Name()] {
			seen[t.Name()] = true
			out = append(out, t)
		}
	}
	for _, t := range r.registry.ForPrefix(CorePrefix) {
		if !seen[t.Name()] {
			seen[t.Name()] = true
			out = append(out, t)
		}
	}
	return out
}

// loadState loads persisted per-agent state. Failures are logged and
// treated as no state; they never abort the turn.
func (r *Runtime) loadState(ctx context.Context, conversationID string) map[string]any {
	if r.state == nil {
		return map[string]any{}
	}
	state, err := r.state.Get(ctx, conversationID, r.def.ID)
	if err != nil {
		slog.Warn("agent.state.load_failed", "agent", r.def.Name, "conversation", conversationID, "error", err)
		return map[string]any{}
	}
	if state == nil {
		return map[string]any{}
	}
	return state
}

func (r *Runtime) saveState(ctx context.Context, conversationID string, state map[string]any) {
	if r.state == nil {
		return
	}
	turns, _ := state["turns"].(float64)
	state["turns"] = turns + 1
	state["last_turn_at"] = time.Now().UTC().Format(time.RFC3339)
	if err := r.state.Save(ctx, conversationID, r.def.ID, state); err != nil {
		slog.Warn("agent.state.save_failed", "agent", r.def.Name, "conversation", conversationID, "error", err)
	}
}

func (r *Runtime) publishResponse(conversationID, content string, executed []conversation.ToolExecution) {
	if r.shared == nil {
		return
	}
	toolNames := make([]string, 0, len(executed))
	for _, e := range executed {
		toolNames = append(toolNames, e.ToolName)
	}
	r.shared.PublishEvent(conversationID, protocol.EventAgentResponse, map[string]any{
		"agent":   r.def.Name,
		"preview": truncate(content, previewLen),
		"tools":   toolNames,
	})
}

func (r *Runtime) publishHandoff(conversationID, target, reason string) {
	if r.shared == nil {
		return
	}
	r.shared.PublishEvent(conversationID, protocol.EventHandoff, map[string]any{
		"from":   r.def.Name,
		"to":     target,
		"reason": reason,
	})
}

func (r *Runtime) failure(convo *conversation.Context, err error) conversation.AgentResponse {
	slog.Error("agent.turn.failed", "agent", r.def.Name, "conversation", convo.ID, "error", err)
	observability.TurnsTotal.WithLabelValues(r.def.Name, "error").Inc()
	return conversation.AgentResponse{
		AgentID:   r.def.ID,
		AgentName: r.def.Name,
		Success:   false,
		Content:   "Error: " + err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// parseHandoff extracts a trailing handoff directive of the form
// "HANDOFF: <agent>[: reason]" from the response text. Agents are
// instructed to emit it as the final line when another agent should
// take the next turn.
func parseHandoff(text string) (content, target, reason string) {
	trimmed := strings.TrimRight(text, " \n\t")
	idx := strings.LastIndex(trimmed, "\n")
	lastLine := trimmed
	if idx >= 0 {
		lastLine = trimmed[idx+1:]
	}
	const marker = "HANDOFF:"
	if !strings.HasPrefix(strings.TrimSpace(lastLine), marker) {
		return text, "", ""
	}
	directive := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lastLine), marker))
	if directive == "" {
		return text, "", ""
	}
	if c := strings.Index(directive, ":"); c >= 0 {
		target = strings.TrimSpace(directive[:c])
		reason = strings.TrimSpace(directive[c+1:])
	} else {
		target = directive
	}
	if idx >= 0 {
		content = strings.TrimRight(trimmed[:idx], " \n\t")
	}
	return content, target, reason
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
