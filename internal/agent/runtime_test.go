package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/conductorhq/conductor/internal/conversation"
	"github.com/conductorhq/conductor/internal/llm"
	"github.com/conductorhq/conductor/internal/memory"
	"github.com/conductorhq/conductor/internal/store"
	"github.com/conductorhq/conductor/internal/tools"
)

// scriptedClient returns canned responses in order and records the
// requests it saw.
type scriptedClient struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	requests  []llm.Request
}

func (s *scriptedClient) Name() string { return "scripted" }

func (s *scriptedClient) GetResponse(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		return &llm.Response{Content: "out of script"}, nil
	}
	return s.responses[i], nil
}

func (s *scriptedClient) StreamResponse(ctx context.Context, req llm.Request, onChunk llm.StreamHandler) (*llm.Response, error) {
	resp, err := s.GetResponse(ctx, req)
	if err == nil && onChunk != nil && resp.Content != "" {
		onChunk(resp.Content)
	}
	return resp, err
}

func (s *scriptedClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type recordingTool struct {
	name     string
	result   string
	err      error
	onCalled func()
}

func (r *recordingTool) Name() string              { return r.name }
func (r *recordingTool) Description() string       { return "test tool" }
func (r *recordingTool) Parameters() []tools.Param { return nil }

func (r *recordingTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if r.onCalled != nil {
		r.onCalled()
	}
	return r.result, r.err
}

func testDef() Definition {
	return Definition{
		ID:           "agent-infrastructure",
		Name:         "Infrastructure",
		Description:  "infra",
		Instructions: "You are the Infrastructure agent.",
		Temperature:  0.3,
		MaxTokens:    1024,
		ToolPrefix:   "infra_",
	}
}

func newConvo(userMsg string) *conversation.Context {
	c := conversation.NewContext("conv-1")
	c.AddUserMessage(userMsg)
	return c
}

func TestProcessSimpleReply(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{{Content: "all good"}}}
	rt := NewRuntime(testDef(), client, tools.NewRegistry())

	resp := rt.Process(context.Background(), newConvo("hello"))
	if !resp.Success {
		t.Fatalf("Success = false: %s", resp.Content)
	}
	if resp.Content != "all good" {
		t.Errorf("content = %q", resp.Content)
	}
	if client.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", client.callCount())
	}
	if len(resp.ToolsExecuted) != 0 {
		t.Errorf("tools executed = %d, want 0", len(resp.ToolsExecuted))
	}
	if resp.AgentID != "agent-infrastructure" || resp.AgentName != "Infrastructure" {
		t.Errorf("identity = %q/%q", resp.AgentID, resp.AgentName)
	}
}

func TestProcessToolRound(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&recordingTool{name: "infra_plan", result: "plan ready"})

	client := &scriptedClient{responses: []*llm.Response{
		{Content: "", ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "infra_plan", Arguments: map[string]any{}}}},
		{Content: "deployed per plan"},
	}}
	st := store.NewMemoryAgentStateStore()
	rt := NewRuntime(testDef(), client, reg, WithStateStore(st))

	resp := rt.Process(context.Background(), newConvo("deploy it"))
	if !resp.Success {
		t.Fatalf("Success = false: %s", resp.Content)
	}
	if resp.Content != "deployed per plan" {
		t.Errorf("content = %q, want follow-up text", resp.Content)
	}
	if client.callCount() != 2 {
		t.Errorf("model calls = %d, want 2", client.callCount())
	}
	if len(resp.ToolsExecuted) != 1 || !resp.ToolsExecuted[0].Success {
		t.Fatalf("tools executed = %+v", resp.ToolsExecuted)
	}
	if resp.ToolsExecuted[0].Result != "plan ready" {
		t.Errorf("tool result = %q", resp.ToolsExecuted[0].Result)
	}

	// Follow-up request carries the assistant tool-call message and
	// the tool result message.
	followUp := client.requests[1]
	last := followUp.Messages[len(followUp.Messages)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "call-1" || last.Content != "plan ready" {
		t.Errorf("tool result message = %+v", last)
	}
	assistant := followUp.Messages[len(followUp.Messages)-2]
	if assistant.Role != llm.RoleAssistant || len(assistant.ToolCalls) != 1 {
		t.Errorf("assistant message = %+v", assistant)
	}

	if r, ok := st.ToolResult("conv-1", "agent-infrastructure", "infra_plan"); !ok || r != "plan ready" {
		t.Errorf("persisted tool result = %q/%v", r, ok)
	}
}

func TestToolNotFoundContinuesTurn(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{Content: "trying", ToolCalls: []llm.ToolCall{{ID: "c1", Name: "nonexistent_tool", Arguments: map[string]any{}}}},
	}}
	rt := NewRuntime(testDef(), client, tools.NewRegistry())

	resp := rt.Process(context.Background(), newConvo("do it"))
	if !resp.Success {
		t.Fatal("turn should succeed even when the tool is missing")
	}
	if len(resp.ToolsExecuted) != 1 || resp.ToolsExecuted[0].Success {
		t.Fatalf("tools executed = %+v, want one failed record", resp.ToolsExecuted)
	}
	// Nothing actually ran, so there is no follow-up call.
	if client.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", client.callCount())
	}
	if resp.Content != "trying" {
		t.Errorf("content = %q, want first reply text", resp.Content)
	}
}

func TestToolErrorIsContained(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&recordingTool{name: "infra_plan", err: errors.New("quota exceeded")})

	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "infra_plan", Arguments: map[string]any{}}}},
		{Content: "could not plan"},
	}}
	rt := NewRuntime(testDef(), client, reg)

	resp := rt.Process(context.Background(), newConvo("plan"))
	if !resp.Success {
		t.Fatal("turn should survive a tool failure")
	}
	if len(resp.ToolsExecuted) != 1 || resp.ToolsExecuted[0].Success {
		t.Fatalf("want one failed record, got %+v", resp.ToolsExecuted)
	}
	// The tool ran (and failed), so the follow-up still happens.
	if client.callCount() != 2 {
		t.Errorf("model calls = %d, want 2", client.callCount())
	}
}

func TestModelErrorFailsTurn(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("rate limited")}}
	rt := NewRuntime(testDef(), client, tools.NewRegistry())

	resp := rt.Process(context.Background(), newConvo("hi"))
	if resp.Success {
		t.Fatal("turn should fail on model error")
	}
	if resp.Content != "Error: rate limited" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestAtMostOneFollowUp(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&recordingTool{name: "infra_plan", result: "ok"})

	// The follow-up reply requests more tools; they must be ignored.
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "infra_plan", Arguments: map[string]any{}}}},
		{Content: "second", ToolCalls: []llm.ToolCall{{ID: "c2", Name: "infra_plan", Arguments: map[string]any{}}}},
	}}
	rt := NewRuntime(testDef(), client, reg)

	resp := rt.Process(context.Background(), newConvo("loop"))
	if client.callCount() != 2 {
		t.Errorf("model calls = %d, want exactly 2", client.callCount())
	}
	if resp.Content != "second" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolsExecuted) != 1 {
		t.Errorf("tools executed = %d, want 1 (follow-up calls not executed)", len(resp.ToolsExecuted))
	}
}

func TestCancellationSkipsFollowUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := tools.NewRegistry()
	reg.Register(&recordingTool{name: "infra_plan", result: "ok", onCalled: cancel})

	client := &scriptedClient{responses: []*llm.Response{
		{Content: "partial", ToolCalls: []llm.ToolCall{{ID: "c1", Name: "infra_plan", Arguments: map[string]any{}}}},
	}}
	rt := NewRuntime(testDef(), client, reg)

	resp := rt.Process(ctx, newConvo("go"))
	if client.callCount() != 1 {
		t.Errorf("model calls = %d, want 1 (no follow-up after cancellation)", client.callCount())
	}
	if !resp.Success {
		t.Errorf("cancelled-after-tools turn still returns the first reply: %+v", resp)
	}
}

func TestStateStoreFailuresAreSwallowed(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{{Content: "fine"}}}
	rt := NewRuntime(testDef(), client, tools.NewRegistry(), WithStateStore(failingStateStore{}))

	resp := rt.Process(context.Background(), newConvo("hi"))
	if !resp.Success || resp.Content != "fine" {
		t.Errorf("state store failure must not affect the response: %+v", resp)
	}
}

type failingStateStore struct{}

func (failingStateStore) Get(ctx context.Context, conversationID, agentID string) (map[string]any, error) {
	return nil, errors.New("store down")
}

func (failingStateStore) Save(ctx context.Context, conversationID, agentID string, state map[string]any) error {
	return errors.New("store down")
}

func (failingStateStore) SetToolResult(ctx context.Context, conversationID, agentID, toolName, result string) error {
	return errors.New("store down")
}

func TestAgentResponseEventPublished(t *testing.T) {
	shared := memory.NewShared()
	var events []memory.Event
	shared.Subscribe("test", func(ev memory.Event) { events = append(events, ev) })

	client := &scriptedClient{responses: []*llm.Response{{Content: "published"}}}
	rt := NewRuntime(testDef(), client, tools.NewRegistry(), WithSharedMemory(shared))

	rt.Process(context.Background(), newConvo("hi"))
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Type != "agent_response" || events[0].Payload["agent"] != "Infrastructure" {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].Payload["preview"] != "published" {
		t.Errorf("preview = %v", events[0].Payload["preview"])
	}
}

func TestPromptBuildsSystemPlusBoundedHistory(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{{Content: "x"}}}
	rt := NewRuntime(testDef(), client, tools.NewRegistry())

	convo := conversation.NewContext("conv-1")
	for i := 0; i < 30; i++ {
		convo.AddUserMessage("m")
	}
	rt.Process(context.Background(), convo)

	req := client.requests[0]
	if len(req.Messages) != historyLimit+1 {
		t.Fatalf("prompt length = %d, want %d", len(req.Messages), historyLimit+1)
	}
	if req.Messages[0].Role != llm.RoleSystem || req.Messages[0].Content != rt.def.Instructions {
		t.Errorf("first message = %+v, want system instructions", req.Messages[0])
	}
	if req.Temperature != rt.def.Temperature || req.MaxTokens != rt.def.MaxTokens {
		t.Errorf("sampling settings not applied: %v/%v", req.Temperature, req.MaxTokens)
	}
}

func TestParseHandoff(t *testing.T) {
	tests := []struct {
		name                            string
		in                              string
		wantContent, wantTarget, wantReason string
	}{
		{"no directive", "plain answer", "plain answer", "", ""},
		{"target only", "done\nHANDOFF: Cost", "done", "Cost", ""},
		{"target and reason", "done\nHANDOFF: Compliance: needs audit", "done", "Compliance", "needs audit"},
		{"directive only line", "HANDOFF: Cost", "", "Cost", ""},
		{"empty directive", "done\nHANDOFF:", "done\nHANDOFF:", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, target, reason := parseHandoff(tt.in)
			if content != tt.wantContent || target != tt.wantTarget || reason != tt.wantReason {
				t.Errorf("parseHandoff(%q) = %q,%q,%q want %q,%q,%q",
					tt.in, content, target, reason, tt.wantContent, tt.wantTarget, tt.wantReason)
			}
		})
	}
}
