package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/conductorhq/conductor/internal/conversation"
	"github.com/conductorhq/conductor/internal/llm"
	"github.com/conductorhq/conductor/internal/tools"
)

func testAgents() []*Runtime {
	reg := tools.NewRegistry()
	client := &scriptedClient{}
	var out []*Runtime
	for _, def := range Definitions() {
		out = append(out, NewRuntime(def, client, reg))
	}
	return out
}

func TestFastPathRouting(t *testing.T) {
	agents := testAgents()
	sel := NewSelector(nil)

	tests := []struct {
		message string
		want    string
	}{
		{"please configure my api key", "Configuration"},
		{"switch subscription to prod", "Configuration"},
		{"generate an AKS template with NIST controls", "Infrastructure"},
		{"write terraform for a storage account", "Infrastructure"},
		{"best practices for aks networking", "Infrastructure"},
		{"am I compliant with NIST?", "Compliance"},
		{"run a cis benchmark audit", "Compliance"},
		{"what did my cluster cost last month", "Cost"},
		{"show me the billing breakdown", "Cost"},
		{"list my resource groups", "Discovery"},
		{"what resources are running", "Discovery"},
		{"what is a virtual network", "Knowledge"},
		{"explain pod autoscaling", "Knowledge"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := sel.Select(context.Background(), agents, tt.message, nil)
			if got == nil || got.Name() != tt.want {
				name := "<nil>"
				if got != nil {
					name = got.Name()
				}
				t.Errorf("Select(%q) = %s, want %s", tt.message, name, tt.want)
			}
		})
	}
}

func TestFastPathDeterminism(t *testing.T) {
	agents := testAgents()
	sel := NewSelector(nil)
	msg := "generate an AKS template with NIST controls"

	first := sel.Select(context.Background(), agents, msg, nil)
	for i := 0; i < 10; i++ {
		if got := sel.Select(context.Background(), agents, msg, nil); got != first {
			t.Fatal("fast path must be deterministic across calls")
		}
	}
	if first.Name() != "Infrastructure" {
		t.Errorf("tie-break regression: got %s, want Infrastructure", first.Name())
	}
}

func TestHandoffContinuation(t *testing.T) {
	agents := testAgents()
	client := &scriptedClient{} // must not be called
	sel := NewSelector(client)

	convo := conversation.NewContext("conv-1")
	convo.AddResponse(conversation.AgentResponse{
		AgentName:       "Infrastructure",
		Success:         true,
		RequiresHandoff: true,
		HandoffTarget:   "Cost",
	})

	got := sel.Select(context.Background(), agents, "carry on please", convo)
	if got == nil || got.Name() != "Cost" {
		t.Fatalf("Select = %v, want Cost", got)
	}
	if client.callCount() != 0 {
		t.Errorf("model fallback invoked %d times, want 0 (handoff short-circuits)", client.callCount())
	}
}

func TestHandoffTargetCaseInsensitive(t *testing.T) {
	agents := testAgents()
	sel := NewSelector(nil)

	convo := conversation.NewContext("conv-1")
	convo.AddResponse(conversation.AgentResponse{
		RequiresHandoff: true,
		HandoffTarget:   "compliance",
	})
	got := sel.Select(context.Background(), agents, "carry on please", convo)
	if got == nil || got.Name() != "Compliance" {
		t.Fatalf("Select = %v, want Compliance", got)
	}
}

func TestModelFallback(t *testing.T) {
	agents := testAgents()
	client := &scriptedClient{responses: []*llm.Response{{Content: "\"Discovery.\"\n"}}}
	sel := NewSelector(client)

	got := sel.Select(context.Background(), agents, "qqq unrelated gibberish", nil)
	if got == nil || got.Name() != "Discovery" {
		t.Fatalf("Select = %v, want Discovery from model reply", got)
	}
	if client.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", client.callCount())
	}
	if client.requests[0].Temperature != 0.0 {
		t.Errorf("fallback temperature = %v, want near zero", client.requests[0].Temperature)
	}
}

func TestModelFallbackErrorFallsToDefault(t *testing.T) {
	agents := testAgents()
	client := &scriptedClient{errs: []error{errors.New("down")}}
	sel := NewSelector(client)

	got := sel.Select(context.Background(), agents, "qqq unrelated gibberish", nil)
	if got != agents[0] {
		t.Errorf("Select = %v, want first candidate on fallback failure", got)
	}
}

func TestModelFallbackSkippedWhenCancelled(t *testing.T) {
	agents := testAgents()
	client := &scriptedClient{}
	sel := NewSelector(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := sel.Select(ctx, agents, "qqq unrelated gibberish", nil)
	if got != agents[0] {
		t.Errorf("Select = %v, want first candidate", got)
	}
	if client.callCount() != 0 {
		t.Errorf("model called despite cancellation")
	}
}

func TestSelectEmptyCandidates(t *testing.T) {
	sel := NewSelector(nil)
	if got := sel.Select(context.Background(), nil, "anything", nil); got != nil {
		t.Errorf("Select with no candidates = %v, want nil", got)
	}
}

func TestDefaultFallbackWithoutClient(t *testing.T) {
	agents := testAgents()
	sel := NewSelector(nil)
	got := sel.Select(context.Background(), agents, "qqq unrelated gibberish", nil)
	if got != agents[0] {
		t.Errorf("Select = %v, want first candidate", got)
	}
}
