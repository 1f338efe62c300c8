package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/conductorhq/conductor/internal/conversation"
	"github.com/conductorhq/conductor/internal/llm"
)

// Selector routes an inbound message to one agent. Resolution order:
// keyword fast path, handoff continuation, model fallback, first
// candidate. Only the model fallback performs I/O.
type Selector struct {
	client llm.Client // nil disables the model fallback
}

// NewSelector builds a selector. client may be nil.
func NewSelector(client llm.Client) *Selector {
	return &Selector{client: client}
}

// keywordRoute pairs a predicate over the lowercased message with a
// target agent display name. Routes are evaluated top to bottom and
// the first match wins; the order is the tie-break rule. In
// particular the infrastructure route runs before the compliance
// route so that generation requests mentioning a baseline ("generate
// an AKS template with NIST controls") stay with Infrastructure, and
// the compliance predicate additionally refuses messages carrying
// generation keywords.
type keywordRoute struct {
	target string
	match  func(m string) bool
}

var keywordRoutes = []keywordRoute{
	{"Configuration", matchConfiguration},
	{"Infrastructure", matchInfrastructure},
	{"Compliance", matchCompliance},
	{"Cost", matchCost},
	{"Discovery", matchDiscovery},
	{"Knowledge", matchKnowledge},
}

func containsAny(m string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}

func matchConfiguration(m string) bool {
	return containsAny(m,
		"configure", "configuration", "settings",
		"api key", "credential", "set subscription", "switch subscription")
}

func matchInfrastructure(m string) bool {
	if containsAny(m,
		"terraform", "bicep", "provision", "infrastructure as code",
		"deploy aks", "create cluster", "aks template") {
		return true
	}
	if strings.Contains(m, "generate") &&
		containsAny(m, "template", "aks", "infrastructure", "cluster") {
		return true
	}
	// "best practices" alone is ambiguous; it routes here only when
	// paired with an infrastructure subject.
	if strings.Contains(m, "best practices") &&
		containsAny(m, "template", "aks", "infrastructure") {
		return true
	}
	return false
}

func matchCompliance(m string) bool {
	if !containsAny(m, "compliance", "compliant", "nist", "cis benchmark", "audit", "policy violation") {
		return false
	}
	// Generation keywords mean the infrastructure route (already
	// evaluated) was the right owner; don't claim the message here.
	return !containsAny(m, "generate", "template", "terraform", "bicep", "provision")
}

func matchCost(m string) bool {
	return containsAny(m, "cost", "budget", "billing", "spend", "expensive", "pricing")
}

func matchDiscovery(m string) bool {
	return containsAny(m,
		"list my", "list all", "inventory", "what resources", "show me", "discover")
}

func matchKnowledge(m string) bool {
	return containsAny(m,
		"what is", "what are", "explain", "how does", "definition of", "tell me about")
}

// Select picks the agent for a message. Returns nil only when the
// candidate list is empty.
func (s *Selector) Select(ctx context.Context, agents []*Runtime, message string, convo *conversation.Context) *Runtime {
	if len(agents) == 0 {
		return nil
	}

	if a := selectByKeyword(agents, message); a != nil {
		slog.Debug("selector.fast_path", "agent", a.Name())
		return a
	}

	if a := selectByHandoff(agents, convo); a != nil {
		slog.Debug("selector.handoff", "agent", a.Name())
		return a
	}

	if s.client != nil && ctx.Err() == nil {
		if a := s.selectByModel(ctx, agents, message, convo); a != nil {
			slog.Debug("selector.model", "agent", a.Name())
			return a
		}
	}

	return agents[0]
}

func selectByKeyword(agents []*Runtime, message string) *Runtime {
	m := strings.ToLower(message)
	for _, route := range keywordRoutes {
		if route.match(m) {
			if a := findByName(agents, route.target); a != nil {
				return a
			}
		}
	}
	return nil
}

func selectByHandoff(agents []*Runtime, convo *conversation.Context) *Runtime {
	if convo == nil {
		return nil
	}
	last, ok := convo.LastResponse()
	if !ok || !last.RequiresHandoff || last.HandoffTarget == "" {
		return nil
	}
	return findByName(agents, last.HandoffTarget)
}

func (s *Selector) selectByModel(ctx context.Context, agents []*Runtime, message string, convo *conversation.Context) *Runtime {
	var b strings.Builder
	b.WriteString("Pick the single best agent for the user message. Reply with the agent name only.\n\nAgents:\n")
	for _, a := range agents {
		b.WriteString("- ")
		b.WriteString(a.Name())
		b.WriteString(": ")
		b.WriteString(a.Description())
		b.WriteString("\n")
	}
	if convo != nil {
		if last, ok := convo.LastResponse(); ok {
			b.WriteString("\nPrevious agent: ")
			b.WriteString(last.AgentName)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nUser message: ")
	b.WriteString(message)

	resp, err := s.client.GetResponse(ctx, llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		Temperature: 0.0,
		MaxTokens:   24,
	})
	if err != nil {
		slog.Warn("selector.model_failed", "error", err)
		return nil
	}

	reply := strings.Trim(strings.TrimSpace(resp.Content), "\"'`.,:;!? \n")
	if reply == "" {
		return nil
	}
	// Exact name match wins over substring.
	for _, a := range agents {
		if strings.EqualFold(a.Name(), reply) {
			return a
		}
	}
	lower := strings.ToLower(reply)
	for _, a := range agents {
		name := strings.ToLower(a.Name())
		if strings.Contains(lower, name) || strings.Contains(name, lower) {
			return a
		}
	}
	return nil
}

// findByName matches a target against agent display names,
// case-insensitively, accepting substring containment.
func findByName(agents []*Runtime, target string) *Runtime {
	lower := strings.ToLower(target)
	for _, a := range agents {
		name := strings.ToLower(a.Name())
		if name == lower || strings.Contains(name, lower) || strings.Contains(lower, name) {
			return a
		}
	}
	return nil
}
