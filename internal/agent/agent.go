// Package agent implements the agent runtime (the tool-calling loop)
// and the selection strategy that routes inbound messages to one of
// the registered agents.
package agent

import (
	"github.com/conductorhq/conductor/internal/llm"
	"github.com/conductorhq/conductor/internal/memory"
	"github.com/conductorhq/conductor/internal/store"
	"github.com/conductorhq/conductor/internal/tools"
)

// Definition declares an agent statically. ID is explicit rather than
// derived from any runtime type name so renames never change identity.
type Definition struct {
	ID           string
	Name         string
	Description  string
	Instructions string
	Temperature  float32
	MaxTokens    int

	// ToolPrefix scopes registry tools to this agent via ForPrefix.
	// Tools under the shared core prefix are always included.
	ToolPrefix string

	// Model overrides the client's default model when set.
	Model string
}

// Runtime drives the tool-calling loop for one agent definition.
type Runtime struct {
	def       Definition
	client    llm.Client
	registry  *tools.Registry
	validator *tools.Validator
	state     store.AgentStateStore
	shared    *memory.Shared
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithStateStore attaches the per-agent state store (best-effort).
func WithStateStore(s store.AgentStateStore) Option {
	return func(r *Runtime) { r.state = s }
}

// WithSharedMemory attaches the shared conversation memory.
func WithSharedMemory(m *memory.Shared) Option {
	return func(r *Runtime) { r.shared = m }
}

// NewRuntime builds a runtime for a definition.
func NewRuntime(def Definition, client llm.Client, registry *tools.Registry, opts ...Option) *Runtime {
	r := &Runtime{
		def:       def,
		client:    client,
		registry:  registry,
		validator: tools.NewValidator(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the agent's declared identifier.
func (r *Runtime) ID() string { return r.def.ID }

// Name returns the agent's display name.
func (r *Runtime) Name() string { return r.def.Name }

// Description returns the agent's one-line description.
func (r *Runtime) Description() string { return r.def.Description }

// Definition returns the full static definition.
func (r *Runtime) Definition() Definition { return r.def }
