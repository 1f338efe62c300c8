// Package tools defines the tool contract and the name-keyed registry
// agents draw their capabilities from.
package tools

import (
	"context"

	"github.com/conductorhq/conductor/internal/llm"
)

// Param describes one tool parameter.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // JSON Schema type: string, number, integer, boolean, array, object
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// Tool is a callable capability an agent can invoke during a turn.
// Implementations must be safe for concurrent Execute calls.
type Tool interface {
	Name() string
	Description() string
	Parameters() []Param
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Schema builds the JSON Schema object advertised to the model for a
// tool's parameters.
func Schema(t Tool) map[string]any {
	properties := make(map[string]any)
	var required []string
	for _, p := range t.Parameters() {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Definition converts a tool to the model-facing definition.
func Definition(t Tool) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  Schema(t),
	}
}

// Definitions converts a tool slice for a model request.
func Definitions(ts []Tool) []llm.ToolDefinition {
	if len(ts) == 0 {
		return nil
	}
	defs := make([]llm.ToolDefinition, 0, len(ts))
	for _, t := range ts {
		defs = append(defs, Definition(t))
	}
	return defs
}

// StringArg reads a string argument with a fallback.
func StringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
