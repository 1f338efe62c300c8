package mcp

import (
	"sync/atomic"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

func TestParamsFromSchema(t *testing.T) {
	schema := mcpgo.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"query": map[string]any{"type": "string", "description": "search query"},
			"limit": map[string]any{"type": "integer"},
			"raw":   "not-a-map",
		},
		Required: []string{"query"},
	}

	params := paramsFromSchema(schema)
	if len(params) != 3 {
		t.Fatalf("params = %d, want 3", len(params))
	}
	// Sorted by name: limit, query, raw.
	if params[0].Name != "limit" || params[0].Type != "integer" || params[0].Required {
		t.Errorf("limit = %+v", params[0])
	}
	if params[1].Name != "query" || !params[1].Required || params[1].Description != "search query" {
		t.Errorf("query = %+v", params[1])
	}
	if params[2].Name != "raw" || params[2].Type != "string" {
		t.Errorf("malformed property should fall back to string: %+v", params[2])
	}
}

func TestBridgeToolNaming(t *testing.T) {
	var connected atomic.Bool
	remote := mcpgo.Tool{Name: "search", Description: "find things"}

	bt := newBridgeTool("kusto", remote, nil, "discovery_", 30, &connected)
	if bt.Name() != "discovery_search" {
		t.Errorf("name = %q", bt.Name())
	}
	if bt.OriginalName() != "search" {
		t.Errorf("original = %q", bt.OriginalName())
	}

	// Empty prefix falls back to the server name.
	bt = newBridgeTool("kusto", remote, nil, "", 30, &connected)
	if bt.Name() != "kusto_search" {
		t.Errorf("default-prefixed name = %q", bt.Name())
	}
}

func TestBridgeToolRejectsWhenDisconnected(t *testing.T) {
	var connected atomic.Bool // false
	bt := newBridgeTool("kusto", mcpgo.Tool{Name: "search"}, nil, "", 30, &connected)
	if _, err := bt.Execute(t.Context(), map[string]any{}); err == nil {
		t.Error("expected error while disconnected")
	}
}

func TestFlattenContent(t *testing.T) {
	got := flattenContent([]mcpgo.Content{
		mcpgo.TextContent{Type: "text", Text: "hello "},
		mcpgo.TextContent{Type: "text", Text: "world"},
	})
	if got != "hello world" {
		t.Errorf("flattened = %q", got)
	}
}
