package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/conductorhq/conductor/internal/tools"
)

// BridgeTool adapts a remote MCP tool to the gateway Tool contract.
// The registered name is the server's tool prefix plus the remote name,
// so prefix-scoped agent toolsets pick the tool up like any local one.
type BridgeTool struct {
	server    string
	remote    mcpgo.Tool
	client    *mcpclient.Client
	name      string
	params    []tools.Param
	timeout   time.Duration
	connected *atomic.Bool
}

func newBridgeTool(server string, remote mcpgo.Tool, client *mcpclient.Client, prefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	if prefix == "" {
		prefix = server + "_"
	}
	return &BridgeTool{
		server:    server,
		remote:    remote,
		client:    client,
		name:      prefix + remote.Name,
		params:    paramsFromSchema(remote.InputSchema),
		timeout:   time.Duration(timeoutSec) * time.Second,
		connected: connected,
	}
}

func (b *BridgeTool) Name() string { return b.name }

// OriginalName returns the tool name as the remote server declares it.
func (b *BridgeTool) OriginalName() string { return b.remote.Name }

func (b *BridgeTool) Description() string {
	if b.remote.Description != "" {
		return fmt.Sprintf("[%s] %s", b.server, b.remote.Description)
	}
	return fmt.Sprintf("[%s] remote tool %s", b.server, b.remote.Name)
}

func (b *BridgeTool) Parameters() []tools.Param { return b.params }

// Execute forwards the call to the remote server with the configured
// per-call timeout.
func (b *BridgeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if !b.connected.Load() {
		return "", fmt.Errorf("MCP server %q is not connected", b.server)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.remote.Name
	req.Params.Arguments = args

	result, err := b.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call %s on %s: %w", b.remote.Name, b.server, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

// flattenContent concatenates text blocks; non-text content is noted
// rather than dropped silently.
func flattenContent(content []mcpgo.Content) string {
	var sb strings.Builder
	for _, c := range content {
		switch tc := c.(type) {
		case mcpgo.TextContent:
			sb.WriteString(tc.Text)
		case *mcpgo.TextContent:
			sb.WriteString(tc.Text)
		default:
			sb.WriteString("[non-text content omitted]")
		}
	}
	return sb.String()
}

// paramsFromSchema converts the remote JSON schema to the flat Param
// list the registry expects. Nested object detail beyond type and
// description is not preserved.
func paramsFromSchema(schema mcpgo.ToolInputSchema) []tools.Param {
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	params := make([]tools.Param, 0, len(schema.Properties))
	for name, raw := range schema.Properties {
		p := tools.Param{Name: name, Type: "string", Required: required[name]}
		if prop, ok := raw.(map[string]any); ok {
			if t, ok := prop["type"].(string); ok && t != "" {
				p.Type = t
			}
			if d, ok := prop["description"].(string); ok {
				p.Description = d
			}
		}
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}
