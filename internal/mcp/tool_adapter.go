package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

// ToolAdapter wraps one MCP server tool as a ports.ToolDef, giving the
// registry a uniform view over built-in and MCP-sourced tools alike.
type ToolAdapter struct {
	serverName string
	client     *Client
	schema     ToolSchema
}

// NewToolAdapter builds the adapter. The exposed tool name is
// "mcp__<server>__<tool>" (spec.md §6) so two servers can both expose a
// tool named e.g. "search" without colliding in the registry.
func NewToolAdapter(serverName string, client *Client, schema ToolSchema) *ToolAdapter {
	return &ToolAdapter{serverName: serverName, client: client, schema: schema}
}

func (a *ToolAdapter) Name() string {
	return fmt.Sprintf("mcp__%s__%s", a.serverName, a.schema.Name)
}

func (a *ToolAdapter) Description() string {
	if a.schema.Description == "" {
		return fmt.Sprintf("MCP tool %q from server %q", a.schema.Name, a.serverName)
	}
	return a.schema.Description
}

// ParametersSchema translates the MCP tool's raw JSON-Schema input into this
// module's ParameterSchema. Only type and description per property survive
// the translation; enum constraints in the source schema are dropped since
// ports.Property carries no slot for them and no tool in this module's own
// registry needs one.
func (a *ToolAdapter) ParametersSchema() ports.ParameterSchema {
	schema := ports.ParameterSchema{Type: "object", Properties: map[string]ports.Property{}}
	if a.schema.InputSchema == nil {
		return schema
	}
	if rawProps, ok := a.schema.InputSchema["properties"].(map[string]any); ok {
		for name, rawProp := range rawProps {
			propMap, ok := rawProp.(map[string]any)
			if !ok {
				continue
			}
			p := ports.Property{}
			if t, ok := propMap["type"].(string); ok {
				p.Type = t
			}
			if d, ok := propMap["description"].(string); ok {
				p.Description = d
			}
			schema.Properties[name] = p
		}
	}
	if rawRequired, ok := a.schema.InputSchema["required"].([]any); ok {
		for _, r := range rawRequired {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

// Execute calls the underlying MCP tool and folds its content blocks into a
// single output string.
func (a *ToolAdapter) Execute(ctx context.Context, args map[string]any, _ *ports.ToolContext) (*ports.ToolResult, error) {
	result, err := a.client.CallTool(ctx, a.schema.Name, args)
	if err != nil {
		return &ports.ToolResult{Success: false, Error: err.Error()}, nil
	}

	output := formatContent(result.Content)
	if result.IsError {
		return &ports.ToolResult{Success: false, Output: output, Error: output}, nil
	}
	return &ports.ToolResult{Success: true, Output: output}, nil
}

func formatContent(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "image":
			parts = append(parts, fmt.Sprintf("[image: %s]", b.MimeType))
		case "resource":
			parts = append(parts, fmt.Sprintf("[resource: %s]", b.MimeType))
		default:
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
