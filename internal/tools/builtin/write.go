package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

// Write implements the `write` tool of spec.md §4.2: creates missing parent
// directories, rejects sensitive paths, and reports created vs. updated.
type Write struct{}

func NewWrite() *Write { return &Write{} }

func (w *Write) Name() string        { return "write" }
func (w *Write) Description() string { return "Write (create or overwrite) a text file." }

func (w *Write) ParametersSchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"file_path": {Type: "string", Description: "Path to the file"},
			"content":   {Type: "string", Description: "Full file content"},
		},
		Required: []string{"file_path", "content"},
	}
}

func (w *Write) Execute(_ context.Context, args map[string]any, tctx *ports.ToolContext) (*ports.ToolResult, error) {
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return &ports.ToolResult{Success: false, Error: "missing or invalid 'file_path'"}, nil
	}
	content, ok := args["content"].(string)
	if !ok {
		return &ports.ToolResult{Success: false, Error: "missing 'content'"}, nil
	}

	resolved, err := resolvePath(tctx, filePath)
	if err != nil {
		return &ports.ToolResult{Success: false, Error: err.Error()}, nil
	}

	_, statErr := os.Stat(resolved)
	existed := statErr == nil

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return &ports.ToolResult{Success: false, Error: fmt.Sprintf("failed to create directories: %v", err)}, nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return &ports.ToolResult{Success: false, Error: fmt.Sprintf("failed to write file: %v", err)}, nil
	}

	verb := "Created"
	if existed {
		verb = "Updated"
	}
	return &ports.ToolResult{
		Success: true,
		Output:  fmt.Sprintf("%s %s (%d bytes)", verb, filePath, len(content)),
	}, nil
}
