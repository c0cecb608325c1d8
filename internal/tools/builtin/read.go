package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

const readLineCharCap = 2000

// Read implements the `read` tool of spec.md §4.2: numbered-line output,
// each line capped at 2000 characters, with an offset/limit window.
type Read struct{}

func NewRead() *Read { return &Read{} }

func (r *Read) Name() string        { return "read" }
func (r *Read) Description() string { return "Read a text file, with numbered lines." }

func (r *Read) ParametersSchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"file_path": {Type: "string", Description: "Path to the file"},
			"offset":    {Type: "integer", Description: "0-based line to start from"},
			"limit":     {Type: "integer", Description: "Maximum number of lines to return"},
		},
		Required: []string{"file_path"},
	}
}

func (r *Read) Execute(_ context.Context, args map[string]any, tctx *ports.ToolContext) (*ports.ToolResult, error) {
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return &ports.ToolResult{Success: false, Error: "missing or invalid 'file_path'"}, nil
	}

	resolved, err := resolvePath(tctx, filePath)
	if err != nil {
		return &ports.ToolResult{Success: false, Error: err.Error()}, nil
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return &ports.ToolResult{Success: false, Error: fmt.Sprintf("failed to read %s: %v", filePath, err)}, nil
	}

	offset := 0
	if v, ok := toFloat(args["offset"]); ok {
		offset = int(v)
	}
	limit := 2000
	if v, ok := toFloat(args["limit"]); ok && v > 0 {
		limit = int(v)
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	total := len(lines)

	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	window := lines[offset:end]

	var b strings.Builder
	for i, line := range window {
		lineNo := offset + i + 1
		if len(line) > readLineCharCap {
			line = line[:readLineCharCap] + "..."
		}
		fmt.Fprintf(&b, "%6d| %s\n", lineNo, line)
	}

	rangeStart := offset + 1
	rangeEnd := end
	if rangeEnd < rangeStart {
		rangeStart, rangeEnd = 0, 0
	}
	fmt.Fprintf(&b, "[Lines %d-%d of %d total]", rangeStart, rangeEnd, total)
	if end < total {
		fmt.Fprintf(&b, "\n(use offset=%d to read more)", end)
	}

	return &ports.ToolResult{Success: true, Output: b.String()}, nil
}
