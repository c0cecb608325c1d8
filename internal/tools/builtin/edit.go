package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

// Edit implements the `edit` tool of spec.md §4.2: a single or all-occurrence
// string replacement, guarded by an old!=new check and an ambiguity check
// when replace_all is false.
type Edit struct {
	colorDiff bool
}

func NewEdit() *Edit          { return &Edit{} }
func NewEditColor() *Edit     { return &Edit{colorDiff: true} }

func (e *Edit) Name() string        { return "edit" }
func (e *Edit) Description() string { return "Replace an exact string occurrence in a file." }

func (e *Edit) ParametersSchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"file_path":    {Type: "string", Description: "Path to the file"},
			"old_string":   {Type: "string", Description: "Exact text to replace"},
			"new_string":   {Type: "string", Description: "Replacement text"},
			"replace_all":  {Type: "boolean", Description: "Replace every occurrence instead of requiring uniqueness"},
		},
		Required: []string{"file_path", "old_string", "new_string"},
	}
}

func (e *Edit) Execute(_ context.Context, args map[string]any, tctx *ports.ToolContext) (*ports.ToolResult, error) {
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return &ports.ToolResult{Success: false, Error: "missing or invalid 'file_path'"}, nil
	}
	oldString, _ := args["old_string"].(string)
	newString, _ := args["new_string"].(string)
	replaceAll, _ := args["replace_all"].(bool)

	if oldString == newString {
		return &ports.ToolResult{Success: false, Error: "old_string and new_string must differ"}, nil
	}

	resolved, err := resolvePath(tctx, filePath)
	if err != nil {
		return &ports.ToolResult{Success: false, Error: err.Error()}, nil
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return &ports.ToolResult{Success: false, Error: fmt.Sprintf("file does not exist: %s", filePath)}, nil
	}
	original := string(raw)

	occurrences := strings.Count(original, oldString)
	if occurrences == 0 {
		return &ports.ToolResult{Success: false, Error: "old_string not found in file"}, nil
	}
	if occurrences > 1 && !replaceAll {
		return &ports.ToolResult{
			Success: false,
			Error: fmt.Sprintf(
				"Found %d occurrences of old_string; pass replace_all=true or include more surrounding context to make it unique",
				occurrences,
			),
		}, nil
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(original, oldString, newString)
	} else {
		updated = strings.Replace(original, oldString, newString, 1)
	}

	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return &ports.ToolResult{Success: false, Error: fmt.Sprintf("failed to write file: %v", err)}, nil
	}

	diff := unifiedDiff(original, updated, filePath, e.colorDiff)
	replaced := 1
	if replaceAll {
		replaced = occurrences
	}

	return &ports.ToolResult{
		Success: true,
		Output:  fmt.Sprintf("Replaced %d occurrence(s) in %s\n\n%s", replaced, filePath, diff),
	}, nil
}

// unifiedDiff renders a line-level Myers diff between before/after using
// sergi/go-diff, matching spec.md §4.2's note that both a plain-text and an
// ANSI-colored diff variant exist.
func unifiedDiff(before, after, label string, withColor bool) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", label, label)
	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				writeDiffLine(&sb, "+", line, withColor, color.FgGreen)
			case diffmatchpatch.DiffDelete:
				writeDiffLine(&sb, "-", line, withColor, color.FgRed)
			default:
				writeDiffLine(&sb, " ", line, withColor, color.FgWhite)
			}
		}
	}
	return sb.String()
}

func writeDiffLine(sb *strings.Builder, marker, line string, withColor bool, attr color.Attribute) {
	text := marker + " " + line
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if withColor {
		text = color.New(attr).Sprint(text)
	}
	sb.WriteString(text)
}
