package mcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToolAdapter_Name_IsNamespacedByServer(t *testing.T) {
	a := NewToolAdapter("github", nil, ToolSchema{Name: "list_issues"})
	require.Equal(t, "mcp__github__list_issues", a.Name())
}

func TestToolAdapter_Description_FallsBackWhenEmpty(t *testing.T) {
	a := NewToolAdapter("github", nil, ToolSchema{Name: "list_issues"})
	require.Contains(t, a.Description(), "list_issues")
	require.Contains(t, a.Description(), "github")
}

func TestToolAdapter_Description_PrefersSchemaDescription(t *testing.T) {
	a := NewToolAdapter("github", nil, ToolSchema{Name: "list_issues", Description: "Lists open issues"})
	require.Equal(t, "Lists open issues", a.Description())
}

func TestToolAdapter_ParametersSchema_TranslatesPropertiesAndRequired(t *testing.T) {
	schema := ToolSchema{
		Name: "search",
		InputSchema: map[string]any{
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "search text"},
				"limit": map[string]any{"type": "number", "enum": []any{10, 20, 50}},
			},
			"required": []any{"query"},
		},
	}
	a := NewToolAdapter("search-server", nil, schema)
	ps := a.ParametersSchema()

	require.Equal(t, "object", ps.Type)
	require.Equal(t, "string", ps.Properties["query"].Type)
	require.Equal(t, "search text", ps.Properties["query"].Description)
	require.Equal(t, "number", ps.Properties["limit"].Type)
	require.Equal(t, []string{"query"}, ps.Required)
}

func TestToolAdapter_ParametersSchema_NilInputSchema(t *testing.T) {
	a := NewToolAdapter("s", nil, ToolSchema{Name: "noop"})
	ps := a.ParametersSchema()
	require.Equal(t, "object", ps.Type)
	require.Empty(t, ps.Properties)
}

func TestFormatContent_JoinsTextBlocksAndAnnotatesOthers(t *testing.T) {
	out := formatContent([]ContentBlock{
		{Type: "text", Text: "first"},
		{Type: "image", MimeType: "image/png"},
		{Type: "text", Text: "second"},
	})
	require.Equal(t, "first\n[image: image/png]\nsecond", out)
}
