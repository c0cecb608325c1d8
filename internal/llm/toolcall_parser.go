package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

// functionEnvelopeRe matches both `<tool_call><function=NAME>...</function>
// </tool_call>` and the bare `<function=NAME>...</function>` envelope
// (spec.md §6).
var functionEnvelopeRe = regexp.MustCompile(`(?s)<function=([a-zA-Z0-9_\-]+)>(.*?)</function>`)

// parameterRe matches one `<parameter=KEY>VALUE</parameter>` block.
var parameterRe = regexp.MustCompile(`(?s)<parameter=([a-zA-Z0-9_\-]+)>(.*?)</parameter>`)

// ParseToolCallEnvelopes extracts tool calls from a raw model response when
// the backend did not supply a server-parsed FinalMessage. Each inner
// parameter block becomes one entry of a JSON arguments object; values are
// trimmed of trailing CR/LF, matching spec.md §6.
func ParseToolCallEnvelopes(content string, nextID func() string) []ports.ToolCallRequest {
	matches := functionEnvelopeRe.FindAllStringSubmatch(content, -1)
	calls := make([]ports.ToolCallRequest, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		body := m[2]
		args := map[string]any{}
		for _, p := range parameterRe.FindAllStringSubmatch(body, -1) {
			key := p[1]
			value := strings.TrimRight(p[2], "\r\n")
			args[key] = value
		}
		argsJSON, _ := json.Marshal(args)
		calls = append(calls, ports.ToolCallRequest{ID: nextID(), Name: name, Arguments: string(argsJSON)})
	}
	return calls
}

// ParseArguments decodes a tool call's raw JSON arguments, retrying once
// through jsonrepair when the model emits slightly malformed JSON (spec.md
// §4.2's addition): a missing quote, trailing comma, or single-quoted
// string is the common failure mode from local backends.
func ParseArguments(raw string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FallbackCallID fabricates a tool-call id when the model omits one.
// iteration/indexInMessage are accepted so callers needn't special-case
// this from the id-bearing path; uniqueness itself comes from uuid.
func FallbackCallID(iteration, indexInMessage int) string {
	return "call_" + uuid.NewString()
}
