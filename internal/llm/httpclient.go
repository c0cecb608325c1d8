package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

const defaultBaseURL = "http://127.0.0.1:8080/v1"

// HTTPConfig configures the local model server endpoint.
type HTTPConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// HTTPClient speaks the OpenAI-compatible chat/completions streaming API
// exposed by a local model server (e.g. llama.cpp's llama-server). It is the
// default, concrete llm.Client a running CLI/HTTP deployment wires in; the
// Agent Loop itself only depends on the Client interface.
type HTTPClient struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 200 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type wireFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  ports.ParameterSchema  `json:"parameters"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type wireDelta struct {
	Content   string         `json:"content"`
	Reasoning string         `json:"reasoning_content"`
	ToolCalls []wireToolCall `json:"tool_calls"`
}

type wireChoice struct {
	Delta        wireDelta   `json:"delta"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type wireChunk struct {
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage"`
	Timings *struct {
		PromptN     int     `json:"prompt_n"`
		PromptMS    float64 `json:"prompt_ms"`
		PredictedN  int     `json:"predicted_n"`
		PredictedMS float64 `json:"predicted_ms"`
		CacheN      int     `json:"cache_n"`
	} `json:"timings"`
}

func toWireMessages(msgs []ports.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{Role: string(m.Role), Content: m.Content}
		if m.Role == ports.RoleTool {
			wm.ToolCallID = m.ToolCallID
			wm.Name = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				}{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []ToolSchema) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// StreamChat posts the request and streams back SSE ("data: {...}") chunks,
// accumulating content/reasoning deltas and any tool_calls fragments until
// the terminal "data: [DONE]" line or stream close.
func (c *HTTPClient) StreamChat(ctx context.Context, req ChatRequest, onDelta func(StreamDelta)) (*CompletionResult, error) {
	wireReq := wireRequest{
		Model:       c.cfg.Model,
		Messages:    toWireMessages(req.Messages),
		Tools:       toWireTools(req.Tools),
		ToolChoice:  req.ToolChoice,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      true,
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return c.consumeStream(resp.Body, onDelta)
}

func (c *HTTPClient) consumeStream(r io.Reader, onDelta func(StreamDelta)) (*CompletionResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var accumulated strings.Builder
	toolCallAcc := map[int]*wireToolCall{}
	var toolOrder []int
	result := &CompletionResult{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue // tolerate stray keep-alive/comment lines from the server
		}

		if chunk.Usage != nil {
			result.Timings.PromptN = chunk.Usage.PromptTokens
			result.Timings.PredictedN = chunk.Usage.CompletionTokens
		}
		if chunk.Timings != nil {
			result.Timings.PromptN = chunk.Timings.PromptN
			result.Timings.PromptMS = chunk.Timings.PromptMS
			result.Timings.PredictedN = chunk.Timings.PredictedN
			result.Timings.PredictedMS = chunk.Timings.PredictedMS
			result.Timings.CacheN = chunk.Timings.CacheN
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				accumulated.WriteString(choice.Delta.Content)
				if onDelta != nil {
					onDelta(StreamDelta{ContentDelta: choice.Delta.Content})
				}
			}
			if choice.Delta.Reasoning != "" && onDelta != nil {
				onDelta(StreamDelta{ReasoningDelta: choice.Delta.Reasoning})
			}
			for _, tc := range choice.Delta.ToolCalls {
				existing, ok := toolCallAcc[tc.Index]
				if !ok {
					cp := tc
					toolCallAcc[tc.Index] = &cp
					toolOrder = append(toolOrder, tc.Index)
					continue
				}
				if tc.ID != "" {
					existing.ID = tc.ID
				}
				if tc.Function.Name != "" {
					existing.Function.Name = tc.Function.Name
				}
				existing.Function.Arguments += tc.Function.Arguments
			}
			// Non-streaming server fallback: some local backends only ever
			// send one full chunk rather than incremental deltas.
			if choice.Message.Content != "" || len(choice.Message.ToolCalls) > 0 {
				result.Final = finalFromWireMessage(choice.Message)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read model stream: %w", err)
	}

	result.AccumulatedText = accumulated.String()

	if result.Final == nil && len(toolOrder) > 0 {
		calls := make([]ports.ToolCallRequest, 0, len(toolOrder))
		for _, idx := range toolOrder {
			tc := toolCallAcc[idx]
			calls = append(calls, ports.ToolCallRequest{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		result.Final = &FinalMessage{Content: result.AccumulatedText, ToolCalls: calls}
	}

	return result, nil
}

func finalFromWireMessage(m wireMessage) *FinalMessage {
	calls := make([]ports.ToolCallRequest, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		calls = append(calls, ports.ToolCallRequest{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return &FinalMessage{Content: m.Content, ToolCalls: calls}
}
