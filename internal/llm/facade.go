// Package llm defines the single posting/streaming interface the Agent Loop
// consumes (spec.md §6). The model inference engine itself is out of scope;
// this package only describes the contract and a parser for the two
// tool-call envelope formats a local backend may emit.
package llm

import (
	"context"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

// ToolSchema is one entry of the OpenAI-compatible tool list sent with a
// chat request.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  ports.ParameterSchema
}

// ChatRequest carries the current conversation and the (possibly filtered)
// tool list for one model turn.
type ChatRequest struct {
	Messages   []ports.Message
	Tools      []ToolSchema
	ToolChoice string
}

// StreamDelta is one incremental chunk from the model facade.
type StreamDelta struct {
	ContentDelta   string
	ReasoningDelta string
}

// Timings mirrors the facade's final-frame timing block.
type Timings struct {
	PromptN     int
	PromptMS    float64
	PredictedN  int
	PredictedMS float64
	CacheN      int
}

// FinalMessage is the facade's server-parsed message, when present.
type FinalMessage struct {
	Content   string
	ToolCalls []ports.ToolCallRequest
}

// CompletionResult is returned once a stream completes.
type CompletionResult struct {
	Final          *FinalMessage // nil if the backend never supplied a parsed message
	AccumulatedText string       // concatenation of every ContentDelta, used when Final is nil
	Timings        Timings
}

// Client is the single posting/streaming interface the Agent Loop consumes.
// Implementations post (messages, tools) and stream back deltas followed by
// a final frame.
type Client interface {
	StreamChat(ctx context.Context, req ChatRequest, onDelta func(StreamDelta)) (*CompletionResult, error)
}
