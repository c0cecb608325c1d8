package llm

import (
	"context"
)

// Scripted is a test/demo Client that replays a fixed sequence of
// CompletionResults, one per call to StreamChat, emitting each script
// entry's text as a single delta before returning. It mirrors the
// teacher's convention of a deterministic mock transport for tests that
// exercise the Agent Loop without a real backend.
type Scripted struct {
	Responses []CompletionResult
	calls     int
}

func (s *Scripted) StreamChat(_ context.Context, _ ChatRequest, onDelta func(StreamDelta)) (*CompletionResult, error) {
	if s.calls >= len(s.Responses) {
		return &CompletionResult{Final: &FinalMessage{Content: ""}}, nil
	}
	resp := s.Responses[s.calls]
	s.calls++
	if onDelta != nil && resp.AccumulatedText != "" {
		onDelta(StreamDelta{ContentDelta: resp.AccumulatedText})
	}
	out := resp
	return &out, nil
}
