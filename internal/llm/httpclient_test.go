package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

func TestHTTPClient_StreamChat_AccumulatesContentDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Model: "test-model"})

	var deltas []string
	res, err := client.StreamChat(context.Background(), ChatRequest{
		Messages: []ports.Message{{Role: ports.RoleUser, Content: "hi"}},
	}, func(d StreamDelta) {
		if d.ContentDelta != "" {
			deltas = append(deltas, d.ContentDelta)
		}
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Fatalf("expected 2 deltas [Hel, lo], got %v", deltas)
	}
	if res.AccumulatedText != "Hello" {
		t.Fatalf("expected accumulated text 'Hello', got %q", res.AccumulatedText)
	}
	if res.Timings.PromptN != 5 || res.Timings.PredictedN != 2 {
		t.Fatalf("expected usage-derived timings, got %+v", res.Timings)
	}
}

func TestHTTPClient_StreamChat_AccumulatesFragmentedToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunks := []string{
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"bash","arguments":"{\"command\""}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":":\"ls\"}"}}]}}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Model: "test-model"})
	res, err := client.StreamChat(context.Background(), ChatRequest{
		Messages: []ports.Message{{Role: ports.RoleUser, Content: "run ls"}},
	}, nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if res.Final == nil || len(res.Final.ToolCalls) != 1 {
		t.Fatalf("expected exactly one assembled tool call, got %+v", res.Final)
	}
	tc := res.Final.ToolCalls[0]
	if tc.Name != "bash" || tc.Arguments != `{"command":"ls"}` {
		t.Fatalf("expected reassembled bash/{\"command\":\"ls\"}, got name=%q args=%q", tc.Name, tc.Arguments)
	}
}

func TestHTTPClient_StreamChat_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "model backend exploded")
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Model: "test-model"})
	_, err := client.StreamChat(context.Background(), ChatRequest{}, nil)
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
