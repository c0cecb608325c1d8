package builtin

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

func TestBashExecute_Success(t *testing.T) {
	b := NewBash()
	res, err := b.Execute(context.Background(), map[string]any{"command": "echo hello"}, &ports.ToolContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got: %s", res.Output)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Fatalf("expected output to contain 'hello', got: %q", res.Output)
	}
	if !strings.Contains(res.Output, "[Exit code: 0]") {
		t.Fatalf("expected an exit code annotation, got: %q", res.Output)
	}
}

func TestBashExecute_NonZeroExit(t *testing.T) {
	b := NewBash()
	res, err := b.Execute(context.Background(), map[string]any{"command": "exit 3"}, &ports.ToolContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for a non-zero exit")
	}
	if !strings.Contains(res.Output, "[Exit code: 3]") {
		t.Fatalf("expected exit code 3 annotation, got: %q", res.Output)
	}
}

func TestBashExecute_MissingCommand(t *testing.T) {
	b := NewBash()
	res, err := b.Execute(context.Background(), map[string]any{}, &ports.ToolContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for a missing command")
	}
}

func TestBashExecute_Timeout(t *testing.T) {
	b := NewBash()
	res, err := b.Execute(context.Background(), map[string]any{
		"command": "sleep 5", "timeout": 50.0,
	}, &ports.ToolContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure on timeout")
	}
	if !strings.Contains(res.Output, "Timed out after 50ms") {
		t.Fatalf("expected a timeout annotation, got: %q", res.Output)
	}
}

func TestBashExecute_InterruptKillsProcess(t *testing.T) {
	var interrupt atomic.Bool
	tctx := &ports.ToolContext{Interrupt: &interrupt}

	go func() {
		time.Sleep(40 * time.Millisecond)
		interrupt.Store(true)
	}()

	b := NewBash()
	res, err := b.Execute(context.Background(), map[string]any{"command": "sleep 5"}, tctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure when interrupted")
	}
	if !strings.Contains(res.Output, "[Interrupted by user]") {
		t.Fatalf("expected an interrupted annotation, got: %q", res.Output)
	}
}

func TestTruncateBashOutput_CapsLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("line\n")
	}
	out := truncateBashOutput(b.String())
	if !strings.Contains(out, "+10 more lines") {
		t.Fatalf("expected a +10-more-lines marker, got: %q", out)
	}
}
