package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadExecute_OffsetAndTotalSummary(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, "line"+string(rune('0'+i%10)))
	}
	writeTempFile(t, dir, "ten.txt", strings.Join(lines, "\n")+"\n")

	r := NewRead()
	res, err := r.Execute(context.Background(), map[string]any{
		"file_path": "ten.txt", "offset": 2.0, "limit": 3.0,
	}, &ports.ToolContext{WorkingDir: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got: %s", res.Error)
	}
	if !strings.Contains(res.Output, "[Lines 3-5 of 10 total]") {
		t.Fatalf("expected a 3-5 of 10 summary line, got: %q", res.Output)
	}
	if !strings.Contains(res.Output, "(use offset=5 to read more)") {
		t.Fatalf("expected a continuation hint, got: %q", res.Output)
	}
}

func TestReadExecute_MissingFile(t *testing.T) {
	r := NewRead()
	res, err := r.Execute(context.Background(), map[string]any{"file_path": "does-not-exist.txt"}, &ports.ToolContext{WorkingDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for a missing file")
	}
}

func TestReadExecute_TruncatesLongLines(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "long.txt", strings.Repeat("x", 3000)+"\n")

	r := NewRead()
	res, err := r.Execute(context.Background(), map[string]any{"file_path": "long.txt"}, &ports.ToolContext{WorkingDir: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Output, strings.Repeat("x", 2000)+"...") {
		t.Fatal("expected the line to be truncated at 2000 characters with an ellipsis")
	}
}
