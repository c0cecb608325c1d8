package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

func TestGlobToRegexp(t *testing.T) {
	cases := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "sub/main.go", false},
		{"**/*.go", "a/b/main.go", true},
		{"**/*.go", "main.go", true},
		{"file?.txt", "file1.txt", true},
		{"file?.txt", "file12.txt", false},
	}
	for _, c := range cases {
		re, err := GlobToRegexp(c.pattern)
		if err != nil {
			t.Fatalf("GlobToRegexp(%q): %v", c.pattern, err)
		}
		if got := re.MatchString(c.input); got != c.want {
			t.Errorf("pattern %q vs %q = %v, want %v", c.pattern, c.input, got, c.want)
		}
	}
}

func TestGlobExecute_CapsAt100AndWarns(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 150; i++ {
		name := filepath.Join(dir, fmt.Sprintf("file%03d.txt", i))
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	g := NewGlob()
	res, err := g.Execute(context.Background(), map[string]any{"pattern": "*.txt"}, &ports.ToolContext{WorkingDir: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error: %s", res.Error)
	}

	lines := strings.Split(strings.TrimSpace(res.Output), "\n")
	// 100 matched paths plus the trailing cap-notice line.
	if len(lines) != 101 {
		t.Fatalf("expected 101 output lines (100 matches + notice), got %d", len(lines))
	}
	if !strings.Contains(res.Output, "limited to 100 files") {
		t.Fatalf("expected a cap notice in output, got: %q", res.Output)
	}
}

func TestGlobExecute_MissingPattern(t *testing.T) {
	g := NewGlob()
	res, err := g.Execute(context.Background(), map[string]any{}, &ports.ToolContext{WorkingDir: "."})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for missing pattern")
	}
}
