package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

const globResultCap = 100

// Glob implements the `glob` tool of spec.md §4.2: shell-glob pattern
// matching over a recursive directory walk, sorted by mtime descending.
type Glob struct{}

func NewGlob() *Glob { return &Glob{} }

func (g *Glob) Name() string        { return "glob" }
func (g *Glob) Description() string { return "Find files by a shell glob pattern." }

func (g *Glob) ParametersSchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"pattern": {Type: "string", Description: "Shell glob, e.g. **/*.md"},
			"path":    {Type: "string", Description: "Base directory to search"},
		},
		Required: []string{"pattern"},
	}
}

func (g *Glob) Execute(_ context.Context, args map[string]any, tctx *ports.ToolContext) (*ports.ToolResult, error) {
	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return &ports.ToolResult{Success: false, Error: "missing or invalid 'pattern'"}, nil
	}
	base := tctx.WorkingDir
	if p, ok := args["path"].(string); ok && p != "" {
		base = p
	}

	matchBasename := !strings.Contains(pattern, "/") && !strings.Contains(pattern, "**")
	re, err := GlobToRegexp(pattern)
	if err != nil {
		return &ports.ToolResult{Success: false, Error: fmt.Sprintf("invalid pattern: %v", err)}, nil
	}

	type match struct {
		path    string
		modTime int64
	}
	var matches []match

	_ = filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		target := rel
		if matchBasename {
			target = filepath.Base(rel)
		}
		if !patternAllowsHidden(pattern) && hasHiddenComponent(rel) {
			return nil
		}
		if re.MatchString(target) {
			matches = append(matches, match{path: path, modTime: info.ModTime().Unix()})
		}
		return nil
	})

	sort.Slice(matches, func(i, j int) bool { return matches[i].modTime > matches[j].modTime })

	overflow := len(matches) > globResultCap
	if overflow {
		matches = matches[:globResultCap]
	}

	var b strings.Builder
	for _, m := range matches {
		b.WriteString(m.path)
		b.WriteString("\n")
	}
	if overflow {
		b.WriteString("[Results limited to 100 files. Use a more specific pattern.]")
	}

	return &ports.ToolResult{Success: true, Output: strings.TrimRight(b.String(), "\n")}, nil
}

// GlobToRegexp converts a shell glob to a regular expression per spec.md
// §4.2: `*` matches `[^/]*`, `**` matches `.*` (and `**/` also matches zero
// directories, so `**/*.go` matches `main.go`), `?` matches `[^/]`, `[...]`
// is preserved, and any other regex metacharacter is escaped.
func GlobToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+2 < len(runes) && runes[i+1] == '*' && runes[i+2] == '/' {
				b.WriteString("(?:.*/)?")
				i += 2
			} else if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			j := i + 1
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j < len(runes) {
				b.WriteString(string(runes[i : j+1]))
				i = j
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// patternAllowsHidden reports whether pattern itself opts into matching a
// leading dot (i.e. the pattern's first path component literally starts
// with '.'), mirroring shell hidden-file conventions noted in spec.md §8.
func patternAllowsHidden(pattern string) bool {
	first := pattern
	if idx := strings.Index(pattern, "/"); idx >= 0 {
		first = pattern[:idx]
	}
	return strings.HasPrefix(first, ".")
}

func hasHiddenComponent(relPath string) bool {
	for _, part := range strings.Split(relPath, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
