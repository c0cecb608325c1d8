// Package agentsmd discovers and loads AGENTS.md project-context files
// (spec.md §6): prompt-time-only, walked from the working directory up to
// the git root, falling back to a global `~/.llama-agent/AGENTS.md`.
package agentsmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wrp1979/llama-agent/internal/config"
)

const warnThresholdBytes = 50 * 1024

// Load walks from workingDir upward to the first `.git` directory (or
// filesystem root), collecting every AGENTS.md found along the way,
// innermost first, then appends the global fallback if present.
func Load(workingDir string) (string, []string, error) {
	var warnings []string
	var fragments []string

	dir := workingDir
	for {
		path := filepath.Join(dir, "AGENTS.md")
		if content, ok := readIfExists(path, &warnings); ok {
			fragments = append(fragments, content)
		}
		if isGitRoot(dir) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if home, err := config.HomeDir(); err == nil {
		if content, ok := readIfExists(filepath.Join(home, "AGENTS.md"), &warnings); ok {
			fragments = append(fragments, content)
		}
	}

	var combined string
	for _, f := range fragments {
		combined += f + "\n\n"
	}
	return combined, warnings, nil
}

func readIfExists(path string, warnings *[]string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if info.Size() > warnThresholdBytes {
		*warnings = append(*warnings, fmt.Sprintf("%s exceeds %d KB; truncating", path, warnThresholdBytes/1024))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	if len(raw) > warnThresholdBytes {
		raw = raw[:warnThresholdBytes]
	}
	return string(raw), true
}

func isGitRoot(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}
