package builtin

import (
	"fmt"
	"path/filepath"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
	"github.com/wrp1979/llama-agent/internal/approval"
)

// resolvePath joins a possibly-relative path against the tool context's
// working directory and rejects sensitive filenames up front, matching the
// read/write contracts of spec.md §4.2.
func resolvePath(tctx *ports.ToolContext, path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(tctx.WorkingDir, resolved)
	}
	resolved = filepath.Clean(resolved)
	if approval.IsSensitiveFile(resolved) {
		return "", fmt.Errorf("Blocked: refusing to access sensitive file %s", path)
	}
	return resolved, nil
}
