package agentsmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_CollectsInnermostFirstUpToGitRoot(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("root context"), 0o644))

	sub := filepath.Join(root, "pkg", "inner")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "AGENTS.md"), []byte("inner context"), 0o644))

	combined, warnings, err := Load(sub)
	require.NoError(t, err)
	require.Empty(t, warnings)

	innerIdx := strings.Index(combined, "inner context")
	rootIdx := strings.Index(combined, "root context")
	require.True(t, innerIdx >= 0 && rootIdx >= 0)
	require.Less(t, innerIdx, rootIdx, "innermost AGENTS.md must come first")
}

func TestLoad_StopsAtGitRootAndDoesNotWalkFurtherUp(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	outer := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outer, "AGENTS.md"), []byte("should not be seen"), 0o644))

	root := filepath.Join(outer, "project")
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("project context"), 0o644))

	combined, _, err := Load(root)
	require.NoError(t, err)
	require.Contains(t, combined, "project context")
	require.NotContains(t, combined, "should not be seen")
}

func TestLoad_AppendsGlobalFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".llama-agent"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".llama-agent", "AGENTS.md"), []byte("global context"), 0o644))

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("project context"), 0o644))

	combined, _, err := Load(root)
	require.NoError(t, err)
	require.Contains(t, combined, "project context")
	require.Contains(t, combined, "global context")
}

func TestLoad_NoFilesReturnsEmptyWithNoError(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	combined, warnings, err := Load(root)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Empty(t, combined)
}

func TestLoad_WarnsAndTruncatesOversizedFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	big := strings.Repeat("x", warnThresholdBytes+100)
	require.NoError(t, os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte(big), 0o644))

	combined, warnings, err := Load(root)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "exceeds")
	require.LessOrEqual(t, len(combined), warnThresholdBytes+10)
}
