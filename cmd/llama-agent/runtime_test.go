package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wrp1979/llama-agent/internal/config"
	"github.com/wrp1979/llama-agent/internal/logging"
	"github.com/wrp1979/llama-agent/internal/tools"
)

func TestBuildSystemPrompt_BaseOnlyWhenAgentsMDAndSkillsDisabled(t *testing.T) {
	cfg := config.Config{WorkingDir: t.TempDir(), NoAgentsMD: true, NoSkills: true}
	prompt := buildSystemPrompt(cfg, logging.Nop())
	require.Contains(t, prompt, "llama-agent")
	require.NotContains(t, prompt, "##")
}

func TestBuildSystemPrompt_FoldsInAgentsMD(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("# Project rules\nAlways run tests first."), 0o644))

	cfg := config.Config{WorkingDir: dir, NoAgentsMD: false, NoSkills: true}
	prompt := buildSystemPrompt(cfg, logging.Nop())
	require.Contains(t, prompt, "Always run tests first.")
}

func TestBuildSystemPrompt_FoldsInDiscoveredSkills(t *testing.T) {
	dir := t.TempDir()
	skillsDir := filepath.Join(dir, ".llama-agent", "skills", "review-pr")
	require.NoError(t, os.MkdirAll(skillsDir, 0o755))
	body := "---\nname: review-pr\ndescription: Review a pull request.\n---\nBody text.\n"
	require.NoError(t, os.WriteFile(filepath.Join(skillsDir, "SKILL.md"), []byte(body), 0o644))

	cfg := config.Config{WorkingDir: dir, NoAgentsMD: true, NoSkills: false}
	prompt := buildSystemPrompt(cfg, logging.Nop())
	require.Contains(t, prompt, "review-pr")
}

func TestRegisterBuiltins_RegistersAllBuiltinTools(t *testing.T) {
	registry := tools.New(logging.Nop())
	registerBuiltins(registry)
	for _, name := range []string{"bash", "read", "write", "edit", "glob", "task"} {
		_, ok := registry.Lookup(name)
		require.Truef(t, ok, "expected builtin tool %q to be registered", name)
	}
}
