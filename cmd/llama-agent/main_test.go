package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/wrp1979/llama-agent/internal/config"
)

func TestJoinArgs_SingleArgUnchanged(t *testing.T) {
	require.Equal(t, "hello", joinArgs([]string{"hello"}))
}

func TestJoinArgs_JoinsWithSingleSpaces(t *testing.T) {
	require.Equal(t, "summarize this repo", joinArgs([]string{"summarize", "this", "repo"}))
}

func newRootCmdForFlagTests() *cobra.Command {
	cmd := &cobra.Command{Use: "llama-agent"}
	cmd.Flags().Bool("no-subagents", false, "")
	cmd.Flags().String("working-dir", "", "")
	return cmd
}

func TestApplyFlags_NoSubagentsDisablesSubagents(t *testing.T) {
	cmd := newRootCmdForFlagTests()
	require.NoError(t, cmd.Flags().Set("no-subagents", "true"))

	cfg := applyFlags(config.Config{Subagents: true, WorkingDir: "/tmp/project"}, cmd)
	require.False(t, cfg.Subagents)
}

func TestApplyFlags_WorkingDirFlagOverridesConfig(t *testing.T) {
	cmd := newRootCmdForFlagTests()
	require.NoError(t, cmd.Flags().Set("working-dir", "/explicit/dir"))

	cfg := applyFlags(config.Config{WorkingDir: "/from/config"}, cmd)
	require.Equal(t, "/explicit/dir", cfg.WorkingDir)
}

func TestApplyFlags_EmptyWorkingDirFallsBackToCWD(t *testing.T) {
	cmd := newRootCmdForFlagTests()

	cfg := applyFlags(config.Config{WorkingDir: ""}, cmd)
	require.NotEmpty(t, cfg.WorkingDir)
}

func TestApplyFlags_SubagentsUntouchedWhenNoSubagentsNotSet(t *testing.T) {
	cmd := newRootCmdForFlagTests()

	cfg := applyFlags(config.Config{Subagents: true}, cmd)
	require.True(t, cfg.Subagents)
}
