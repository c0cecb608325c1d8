package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
	"github.com/wrp1979/llama-agent/internal/config"
	"github.com/wrp1979/llama-agent/internal/logging"
	"github.com/wrp1979/llama-agent/internal/tools"
	"github.com/wrp1979/llama-agent/internal/tools/builtin"
)

type stubClearLoop struct{ cleared bool }

func (s *stubClearLoop) Clear() { s.cleared = true }

func TestHandleSlashCommand_ExitQuits(t *testing.T) {
	rt := &runtime{registry: tools.New(logging.Nop())}
	handled, quit := handleSlashCommand(rt, config.Config{}, &stubClearLoop{}, "/exit")
	require.True(t, handled)
	require.True(t, quit)
}

func TestHandleSlashCommand_QuitAlsoQuits(t *testing.T) {
	rt := &runtime{registry: tools.New(logging.Nop())}
	handled, quit := handleSlashCommand(rt, config.Config{}, &stubClearLoop{}, "/quit")
	require.True(t, handled)
	require.True(t, quit)
}

func TestHandleSlashCommand_ClearCallsLoopClearWithoutQuitting(t *testing.T) {
	rt := &runtime{registry: tools.New(logging.Nop())}
	loop := &stubClearLoop{}
	handled, quit := handleSlashCommand(rt, config.Config{}, loop, "/clear")
	require.True(t, handled)
	require.False(t, quit)
	require.True(t, loop.cleared)
}

func TestHandleSlashCommand_ToolsListsRegisteredTools(t *testing.T) {
	reg := tools.New(logging.Nop())
	require.NoError(t, reg.Register(builtin.NewBash()))
	rt := &runtime{registry: reg}

	handled, quit := handleSlashCommand(rt, config.Config{}, &stubClearLoop{}, "/tools")
	require.True(t, handled)
	require.False(t, quit)
}

func TestHandleSlashCommand_SkillsAndAgentsAreHandledNoOps(t *testing.T) {
	rt := &runtime{registry: tools.New(logging.Nop())}
	for _, cmd := range []string{"/skills", "/agents"} {
		handled, quit := handleSlashCommand(rt, config.Config{}, &stubClearLoop{}, cmd)
		require.Truef(t, handled, "expected %q to be handled", cmd)
		require.False(t, quit)
	}
}

func TestHandleSlashCommand_UnknownCommandIsNotHandled(t *testing.T) {
	rt := &runtime{registry: tools.New(logging.Nop())}
	handled, quit := handleSlashCommand(rt, config.Config{}, &stubClearLoop{}, "/bogus")
	require.False(t, handled)
	require.False(t, quit)
}

func TestTruncateForDisplay_ShortStringUnchanged(t *testing.T) {
	require.Equal(t, "short", truncateForDisplay("short", 80))
}

func TestTruncateForDisplay_LongStringTruncatedWithEllipsis(t *testing.T) {
	s := truncateForDisplay("0123456789", 5)
	require.Equal(t, "01234…", s)
}

func TestPrintEvent_DoesNotPanicForAnyEventKind(t *testing.T) {
	for _, kind := range []ports.EventKind{
		ports.EventTextDelta, ports.EventReasoningDelta, ports.EventToolStart,
		ports.EventToolResult, ports.EventPermissionAsk, ports.EventIterationStart,
		ports.EventCompleted, ports.EventError,
	} {
		printEvent(ports.Event{Kind: kind, Content: "x", ToolName: "bash", Output: "boom"})
	}
}
