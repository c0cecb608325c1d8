package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

const (
	bashMaxOutputBytes = 30000
	bashMaxDisplayLines = 50
	bashDefaultTimeoutMS = 120000
)

// Bash executes a shell command in the tool context's working directory
// (spec.md §4.2).
type Bash struct{}

func NewBash() *Bash { return &Bash{} }

func (b *Bash) Name() string        { return "bash" }
func (b *Bash) Description() string { return "Execute a shell command and capture its combined stdout/stderr." }

func (b *Bash) ParametersSchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"command": {Type: "string", Description: "Shell command to run"},
			"timeout": {Type: "integer", Description: "Timeout in milliseconds"},
		},
		Required: []string{"command"},
	}
}

func (b *Bash) Execute(ctx context.Context, args map[string]any, tctx *ports.ToolContext) (*ports.ToolResult, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return &ports.ToolResult{Success: false, Error: "missing 'command'"}, nil
	}

	timeoutMS := bashDefaultTimeoutMS
	if tctx != nil && tctx.TimeoutMS > 0 {
		timeoutMS = tctx.TimeoutMS
	}
	if v, ok := args["timeout"]; ok {
		if f, ok := toFloat(v); ok && f > 0 {
			timeoutMS = int(f)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	shell, shellArg := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd", "/c"
	}
	cmd := exec.CommandContext(runCtx, shell, shellArg, command)
	if tctx != nil && tctx.WorkingDir != "" {
		cmd.Dir = tctx.WorkingDir
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return &ports.ToolResult{Success: false, Error: fmt.Sprintf("failed to start command: %v", err)}, nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var interrupted atomic.Bool
	watchDone := make(chan struct{})
	go watchInterrupt(tctx, cmd, watchDone, &interrupted)

	var runErr error
	select {
	case runErr = <-done:
	case <-runCtx.Done():
		_ = killProcessGroup(cmd)
		runErr = <-done
	}
	close(watchDone)

	timedOut := runCtx.Err() == context.DeadlineExceeded

	output := truncateBashOutput(buf.String())

	exitCode := 0
	success := runErr == nil
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	annotated := output
	if interrupted.Load() {
		annotated += "\n[Interrupted by user]"
		success = false
	} else if timedOut {
		annotated += fmt.Sprintf("\n[Timed out after %dms]", timeoutMS)
		success = false
	}
	annotated += fmt.Sprintf("\n[Exit code: %d]", exitCode)

	return &ports.ToolResult{Success: success, Output: annotated}, nil
}

// watchInterrupt kills cmd as soon as the shared interrupt flag is set,
// honoring spec.md §5's cancellation model ("bash to signal-kill its
// child").
func watchInterrupt(tctx *ports.ToolContext, cmd *exec.Cmd, done <-chan struct{}, interrupted *atomic.Bool) {
	if tctx == nil || tctx.Interrupt == nil {
		return
	}
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if tctx.Interrupt.Load() {
				interrupted.Store(true)
				_ = killProcessGroup(cmd)
				return
			}
		}
	}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// truncateBashOutput enforces the two hard caps of spec.md §4.2: 30000
// bytes total, and 50 lines for display.
func truncateBashOutput(output string) string {
	truncatedBytes := false
	if len(output) > bashMaxOutputBytes {
		output = output[:bashMaxOutputBytes]
		truncatedBytes = true
	}

	lines := strings.Split(strings.TrimSuffix(output, "\n"), "\n")
	var displayed string
	if len(lines) > bashMaxDisplayLines {
		extra := len(lines) - bashMaxDisplayLines
		displayed = strings.Join(lines[:bashMaxDisplayLines], "\n")
		displayed += fmt.Sprintf("\n… +%d more lines", extra)
	} else {
		displayed = output
	}

	if truncatedBytes {
		displayed += fmt.Sprintf("\n[Output truncated at %d characters]", bashMaxOutputBytes)
	}
	return displayed
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
