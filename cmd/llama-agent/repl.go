package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
	"github.com/wrp1979/llama-agent/internal/config"
)

var (
	replPrompt = color.New(color.FgCyan, color.Bold).SprintFunc()
	replDim    = color.New(color.FgHiBlack).SprintFunc()
	replError  = color.New(color.FgRed).SprintFunc()
)

// runREPL is the thin interactive wrapper of spec.md §6: slash commands plus
// a single long-lived root Agent Loop whose conversation persists across
// turns. Ctrl-C (SIGINT) sets the loop's interrupt flag on the first press and
// force-exits with status 130 on a second press during the same turn. ESC is
// not intercepted; only SIGINT is handled.
func runREPL(rt *runtime, cfg config.Config) error {
	fmt.Println(replDim("llama-agent — type /exit to quit, /clear to reset the conversation"))

	sink := func(ev ports.Event) { printEvent(ev) }
	loop, interrupt := rt.newRootLoop(cfg, sink)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	var pressCount atomic.Int32
	go func() {
		for range sigCh {
			if pressCount.Add(1) == 1 {
				interrupt.Store(true)
				fmt.Println(replDim("\n[interrupted]"))
			} else {
				fmt.Println(replDim("\n[force exit]"))
				os.Exit(130)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print(replPrompt("> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if handled, quit := handleSlashCommand(rt, cfg, loop, line); quit {
				return nil
			} else if handled {
				continue
			}
		}

		pressCount.Store(0)
		interrupt.Store(false)
		res, err := loop.Run(context.Background(), line)
		if err != nil {
			fmt.Println(replError(err.Error()))
			continue
		}
		if res.StopReason != "COMPLETED" {
			fmt.Println(replDim(fmt.Sprintf("[stopped: %s]", res.StopReason)))
		}
	}
	return scanner.Err()
}

func handleSlashCommand(rt *runtime, cfg config.Config, loop interface{ Clear() }, line string) (handled bool, quit bool) {
	switch line {
	case "/exit", "/quit":
		return true, true
	case "/clear":
		loop.Clear()
		fmt.Println(replDim("[conversation cleared]"))
		return true, false
	case "/tools":
		for _, t := range rt.registry.List() {
			fmt.Printf("  %s — %s\n", t.Name(), t.Description())
		}
		return true, false
	case "/skills":
		fmt.Println(replDim("skills are folded into the system prompt at startup; restart to pick up changes"))
		return true, false
	case "/agents":
		fmt.Println(replDim("AGENTS.md is folded into the system prompt at startup; restart to pick up changes"))
		return true, false
	default:
		return false, false
	}
}

func printEvent(ev ports.Event) {
	switch ev.Kind {
	case ports.EventTextDelta:
		fmt.Print(ev.Content)
	case ports.EventToolStart:
		fmt.Println()
		fmt.Println(replDim(fmt.Sprintf("  ⎿ %s(%s)", ev.ToolName, truncateForDisplay(ev.ToolArgs, 80))))
	case ports.EventToolResult:
		if !ev.Success {
			fmt.Println(replError("    error: " + ev.Output))
		}
	case ports.EventPermissionAsk:
		// The TTYPrompter itself renders the boxed prompt; nothing to add.
	case ports.EventCompleted:
		fmt.Println()
	case ports.EventError:
		fmt.Println(replError(ev.Message))
	}
}

func truncateForDisplay(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
