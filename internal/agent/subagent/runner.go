package subagent

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wrp1979/llama-agent/internal/agent"
	"github.com/wrp1979/llama-agent/internal/agent/ports"
	"github.com/wrp1979/llama-agent/internal/approval"
	"github.com/wrp1979/llama-agent/internal/llm"
	"github.com/wrp1979/llama-agent/internal/logging"
	"github.com/wrp1979/llama-agent/internal/tools"
)

// Runner is the process-wide Subagent Runner of spec.md §4.4: it shares the
// parent's registry, model client, and permission engine, and owns the
// background task table and the console flush mutex.
type Runner struct {
	registry   *tools.Registry
	llmClient  llm.Client
	permission *approval.Engine
	driver     ports.PermissionDriver
	tracer     trace.Tracer
	log        logging.Logger
	consoleMu  *sync.Mutex

	tasksMu sync.Mutex
	tasks   map[string]*taskEntry
}

// taskEntry is one SubagentTask record (spec.md §3): id, result slot,
// complete/cancel flags, and an output buffer flushed atomically at
// completion.
type taskEntry struct {
	complete  atomic.Bool
	cancelled atomic.Bool
	consumed  atomic.Bool
	interrupt atomic.Bool

	mu     sync.Mutex
	result *ports.SubagentTaskResult
	buffer []bufferedSegment

	createdAt time.Time
}

type bufferedSegment struct {
	style string // "text" | "reasoning" | "tool"
	text  string
}

// New creates a Runner sharing the given dependencies with every child Agent
// Loop it spawns. consoleMu must be the same mutex the terminal renderer
// uses, so flushes never interleave with the root session's own output.
func New(registry *tools.Registry, llmClient llm.Client, permission *approval.Engine, driver ports.PermissionDriver, tracer trace.Tracer, log logging.Logger, consoleMu *sync.Mutex) *Runner {
	if log == nil {
		log = logging.Nop()
	}
	if consoleMu == nil {
		consoleMu = &sync.Mutex{}
	}
	return &Runner{
		registry:   registry,
		llmClient:  llmClient,
		permission: permission,
		driver:     driver,
		tracer:     tracer,
		log:        log,
		consoleMu:  consoleMu,
		tasks:      make(map[string]*taskEntry),
	}
}

// handle is the depth-scoped ports.SubagentHandle bound into one Loop's
// ToolContext.Subagent; it is what makes "depth" travel down the call chain
// without SubagentTaskParams itself carrying it (spec.md §3's ToolContext
// opaque handles).
type handle struct {
	r             *Runner
	depth         int
	maxDepth      int
	systemPrompt  string
	workingDir    string
	sessionID     string
	toolTimeoutMS int
	parentInterrupt *atomic.Bool
}

// ForDepth returns the ports.SubagentHandle a Loop at the given depth should
// place on every ToolContext it builds for `task` calls.
func (r *Runner) ForDepth(depth, maxDepth int, systemPrompt, workingDir, sessionID string, toolTimeoutMS int, parentInterrupt *atomic.Bool) ports.SubagentHandle {
	return &handle{
		r: r, depth: depth, maxDepth: maxDepth, systemPrompt: systemPrompt,
		workingDir: workingDir, sessionID: sessionID, toolTimeoutMS: toolTimeoutMS,
		parentInterrupt: parentInterrupt,
	}
}

func newTaskID() string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return "task-" + string(out)
}

// buildChildLoop constructs one child Agent Loop per spec.md §4.4: tool list
// restricted to t's allowed set, EXPLORE's bash-prefix allow-list, a system
// prompt that prepends the parent's base prompt (for cache sharing) and
// appends type guidelines, the type's max_iterations, and a tool-call
// callback wired through sink.
func (h *handle) buildChildLoop(t Type, interruptFlag *atomic.Bool, sink ports.EventSink) *agent.Loop {
	cfg := configFor(t)
	childCfg := agent.Config{
		WorkingDir:    h.workingDir,
		MaxIterations: cfg.MaxIterations,
		ToolTimeoutMS: h.toolTimeoutMS,
		SessionID:     h.sessionID,
		AllowedTools:  cfg.AllowedTools,
		BashPrefixes:  cfg.BashPrefixes,
		Depth:         h.depth + 1,
		MaxDepth:      h.maxDepth,
	}
	childSystemPrompt := h.systemPrompt + "\n\n" + cfg.Guidelines
	childHandle := h.r.ForDepth(h.depth+1, h.maxDepth, childSystemPrompt, h.workingDir, h.sessionID, h.toolTimeoutMS, interruptFlag)

	return agent.New(
		childCfg, childSystemPrompt, h.r.registry, h.r.llmClient, h.r.permission, h.r.driver,
		childHandle, h.r.tracer, h.r.log, interruptFlag, sink,
	)
}

// Run drives a synchronous subagent task to completion (spec.md §4.4's
// `run(params)`).
func (h *handle) Run(ctx context.Context, params ports.SubagentTaskParams) (*ports.SubagentTaskResult, error) {
	t, ok := ParseType(params.SubagentType)
	if !ok {
		return nil, fmt.Errorf("unknown subagent_type: %q", params.SubagentType)
	}

	var summary []ports.ToolCallSummary
	var pendingArgs string
	sink := func(ev ports.Event) {
		switch ev.Kind {
		case ports.EventToolStart:
			pendingArgs = ev.ToolArgs
		case ports.EventToolResult:
			summary = append(summary, ports.ToolCallSummary{Name: ev.ToolName, Args: pendingArgs, ElapsedMS: ev.DurationMS})
		}
	}

	interruptFlag := h.parentInterrupt
	if interruptFlag == nil {
		interruptFlag = &atomic.Bool{}
	}

	child := h.buildChildLoop(t, interruptFlag, sink)
	res, err := child.Run(ctx, params.Prompt)
	if err != nil {
		return nil, err
	}

	return &ports.SubagentTaskResult{
		Success:          res.StopReason == agent.StopCompleted,
		Output:           res.FinalResponse,
		Error:            errorForStopReason(res.StopReason, res.FinalResponse),
		Iterations:       res.Iterations,
		ToolCallsSummary: summary,
		InputTokens:      res.Stats.InputTokens,
		OutputTokens:     res.Stats.OutputTokens,
		CachedTokens:      res.Stats.CachedTokens,
	}, nil
}

func errorForStopReason(reason agent.StopReason, finalResponse string) string {
	if reason == agent.StopCompleted {
		return ""
	}
	return fmt.Sprintf("subagent stopped: %s", finalResponse)
}

// StartBackground spawns a worker that runs the child loop in buffered
// display mode and registers its task id (spec.md §4.4's `start_background`).
func (h *handle) StartBackground(ctx context.Context, params ports.SubagentTaskParams) (string, error) {
	t, ok := ParseType(params.SubagentType)
	if !ok {
		return "", fmt.Errorf("unknown subagent_type: %q", params.SubagentType)
	}

	id := newTaskID()
	entry := &taskEntry{createdAt: time.Now()}
	h.r.tasksMu.Lock()
	h.r.tasks[id] = entry
	h.r.tasksMu.Unlock()

	var summary []ports.ToolCallSummary
	var pendingArgs string
	sink := func(ev ports.Event) {
		switch ev.Kind {
		case ports.EventTextDelta:
			entry.mu.Lock()
			entry.buffer = append(entry.buffer, bufferedSegment{style: "text", text: ev.Content})
			entry.mu.Unlock()
		case ports.EventReasoningDelta:
			entry.mu.Lock()
			entry.buffer = append(entry.buffer, bufferedSegment{style: "reasoning", text: ev.Content})
			entry.mu.Unlock()
		case ports.EventToolStart:
			pendingArgs = ev.ToolArgs
			entry.mu.Lock()
			entry.buffer = append(entry.buffer, bufferedSegment{style: "tool", text: fmt.Sprintf("%s(%s)", ev.ToolName, ev.ToolArgs)})
			entry.mu.Unlock()
		case ports.EventToolResult:
			summary = append(summary, ports.ToolCallSummary{Name: ev.ToolName, Args: pendingArgs, ElapsedMS: ev.DurationMS})
		}
	}

	go func() {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					if entry.cancelled.Load() || (h.parentInterrupt != nil && h.parentInterrupt.Load()) {
						entry.interrupt.Store(true)
					}
				}
			}
		}()

		child := h.buildChildLoop(t, &entry.interrupt, sink)
		res, err := child.Run(context.Background(), params.Prompt)

		h.r.consoleMu.Lock()
		h.r.flushLocked(id, entry)
		h.r.consoleMu.Unlock()

		var result ports.SubagentTaskResult
		if err != nil {
			result = ports.SubagentTaskResult{Success: false, Error: err.Error()}
		} else {
			result = ports.SubagentTaskResult{
				Success: res.StopReason == agent.StopCompleted, Output: res.FinalResponse,
				Error: errorForStopReason(res.StopReason, res.FinalResponse), Iterations: res.Iterations,
				ToolCallsSummary: summary, InputTokens: res.Stats.InputTokens,
				OutputTokens: res.Stats.OutputTokens, CachedTokens: res.Stats.CachedTokens,
			}
		}

		entry.mu.Lock()
		entry.result = &result
		entry.mu.Unlock()
		entry.complete.Store(true)
	}()

	return id, nil
}

// flushLocked writes the task's buffered segments under the caller-held
// console mutex, prefixing each line with a shortened task id so nested
// output never interleaves (spec.md §5's output discipline).
func (r *Runner) flushLocked(id string, entry *taskEntry) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if len(entry.buffer) == 0 {
		return
	}
	prefix := "[" + shortID(id) + "] "
	for _, seg := range entry.buffer {
		r.log.Debug("%s%s", prefix, seg.text)
	}
	entry.buffer = nil
}

func shortID(id string) string {
	if len(id) > 5+8 {
		return id
	}
	if len(id) > 9 {
		return id[:9]
	}
	return id
}

// Exists reports whether id is known: still running, or finished awaiting
// exactly one GetResult consumption.
func (h *handle) Exists(id string) bool {
	h.r.tasksMu.Lock()
	entry, ok := h.r.tasks[id]
	h.r.tasksMu.Unlock()
	if !ok {
		return false
	}
	if entry.complete.Load() && entry.consumed.Load() {
		return false
	}
	return true
}

// IsComplete reports whether id's worker has finished. False for both a
// still-running id and an unknown one.
func (h *handle) IsComplete(id string) bool {
	h.r.tasksMu.Lock()
	entry, ok := h.r.tasks[id]
	h.r.tasksMu.Unlock()
	if !ok {
		return false
	}
	return entry.complete.Load()
}

// GetResult is idempotent per call site but consumes the result: only the
// first call after completion returns found=true.
func (h *handle) GetResult(id string) (*ports.SubagentTaskResult, bool) {
	h.r.tasksMu.Lock()
	entry, ok := h.r.tasks[id]
	h.r.tasksMu.Unlock()
	if !ok || !entry.complete.Load() {
		return nil, false
	}
	if !entry.consumed.CompareAndSwap(false, true) {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.result, entry.result != nil
}

// Cancel sets id's cancel flag; interruption is best-effort, observed by the
// watcher goroutine started in StartBackground.
func (h *handle) Cancel(id string) bool {
	h.r.tasksMu.Lock()
	entry, ok := h.r.tasks[id]
	h.r.tasksMu.Unlock()
	if !ok {
		return false
	}
	entry.cancelled.Store(true)
	return true
}

// ActiveTasks lists ids whose worker has not yet completed.
func (r *Runner) ActiveTasks() []string {
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()
	out := make([]string, 0, len(r.tasks))
	for id, e := range r.tasks {
		if !e.complete.Load() {
			out = append(out, id)
		}
	}
	return out
}
