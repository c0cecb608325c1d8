// Package agent implements the Agent Execution Core (spec.md §4.5): the
// state machine that couples model turns to tool executions.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
	"github.com/wrp1979/llama-agent/internal/agent/tokenutil"
	"github.com/wrp1979/llama-agent/internal/approval"
	"github.com/wrp1979/llama-agent/internal/llm"
	"github.com/wrp1979/llama-agent/internal/logging"
	"github.com/wrp1979/llama-agent/internal/tools"
)

// StopReason is the exhaustive set of reasons Run can return.
type StopReason string

const (
	StopCompleted      StopReason = "COMPLETED"
	StopMaxIterations  StopReason = "MAX_ITERATIONS"
	StopUserCancelled  StopReason = "USER_CANCELLED"
	StopAgentError     StopReason = "AGENT_ERROR"
)

// Config bundles the construction-time parameters of spec.md §4.5.
type Config struct {
	WorkingDir    string
	MaxIterations int
	ToolTimeoutMS int
	Verbose       bool
	Yolo          bool
	SessionID     string

	// Subagent-only fields; zero values mean "root loop".
	AllowedTools []string
	BashPrefixes []string
	Depth        int
	MaxDepth     int
}

// Result is what Run returns.
type Result struct {
	StopReason     StopReason
	FinalResponse  string
	Iterations     int
	Stats          ports.RunStats
}

// Loop is the central state machine of spec.md §4.5.
type Loop struct {
	cfg        Config
	registry   *tools.Registry
	llmClient  llm.Client
	permission *approval.Engine
	driver     ports.PermissionDriver
	subagent   ports.SubagentHandle
	log        logging.Logger
	tracer     trace.Tracer
	sink       ports.EventSink

	systemPrompt string
	messages     []ports.Message
	interrupt    *atomic.Bool

	allowedToolSet map[string]bool
	iteration      int
	nextCallSeq    int
}

// New constructs an Agent Loop. sink may be ports.NoopSink when the caller
// does not need incremental progress. interrupt is shared down the subagent
// chain; the caller owns its lifetime.
func New(
	cfg Config,
	systemPrompt string,
	registry *tools.Registry,
	llmClient llm.Client,
	permission *approval.Engine,
	driver ports.PermissionDriver,
	subagent ports.SubagentHandle,
	tracer trace.Tracer,
	log logging.Logger,
	interrupt *atomic.Bool,
	sink ports.EventSink,
) *Loop {
	if log == nil {
		log = logging.Nop()
	}
	if sink == nil {
		sink = ports.NoopSink
	}
	if interrupt == nil {
		interrupt = &atomic.Bool{}
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 50
	}
	var allowed map[string]bool
	if len(cfg.AllowedTools) > 0 {
		allowed = make(map[string]bool, len(cfg.AllowedTools))
		for _, t := range cfg.AllowedTools {
			allowed[t] = true
		}
	}
	return &Loop{
		cfg:            cfg,
		registry:       registry,
		llmClient:      llmClient,
		permission:     permission,
		driver:         driver,
		subagent:       subagent,
		log:            log,
		tracer:         tracer,
		sink:           sink,
		systemPrompt:   systemPrompt,
		messages:       []ports.Message{{Role: ports.RoleSystem, Content: systemPrompt}},
		interrupt:      interrupt,
		allowedToolSet: allowed,
	}
}

// Messages returns a snapshot of the conversation (spec.md §5: readers must
// take a mutex or snapshot; the Loop is single-writer so a copy suffices
// here since callers only ever read after Run returns or between sends).
func (l *Loop) Messages() []ports.Message {
	out := make([]ports.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Clear truncates messages to position 0 (the system message) and clears
// permission session state (spec.md §4.5's clear()).
func (l *Loop) Clear() {
	l.messages = l.messages[:1]
	l.permission.ClearSession()
	l.iteration = 0
}

// Run drives the state machine of spec.md §4.5 to completion.
func (l *Loop) Run(ctx context.Context, userPrompt string) (*Result, error) {
	l.messages = append(l.messages, ports.Message{Role: ports.RoleUser, Content: userPrompt})

	stats := ports.RunStats{}

	for l.iteration < l.cfg.MaxIterations {
		if l.interrupt.Load() {
			return l.finish(StopUserCancelled, "", stats), nil
		}
		l.iteration++

		l.sink(ports.Event{Kind: ports.EventIterationStart, Iteration: l.iteration, MaxIterations: l.cfg.MaxIterations})

		iterCtx, iterSpan := l.tracer.Start(ctx, "agent.iteration", trace.WithAttributes(
			attribute.Int("iteration", l.iteration),
			attribute.Int("max_iterations", l.cfg.MaxIterations),
		))

		assistantMsg, completion, err := l.modelTurn(iterCtx)
		if err != nil {
			iterSpan.End()
			l.sink(ports.Event{Kind: ports.EventError, Message: err.Error()})
			return l.finish(StopAgentError, "", stats), nil
		}

		stats.InputTokens += completion.Timings.PromptN
		stats.OutputTokens += completion.Timings.PredictedN
		stats.CachedTokens += completion.Timings.CacheN
		if completion.Timings.PromptN == 0 && completion.Timings.PredictedN == 0 {
			stats.InputTokens += tokenutil.Count(userPrompt)
			stats.OutputTokens += tokenutil.Count(assistantMsg.Content)
		}

		l.messages = append(l.messages, assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			iterSpan.End()
			stats.Iterations = l.iteration
			return l.finish(StopCompleted, assistantMsg.Content, stats), nil
		}

		cancelled := l.dispatchToolCalls(iterCtx, assistantMsg.ToolCalls)
		iterSpan.End()
		if cancelled {
			stats.Iterations = l.iteration
			return l.finish(StopUserCancelled, "", stats), nil
		}
	}

	stats.Iterations = l.iteration
	return l.finish(StopMaxIterations, fmt.Sprintf("Reached maximum iterations (%d)", l.cfg.MaxIterations), stats), nil
}

func (l *Loop) finish(reason StopReason, finalResponse string, stats ports.RunStats) *Result {
	l.sink(ports.Event{Kind: ports.EventCompleted, StopReason: string(reason), Stats: stats})
	return &Result{StopReason: reason, FinalResponse: finalResponse, Iterations: l.iteration, Stats: stats}
}

// modelTurn composes and submits one model request, consuming the streaming
// response and returning the parsed assistant message.
func (l *Loop) modelTurn(ctx context.Context) (ports.Message, *llm.CompletionResult, error) {
	turnCtx, span := l.tracer.Start(ctx, "agent.model_turn")
	defer span.End()

	req := llm.ChatRequest{
		Messages:   l.messages,
		Tools:      l.visibleToolSchemas(),
		ToolChoice: "auto",
	}

	var textBuf, reasonBuf strings.Builder
	completion, err := l.llmClient.StreamChat(turnCtx, req, func(delta llm.StreamDelta) {
		if delta.ContentDelta != "" {
			textBuf.WriteString(delta.ContentDelta)
			l.sink(ports.Event{Kind: ports.EventTextDelta, Content: delta.ContentDelta})
		}
		if delta.ReasoningDelta != "" {
			reasonBuf.WriteString(delta.ReasoningDelta)
			l.sink(ports.Event{Kind: ports.EventReasoningDelta, Content: delta.ReasoningDelta})
		}
	})
	if err != nil {
		return ports.Message{}, nil, fmt.Errorf("model stream error: %w", err)
	}

	if completion.Final != nil {
		return ports.Message{Role: ports.RoleAssistant, Content: completion.Final.Content, ToolCalls: completion.Final.ToolCalls}, completion, nil
	}

	content := completion.AccumulatedText
	if content == "" {
		content = textBuf.String()
	}
	calls := llm.ParseToolCallEnvelopes(content, func() string {
		id := fmt.Sprintf("call_%d_%d", l.iteration, l.nextCallSeq)
		l.nextCallSeq++
		return id
	})
	return ports.Message{Role: ports.RoleAssistant, Content: content, ToolCalls: calls}, completion, nil
}

func (l *Loop) visibleToolSchemas() []llm.ToolSchema {
	all := l.registry.List()
	if l.allowedToolSet != nil {
		all = tools.Filtered(all, l.allowedToolSet)
	}
	out := make([]llm.ToolSchema, 0, len(all))
	for _, t := range all {
		out = append(out, llm.ToolSchema{Name: t.Name(), Description: t.Description(), Parameters: t.ParametersSchema()})
	}
	return out
}

// dispatchToolCalls executes each tool call in order, appending a tool
// message for each (spec.md §4.5 step 2.f). It returns true if the loop was
// cancelled mid-dispatch.
func (l *Loop) dispatchToolCalls(ctx context.Context, calls []ports.ToolCallRequest) (cancelled bool) {
	for _, call := range calls {
		if l.interrupt.Load() {
			return true
		}

		args, parseErr := llm.ParseArguments(call.Arguments)
		if parseErr != nil {
			l.appendToolResult(call, &ports.ToolResult{Success: false, Error: fmt.Sprintf("Invalid JSON arguments: %v", parseErr)})
			continue
		}

		req := l.buildPermissionRequest(call, args)

		if req.Type != ports.PermExternalDir {
			if extReq, external := l.externalDirRequest(call, args); external {
				if !l.resolveAndCheck(extReq) {
					l.appendToolResult(call, &ports.ToolResult{Success: false, Error: fmt.Sprintf("Permission denied for external path in %s", call.Name)})
					continue
				}
			}
		}

		argsHash := approval.ArgsHash(call.Arguments)
		tripped := l.permission.RecordDispatch(call.Name, argsHash)

		allowed := l.checkWithDoomLoop(req, tripped)
		if !allowed {
			l.appendToolResult(call, &ports.ToolResult{Success: false, Error: fmt.Sprintf("User denied permission for %s", call.Name)})
			continue
		}

		result := l.execute(ctx, call, args)
		l.appendToolResult(call, result)
	}
	return false
}

// checkWithDoomLoop applies spec.md §4.3's decision core, but forces an ASK
// (i.e. a driver round-trip) when the doom-loop gate trips, "regardless of
// other rules".
func (l *Loop) checkWithDoomLoop(req ports.PermissionRequest, tripped bool) bool {
	state := l.permission.CheckPermission(req)
	if tripped {
		state = ports.StateAsk
	}

	switch state {
	case ports.StateAllow, ports.StateAllowSession:
		return true
	case ports.StateDeny, ports.StateDenySession:
		return false
	default: // StateAsk
		return l.ask(req)
	}
}

func (l *Loop) resolveAndCheck(req ports.PermissionRequest) bool {
	state := l.permission.CheckPermission(req)
	switch state {
	case ports.StateAllow, ports.StateAllowSession:
		return true
	case ports.StateDeny, ports.StateDenySession:
		return false
	default:
		return l.ask(req)
	}
}

func (l *Loop) ask(req ports.PermissionRequest) bool {
	l.sink(ports.Event{Kind: ports.EventPermissionAsk, Details: req.Details, Dangerous: req.IsDangerous, ToolName: req.ToolName})
	resp, scope := l.driver.Decide(req)
	allowed := l.permission.ApplyResponse(req, resp, scope)
	l.sink(ports.Event{Kind: ports.EventPermissionResolve, Allowed: allowed, ToolName: req.ToolName})
	return allowed
}

// execute dispatches the call through the registry, timing it and emitting
// TOOL_START/TOOL_RESULT.
func (l *Loop) execute(ctx context.Context, call ports.ToolCallRequest, args map[string]any) *ports.ToolResult {
	l.sink(ports.Event{Kind: ports.EventToolStart, ToolName: call.Name, ToolArgs: truncate(call.Arguments, 60)})

	toolCtx, span := l.tracer.Start(ctx, "tool.dispatch", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	tctx := &ports.ToolContext{
		WorkingDir: l.cfg.WorkingDir,
		Interrupt:  l.interrupt,
		TimeoutMS:  l.cfg.ToolTimeoutMS,
		Depth:      l.cfg.Depth,
		MaxDepth:   l.cfg.MaxDepth,
		SessionID:  l.cfg.SessionID,
		Subagent:   l.subagent,
	}

	start := time.Now()
	var result *ports.ToolResult
	var err error
	if len(l.cfg.BashPrefixes) > 0 {
		result, err = l.registry.ExecuteFiltered(toolCtx, call.Name, args, tctx, l.cfg.BashPrefixes)
	} else {
		result, err = l.registry.Execute(toolCtx, call.Name, args, tctx)
	}
	elapsed := time.Since(start)

	if err != nil {
		result = &ports.ToolResult{Success: false, Error: err.Error()}
	}

	span.SetAttributes(attribute.Bool("tool.success", result.Success), attribute.Int64("tool.duration_ms", elapsed.Milliseconds()))

	l.sink(ports.Event{
		Kind: ports.EventToolResult, ToolName: call.Name, Success: result.Success,
		Output: truncate(result.Output, 200), DurationMS: elapsed.Milliseconds(),
	})
	return result
}

// appendToolResult appends a `{role: tool}` message, rendering the content
// per spec.md §4.5: output + "\nError: " + error when both are present,
// else whichever is non-empty, else a fixed fallback.
func (l *Loop) appendToolResult(call ports.ToolCallRequest, result *ports.ToolResult) {
	var content string
	switch {
	case result.Output != "" && result.Error != "":
		content = result.Output + "\nError: " + result.Error
	case result.Output != "":
		content = result.Output
	case result.Error != "":
		content = "Error: " + result.Error
	default:
		content = "Error: Tool failed with no output"
	}
	l.messages = append(l.messages, ports.Message{
		Role: ports.RoleTool, Content: content, ToolCallID: call.ID, ToolName: call.Name,
	})
}

// buildPermissionRequest maps a tool call to the PermissionRequest shape of
// spec.md §3, extracting command/file_path into Details and flagging bash
// danger.
func (l *Loop) buildPermissionRequest(call ports.ToolCallRequest, args map[string]any) ports.PermissionRequest {
	switch call.Name {
	case "bash":
		command, _ := args["command"].(string)
		return ports.PermissionRequest{
			Type: ports.PermBash, ToolName: call.Name, Details: command,
			IsDangerous: approval.IsDangerousBash(command),
			Description: fmt.Sprintf("Run: %s", command),
		}
	case "write":
		path, _ := args["file_path"].(string)
		return ports.PermissionRequest{Type: ports.PermFileWrite, ToolName: call.Name, Details: path, Description: fmt.Sprintf("Write %s", path)}
	case "edit":
		path, _ := args["file_path"].(string)
		return ports.PermissionRequest{Type: ports.PermFileEdit, ToolName: call.Name, Details: path, Description: fmt.Sprintf("Edit %s", path)}
	case "glob":
		pattern, _ := args["pattern"].(string)
		return ports.PermissionRequest{Type: ports.PermGlob, ToolName: call.Name, Details: pattern, Description: fmt.Sprintf("Glob %s", pattern)}
	case "read":
		path, _ := args["file_path"].(string)
		return ports.PermissionRequest{Type: ports.PermFileRead, ToolName: call.Name, Details: path, Description: fmt.Sprintf("Read %s", path)}
	default:
		raw, _ := json.Marshal(args)
		return ports.PermissionRequest{Type: ports.PermFileRead, ToolName: call.Name, Details: string(raw), Description: call.Name}
	}
}

// externalDirRequest builds an EXTERNAL_DIR request when a file-path-bearing
// call targets a path outside the project root (spec.md §4.5 step 2.f).
func (l *Loop) externalDirRequest(call ports.ToolCallRequest, args map[string]any) (ports.PermissionRequest, bool) {
	var path string
	switch call.Name {
	case "read", "write", "edit":
		path, _ = args["file_path"].(string)
	case "glob":
		path, _ = args["path"].(string)
	default:
		return ports.PermissionRequest{}, false
	}
	if path == "" {
		return ports.PermissionRequest{}, false
	}
	if !approval.IsExternal(l.permission.ProjectRoot(), path) {
		return ports.PermissionRequest{}, false
	}
	return ports.PermissionRequest{
		Type: ports.PermExternalDir, ToolName: call.Name, Details: path,
		Description: fmt.Sprintf("%s targets a path outside the project root: %s", call.Name, path),
	}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
