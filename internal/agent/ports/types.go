// Package ports defines the shared data model and interfaces that couple the
// Agent Loop to the Tool Registry, the Permission Engine, and the Subagent
// Runner without those packages importing one another directly.
package ports

import (
	"context"
	"sync/atomic"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest is a model-emitted intent to execute a named tool.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments string // raw JSON, as produced or parsed from the model stream
}

// Message is one entry in the append-only conversation history.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCallRequest // only ever set on RoleAssistant messages
	ToolCallID string            // only ever set on RoleTool messages
	ToolName   string            // only ever set on RoleTool messages
}

// ToolResult is the outcome of executing one tool call.
type ToolResult struct {
	Success bool
	Output  string
	Error   string
}

// ToolContext is passed to every tool's Execute call. It carries only
// borrowed handles: nothing here transfers ownership, so a tool (or a
// subagent re-entering the loop) can never outlive the call that created it.
type ToolContext struct {
	WorkingDir  string
	Interrupt   *atomic.Bool
	TimeoutMS   int
	Depth       int
	MaxDepth    int
	SessionID   string
	// Subagent is the loop's subagent handle, set on every tool call's
	// context (nil when the loop has none) and used only by `task`; it
	// borrows the handles needed to spawn a nested Agent Loop without the tool package
	// importing the agent package (which would cycle back through here).
	Subagent SubagentHandle
}

// SubagentHandle is the narrow surface the `task` tool needs from the
// Subagent Runner. It is implemented by *subagent.Runner.
type SubagentHandle interface {
	Run(ctx context.Context, req SubagentTaskParams) (*SubagentTaskResult, error)
	StartBackground(ctx context.Context, req SubagentTaskParams) (string, error)
	// Exists reports whether id is still running or has a result awaiting
	// one consuming GetResult call.
	Exists(id string) bool
	// IsComplete reports whether id's worker has finished. False for both
	// a still-running id and an unknown one; callers must check Exists
	// first to tell those apart.
	IsComplete(id string) bool
	// GetResult is idempotent per call site but consumes the result: the
	// first call after completion returns it, every subsequent call (or a
	// call for an unknown id) reports found=false.
	GetResult(id string) (*SubagentTaskResult, bool)
	Cancel(id string) bool
}

// SubagentTaskParams is the input to both the synchronous and background
// subagent entry points.
type SubagentTaskParams struct {
	SubagentType    string
	Prompt          string
	Resume          string
	RunInBackground bool
}

// SubagentTaskResult mirrors spec.md §4.4's synchronous result shape.
type SubagentTaskResult struct {
	Success           bool
	Output            string
	Error             string
	Iterations        int
	ToolCallsSummary  []ToolCallSummary
	InputTokens       int
	OutputTokens      int
	CachedTokens      int
}

// ToolCallSummary is one entry of a subagent's reported tool-call trail.
type ToolCallSummary struct {
	Name      string
	Args      string // truncated to 60 characters
	ElapsedMS int64
}

// ToolDef is the contract every built-in or MCP-backed tool implements.
type ToolDef interface {
	Name() string
	Description() string
	ParametersSchema() ParameterSchema
	Execute(ctx context.Context, args map[string]any, tctx *ToolContext) (*ToolResult, error)
}

// ParameterSchema is a minimal JSON-Schema-object description of a tool's
// arguments, sufficient to build an OpenAI-compatible tool entry.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single tool argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// PermissionType enumerates the kinds of permission request the loop builds.
type PermissionType string

const (
	PermBash        PermissionType = "BASH"
	PermFileRead    PermissionType = "FILE_READ"
	PermFileWrite   PermissionType = "FILE_WRITE"
	PermFileEdit    PermissionType = "FILE_EDIT"
	PermGlob        PermissionType = "GLOB"
	PermExternalDir PermissionType = "EXTERNAL_DIR"
)

// PermissionRequest is what the Agent Loop submits to the Permission Engine
// before dispatching a tool call.
type PermissionRequest struct {
	Type        PermissionType
	ToolName    string
	Details     string
	IsDangerous bool
	Description string
}

// PermissionState is the internal rule output of check_permission.
type PermissionState int

const (
	StateDeny PermissionState = iota
	StateAsk
	StateAllow
	StateAllowSession
	StateDenySession
)

// PermissionResponse is a user/client decision on an ASK'd request.
type PermissionResponse int

const (
	RespDenyOnce PermissionResponse = iota
	RespAllowOnce
	RespAllowAlways
	RespDenyAlways
)

// PermissionScope says whether a response applies once or for the session.
type PermissionScope int

const (
	ScopeOnce PermissionScope = iota
	ScopeSession
)

// PermissionDriver is the narrow surface the Agent Loop needs from whichever
// approval driver (TTY or async/API) is wired in; both satisfy it with the
// same underlying decision core (spec.md §4.3).
type PermissionDriver interface {
	Decide(req PermissionRequest) (PermissionResponse, PermissionScope)
}
