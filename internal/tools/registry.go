// Package tools implements the Tool Registry (spec.md §4.1): a namespace of
// callable tools with JSON-schema parameters and an execute function, with
// filtered views for sandboxed callers such as subagents.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
	"github.com/wrp1979/llama-agent/internal/logging"
)

// Registry is a mapping from unique tool name to ports.ToolDef. Static
// (built-in) tools and MCP-provided tools are tracked separately so that an
// MCP server disconnecting only evicts its own entries.
type Registry struct {
	mu     sync.RWMutex
	static map[string]ports.ToolDef
	mcp    *lru.Cache[string, ports.ToolDef] // bounded: see SPEC_FULL.md §4.1
	log    logging.Logger
}

// New creates an empty registry. Built-in tools are registered by the caller
// via Register (see cmd/llama-agent for the standard set), keeping this
// package free of an import cycle on internal/tools/builtin's constructors.
func New(log logging.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	cache, _ := lru.New[string, ports.ToolDef](256)
	return &Registry{
		static: make(map[string]ports.ToolDef),
		mcp:    cache,
		log:    log,
	}
}

// Register adds a tool to the registry. MCP-sourced tools (name prefixed
// "mcp__") go into the bounded LRU view; everything else is a static,
// unbounded entry for the lifetime of the process.
func (r *Registry) Register(tool ports.ToolDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool registration: empty name")
	}
	if strings.HasPrefix(name, "mcp__") {
		r.mcp.Add(name, tool)
		return nil
	}
	if _, exists := r.static[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.static[name] = tool
	return nil
}

// Lookup returns the tool with the given name, or false if none is
// registered. It never returns an error: an unknown name is a registry
// miss, not a fatal condition (spec.md §4.1).
func (r *Registry) Lookup(name string) (ports.ToolDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.static[name]; ok {
		return t, true
	}
	if t, ok := r.mcp.Get(name); ok {
		return t, true
	}
	return nil, false
}

// List returns every registered tool, static and MCP.
func (r *Registry) List() []ports.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ports.ToolDef, 0, len(r.static)+r.mcp.Len())
	for _, t := range r.static {
		out = append(out, t)
	}
	for _, k := range r.mcp.Keys() {
		if t, ok := r.mcp.Peek(k); ok {
			out = append(out, t)
		}
	}
	return out
}

// Filtered returns the subset of List() whose name is in allowed. Used by
// the Subagent Runner to restrict a child loop's visible tools.
func Filtered(all []ports.ToolDef, allowed map[string]bool) []ports.ToolDef {
	if allowed == nil {
		return all
	}
	out := make([]ports.ToolDef, 0, len(allowed))
	for _, t := range all {
		if allowed[t.Name()] {
			out = append(out, t)
		}
	}
	return out
}

// Execute dispatches name with args, adapting any panic/error from the
// tool's Execute into a failed ToolResult rather than letting it escape —
// spec.md §4.1: "any thrown/raised condition becomes a tool result."
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, tctx *ports.ToolContext) (result *ports.ToolResult, err error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return &ports.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("tool %s panicked: %v", name, rec)
			result = &ports.ToolResult{Success: false, Error: fmt.Sprintf("Tool execution error: %v", rec)}
			err = nil
		}
	}()
	res, execErr := tool.Execute(ctx, args, tctx)
	if execErr != nil {
		return &ports.ToolResult{Success: false, Error: fmt.Sprintf("Tool execution error: %v", execErr)}, nil
	}
	if res == nil {
		res = &ports.ToolResult{Success: false, Error: "Tool execution error: nil result"}
	}
	return res, nil
}

// ExecuteFiltered adds pre-dispatch rejection for bash whose command does
// not match bashPrefixes (spec.md §4.1). Rejection is a tool result, not an
// error: the caller's loop keeps running.
func (r *Registry) ExecuteFiltered(ctx context.Context, name string, args map[string]any, tctx *ports.ToolContext, bashPrefixes []string) (*ports.ToolResult, error) {
	if name == "bash" && bashPrefixes != nil {
		command, _ := args["command"].(string)
		if !matchesAnyPrefix(command, bashPrefixes) {
			return &ports.ToolResult{
				Success: false,
				Error:   fmt.Sprintf("Blocked: command does not match an allowed read-only prefix for this subagent type"),
			}, nil
		}
	}
	return r.Execute(ctx, name, args, tctx)
}

// matchesAnyPrefix reimplements spec.md §3's EXPLORE bash-prefix rule: a
// command is allowed if it starts with (or contains, after a pipe/ampersand/
// space) one of the enumerated prefixes.
func matchesAnyPrefix(command string, prefixes []string) bool {
	command = strings.TrimSpace(command)
	segments := splitOnShellSeparators(command)
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		for _, p := range prefixes {
			if strings.HasPrefix(seg, p) {
				return true
			}
		}
	}
	return false
}

func splitOnShellSeparators(command string) []string {
	replaced := command
	for _, sep := range []string{"|", "&", ";"} {
		replaced = strings.ReplaceAll(replaced, sep, "\x00")
	}
	return strings.Split(replaced, "\x00")
}
