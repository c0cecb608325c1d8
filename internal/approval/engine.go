// Package approval implements the Permission Engine (spec.md §4.3): policy
// decisions per request, loop detection, and two drivers — a synchronous TTY
// prompt and an asynchronous API queue — over one shared decision core.
package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

// Engine is the pure decision core shared by both drivers.
type Engine struct {
	mu          sync.Mutex
	projectRoot string
	yolo        bool
	defaults    map[ports.PermissionType]ports.PermissionState
	overrides   *lru.Cache[string, ports.PermissionState] // key: tool_name + ":" + details
	tail        []doomEntry
}

type doomEntry struct {
	tool  string
	hash  string
	count int
}

const doomTailCap = 10
const doomTripThreshold = 3

// New creates an Engine rooted at projectRoot.
func New(projectRoot string, yolo bool) *Engine {
	cache, _ := lru.New[string, ports.PermissionState](512)
	return &Engine{
		projectRoot: projectRoot,
		yolo:        yolo,
		defaults: map[ports.PermissionType]ports.PermissionState{
			ports.PermFileRead: ports.StateAllow,
			ports.PermGlob:     ports.StateAllow,
		},
		overrides: cache,
	}
}

func overrideKey(toolName, details string) string {
	return toolName + ":" + details
}

// CheckPermission runs the decision algorithm of spec.md §4.3 steps 1-4. It
// does not consult the doom-loop gate; RecordDispatch + the Agent Loop do
// that, since the gate must fire "regardless of other rules" at the call
// site, not inside the pure decision function.
func (e *Engine) CheckPermission(req ports.PermissionRequest) ports.PermissionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.yolo {
		return ports.StateAllow
	}

	key := overrideKey(req.ToolName, req.Details)
	if st, ok := e.overrides.Get(key); ok {
		return st
	}

	if req.Type == ports.PermBash {
		if IsDangerousBash(req.Details) {
			return ports.StateAsk
		}
		if IsSafeBash(req.Details) {
			return ports.StateAllow
		}
	}

	if st, ok := e.defaults[req.Type]; ok {
		return st
	}
	return ports.StateAsk
}

// ApplyResponse translates a user/client PermissionResponse into a session
// override (when scope is ScopeSession) and returns whether the call itself
// is allowed.
func (e *Engine) ApplyResponse(req ports.PermissionRequest, resp ports.PermissionResponse, scope ports.PermissionScope) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	allowed := resp == ports.RespAllowOnce || resp == ports.RespAllowAlways

	if scope == ports.ScopeSession || resp == ports.RespAllowAlways || resp == ports.RespDenyAlways {
		key := overrideKey(req.ToolName, req.Details)
		if allowed {
			e.overrides.Add(key, ports.StateAllowSession)
		} else {
			e.overrides.Add(key, ports.StateDenySession)
		}
	}
	return allowed
}

// ClearSession clears session overrides and the doom-loop tail, as invoked
// by the Agent Loop's clear() (spec.md §4.5).
func (e *Engine) ClearSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides.Purge()
	e.tail = nil
}

// ArgsHash hashes a tool call's arguments for the doom-loop tail key.
func ArgsHash(argsJSON string) string {
	sum := sha256.Sum256([]byte(argsJSON))
	return hex.EncodeToString(sum[:8])
}

// RecordDispatch pushes (tool, hash) onto the recent-call tail and reports
// whether this dispatch trips the doom-loop gate (spec.md §3's
// DoomLoopRecord: three identical consecutive entries).
func (e *Engine) RecordDispatch(tool, argsHash string) (tripped bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n := len(e.tail); n > 0 {
		last := &e.tail[n-1]
		if last.tool == tool && last.hash == argsHash {
			last.count++
			return last.count >= doomTripThreshold
		}
	}

	e.tail = append(e.tail, doomEntry{tool: tool, hash: argsHash, count: 1})
	if len(e.tail) > doomTailCap {
		e.tail = e.tail[len(e.tail)-doomTailCap:]
	}
	return false
}

// ProjectRoot exposes the root this engine was constructed with, so callers
// (e.g. the EXTERNAL_DIR check in the Agent Loop) can reuse IsExternal.
func (e *Engine) ProjectRoot() string { return e.projectRoot }
