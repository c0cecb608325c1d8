// Package session implements the Session Manager (spec.md §4.7): a
// collection of long-lived Agent Loop instances keyed by session id, with
// message sends serialised per session by joining the prior worker.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wrp1979/llama-agent/internal/agent"
	"github.com/wrp1979/llama-agent/internal/agent/ports"
	"github.com/wrp1979/llama-agent/internal/agent/subagent"
	"github.com/wrp1979/llama-agent/internal/approval"
	"github.com/wrp1979/llama-agent/internal/llm"
	"github.com/wrp1979/llama-agent/internal/logging"
	"github.com/wrp1979/llama-agent/internal/metrics"
	"github.com/wrp1979/llama-agent/internal/tools"
)

// State is the exhaustive set of SessionState values (spec.md §3).
type State string

const (
	StateIdle              State = "IDLE"
	StateRunning           State = "RUNNING"
	StateWaitingPermission State = "WAITING_PERMISSION"
	StateCompleted         State = "COMPLETED"
	StateError             State = "ERROR"
)

// CreateParams mirrors the HTTP surface's POST /v1/agent/session body
// (spec.md §6).
type CreateParams struct {
	AllowedTools  []string
	Yolo          bool
	MaxIterations int
	WorkingDir    string
	MaxDepth      int
	ToolTimeoutMS int
	SystemPrompt  string
}

// statsBox makes a RunStats snapshot safely readable from another goroutine
// without a zero-value panic before the first Run completes.
type statsBox struct{ v atomic.Value }

func newStatsBox() *statsBox {
	b := &statsBox{}
	b.v.Store(ports.RunStats{})
	return b
}

func (b *statsBox) set(s ports.RunStats) { b.v.Store(s) }
func (b *statsBox) get() ports.RunStats  { return b.v.Load().(ports.RunStats) }

// Session owns one Agent Loop, its async Permission Engine, a single worker
// join point, and atomic state (spec.md §4.7).
type Session struct {
	ID        string
	CreatedAt time.Time

	loop       *agent.Loop
	permission *approval.Engine
	asyncQueue *approval.AsyncQueue
	interrupt  atomic.Bool
	stats      *statsBox

	sinkMu     sync.Mutex
	activeSink ports.EventSink

	stateMu sync.Mutex
	state   State

	workerMu     sync.Mutex // serialises send_message: join the prior worker before starting a new one
	lastWorkerWG *sync.WaitGroup

	metricsReg *metrics.Registry
}

// setState records the transition and keeps agent_sessions_active moving
// with it: the previous state's series is decremented and the new state's
// series is incremented together, so the gauge always reflects the live
// IDLE/RUNNING/WAITING_PERMISSION/COMPLETED/ERROR distribution rather than
// growing monotonically (spec.md §4.7).
func (s *Session) setState(st State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = st
	s.stateMu.Unlock()

	if s.metricsReg == nil || prev == st {
		return
	}
	if prev != "" {
		s.metricsReg.SessionsActive.WithLabelValues(string(prev)).Dec()
	}
	s.metricsReg.SessionsActive.WithLabelValues(string(st)).Inc()
}

// State returns the session's current state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// MessageCount returns the number of entries in the loop's conversation.
func (s *Session) MessageCount() int { return len(s.loop.Messages()) }

// Stats returns the RunStats of the most recently completed Run, or a zero
// value before the first one.
func (s *Session) Stats() ports.RunStats { return s.stats.get() }

// Interrupt sets the session's shared interrupt flag (a DELETE-session
// request, or SendMessage's context ending before the run does).
func (s *Session) Interrupt() { s.interrupt.Store(true) }

// AsyncQueue exposes the session's permission queue for the HTTP
// .../permissions and .../permission/:id endpoints.
func (s *Session) AsyncQueue() *approval.AsyncQueue { return s.asyncQueue }

// Messages returns a snapshot of the conversation for GET .../session/:id.
func (s *Session) Messages() []ports.Message { return s.loop.Messages() }

// Clear truncates the conversation to the system message and clears
// permission session overrides (the CLI's /clear command).
func (s *Session) Clear() { s.loop.Clear() }

func newSessionID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "sess_" + hex.EncodeToString(buf)
}

// Manager is the session-id-keyed map of spec.md §4.7. One mutex guards the
// map itself; it is never held while a session's own worker runs, and it is
// never acquired together with a Session's own locks (spec.md §5).
type Manager struct {
	registry     *tools.Registry
	llmClient    llm.Client
	runnerFor    func(cfg CreateParams, interrupt *atomic.Bool, permission *approval.Engine, driver ports.PermissionDriver, systemPrompt string) ports.SubagentHandle
	tracer       trace.Tracer
	log          logging.Logger
	metricsReg   *metrics.Registry
	defaultDepth int

	mu       sync.Mutex
	sessions map[string]*Session
}

// New builds a Manager. runner supplies the Subagent Runner used to build
// the root ports.SubagentHandle for every new session's loop at depth 0.
func New(registry *tools.Registry, llmClient llm.Client, runner *subagent.Runner, tracer trace.Tracer, log logging.Logger, metricsReg *metrics.Registry) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		registry:   registry,
		llmClient:  llmClient,
		tracer:     tracer,
		log:        log,
		metricsReg: metricsReg,
		sessions:   make(map[string]*Session),
		runnerFor: func(cfg CreateParams, interrupt *atomic.Bool, permission *approval.Engine, driver ports.PermissionDriver, systemPrompt string) ports.SubagentHandle {
			return runner.ForDepth(0, cfg.MaxDepth, systemPrompt, cfg.WorkingDir, "", cfg.ToolTimeoutMS, interrupt)
		},
	}
}

// Create builds a new Session with a root Agent Loop and registers it.
func (m *Manager) Create(params CreateParams) *Session {
	if params.MaxIterations <= 0 {
		params.MaxIterations = 50
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = 1
	}
	if params.ToolTimeoutMS <= 0 {
		params.ToolTimeoutMS = 120_000
	}

	id := newSessionID()
	permission := approval.New(params.WorkingDir, params.Yolo)
	queue := approval.NewAsyncQueue(nil)
	driver := approval.NewAsyncDriver(queue, 15*time.Minute)

	s := &Session{
		ID: id, CreatedAt: time.Now(), permission: permission, asyncQueue: queue,
		stats: newStatsBox(), metricsReg: m.metricsReg,
	}

	cfg := agent.Config{
		WorkingDir:    params.WorkingDir,
		MaxIterations: params.MaxIterations,
		ToolTimeoutMS: params.ToolTimeoutMS,
		Yolo:          params.Yolo,
		SessionID:     id,
		AllowedTools:  params.AllowedTools,
		Depth:         0,
		MaxDepth:      params.MaxDepth,
	}

	subagentHandle := m.runnerFor(params, &s.interrupt, permission, driver, params.SystemPrompt)

	sink := func(ev ports.Event) {
		switch ev.Kind {
		case ports.EventPermissionAsk:
			s.setState(StateWaitingPermission)
		case ports.EventPermissionResolve:
			s.setState(StateRunning)
		}
		if m.metricsReg != nil && ev.Kind == ports.EventToolResult {
			m.metricsReg.ToolCallsTotal.WithLabelValues(ev.ToolName, fmt.Sprintf("%t", ev.Success)).Inc()
		}
		if m.metricsReg != nil && ev.Kind == ports.EventIterationStart {
			m.metricsReg.IterationsTotal.Inc()
		}
		s.sinkMu.Lock()
		forward := s.activeSink
		s.sinkMu.Unlock()
		if forward != nil {
			forward(ev)
		}
	}

	s.loop = agent.New(cfg, params.SystemPrompt, m.registry, m.llmClient, permission, driver, subagentHandle, m.tracer, m.log, &s.interrupt, sink)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	s.setState(StateIdle)
	return s
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// EachSession calls fn for every currently registered session. fn is called
// with the manager's lock released, so it may itself call back into Manager.
func (m *Manager) EachSession(fn func(*Session)) {
	m.mu.Lock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.Unlock()
	for _, s := range snapshot {
		fn(s)
	}
}

// Delete removes a session from the map after interrupting its loop,
// releasing its agent_sessions_active series so the gauge doesn't count a
// deleted session forever.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		s.Interrupt()
		if s.metricsReg != nil {
			s.metricsReg.SessionsActive.WithLabelValues(string(s.State())).Dec()
		}
	}
	return ok
}

// SendMessage joins any prior worker for this session, then drives the loop
// on a new worker goroutine, calling onEvent for every emitted Event
// (spec.md §4.7's `send_message`). It blocks until the Run completes; the
// HTTP SSE handler calls it from its own request goroutine so the join
// discipline still holds across concurrent requests to the same session.
func (m *Manager) SendMessage(ctx context.Context, s *Session, content string, onEvent ports.EventSink) (*agent.Result, error) {
	s.workerMu.Lock()
	prior := s.lastWorkerWG
	wg := &sync.WaitGroup{}
	wg.Add(1)
	s.lastWorkerWG = wg
	s.workerMu.Unlock()

	if prior != nil {
		prior.Wait()
	}
	defer wg.Done()

	s.sinkMu.Lock()
	s.activeSink = onEvent
	s.sinkMu.Unlock()
	defer func() {
		s.sinkMu.Lock()
		s.activeSink = nil
		s.sinkMu.Unlock()
	}()

	s.setState(StateRunning)

	var result *agent.Result
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, runErr = s.loop.Run(ctx, content)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// The loop observes the shared interrupt flag at its next chunk or
		// iteration boundary (spec.md §5); wait for it to actually unwind
		// rather than returning out from under its still-running worker.
		s.Interrupt()
		<-done
	}

	if runErr != nil {
		s.setState(StateError)
		return nil, runErr
	}
	s.stats.set(result.Stats)
	switch result.StopReason {
	case agent.StopCompleted, agent.StopMaxIterations:
		s.setState(StateCompleted)
	case agent.StopAgentError:
		s.setState(StateError)
	default:
		s.setState(StateIdle)
	}
	// The loop's own sink already forwarded a terminal COMPLETED/ERROR event
	// to onEvent via s.activeSink before Run returned.
	return result, nil
}
