package ports

// EventKind is the exhaustive tag set for the streaming event channel
// (spec.md §4.6). It is a plain callback: the Agent Loop invokes its
// EventSink synchronously at deltas and state changes, and never blocks waiting on a
// consumer.
type EventKind string

const (
	EventTextDelta         EventKind = "TEXT_DELTA"
	EventReasoningDelta    EventKind = "REASONING_DELTA"
	EventToolStart         EventKind = "TOOL_START"
	EventToolResult        EventKind = "TOOL_RESULT"
	EventPermissionAsk     EventKind = "PERMISSION_REQUIRED"
	EventPermissionResolve EventKind = "PERMISSION_RESOLVED"
	EventIterationStart    EventKind = "ITERATION_START"
	EventCompleted         EventKind = "COMPLETED"
	EventError             EventKind = "ERROR"
)

// Event is the single envelope type emitted on the channel; only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// TEXT_DELTA / REASONING_DELTA
	Content string

	// TOOL_START / TOOL_RESULT
	ToolName   string
	ToolArgs   string
	Success    bool
	Output     string
	DurationMS int64

	// PERMISSION_REQUIRED / PERMISSION_RESOLVED
	RequestID string
	Details   string
	Dangerous bool
	Allowed   bool

	// ITERATION_START
	Iteration    int
	MaxIterations int

	// COMPLETED
	StopReason string
	Stats      RunStats

	// ERROR
	Message string
}

// RunStats accompanies a terminal COMPLETED event.
type RunStats struct {
	Iterations   int
	InputTokens  int
	OutputTokens int
	CachedTokens int
}

// EventSink receives Events. Implementations must not block indefinitely;
// the emitter (Agent Loop) is single-producer per session and synchronous.
type EventSink func(Event)

// NoopSink discards every event; useful when a caller does not need to
// observe progress (e.g. non-interactive subagent callers that only read
// the final Result).
func NoopSink(Event) {}
