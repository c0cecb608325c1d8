package approval

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

// pendingEntry is one in-flight request awaiting a client decision.
type pendingEntry struct {
	req ports.PermissionRequest
}

// resolvedEntry is a decision published into the responses map, consumed
// exactly once by WaitForResponse.
type resolvedEntry struct {
	resp  ports.PermissionResponse
	scope ports.PermissionScope
}

// AsyncQueue is the API-facing driver over Engine: it enqueues requests with
// a minted id, notifies an optional callback, and lets callers wait for a
// decision with a deadline (spec.md §4.3's async variant).
type AsyncQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[string]pendingEntry
	resolved map[string]resolvedEntry
	onNotify func(id string, req ports.PermissionRequest)
}

// NewAsyncQueue creates a queue. onNotify, if non-nil, is invoked outside
// the lock whenever a new request is enqueued.
func NewAsyncQueue(onNotify func(id string, req ports.PermissionRequest)) *AsyncQueue {
	q := &AsyncQueue{
		pending:  make(map[string]pendingEntry),
		resolved: make(map[string]resolvedEntry),
		onNotify: onNotify,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func newRequestID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "perm_" + hex.EncodeToString(buf)
}

// RequestPermission enqueues req and returns its freshly minted id.
func (q *AsyncQueue) RequestPermission(req ports.PermissionRequest) string {
	id := newRequestID()
	q.mu.Lock()
	q.pending[id] = pendingEntry{req: req}
	q.mu.Unlock()

	if q.onNotify != nil {
		q.onNotify(id, req)
	}
	return id
}

// Respond publishes a decision for id. It is a no-op if id is no longer
// pending (already resolved, cancelled, or unknown).
func (q *AsyncQueue) Respond(id string, resp ports.PermissionResponse, scope ports.PermissionScope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		return
	}
	delete(q.pending, id)
	q.resolved[id] = resolvedEntry{resp: resp, scope: scope}
	q.cond.Broadcast()
}

// Cancel removes id from pending without resolving it; a waiter observes
// this as a "gone" result (empty response).
func (q *AsyncQueue) Cancel(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
	delete(q.resolved, id)
	q.cond.Broadcast()
}

// WaitForResponse blocks until (a) a response arrives — consumed and
// returned, (b) id disappears from pending without a resolution — ok=false,
// or (c) timeout elapses — ok=false. Response is consumed exactly once.
func (q *AsyncQueue) WaitForResponse(id string, timeout time.Duration) (resp ports.PermissionResponse, scope ports.PermissionScope, ok bool) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if r, found := q.resolved[id]; found {
			delete(q.resolved, id)
			return r.resp, r.scope, true
		}
		if _, stillPending := q.pending[id]; !stillPending {
			return ports.RespDenyOnce, ports.ScopeOnce, false
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ports.RespDenyOnce, ports.ScopeOnce, false
		}

		timer := time.AfterFunc(remaining, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		q.cond.Wait()
		timer.Stop()
	}
}

// AsyncDriver adapts an AsyncQueue into a ports.PermissionDriver with a
// fixed wait timeout, for the Agent Loop to call uniformly alongside
// TTYPrompter.
type AsyncDriver struct {
	Queue   *AsyncQueue
	Timeout time.Duration
}

func NewAsyncDriver(q *AsyncQueue, timeout time.Duration) *AsyncDriver {
	return &AsyncDriver{Queue: q, Timeout: timeout}
}

// Decide implements ports.PermissionDriver: it enqueues the request and
// blocks for a decision or the configured timeout, whichever comes first.
// A timeout denies once, per spec.md §5 ("the request is left intact;
// caller may retry") — the Agent Loop's single in-flight call still needs a
// definite answer, so it treats an unresolved wait as a deny for this call
// while leaving the id itself pending, so a late Respond is still accepted.
func (d *AsyncDriver) Decide(req ports.PermissionRequest) (ports.PermissionResponse, ports.PermissionScope) {
	id := d.Queue.RequestPermission(req)
	resp, scope, ok := d.Queue.WaitForResponse(id, d.Timeout)
	if !ok {
		return ports.RespDenyOnce, ports.ScopeOnce
	}
	return resp, scope
}

// Pending lists ids currently awaiting a decision, for a "list pending"
// HTTP endpoint.
func (q *AsyncQueue) Pending() map[string]ports.PermissionRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]ports.PermissionRequest, len(q.pending))
	for id, e := range q.pending {
		out[id] = e.req
	}
	return out
}
