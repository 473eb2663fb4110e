package channel

import (
	"sync"

	"github.com/avsej/gocbcore-lite/codec"
	"github.com/avsej/gocbcore-lite/corecore"
)

// pendingRequest is one in-flight request awaiting its response frame,
// keyed by the opaque value assigned when it was sent (spec.md §4.4
// "Dispatch contract").
type pendingRequest struct {
	opaque uint32
	done   chan pendingResult
}

type pendingResult struct {
	frame *codec.Frame
	err   error
}

// pendingTable is the opaque-keyed in-flight map every Endpoint owns. One
// opaque is in flight at a time; reuse is only safe once the table no
// longer holds an entry for it. maxInFlight bounds concurrent use of one
// endpoint, generalized from the teacher's NFSv4 slot-table idiom of
// bounding outstanding operations per session (spec.md SPEC_FULL.md
// "Per-endpoint in-flight cap").
type pendingTable struct {
	mu          sync.Mutex
	entries     map[uint32]*pendingRequest
	closed      bool
	maxInFlight int
}

func newPendingTable(maxInFlight int) *pendingTable {
	return &pendingTable{entries: make(map[uint32]*pendingRequest), maxInFlight: maxInFlight}
}

// add registers req under its opaque. It fails if the table has already
// been drained by a connection loss, or if the endpoint is already at its
// in-flight cap.
func (t *pendingTable) add(req *pendingRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return corecore.New(corecore.KindRequestCanceled).WithNotWritten()
	}
	if t.maxInFlight > 0 && len(t.entries) >= t.maxInFlight {
		return corecore.New(corecore.KindServiceNotAvailable).WithNotWritten()
	}
	t.entries[req.opaque] = req
	return nil
}

// resolve completes and removes the pending request matching opaque, if
// any. A miss means either a duplicate/unsolicited frame or a request that
// was already cancelled; both are non-fatal for the read loop.
func (t *pendingTable) resolve(opaque uint32, frame *codec.Frame, err error) bool {
	t.mu.Lock()
	req, ok := t.entries[opaque]
	if ok {
		delete(t.entries, opaque)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	req.done <- pendingResult{frame: frame, err: err}
	return true
}

// drain marks the table closed and fails every still-pending request with
// err, the error its caller passes in (spec.md §4.4). Endpoint passes a
// RequestCanceled corecore.Error for a write failure, a read failure and
// Close alike; there is no separate connection-closed error kind.
func (t *pendingTable) drain(err error) {
	t.mu.Lock()
	remaining := t.entries
	t.entries = make(map[uint32]*pendingRequest)
	t.closed = true
	t.mu.Unlock()
	for _, req := range remaining {
		req.done <- pendingResult{err: err}
	}
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
