// Package channel implements a single connection to one node/service pair:
// the bootstrap pipeline that brings it up, and the steady-state
// send/demux loop that dispatches requests over it (spec.md §4.2, §4.4).
package channel

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avsej/gocbcore-lite/codec"
	"github.com/avsej/gocbcore-lite/corecore"
	"github.com/avsej/gocbcore-lite/internal/logger"
)

// State is the Endpoint's lifecycle stage.
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Endpoint owns one net.Conn to one (node, service) pair and multiplexes
// requests over it by opaque value (spec.md §4.4 "Endpoint"). A live
// Endpoint has exactly one reader goroutine; writers may call Send
// concurrently.
type Endpoint struct {
	Node    string
	Service string

	conn    net.Conn
	pending *pendingTable

	opaqueSeq uint32
	state     atomic.Int32
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}

	compression codec.CompressionConfig
	collections bool
}

// DefaultMaxInFlight is the per-endpoint in-flight cap used when a pool
// doesn't override it (spec.md SPEC_FULL.md "Per-endpoint in-flight cap").
const DefaultMaxInFlight = 16

// NewEndpoint wraps an already-connected net.Conn. Bootstrap (HELLO,
// error-map, SASL, select-bucket) happens over the same connection before
// Start is called; once Start runs, the connection is in steady state and
// every frame read back is treated as a response to a pending request.
func NewEndpoint(node, service string, conn net.Conn, compression codec.CompressionConfig, collectionsEnabled bool) *Endpoint {
	return NewEndpointWithLimit(node, service, conn, compression, collectionsEnabled, DefaultMaxInFlight)
}

// NewEndpointWithLimit is NewEndpoint with an explicit in-flight cap.
func NewEndpointWithLimit(node, service string, conn net.Conn, compression codec.CompressionConfig, collectionsEnabled bool, maxInFlight int) *Endpoint {
	return &Endpoint{
		Node:        node,
		Service:     service,
		conn:        conn,
		pending:     newPendingTable(maxInFlight),
		closed:      make(chan struct{}),
		compression: compression,
		collections: collectionsEnabled,
	}
}

// Start transitions the endpoint to steady state and launches its read
// loop. Call once, after bootstrap completes.
func (e *Endpoint) Start() {
	e.state.Store(int32(StateReady))
	go e.readLoop()
}

// State reports the endpoint's current lifecycle stage.
func (e *Endpoint) State() State { return State(e.state.Load()) }

// Closed returns a channel that's closed once the endpoint has torn down,
// for callers (e.g. a pool) that want to notice connection loss without
// having a request in flight.
func (e *Endpoint) Closed() <-chan struct{} { return e.closed }

// InFlight reports the number of requests currently awaiting a response,
// for pool load balancing (FirstAvailable strategy, spec.md §4.5).
func (e *Endpoint) InFlight() int { return e.pending.len() }

// Send assigns an opaque, optionally Snappy-compresses value per the
// endpoint's compression policy, writes the request frame, and blocks
// until the matching response frame arrives, ctx is done, or the
// connection is lost (spec.md §4.4 "Dispatch contract").
func (e *Endpoint) Send(ctx context.Context, opcode codec.Opcode, vbucket uint16, cas uint64, datatype codec.Datatype, extras, key, value []byte) (*codec.Frame, error) {
	if e.State() == StateClosed {
		return nil, corecore.New(corecore.KindRequestCanceled).WithContext(e.Service, e.Node).WithNotWritten()
	}

	wireValue, didCompress := e.compression.Apply(value)
	wireDatatype := datatype
	if didCompress {
		wireDatatype = wireDatatype.Set(codec.DatatypeSnappy)
	}

	opaque := atomic.AddUint32(&e.opaqueSeq, 1)
	req := &pendingRequest{opaque: opaque, done: make(chan pendingResult, 1)}
	if err := e.pending.add(req); err != nil {
		return nil, err
	}

	e.writeMu.Lock()
	err := codec.EncodeRequest(e.conn, opcode, vbucket, opaque, cas, wireDatatype, extras, key, wireValue)
	e.writeMu.Unlock()
	if err != nil {
		e.teardown(corecore.New(corecore.KindRequestCanceled).WithContext(e.Service, e.Node).WithCause(err))
		return nil, err
	}

	select {
	case res := <-req.done:
		return res.frame, res.err
	case <-ctx.Done():
		e.pending.resolve(opaque, nil, ctx.Err())
		return nil, ctx.Err()
	}
}

func (e *Endpoint) readLoop() {
	for {
		frame, err := codec.Decode(e.conn)
		if err != nil {
			if err != io.EOF {
				logger.Warn("channel: read loop terminated", logger.KeyNode, e.Node, logger.KeyService, e.Service, "error", err)
			}
			e.teardown(corecore.New(corecore.KindRequestCanceled).WithContext(e.Service, e.Node).WithCause(err))
			return
		}
		if resolved := e.pending.resolve(frame.Header.Opaque, frame, nil); !resolved {
			logger.Debug("channel: dropped unsolicited or orphaned frame", logger.KeyNode, e.Node, logger.KeyService, e.Service, logger.KeyOpaque, frame.Header.Opaque)
		}
	}
}

// teardown closes the underlying connection and fails every in-flight
// request with cause exactly once (spec.md §4.4: "Write error or
// connection loss: fail all in-flight requests on that endpoint").
func (e *Endpoint) teardown(cause error) {
	e.closeOnce.Do(func() {
		e.state.Store(int32(StateClosed))
		_ = e.conn.Close()
		e.pending.drain(cause)
		close(e.closed)
	})
}

// Close tears the endpoint down from outside the read loop, e.g. when a
// pool retires an idle endpoint.
func (e *Endpoint) Close() {
	e.teardown(corecore.New(corecore.KindRequestCanceled).WithContext(e.Service, e.Node))
}

// DialTimeout dials a TCP endpoint with a bounded connect deadline, the
// first stage of the bootstrap pipeline (spec.md §4.2).
func DialTimeout(ctx context.Context, network, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithCause(err)
	}
	return conn, nil
}
