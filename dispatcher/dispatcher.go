// Package dispatcher implements the Core Dispatcher: it resolves a typed
// request's target via the Locator and current topology, obtains a
// Service Pool endpoint, and drives retry/timeout/refresh behavior around
// the single request/response round trip (spec.md §4.6).
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avsej/gocbcore-lite/codec"
	"github.com/avsej/gocbcore-lite/corecore"
	"github.com/avsej/gocbcore-lite/errormap"
	"github.com/avsej/gocbcore-lite/internal/logger"
	"github.com/avsej/gocbcore-lite/internal/telemetry"
	"github.com/avsej/gocbcore-lite/locator"
	"github.com/avsej/gocbcore-lite/metrics"
	"github.com/avsej/gocbcore-lite/pool"
	"github.com/avsej/gocbcore-lite/topology"
)

// Request is a typed KV request entering the dispatcher (spec.md §3
// "Request").
type Request struct {
	Service       topology.ServiceType
	Hint          locator.RoutingHint
	Opcode        codec.Opcode
	Cas           uint64
	Datatype      codec.Datatype
	Extras        []byte
	Key           []byte
	Value         []byte
	Deadline      time.Time
	CorrelationID string
}

// PoolProvider resolves a (node, service) pair to its Service Pool,
// creating one on first use. Node is the node index's stable address
// string (host:port), not a topology index, so pools survive config
// refreshes that reorder nodes.
type PoolProvider func(node string, service topology.ServiceType) (*pool.Pool, error)

// ConfigRefresher triggers an out-of-band topology refresh and blocks
// until a (possibly unchanged) config has been installed in the shared
// Store, per spec.md §4.6 step 5.
type ConfigRefresher func(ctx context.Context) error

// Dispatcher is the entry point for typed requests (spec.md §4.6).
type Dispatcher struct {
	Store      *topology.Store
	Pools      PoolProvider
	Refresh    ConfigRefresher
	ErrorMap   *errormap.ErrorMap
	Backoff    BackoffPolicy
	RoundRobin func(service topology.ServiceType) *locator.RoundRobin
	Metrics    metrics.KVMetrics
}

// Dispatch implements the full algorithm of spec.md §4.6: resolve, obtain
// an endpoint, send, and react to NOT_MY_VBUCKET/UNKNOWN_COLLECTION and
// retriable statuses until the request's deadline passes.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*codec.Frame, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	start := time.Now()
	service := req.Service.String()
	opcode := fmt.Sprintf("0x%02x", uint8(req.Opcode))
	for attempt := 0; ; attempt++ {
		attemptStart := time.Now()
		spanCtx, span := telemetry.StartDispatchSpan(ctx, service, opcode, attempt)
		frame, err := d.attempt(spanCtx, req)
		span.End()
		if err == nil {
			status, raw := frame.Status()
			switch {
			case status == codec.StatusNotMyVbucket || status == codec.StatusUnknownCollection:
				metrics.ObserveDispatch(d.Metrics, service, opcode, attempt, time.Since(attemptStart), true)
				metrics.RecordRetry(d.Metrics, service, "topology_change")
				if refreshErr := d.refreshAndWait(ctx, req); refreshErr != nil {
					return nil, refreshErr
				}
				if waitErr := d.sleepForRetry(ctx, req, attempt); waitErr != nil {
					return nil, d.timeoutError(req, start, raw, false)
				}
				continue
			case d.isRetriableStatus(status, raw):
				metrics.ObserveDispatch(d.Metrics, service, opcode, attempt, time.Since(attemptStart), true)
				metrics.RecordRetry(d.Metrics, service, "retriable_status")
				if waitErr := d.sleepForRetry(ctx, req, attempt); waitErr != nil {
					return nil, d.timeoutError(req, start, raw, false)
				}
				continue
			default:
				metrics.ObserveDispatch(d.Metrics, service, opcode, attempt, time.Since(attemptStart), false)
				return frame, nil
			}
		}

		metrics.ObserveDispatch(d.Metrics, service, opcode, attempt, time.Since(attemptStart), true)
		var coreErr *corecore.Error
		if asCoreError(err, &coreErr) && !coreErr.Retriable() {
			return nil, coreErr
		}
		metrics.RecordRetry(d.Metrics, service, "transport_error")
		notWritten := coreErr != nil && coreErr.NotWritten
		if waitErr := d.sleepForRetry(ctx, req, attempt); waitErr != nil {
			return nil, d.timeoutError(req, start, 0, notWritten)
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, req Request) (*codec.Frame, error) {
	bc := d.Store.Current()
	if bc == nil {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithNotWritten()
	}

	rr := d.RoundRobin(req.Service)
	target, ok := locator.Resolve(bc, req.Service, req.Hint, rr)
	if !ok {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithNotWritten()
	}
	if target.NodeIdx < 0 || target.NodeIdx >= len(bc.Nodes) {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithNotWritten()
	}
	node := bc.Nodes[target.NodeIdx]
	addr, ok := node.Address(req.Service, false)
	if !ok {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithNotWritten()
	}

	p, err := d.Pools(addr, req.Service)
	if err != nil {
		return nil, err
	}
	ep, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordInFlight(d.Metrics, addr, req.Service.String(), ep.InFlight()+1)

	vbucket := uint16(0)
	if req.Hint.HasKey || req.Hint.HasVbucket {
		numVbuckets := len(bc.VbucketMap)
		if numVbuckets == 0 {
			numVbuckets = locator.NumVbuckets
		}
		if req.Hint.HasKey {
			vbucket = uint16(locator.Vbucket(req.Hint.Key, numVbuckets))
		} else {
			vbucket = uint16(req.Hint.Vbucket)
		}
	}

	sendCtx := ctx
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}
	return ep.Send(sendCtx, req.Opcode, vbucket, req.Cas, req.Datatype, req.Extras, req.Key, req.Value)
}

// isRetriableStatus implements spec.md §4.6 step 6: the built-in retriable
// set, extended by the error map's attributes when present.
func (d *Dispatcher) isRetriableStatus(status codec.Status, raw uint16) bool {
	switch status {
	case codec.StatusTemporaryFailure, codec.StatusLocked, codec.StatusNotInitialized:
		return true
	}
	if d.ErrorMap != nil {
		return d.ErrorMap.Retriable(raw, false)
	}
	return false
}

func (d *Dispatcher) refreshAndWait(ctx context.Context, req Request) error {
	if d.Refresh == nil {
		return nil
	}
	refreshCtx := ctx
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		refreshCtx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}
	if err := d.Refresh(refreshCtx); err != nil {
		logger.Warn("dispatcher: config refresh failed", logger.KeyCorrelationID, req.CorrelationID, "error", err)
	}
	return nil
}

func (d *Dispatcher) sleepForRetry(ctx context.Context, req Request, attempt int) error {
	delay := d.Backoff.Delay(attempt)
	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(delay)
	}
	if time.Now().Add(delay).After(deadline) {
		return context.DeadlineExceeded
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// timeoutError reports a deadline expiry. notWritten distinguishes a
// request that never reached the wire (pool saturation, in-flight cap,
// endpoint already torn down) from one that was sent and simply never
// answered: only the former is an UnambiguousTimeout (spec.md §5, §8
// property 5).
func (d *Dispatcher) timeoutError(req Request, start time.Time, raw uint16, notWritten bool) error {
	kind := corecore.KindAmbiguousTimeout
	if notWritten {
		kind = corecore.KindUnambiguousTimeout
	}
	return corecore.New(kind).
		WithContext(req.Service.String(), "").
		WithStatus(raw).
		WithElapsed(time.Since(start)).
		WithCorrelationID(req.CorrelationID)
}

func asCoreError(err error, target **corecore.Error) bool {
	ce, ok := err.(*corecore.Error)
	if !ok {
		return false
	}
	*target = ce
	return true
}
