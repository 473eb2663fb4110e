// Package corecore defines the closed error taxonomy surfaced by the core
// I/O runtime to its callers (spec.md §6, §7).
package corecore

import (
	"errors"
	"fmt"
	"time"
)

// Kind is a closed set of user-visible error categories. Every error the
// core returns across a service boundary carries one of these.
type Kind int

const (
	KindUnknown Kind = iota
	KindDocumentNotFound
	KindDocumentExists
	KindCasMismatch
	KindValueTooLarge
	KindDurabilityAmbiguous
	KindAuthenticationFailure
	KindBucketNotFound
	KindTemporaryFailure
	KindRequestCanceled
	KindUnambiguousTimeout
	KindAmbiguousTimeout
	KindSubDocument
	KindServiceNotAvailable
)

func (k Kind) String() string {
	switch k {
	case KindDocumentNotFound:
		return "DocumentNotFound"
	case KindDocumentExists:
		return "DocumentExists"
	case KindCasMismatch:
		return "CasMismatch"
	case KindValueTooLarge:
		return "ValueTooLarge"
	case KindDurabilityAmbiguous:
		return "DurabilityAmbiguous"
	case KindAuthenticationFailure:
		return "AuthenticationFailure"
	case KindBucketNotFound:
		return "BucketNotFound"
	case KindTemporaryFailure:
		return "TemporaryFailure"
	case KindRequestCanceled:
		return "RequestCanceled"
	case KindUnambiguousTimeout:
		return "UnambiguousTimeout"
	case KindAmbiguousTimeout:
		return "AmbiguousTimeout"
	case KindSubDocument:
		return "SubDocument"
	case KindServiceNotAvailable:
		return "ServiceNotAvailable"
	default:
		return "Unknown"
	}
}

// Error is the structured error type every core operation surfaces.
// It always carries enough context to troubleshoot without re-running the
// request: correlation id, attempted service, node, and the final observed
// status (spec.md §7: "this is the contract for troubleshooting").
type Error struct {
	Kind          Kind
	CorrelationID string
	Service       string
	Node          string
	LastStatus    uint16
	Elapsed       time.Duration
	Cause         error
	// NotWritten marks an error observed before the request was ever
	// written to the wire (pool saturation, in-flight cap, connection
	// already torn down), so a later timeout can be classified as
	// UnambiguousTimeout instead of AmbiguousTimeout (spec.md §5).
	NotWritten bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("core: %s (service=%s node=%s status=0x%04x elapsed=%s corr=%s)",
		e.Kind, e.Service, e.Node, e.LastStatus, e.Elapsed, e.CorrelationID)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, corecore.New(corecore.KindDocumentNotFound)).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs a bare *Error of the given kind. It serves as an errors.Is
// sentinel target and as the error value callers return, either bare or
// annotated through the With* methods.
func New(kind Kind) *Error { return &Error{Kind: kind} }

// WithCause returns a copy of e with Cause set.
func (e *Error) WithCause(cause error) *Error {
	n := *e
	n.Cause = cause
	return &n
}

// WithContext returns a copy of e annotated with the service/node that
// observed it, for the troubleshooting contract of spec.md §7.
func (e *Error) WithContext(service, node string) *Error {
	n := *e
	n.Service = service
	n.Node = node
	return &n
}

// WithStatus returns a copy of e carrying the last observed wire status.
func (e *Error) WithStatus(status uint16) *Error {
	n := *e
	n.LastStatus = status
	return &n
}

// WithElapsed returns a copy of e carrying the elapsed time before failure.
func (e *Error) WithElapsed(d time.Duration) *Error {
	n := *e
	n.Elapsed = d
	return &n
}

// WithCorrelationID returns a copy of e carrying the request's correlation id.
func (e *Error) WithCorrelationID(id string) *Error {
	n := *e
	n.CorrelationID = id
	return &n
}

// WithNotWritten returns a copy of e flagged as having occurred before the
// request reached the wire.
func (e *Error) WithNotWritten() *Error {
	n := *e
	n.NotWritten = true
	return &n
}

// Retriable reports whether the dispatcher should retry a request that
// failed with this error within its deadline (spec.md §4.6 step 6).
func (e *Error) Retriable() bool {
	switch e.Kind {
	case KindTemporaryFailure, KindServiceNotAvailable:
		return true
	default:
		return false
	}
}
