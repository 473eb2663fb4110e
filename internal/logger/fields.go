package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently
// across all log statements so aggregation and querying stay uniform.
const (
	// ========================================================================
	// Distributed Tracing / request-scoped context (see context.go)
	// ========================================================================
	KeyTraceID   = "trace_id"  // OpenTelemetry trace ID for request correlation
	KeySpanID    = "span_id"   // OpenTelemetry span ID for operation tracking
	KeyProcedure = "procedure" // Caller-supplied operation name for WithContext logging
	KeyShare     = "share"     // Caller-supplied scope name for WithContext logging
	KeyClientIP  = "client_ip" // Client IP address, when known
	KeyUID       = "uid"       // Caller-supplied principal ID for WithContext logging
	KeyGID       = "gid"       // Caller-supplied group ID for WithContext logging

	// ========================================================================
	// Generic payload/error fields
	// ========================================================================
	KeyHandle = "handle" // Opaque identifier, formatted as hex
	KeyError  = "error"  // Error message
	// KeySize is a byte count attached to whatever payload a log line is
	// describing (a fetched collections manifest, a frame value, …).
	KeySize = "size"
)

// Handle returns a slog.Attr for an opaque identifier, formatted as hex.
func Handle(h []byte) slog.Attr {
	return slog.String(KeyHandle, fmt.Sprintf("%x", h))
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Size returns a slog.Attr for a byte count.
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// ----------------------------------------------------------------------------
// Cluster KV client (node/service/opcode)
// ----------------------------------------------------------------------------

const (
	KeyNode          = "node"           // Target node address (host:port)
	KeyService       = "service"        // Service type: kv, query, search, …
	KeyOpcode        = "opcode"         // Wire opcode, hex-formatted
	KeyOpaque        = "opaque"         // Request multiplexing key
	KeyVbucket       = "vbucket"        // Vbucket index a key hashed to
	KeyAttempt       = "attempt"        // Dispatcher retry attempt number
	KeyCorrelationID = "correlation_id" // Caller-supplied request correlation id
)

// Node returns a slog.Attr for a target node address.
func Node(addr string) slog.Attr {
	return slog.String(KeyNode, addr)
}

// Service returns a slog.Attr for a service type.
func Service(service string) slog.Attr {
	return slog.String(KeyService, service)
}

// Opaque returns a slog.Attr for a request's multiplexing opaque.
func Opaque(opaque uint32) slog.Attr {
	return slog.Uint64(KeyOpaque, uint64(opaque))
}
