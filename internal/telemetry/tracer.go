package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for the core I/O runtime's spans. These follow OpenTelemetry
// semantic conventions where applicable and are otherwise scoped to the KV
// wire protocol and cluster topology this module speaks.
const (
	AttrService     = "cb.service"      // topology.ServiceType string
	AttrNode        = "cb.node"         // node address (host:port)
	AttrOpcode      = "cb.opcode"       // codec.Opcode string
	AttrOpaque      = "cb.opaque"       // wire opaque value
	AttrVbucket     = "cb.vbucket"      // vbucket index
	AttrStatus      = "cb.status"       // codec.Status string
	AttrBucket      = "cb.bucket"       // selected bucket name
	AttrAttempt     = "cb.attempt"      // dispatcher retry attempt
	AttrStage       = "cb.bootstrap_stage"
	AttrMechanism   = "cb.sasl_mechanism"
	AttrCorrelation = "cb.correlation_id"
)

// Span names for the bootstrap pipeline and dispatcher.
const (
	SpanDispatch      = "core.dispatch"
	SpanBootstrap     = "core.bootstrap"
	SpanHello         = "core.bootstrap.hello"
	SpanErrorMap      = "core.bootstrap.error_map"
	SpanAuthenticate  = "core.bootstrap.authenticate"
	SpanSelectBucket  = "core.bootstrap.select_bucket"
	SpanCollections   = "core.bootstrap.collections"
	SpanEndpointSend  = "core.endpoint.send"
)

func Service(service string) attribute.KeyValue { return attribute.String(AttrService, service) }
func Node(node string) attribute.KeyValue        { return attribute.String(AttrNode, node) }
func Opcode(opcode string) attribute.KeyValue    { return attribute.String(AttrOpcode, opcode) }
func Opaque(opaque uint32) attribute.KeyValue    { return attribute.Int64(AttrOpaque, int64(opaque)) }
func Vbucket(vbucket uint16) attribute.KeyValue  { return attribute.Int64(AttrVbucket, int64(vbucket)) }
func Status(status string) attribute.KeyValue    { return attribute.String(AttrStatus, status) }
func Bucket(name string) attribute.KeyValue      { return attribute.String(AttrBucket, name) }
func Attempt(n int) attribute.KeyValue           { return attribute.Int(AttrAttempt, n) }
func Stage(stage string) attribute.KeyValue      { return attribute.String(AttrStage, stage) }
func Mechanism(mech string) attribute.KeyValue   { return attribute.String(AttrMechanism, mech) }
func CorrelationID(id string) attribute.KeyValue { return attribute.String(AttrCorrelation, id) }

// StartDispatchSpan starts the root span for one Dispatcher.Dispatch call.
func StartDispatchSpan(ctx context.Context, service, opcode string, attempt int) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanDispatch, trace.WithAttributes(Service(service), Opcode(opcode), Attempt(attempt)))
}

// StartBootstrapSpan starts the root span for a channel bootstrap run.
func StartBootstrapSpan(ctx context.Context, node, service string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanBootstrap, trace.WithAttributes(Node(node), Service(service)))
}

// StartStageSpan starts a child span for one bootstrap stage (hello, error
// map load, authenticate, select bucket, collections pre-fetch).
func StartStageSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return StartSpan(ctx, name)
}
