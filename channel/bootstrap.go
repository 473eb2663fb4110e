package channel

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/avsej/gocbcore-lite/codec"
	"github.com/avsej/gocbcore-lite/corecore"
	"github.com/avsej/gocbcore-lite/errormap"
	"github.com/avsej/gocbcore-lite/internal/logger"
	"github.com/avsej/gocbcore-lite/internal/telemetry"
	"github.com/avsej/gocbcore-lite/metrics"
	"github.com/avsej/gocbcore-lite/sasl"
)

// minimalFeatures is retried once, in place of the full proposed set, when
// HELLO itself fails outright rather than merely rejecting some features
// (spec.md SPEC_FULL.md "DUPLEX/ALT_REQUESTS negotiation retry").
var minimalFeatures = []codec.Feature{codec.FeatureXError}

// BootstrapConfig parameterizes one channel's bootstrap pipeline (spec.md
// §4.2). Deadline bounds the whole pipeline: every stage's round trips run
// under that one deadline, and no stage gets a separate slice of it.
type BootstrapConfig struct {
	Features    []codec.Feature
	Bucket      string
	Username    string
	Password    string
	// Credentials, when set, supplies the (user, password) pair for
	// authenticate to use instead of Username/Password, letting a caller
	// plug in e.g. sasl.JWTCredentialsProvider (spec.md §6 "pluggable
	// credentials provider").
	Credentials sasl.CredentialsProvider
	GSSAPI      *sasl.GSSAPIIdentity
	TLSEnabled  bool
	Compression codec.CompressionConfig
	Deadline    time.Time
	Emitter     Emitter
	// MaxInFlight bounds concurrent opaque-keyed requests on the resulting
	// Endpoint (spec.md SPEC_FULL.md "Per-endpoint in-flight cap"). Zero
	// uses DefaultMaxInFlight.
	MaxInFlight int
}

// BootstrapResult is what a completed pipeline hands back to the caller,
// which is then responsible for calling Start on the Endpoint once it's
// ready to accept steady-state traffic.
type BootstrapResult struct {
	Endpoint       *Endpoint
	Features       codec.FeatureSet
	ErrorMap       *errormap.ErrorMap
	BucketSelected bool
	ManifestRaw    []byte
}

// Bootstrap drives conn through HELLO, error-map load, SASL auth,
// select-bucket and, once COLLECTIONS is negotiated, a collections-manifest
// fetch, in that order, all under cfg.Deadline (spec.md §4.2). Error-map
// load and the manifest fetch are best-effort and never fail the pipeline;
// every other stage's failure aborts bootstrap. The deadline is cleared
// from conn before the Endpoint is built.
func Bootstrap(ctx context.Context, node, service string, conn net.Conn, cfg BootstrapConfig) (*BootstrapResult, error) {
	if cfg.Emitter == nil {
		cfg.Emitter = NopEmitter
	}
	ctx, span := telemetry.StartBootstrapSpan(ctx, node, service)
	defer span.End()
	rt := &rawRoundTripper{conn: conn, deadline: cfg.Deadline}
	m := metrics.NewKVMetrics()

	stageStart := time.Now()
	_, helloSpan := telemetry.StartStageSpan(ctx, telemetry.SpanHello)
	features, err := negotiateHello(rt, cfg, node, service)
	helloSpan.End()
	metrics.ObserveBootstrapStage(m, telemetry.SpanHello, time.Since(stageStart), err != nil)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	var em *errormap.ErrorMap
	if features.Has(codec.FeatureXError) {
		stageStart = time.Now()
		_, emSpan := telemetry.StartStageSpan(ctx, telemetry.SpanErrorMap)
		em = loadErrorMap(rt, node, service, cfg.Emitter)
		emSpan.End()
		metrics.ObserveBootstrapStage(m, telemetry.SpanErrorMap, time.Since(stageStart), em == nil)
	}

	if cfg.Username != "" || cfg.Credentials != nil || cfg.GSSAPI != nil {
		stageStart = time.Now()
		authCtx, authSpan := telemetry.StartStageSpan(ctx, telemetry.SpanAuthenticate)
		err := authenticate(authCtx, rt, cfg, node, service)
		authSpan.End()
		metrics.ObserveBootstrapStage(m, telemetry.SpanAuthenticate, time.Since(stageStart), err != nil)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return nil, err
		}
	}

	bucketSelected := false
	if cfg.Bucket != "" {
		stageStart = time.Now()
		_, bucketSpan := telemetry.StartStageSpan(ctx, telemetry.SpanSelectBucket)
		err := selectBucket(rt, cfg.Bucket, node, service, cfg.Emitter)
		bucketSpan.End()
		metrics.ObserveBootstrapStage(m, telemetry.SpanSelectBucket, time.Since(stageStart), err != nil)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return nil, err
		}
		bucketSelected = true
	}

	var manifest []byte
	if bucketSelected && features.Has(codec.FeatureCollections) {
		stageStart = time.Now()
		_, manifestSpan := telemetry.StartStageSpan(ctx, telemetry.SpanCollections)
		var fetchErr error
		manifest, fetchErr = fetchCollectionsManifest(rt)
		manifestSpan.End()
		metrics.ObserveBootstrapStage(m, telemetry.SpanCollections, time.Since(stageStart), fetchErr != nil)
	}

	// The deadline covers bootstrap only; the steady-state read loop runs
	// without one.
	if !cfg.Deadline.IsZero() {
		_ = conn.SetDeadline(time.Time{})
	}

	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	ep := NewEndpointWithLimit(node, service, conn, cfg.Compression, features.Has(codec.FeatureCollections), maxInFlight)
	return &BootstrapResult{
		Endpoint:       ep,
		Features:       features,
		ErrorMap:       em,
		BucketSelected: bucketSelected,
		ManifestRaw:    manifest,
	}, nil
}

func negotiateHello(rt *rawRoundTripper, cfg BootstrapConfig, node, service string) (codec.FeatureSet, error) {
	start := time.Now()
	features, err := helloRoundTrip(rt, cfg.Features)
	if err != nil {
		features, err = helloRoundTrip(rt, minimalFeatures)
		if err != nil {
			return nil, corecore.New(corecore.KindServiceNotAvailable).WithContext(service, node).WithCause(err)
		}
	}
	set := codec.NewFeatureSet(features)
	cfg.Emitter.Emit(Event{Kind: EventFeatureNegotiated, Node: node, Service: service, Elapsed: time.Since(start)})
	return set, nil
}

func helloRoundTrip(rt *rawRoundTripper, features []codec.Feature) ([]codec.Feature, error) {
	resp, err := rt.roundTrip(codec.OpHello, 0, nil, nil, codec.EncodeFeatures(features))
	if err != nil {
		return nil, err
	}
	if status, _ := resp.Status(); status != codec.StatusSuccess {
		return nil, fmt.Errorf("channel: hello rejected")
	}
	return codec.DecodeFeatures(resp.Value), nil
}

func loadErrorMap(rt *rawRoundTripper, node, service string, emitter Emitter) *errormap.ErrorMap {
	start := time.Now()
	// Request format version 1, the only version this codec decodes.
	body := []byte{0x00, 0x01}
	resp, err := rt.roundTrip(codec.OpErrorMap, 0, nil, nil, body)
	if err != nil {
		emitter.Emit(Event{Kind: EventErrorMapLoadingFailure, Node: node, Service: service, Elapsed: time.Since(start), Err: err})
		return nil
	}
	if status, _ := resp.Status(); status != codec.StatusSuccess {
		emitter.Emit(Event{Kind: EventErrorMapLoadingFailure, Node: node, Service: service, Elapsed: time.Since(start)})
		return nil
	}
	em, err := errormap.Decode(resp.Value)
	if err != nil {
		emitter.Emit(Event{Kind: EventErrorMapUndecodable, Node: node, Service: service, Elapsed: time.Since(start), Err: err})
		return nil
	}
	emitter.Emit(Event{Kind: EventErrorMapLoaded, Node: node, Service: service, Elapsed: time.Since(start)})
	return em
}

func authenticate(ctx context.Context, rt *rawRoundTripper, cfg BootstrapConfig, node, service string) error {
	start := time.Now()
	ex := &saslExchanger{rt: rt}

	username, password := cfg.Username, cfg.Password
	var err error
	if cfg.Credentials != nil {
		var creds sasl.Credentials
		creds, err = cfg.Credentials.Credentials(ctx, service)
		if err != nil {
			cfg.Emitter.Emit(Event{Kind: EventSaslAuthFailed, Node: node, Service: service, Elapsed: time.Since(start), Err: err})
			return corecore.New(corecore.KindAuthenticationFailure).WithContext(service, node).WithCause(err)
		}
		username, password = creds.Username, creds.Password
	}

	switch {
	case cfg.GSSAPI != nil:
		err = sasl.GSSAPI(ctx, *cfg.GSSAPI, "couchbase/"+node, ex)
	default:
		mechs, listErr := rt.listMechs()
		if listErr != nil {
			err = listErr
			break
		}
		mechanism, ok := sasl.Negotiate(mechs, cfg.TLSEnabled)
		if !ok {
			err = fmt.Errorf("sasl: no common mechanism with server, offered %v", mechs)
			break
		}
		if mechanism == sasl.MechanismPlain {
			err = sasl.Plain(ctx, username, password, ex)
		} else {
			err = sasl.Scram(ctx, mechanism, username, password, ex)
		}
	}

	if err != nil {
		cfg.Emitter.Emit(Event{Kind: EventSaslAuthFailed, Node: node, Service: service, Elapsed: time.Since(start), Err: err})
		return corecore.New(corecore.KindAuthenticationFailure).WithContext(service, node).WithCause(err)
	}
	cfg.Emitter.Emit(Event{Kind: EventSaslAuthCompleted, Node: node, Service: service, Elapsed: time.Since(start)})
	return nil
}

func selectBucket(rt *rawRoundTripper, bucket, node, service string, emitter Emitter) error {
	start := time.Now()
	resp, err := rt.roundTrip(codec.OpSelectBucket, 0, nil, []byte(bucket), nil)
	if err != nil {
		emitter.Emit(Event{Kind: EventBucketSelectionFailed, Node: node, Service: service, Elapsed: time.Since(start), Err: err})
		return corecore.New(corecore.KindBucketNotFound).WithContext(service, node).WithCause(err)
	}
	if status, raw := resp.Status(); status != codec.StatusSuccess {
		emitter.Emit(Event{Kind: EventBucketSelectionFailed, Node: node, Service: service, Elapsed: time.Since(start)})
		return corecore.New(corecore.KindBucketNotFound).WithContext(service, node).WithStatus(raw)
	}
	emitter.Emit(Event{Kind: EventBucketSelected, Node: node, Service: service, Elapsed: time.Since(start)})
	return nil
}

func fetchCollectionsManifest(rt *rawRoundTripper) ([]byte, error) {
	resp, err := rt.roundTrip(codec.OpGetCollectionsManifest, 0, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	if status, _ := resp.Status(); status != codec.StatusSuccess {
		return nil, fmt.Errorf("channel: get collections manifest failed")
	}
	logger.Debug("channel: prefetched collections manifest", logger.KeySize, len(resp.Value))
	return resp.Value, nil
}

// saslExchanger adapts a rawRoundTripper to sasl.Exchanger.
type saslExchanger struct {
	rt *rawRoundTripper
}

func (e *saslExchanger) Auth(_ context.Context, mechanism string, payload []byte) ([]byte, bool, error) {
	return e.rt.saslStep(codec.OpSaslAuth, mechanism, payload)
}

func (e *saslExchanger) Step(_ context.Context, mechanism string, payload []byte) ([]byte, bool, error) {
	return e.rt.saslStep(codec.OpSaslStep, mechanism, payload)
}
