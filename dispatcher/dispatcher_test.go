package dispatcher

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avsej/gocbcore-lite/channel"
	"github.com/avsej/gocbcore-lite/codec"
	"github.com/avsej/gocbcore-lite/corecore"
	"github.com/avsej/gocbcore-lite/locator"
	"github.com/avsej/gocbcore-lite/pool"
	"github.com/avsej/gocbcore-lite/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleNodeConfig() *topology.BucketConfig {
	return &topology.BucketConfig{
		Nodes: []topology.NodeInfo{
			{Hostname: "127.0.0.1", PlainPorts: map[topology.ServiceType]uint16{topology.ServiceKV: 11210}},
		},
		EnabledServices: []map[topology.ServiceType]struct{}{
			{topology.ServiceKV: {}},
		},
		VbucketMap: topology.VbucketMap{{0, -1}},
	}
}

// serverFunc is invoked once per request frame the fake endpoint receives;
// it writes the response and returns.
type serverFunc func(t *testing.T, conn net.Conn, frame *codec.Frame)

func newDispatcherForTest(t *testing.T, bc *topology.BucketConfig, respond serverFunc) *Dispatcher {
	t.Helper()
	var store topology.Store
	store.Update(bc)

	rr := map[topology.ServiceType]*locator.RoundRobin{}

	return &Dispatcher{
		Store: &store,
		Pools: func(node string, service topology.ServiceType) (*pool.Pool, error) {
			p := pool.New(node, service.String(), pool.Config{MinEndpoints: 1, MaxEndpoints: 1, Strategy: pool.StrategyFirstAvailable}, func(ctx context.Context) (*channel.Endpoint, error) {
				client, server := net.Pipe()
				t.Cleanup(func() { client.Close(); server.Close() })
				go func() {
					for {
						frame, err := codec.Decode(server)
						if err != nil {
							return
						}
						respond(t, server, frame)
					}
				}()
				ep := channel.NewEndpoint(node, service.String(), client, codec.CompressionConfig{}, false)
				ep.Start()
				return ep, nil
			})
			require.NoError(t, p.Start(context.Background()))
			t.Cleanup(p.Close)
			return p, nil
		},
		Backoff: BackoffPolicy{Base: time.Millisecond, Max: 10 * time.Millisecond, Jitter: 0},
		RoundRobin: func(service topology.ServiceType) *locator.RoundRobin {
			if rr[service] == nil {
				rr[service] = &locator.RoundRobin{}
			}
			return rr[service]
		},
	}
}

func TestDispatchSucceedsOnFirstAttempt(t *testing.T) {
	d := newDispatcherForTest(t, singleNodeConfig(), func(t *testing.T, conn net.Conn, frame *codec.Frame) {
		require.NoError(t, codec.EncodeResponse(conn, frame.Header.Opcode, 0, frame.Header.Opaque, 42, 0, nil, nil, []byte(`{"a":1}`)))
	})

	req := Request{Service: topology.ServiceKV, Hint: locator.KeyHint([]byte("k")), Opcode: codec.OpSet, Deadline: time.Now().Add(time.Second)}
	frame, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), frame.Header.Cas)
}

func TestDispatchRetriesTemporaryFailureThenSucceeds(t *testing.T) {
	var calls int32
	d := newDispatcherForTest(t, singleNodeConfig(), func(t *testing.T, conn net.Conn, frame *codec.Frame) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			require.NoError(t, codec.EncodeResponse(conn, frame.Header.Opcode, 0x0086, frame.Header.Opaque, 0, 0, nil, nil, nil))
			return
		}
		require.NoError(t, codec.EncodeResponse(conn, frame.Header.Opcode, 0, frame.Header.Opaque, 7, 0, nil, nil, nil))
	})

	req := Request{Service: topology.ServiceKV, Hint: locator.KeyHint([]byte("k")), Opcode: codec.OpGet, Deadline: time.Now().Add(time.Second)}
	frame, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), frame.Header.Cas)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestDispatchSurfacesAuthErrorWithoutRetry(t *testing.T) {
	var calls int32
	d := newDispatcherForTest(t, singleNodeConfig(), func(t *testing.T, conn net.Conn, frame *codec.Frame) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, codec.EncodeResponse(conn, frame.Header.Opcode, 0x0020, frame.Header.Opaque, 0, 0, nil, nil, nil))
	})

	req := Request{Service: topology.ServiceKV, Hint: locator.KeyHint([]byte("k")), Opcode: codec.OpGet, Deadline: time.Now().Add(time.Second)}
	frame, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err) // AUTH_ERROR is a frame-level status, not a transport error: dispatcher hands it back as-is
	status, _ := frame.Status()
	assert.Equal(t, codec.StatusAuthError, status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDispatchRefreshesConfigOnNotMyVbucket(t *testing.T) {
	var calls int32
	d := newDispatcherForTest(t, singleNodeConfig(), func(t *testing.T, conn net.Conn, frame *codec.Frame) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			require.NoError(t, codec.EncodeResponse(conn, frame.Header.Opcode, 0x0007, frame.Header.Opaque, 0, 0, nil, nil, nil))
			return
		}
		require.NoError(t, codec.EncodeResponse(conn, frame.Header.Opcode, 0, frame.Header.Opaque, 1, 0, nil, nil, nil))
	})
	var refreshed int32
	d.Refresh = func(ctx context.Context) error {
		atomic.AddInt32(&refreshed, 1)
		return nil
	}

	req := Request{Service: topology.ServiceKV, Hint: locator.KeyHint([]byte("k")), Opcode: codec.OpGet, Deadline: time.Now().Add(time.Second)}
	frame, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Header.Cas)
	assert.EqualValues(t, 1, atomic.LoadInt32(&refreshed))
}

// TestDispatchSurfacesUnambiguousTimeoutOnPoolSaturation covers end-to-end
// scenario 5: a request rejected at Acquire/pending.add because the pool is
// already saturated (one endpoint, at its in-flight cap, no growth
// headroom) never reaches the wire, so its deadline expiry must surface as
// UnambiguousTimeout rather than AmbiguousTimeout (spec.md §5, §8 property
// 5).
func TestDispatchSurfacesUnambiguousTimeoutOnPoolSaturation(t *testing.T) {
	bc := singleNodeConfig()
	var store topology.Store
	store.Update(bc)

	received := make(chan struct{}, 1)
	dial := func(ctx context.Context) (*channel.Endpoint, error) {
		client, server := net.Pipe()
		t.Cleanup(func() { client.Close(); server.Close() })
		go func() {
			if _, err := codec.Decode(server); err != nil {
				return
			}
			received <- struct{}{}
			// Never responds: the one endpoint stays at its in-flight cap.
		}()
		ep := channel.NewEndpointWithLimit("node", "kv", client, codec.CompressionConfig{}, false, 1)
		ep.Start()
		return ep, nil
	}

	p := pool.New("node", "kv", pool.Config{MinEndpoints: 1, MaxEndpoints: 1, MaxInFlight: 1, Strategy: pool.StrategyFirstAvailable}, dial)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Close)

	rr := map[topology.ServiceType]*locator.RoundRobin{}
	d := &Dispatcher{
		Store:   &store,
		Pools:   func(node string, service topology.ServiceType) (*pool.Pool, error) { return p, nil },
		Backoff: BackoffPolicy{Base: time.Millisecond, Max: 5 * time.Millisecond, Jitter: 0},
		RoundRobin: func(service topology.ServiceType) *locator.RoundRobin {
			if rr[service] == nil {
				rr[service] = &locator.RoundRobin{}
			}
			return rr[service]
		},
	}

	go func() {
		_, _ = d.Dispatch(context.Background(), Request{
			Service: topology.ServiceKV, Hint: locator.KeyHint([]byte("k")), Opcode: codec.OpGet,
			Deadline: time.Now().Add(5 * time.Second),
		})
	}()
	<-received

	req := Request{
		Service: topology.ServiceKV, Hint: locator.KeyHint([]byte("k2")), Opcode: codec.OpGet,
		Deadline: time.Now().Add(30 * time.Millisecond),
	}
	_, err := d.Dispatch(context.Background(), req)
	require.Error(t, err)
	var coreErr *corecore.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, corecore.KindUnambiguousTimeout, coreErr.Kind)
}
