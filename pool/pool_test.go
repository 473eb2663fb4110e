package pool

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/avsej/gocbcore-lite/channel"
	"github.com/avsej/gocbcore-lite/codec"
	"github.com/avsej/gocbcore-lite/corecore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairedEndpoint(t *testing.T) *channel.Endpoint {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	ep := channel.NewEndpoint("n1", "kv", client, codec.CompressionConfig{}, false)
	ep.Start()
	return ep
}

func TestPoolGrowsToMinOnStart(t *testing.T) {
	count := 0
	dial := func(ctx context.Context) (*channel.Endpoint, error) {
		count++
		return pairedEndpoint(t), nil
	}
	p := New("n1", "kv", Config{MinEndpoints: 3, MaxEndpoints: 5, Strategy: StrategyFirstAvailable}, dial)
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 3, count)
	p.Close()
}

// TestPoolAcquireGrowsBeyondMinWhenAllBusy covers spec.md §4.5: the pool
// only grows once every live endpoint has reached its per-connection
// in-flight cap, not merely ≥1 in-flight.
func TestPoolAcquireGrowsBeyondMinWhenAllBusy(t *testing.T) {
	dial := func(ctx context.Context) (*channel.Endpoint, error) {
		return pairedEndpoint(t), nil
	}
	p := New("n1", "kv", Config{MinEndpoints: 1, MaxEndpoints: 2, MaxInFlight: 1, Strategy: StrategyFirstAvailable}, dial)
	require.NoError(t, p.Start(context.Background()))

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	go func() { _, _ = first.Send(context.Background(), codec.OpGet, 0, 0, 0, nil, nil, nil) }()
	require.Eventually(t, func() bool { return first.InFlight() == 1 }, time.Second, time.Millisecond)

	second, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, p.Len())

	p.Close()
}

// TestPoolAcquireBackpressuresWhenSaturatedAtMaxEndpoints covers spec.md
// §4.5/§8 property 5: once every endpoint is at its in-flight cap and the
// pool is already at MaxEndpoints, Acquire reports saturation instead of
// handing back an already-saturated endpoint.
func TestPoolAcquireBackpressuresWhenSaturatedAtMaxEndpoints(t *testing.T) {
	dial := func(ctx context.Context) (*channel.Endpoint, error) {
		return pairedEndpoint(t), nil
	}
	p := New("n1", "kv", Config{MinEndpoints: 1, MaxEndpoints: 1, MaxInFlight: 1, Strategy: StrategyFirstAvailable}, dial)
	require.NoError(t, p.Start(context.Background()))

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)

	go func() { _, _ = first.Send(context.Background(), codec.OpGet, 0, 0, 0, nil, nil, nil) }()
	require.Eventually(t, func() bool { return first.InFlight() == 1 }, time.Second, time.Millisecond)

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	var coreErr *corecore.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, corecore.KindServiceNotAvailable, coreErr.Kind)
	assert.True(t, coreErr.NotWritten)

	p.Close()
}

func TestPoolRoundRobinCyclesEndpoints(t *testing.T) {
	dial := func(ctx context.Context) (*channel.Endpoint, error) {
		return pairedEndpoint(t), nil
	}
	p := New("n1", "query", Config{MinEndpoints: 2, MaxEndpoints: 2, Strategy: StrategyRoundRobin}, dial)
	require.NoError(t, p.Start(context.Background()))

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)
	second, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	p.Close()
}

func TestPoolCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	dialErr := errors.New("connection refused")
	attempts := 0
	dial := func(ctx context.Context) (*channel.Endpoint, error) {
		attempts++
		return nil, dialErr
	}
	p := New("n1", "kv", Config{MinEndpoints: 0, MaxEndpoints: 5, Strategy: StrategyFirstAvailable}, dial)
	p.breaker = newCircuitBreaker(3, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := p.Acquire(context.Background())
		assert.Error(t, err)
	}
	before := attempts

	_, err := p.Acquire(context.Background())
	assert.Error(t, err)
	assert.Equal(t, before, attempts, "breaker should fail fast without dialing")
}

func TestReapOnceClosesIdleAboveMin(t *testing.T) {
	dial := func(ctx context.Context) (*channel.Endpoint, error) {
		return pairedEndpoint(t), nil
	}
	p := New("n1", "kv", Config{MinEndpoints: 1, MaxEndpoints: 3, IdleTimeout: time.Millisecond}, dial)
	require.NoError(t, p.Start(context.Background()))
	_, err := p.grow(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())

	time.Sleep(5 * time.Millisecond)
	p.reapOnce()
	assert.Equal(t, 1, p.Len())
	p.Close()
}
