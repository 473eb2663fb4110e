package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/avsej/gocbcore-lite/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointSendReceivesMatchingResponse(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		frame, err := codec.Decode(server)
		if err != nil {
			return
		}
		_ = codec.EncodeResponse(server, codec.OpGet, 0, frame.Header.Opaque, 42, 0, nil, nil, []byte("value"))
	}()

	ep := NewEndpoint("n1", "kv", client, codec.CompressionConfig{}, false)
	ep.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := ep.Send(ctx, codec.OpGet, 0, 0, 0, nil, []byte("key"), nil)
	require.NoError(t, err)
	assert.Equal(t, "value", string(frame.Value))
	assert.Equal(t, uint64(42), frame.Header.Cas)
}

func TestEndpointSendCompressesLargeMutations(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	recvDatatype := make(chan codec.Datatype, 1)
	go func() {
		frame, err := codec.Decode(server)
		if err != nil {
			return
		}
		recvDatatype <- frame.Header.Datatype
		_ = codec.EncodeResponse(server, codec.OpSet, 0, frame.Header.Opaque, 0, 0, nil, nil, nil)
	}()

	ep := NewEndpoint("n1", "kv", client, codec.CompressionConfig{Enabled: true, MinSize: 8, MinRatio: 0.9}, false)
	ep.Start()

	value := make([]byte, 256) // all zero, highly compressible
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := ep.Send(ctx, codec.OpSet, 0, 0, 0, nil, []byte("key"), value)
	require.NoError(t, err)

	dt := <-recvDatatype
	assert.True(t, dt.Has(codec.DatatypeSnappy))
}

func TestEndpointConnectionLossDrainsInFlight(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ep := NewEndpoint("n1", "kv", client, codec.CompressionConfig{}, false)
	ep.Start()

	done := make(chan error, 1)
	go func() {
		_, err := ep.Send(context.Background(), codec.OpGet, 0, 0, 0, nil, []byte("key"), nil)
		done <- err
	}()

	// Give Send a moment to register itself in the pending table, then sever
	// the connection out from under it.
	time.Sleep(20 * time.Millisecond)
	server.Close()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("in-flight request was not failed after connection loss")
	}
	assert.Equal(t, StateClosed, ep.State())
}
