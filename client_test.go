package gocbcorelite

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/avsej/gocbcore-lite/codec"
	"github.com/avsej/gocbcore-lite/dispatcher"
	"github.com/avsej/gocbcore-lite/locator"
	"github.com/avsej/gocbcore-lite/pool"
	"github.com/avsej/gocbcore-lite/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClusterNode answers bootstrap, GET_CONFIG, and a single KV GET the
// same way fakeServer does in channel/bootstrap_test.go, plus a
// config JSON sized so the resulting BucketConfig routes every key to
// this one node (spec.md §4.1 "Connect" end to end).
func fakeClusterNode(t *testing.T, ln net.Listener) {
	t.Helper()
	addr := ln.Addr().String()
	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	configJSON := fmt.Sprintf(`{
		"nodesExt": [{"hostname": "127.0.0.1", "services": {"kv": %s}}],
		"nodes": [{"hostname": "127.0.0.1"}],
		"bucketCapabilities": ["couchapi"],
		"vBucketServerMap": {"numReplicas": 0, "vBucketMap": [[0]]}
	}`, portStr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go serveOneConnection(t, conn, []byte(configJSON))
	}
}

func serveOneConnection(t *testing.T, conn net.Conn, configJSON []byte) {
	defer conn.Close()
	for {
		frame, err := codec.Decode(conn)
		if err != nil {
			return
		}
		switch frame.Header.Opcode {
		case codec.OpHello:
			body := codec.EncodeFeatures([]codec.Feature{codec.FeatureXError, codec.FeatureCollections})
			_ = codec.EncodeResponse(conn, codec.OpHello, 0, frame.Header.Opaque, 0, 0, nil, nil, body)
		case codec.OpErrorMap:
			_ = codec.EncodeResponse(conn, codec.OpErrorMap, 0, frame.Header.Opaque, 0, 0, nil, nil,
				[]byte(`{"version":1,"revision":1,"errors":{}}`))
		case codec.OpSaslListMechs:
			_ = codec.EncodeResponse(conn, codec.OpSaslListMechs, 0, frame.Header.Opaque, 0, 0, nil, nil, []byte("PLAIN"))
		case codec.OpSaslAuth:
			_ = codec.EncodeResponse(conn, codec.OpSaslAuth, 0, frame.Header.Opaque, 0, 0, nil, nil, nil)
		case codec.OpSelectBucket:
			_ = codec.EncodeResponse(conn, codec.OpSelectBucket, 0, frame.Header.Opaque, 0, 0, nil, nil, nil)
		case codec.OpGetCollectionsManifest:
			_ = codec.EncodeResponse(conn, codec.OpGetCollectionsManifest, 0, frame.Header.Opaque, 0, 0, nil, nil,
				[]byte(`{"uid":"0","scopes":[]}`))
		case codec.OpGetConfig:
			_ = codec.EncodeResponse(conn, codec.OpGetConfig, 0, frame.Header.Opaque, 0, 0, nil, nil, configJSON)
		case codec.OpGet:
			_ = codec.EncodeResponse(conn, codec.OpGet, 0, frame.Header.Opaque, 0, 0, nil, nil, []byte(`"value"`))
		default:
			t.Errorf("serveOneConnection: unexpected opcode %v", frame.Header.Opcode)
			return
		}
	}
}

func TestConnectEndToEnd(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go fakeClusterNode(t, ln)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := ClientConfig{
		ConnectionString: fmt.Sprintf("couchbase://%s/default", ln.Addr().String()),
		Username:         "admin",
		Password:         "password",
		ConnectTimeout:   2 * time.Second,
		RefreshPeriod:    time.Hour,
		Pool:             pool.Config{MinEndpoints: 1, MaxEndpoints: 2},
	}

	client, err := Connect(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	frame, err := client.Dispatch(ctx, dispatcher.Request{
		Service:  topology.ServiceKV,
		Hint:     locator.KeyHint([]byte("doc-1")),
		Opcode:   codec.OpGet,
		Key:      []byte("doc-1"),
		Deadline: time.Now().Add(2 * time.Second),
	})
	require.NoError(t, err)
	status, _ := frame.Status()
	assert.Equal(t, codec.StatusSuccess, status)
	assert.Equal(t, `"value"`, string(frame.Value))
}

func TestConnectRejectsBadConnectionString(t *testing.T) {
	_, err := Connect(context.Background(), ClientConfig{ConnectionString: "not a url ://"})
	require.Error(t, err)
}

func TestConnectFailsWhenNoListenerReachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := Connect(ctx, ClientConfig{
		ConnectionString: "couchbase://127.0.0.1:1",
		ConnectTimeout:   200 * time.Millisecond,
	})
	require.Error(t, err)
}
