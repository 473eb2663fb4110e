// Package gocbcorelite is the top-level entry point for the core I/O
// runtime: Connect parses a connection string, bootstraps a seed node,
// and wires the resulting topology into a Dispatcher backed by
// lazily-dialed per-(node, service) Service Pools (spec.md §4.1 "Client",
// grounded on gocbcore.v7's Agent/CreateAgent).
package gocbcorelite

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/avsej/gocbcore-lite/channel"
	"github.com/avsej/gocbcore-lite/codec"
	"github.com/avsej/gocbcore-lite/connstr"
	"github.com/avsej/gocbcore-lite/corecore"
	"github.com/avsej/gocbcore-lite/dispatcher"
	"github.com/avsej/gocbcore-lite/errormap"
	"github.com/avsej/gocbcore-lite/httpsvc"
	"github.com/avsej/gocbcore-lite/internal/logger"
	"github.com/avsej/gocbcore-lite/locator"
	"github.com/avsej/gocbcore-lite/pool"
	"github.com/avsej/gocbcore-lite/sasl"
	"github.com/avsej/gocbcore-lite/topology"
)

// ClientConfig parameterizes Connect (spec.md §6 "connection string").
type ClientConfig struct {
	ConnectionString string
	Bucket           string
	Username         string
	Password         string
	// Credentials, when set, takes precedence over Username/Password for
	// every channel this client opens (spec.md §6 "pluggable credentials
	// provider").
	Credentials    sasl.CredentialsProvider
	GSSAPI         *sasl.GSSAPIIdentity
	TLSConfig      *tls.Config
	Compression    codec.CompressionConfig
	Pool           pool.Config
	Backoff        dispatcher.BackoffPolicy
	ConnectTimeout time.Duration
	RefreshPeriod  time.Duration
}

// Client is a connected handle to one bucket: a shared topology.Store kept
// current by a background config-refresh loop, and a Dispatcher that
// routes requests through per-(node, service) pools dialed on first use
// (spec.md §4.1, §4.5, §4.6).
type Client struct {
	cfg   ClientConfig
	spec  *connstr.ConnSpec
	store *topology.Store
	disp  *dispatcher.Dispatcher
	http  *httpsvc.Client

	poolsMu sync.Mutex
	pools   map[string]*pool.Pool

	rrMu sync.Mutex
	rr   map[topology.ServiceType]*locator.RoundRobin

	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// Connect dials the seed hosts named in cfg.ConnectionString in order,
// bootstraps the first that accepts a connection, fetches the bucket's
// initial config over that channel, and starts a background refresh loop
// that keeps the shared topology.Store current (spec.md §4.1 "Connect",
// §4.3 "Config streaming").
func Connect(ctx context.Context, cfg ClientConfig) (*Client, error) {
	spec, err := connstr.Parse(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}
	if cfg.Bucket == "" {
		cfg.Bucket = spec.Bucket
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RefreshPeriod <= 0 {
		cfg.RefreshPeriod = 10 * time.Second
	}

	c := &Client{
		cfg:    cfg,
		spec:   spec,
		store:  &topology.Store{},
		pools:  make(map[string]*pool.Pool),
		rr:     make(map[topology.ServiceType]*locator.RoundRobin),
		stopCh: make(chan struct{}),
	}

	bc, em, err := c.bootstrapFromSeeds(ctx)
	if err != nil {
		return nil, err
	}
	c.store.Update(bc)

	c.disp = &dispatcher.Dispatcher{
		Store:      c.store,
		Pools:      c.poolFor,
		Refresh:    c.refresh,
		ErrorMap:   em,
		Backoff:    cfg.Backoff,
		RoundRobin: c.roundRobinFor,
	}

	c.http = httpsvc.NewClient(c.store, c.roundRobinFor)
	c.http.TLSEnabled = cfg.TLSConfig != nil
	c.http.Username = cfg.Username
	c.http.Password = cfg.Password
	c.http.Credentials = cfg.Credentials

	c.wg.Add(1)
	go c.refreshLoop()
	return c, nil
}

// Dispatch sends one typed request through the shared Dispatcher (spec.md
// §4.6).
func (c *Client) Dispatch(ctx context.Context, req dispatcher.Request) (*codec.Frame, error) {
	return c.disp.Dispatch(ctx, req)
}

// RoundTrip issues one buffered HTTP passthrough request against a non-KV
// service (Query/Analytics/Search/Views), resolving its target node from
// the same shared topology.Store the typed Dispatcher routes against
// (spec.md §9 "HTTP surfaces").
func (c *Client) RoundTrip(ctx context.Context, req httpsvc.HTTPRequest) (*httpsvc.HTTPResponse, error) {
	return c.http.RoundTrip(ctx, req)
}

// Stream is RoundTrip's streaming variant, for config-streaming and large
// result sets; pair the returned body with httpstream.NewReader.
func (c *Client) Stream(ctx context.Context, req httpsvc.HTTPRequest) (io.ReadCloser, *http.Response, error) {
	return c.http.Stream(ctx, req)
}

// Close stops the background refresh loop and every pool this client has
// opened.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		c.poolsMu.Lock()
		defer c.poolsMu.Unlock()
		for _, p := range c.pools {
			p.Close()
		}
	})
}

// bootstrapFromSeeds tries each seed host in order, as gocbcore.v7's
// Agent.connect does for MemdAddrs, and returns the first one that
// completes bootstrap and hands back a bucket config over GET_CONFIG.
func (c *Client) bootstrapFromSeeds(ctx context.Context) (*topology.BucketConfig, *errormap.ErrorMap, error) {
	var lastErr error
	for _, host := range c.spec.Hosts {
		addr := seedAddress(host, c.cfg.TLSConfig != nil)
		bc, em, err := c.bootstrapOne(ctx, addr, host.Name)
		if err != nil {
			var coreErr *corecore.Error
			if errors.As(err, &coreErr) && (coreErr.Kind == corecore.KindAuthenticationFailure || coreErr.Kind == corecore.KindBucketNotFound) {
				return nil, nil, err
			}
			logger.Warn("client: seed bootstrap failed, trying next", logger.KeyNode, addr, "error", err)
			lastErr = err
			continue
		}
		return bc, em, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("gocbcorelite: no seed hosts in connection string")
	}
	return nil, nil, corecore.New(corecore.KindServiceNotAvailable).WithCause(lastErr)
}

func seedAddress(host connstr.Host, tlsEnabled bool) string {
	port := host.Port
	if port == 0 {
		plain, tlsPort := topology.DefaultPort(topology.ServiceKV)
		port = plain
		if tlsEnabled {
			port = tlsPort
		}
	}
	return fmt.Sprintf("%s:%d", host.Name, port)
}

func (c *Client) bootstrapOne(ctx context.Context, addr, originHost string) (*topology.BucketConfig, *errormap.ErrorMap, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	conn, err := channel.DialTimeout(dialCtx, "tcp", addr, c.cfg.ConnectTimeout)
	if err != nil {
		return nil, nil, err
	}

	bcfg := c.bootstrapConfig(addr)
	result, err := channel.Bootstrap(ctx, addr, topology.ServiceKV.String(), conn, bcfg)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	result.Endpoint.Start()
	raw, err := fetchConfig(ctx, result.Endpoint)
	result.Endpoint.Close()
	if err != nil {
		return nil, nil, err
	}
	bc, err := topology.Parse(raw, originHost)
	if err != nil {
		return nil, nil, err
	}
	return bc, result.ErrorMap, nil
}

func (c *Client) bootstrapConfig(addr string) channel.BootstrapConfig {
	return channel.BootstrapConfig{
		Features:    []codec.Feature{codec.FeatureXError, codec.FeatureCollections, codec.FeatureSnappy, codec.FeatureAltRequests, codec.FeatureDuplex},
		Bucket:      c.cfg.Bucket,
		Username:    c.cfg.Username,
		Password:    c.cfg.Password,
		Credentials: c.cfg.Credentials,
		GSSAPI:      c.cfg.GSSAPI,
		TLSEnabled:  c.cfg.TLSConfig != nil,
		Compression: c.cfg.Compression,
		Deadline:    time.Now().Add(c.cfg.ConnectTimeout),
		MaxInFlight: c.cfg.Pool.MaxInFlight,
	}
}

// fetchConfig issues GET_CONFIG (spec.md §4.3) over an already-bootstrapped
// endpoint and returns the raw JSON payload.
func fetchConfig(ctx context.Context, ep *channel.Endpoint) ([]byte, error) {
	frame, err := ep.Send(ctx, codec.OpGetConfig, 0, 0, 0, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	if status, raw := frame.Status(); status != codec.StatusSuccess {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithStatus(raw)
	}
	return frame.Value, nil
}

// refresh implements dispatcher.ConfigRefresher: it dials a fresh,
// throwaway channel to a node already in the current topology and asks
// for GET_CONFIG, installing the result if newer (spec.md §4.6 step 5).
// With no current config it bootstraps from the seed hosts instead and
// installs the config they return.
func (c *Client) refresh(ctx context.Context) error {
	bc := c.store.Current()
	if bc == nil {
		seeded, _, err := c.bootstrapFromSeeds(ctx)
		if err != nil {
			return err
		}
		c.store.Update(seeded)
		return nil
	}
	for _, idx := range bc.NodesWithService(topology.ServiceKV) {
		node := bc.Nodes[idx]
		addr, ok := node.Address(topology.ServiceKV, c.cfg.TLSConfig != nil)
		if !ok {
			continue
		}
		next, _, err := c.bootstrapOne(ctx, addr, node.Hostname)
		if err != nil {
			continue
		}
		c.store.Update(next)
		return nil
	}
	return corecore.New(corecore.KindServiceNotAvailable)
}

func (c *Client) refreshLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.RefreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
			if err := c.refresh(ctx); err != nil {
				logger.Debug("client: background refresh failed", "error", err)
			}
			cancel()
		}
	}
}

// poolFor implements dispatcher.PoolProvider: one Service Pool per
// (node, service) pair, created and started lazily the first time a
// request routes there.
func (c *Client) poolFor(node string, service topology.ServiceType) (*pool.Pool, error) {
	key := node + "/" + service.String()

	c.poolsMu.Lock()
	if p, ok := c.pools[key]; ok {
		c.poolsMu.Unlock()
		return p, nil
	}
	c.poolsMu.Unlock()

	pcfg := c.cfg.Pool
	if service == topology.ServiceKV || service == topology.ServiceObserve {
		pcfg.Strategy = pool.StrategyFirstAvailable
	} else {
		pcfg.Strategy = pool.StrategyRoundRobin
	}

	p := pool.New(node, service.String(), pcfg, c.dialerFor(node, service))

	c.poolsMu.Lock()
	if existing, ok := c.pools[key]; ok {
		c.poolsMu.Unlock()
		p.Close()
		return existing, nil
	}
	c.pools[key] = p
	c.poolsMu.Unlock()

	if err := p.Start(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

// dialerFor returns a pool.Dialer that opens and bootstraps one fresh
// connection to node for service, each connection running its own
// HELLO/auth/select-bucket sequence (spec.md §4.2, §4.5).
func (c *Client) dialerFor(node string, service topology.ServiceType) pool.Dialer {
	return func(ctx context.Context) (*channel.Endpoint, error) {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
		conn, err := channel.DialTimeout(dialCtx, "tcp", node, c.cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		bcfg := c.bootstrapConfig(node)
		bcfg.Deadline = time.Now().Add(c.cfg.ConnectTimeout)
		result, err := channel.Bootstrap(ctx, node, service.String(), conn, bcfg)
		if err != nil {
			conn.Close()
			return nil, err
		}
		result.Endpoint.Start()
		return result.Endpoint, nil
	}
}

// roundRobinFor implements the per-service RoundRobin lookup the
// Dispatcher needs for non-KV locator resolution (spec.md §4.3), lazily
// allocating one cursor per service type.
func (c *Client) roundRobinFor(service topology.ServiceType) *locator.RoundRobin {
	c.rrMu.Lock()
	defer c.rrMu.Unlock()
	rr, ok := c.rr[service]
	if !ok {
		rr = &locator.RoundRobin{}
		c.rr[service] = rr
	}
	return rr
}
