// Package pool manages the set of Endpoints open to one (node, service)
// pair: bounded growth, idle reaping, and the per-service selection
// strategy a dispatcher uses to pick one for a request (spec.md §4.5
// "Service Pool").
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/avsej/gocbcore-lite/channel"
	"github.com/avsej/gocbcore-lite/corecore"
	"github.com/avsej/gocbcore-lite/internal/logger"
	"github.com/avsej/gocbcore-lite/metrics"
)

// Strategy selects one endpoint from a pool's live set for a request.
type Strategy int

const (
	// StrategyFirstAvailable picks the endpoint with the fewest in-flight
	// requests, used for KV where per-connection pipelining is cheap and
	// ordering doesn't matter (spec.md §4.5).
	StrategyFirstAvailable Strategy = iota
	// StrategyRoundRobin cycles through endpoints in turn, used for every
	// non-KV service.
	StrategyRoundRobin
)

// Dialer opens and bootstraps one new connection to the pool's node and
// service, returning a ready-to-Start Endpoint. Pools never open sockets
// themselves; this is injected so tests can fake connection establishment.
type Dialer func(ctx context.Context) (*channel.Endpoint, error)

// Config bounds one pool's size and idle behavior.
type Config struct {
	MinEndpoints int
	MaxEndpoints int
	Strategy     Strategy
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	// MaxInFlight is the per-connection in-flight cap FirstAvailable
	// compares against to decide saturation (spec.md §4.5): the pool
	// only grows, or backpressures at MaxEndpoints, once every live
	// endpoint has reached this many outstanding requests. Zero means
	// endpoints are never considered saturated by the pool itself (the
	// cap is still enforced per-endpoint by channel.pendingTable).
	MaxInFlight int
}

// Pool is the live endpoint set for one (node, service) pair.
type Pool struct {
	Node    string
	Service string

	cfg     Config
	dial    Dialer
	mu      sync.Mutex
	conns   []*entry
	rrPos   int
	breaker *circuitBreaker
	metrics metrics.KVMetrics

	closeOnce sync.Once
	stopReap  chan struct{}
}

type entry struct {
	ep       *channel.Endpoint
	lastUsed time.Time
}

// New constructs a pool for node/service. Call Start to launch background
// reaping and establish the minimum connection count.
func New(node, service string, cfg Config, dial Dialer) *Pool {
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}
	return &Pool{
		Node:     node,
		Service:  service,
		cfg:      cfg,
		dial:     dial,
		breaker:  newCircuitBreaker(5, 10*time.Second),
		metrics:  metrics.NewKVMetrics(),
		stopReap: make(chan struct{}),
	}
}

// Start warms the pool up to MinEndpoints and launches the idle reaper
// ticker loop.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	need := p.cfg.MinEndpoints - len(p.conns)
	p.mu.Unlock()
	for i := 0; i < need; i++ {
		if _, err := p.grow(ctx); err != nil {
			return err
		}
	}
	go p.reapLoop()
	return nil
}

// Acquire returns an endpoint selected per the pool's strategy. It grows
// the pool when there is no live endpoint, or, under FirstAvailable, when
// every live endpoint has reached Config.MaxInFlight and the pool is below
// MaxEndpoints.
func (p *Pool) Acquire(ctx context.Context) (*channel.Endpoint, error) {
	p.mu.Lock()
	p.pruneClosedLocked()
	live := p.conns
	p.mu.Unlock()

	if len(live) == 0 {
		return p.grow(ctx)
	}

	switch p.cfg.Strategy {
	case StrategyFirstAvailable:
		return p.pickFirstAvailable(ctx, live)
	default:
		return p.pickRoundRobin(live), nil
	}
}

// pickFirstAvailable returns the least-loaded live endpoint below its
// per-connection in-flight cap. Only once every live endpoint has reached
// that cap does it try to grow, and only once growth is also exhausted
// (MaxEndpoints reached) does it report saturation to the caller, rather
// than handing back an already-saturated endpoint (spec.md §4.5).
func (p *Pool) pickFirstAvailable(ctx context.Context, live []*entry) (*channel.Endpoint, error) {
	limit := p.cfg.MaxInFlight
	var best *entry
	for _, e := range live {
		if limit > 0 && e.ep.InFlight() >= limit {
			continue
		}
		if best == nil || e.ep.InFlight() < best.ep.InFlight() {
			best = e
		}
	}
	if best != nil {
		p.touch(best)
		return best.ep, nil
	}
	if p.cfg.MaxEndpoints <= 0 || len(live) < p.cfg.MaxEndpoints {
		if ep, err := p.grow(ctx); err == nil {
			return ep, nil
		}
	}
	return nil, corecore.New(corecore.KindServiceNotAvailable).WithContext(p.Service, p.Node).WithNotWritten()
}

func (p *Pool) pickRoundRobin(live []*entry) *channel.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(live) == 0 {
		return nil
	}
	p.rrPos = (p.rrPos + 1) % len(live)
	e := live[p.rrPos]
	e.lastUsed = time.Now()
	return e.ep
}

func (p *Pool) touch(e *entry) {
	p.mu.Lock()
	e.lastUsed = time.Now()
	p.mu.Unlock()
}

func (p *Pool) grow(ctx context.Context) (*channel.Endpoint, error) {
	p.mu.Lock()
	if len(p.conns) >= p.cfg.MaxEndpoints && p.cfg.MaxEndpoints > 0 {
		p.mu.Unlock()
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithContext(p.Service, p.Node).WithNotWritten()
	}
	p.mu.Unlock()

	if !p.breaker.Allow() {
		metrics.RecordCircuitState(p.metrics, p.Node, p.Service, true)
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithContext(p.Service, p.Node).WithNotWritten()
	}

	ep, err := p.dial(ctx)
	if err != nil {
		p.breaker.RecordFailure()
		metrics.RecordCircuitState(p.metrics, p.Node, p.Service, p.breaker.IsOpen())
		return nil, err
	}
	p.breaker.RecordSuccess()
	metrics.RecordCircuitState(p.metrics, p.Node, p.Service, false)
	p.mu.Lock()
	p.conns = append(p.conns, &entry{ep: ep, lastUsed: time.Now()})
	size := len(p.conns)
	p.mu.Unlock()
	metrics.RecordPoolSize(p.metrics, p.Node, p.Service, size)
	return ep, nil
}

// pruneClosedLocked drops endpoints whose connection has already died.
// Callers must hold p.mu.
func (p *Pool) pruneClosedLocked() {
	live := p.conns[:0]
	for _, e := range p.conns {
		if e.ep.State() != channel.StateClosed {
			live = append(live, e)
		}
	}
	p.conns = live
}

// reapLoop closes idle endpoints above MinEndpoints, grounded on the
// standard ticker-driven background worker shape used across the corpus
// for periodic maintenance tasks.
func (p *Pool) reapLoop() {
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapOnce()
		case <-p.stopReap:
			return
		}
	}
}

func (p *Pool) reapOnce() {
	if p.cfg.IdleTimeout <= 0 {
		return
	}
	now := time.Now()
	p.mu.Lock()
	p.pruneClosedLocked()
	var kept []*entry
	var toClose []*channel.Endpoint
	for _, e := range p.conns {
		if len(kept) >= p.cfg.MinEndpoints && now.Sub(e.lastUsed) > p.cfg.IdleTimeout && e.ep.InFlight() == 0 {
			toClose = append(toClose, e.ep)
			continue
		}
		kept = append(kept, e)
	}
	p.conns = kept
	p.mu.Unlock()

	if len(toClose) > 0 {
		metrics.RecordPoolSize(p.metrics, p.Node, p.Service, len(kept))
	}
	for _, ep := range toClose {
		logger.Debug("pool: reaping idle endpoint", logger.KeyNode, p.Node, logger.KeyService, p.Service)
		ep.Close()
	}
}

// Close tears down every endpoint in the pool and stops the reaper.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.stopReap)
		p.mu.Lock()
		conns := p.conns
		p.conns = nil
		p.mu.Unlock()
		for _, e := range conns {
			e.ep.Close()
		}
	})
}

// Len reports the current live endpoint count, for tests and diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
