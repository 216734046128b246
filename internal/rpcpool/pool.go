// Package rpcpool hands out healthy, rate-limited RPC connections over a
// set of configured endpoints with round-robin failover.
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"solana-graph-explorer/internal/observability"
	"solana-graph-explorer/internal/ratelimit"
	"solana-graph-explorer/internal/solana"
)

// Defaults.
const (
	DefaultHealthCheckInterval = 60 * time.Second
	DefaultProbeTimeout        = 5 * time.Second
)

// ErrClosed is returned by Connection after Close.
var ErrClosed = errors.New("connection pool closed")

// ErrNoEndpoints is returned by New when no endpoint URLs are configured.
var ErrNoEndpoints = errors.New("no endpoints configured")

// endpoint is the pool-owned health state for one RPC URL. Nothing
// outside the pool reads or mutates it.
type endpoint struct {
	url         string
	client      solana.Client
	failed      bool
	lastChecked time.Time
}

// Config configures a Pool.
type Config struct {
	// Endpoints are the RPC endpoint URLs, tried in round-robin order.
	Endpoints []string
	// HealthCheckInterval is how often endpoints are re-probed.
	HealthCheckInterval time.Duration
	// ProbeTimeout bounds one liveness probe.
	ProbeTimeout time.Duration
	// Limiter gates admissions per endpoint host. Optional.
	Limiter *ratelimit.Limiter
	// ClientFactory builds a client per URL. Defaults to NewHTTPClient.
	ClientFactory func(url string) solana.Client
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Pool owns a set of endpoints and their health state, and selects a
// healthy, rate-limited connection per request.
type Pool struct {
	endpoints           []*endpoint
	next                int
	lastHealthCheck     time.Time
	healthCheckInterval time.Duration
	probeTimeout        time.Duration
	limiter             *ratelimit.Limiter
	clientFactory       func(url string) solana.Client
	logger              *zap.Logger
	closed              bool

	// now is swappable for tests.
	now func() time.Time

	// The pool serializes selection; probes run outside the critical
	// section so a slow endpoint cannot block other callers' bookkeeping.
	sem chan struct{}
}

// New creates a Pool with one client per endpoint URL.
func New(cfg Config) (*Pool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.ClientFactory == nil {
		cfg.ClientFactory = func(u string) solana.Client {
			return solana.NewHTTPClient(u)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pool{
		healthCheckInterval: cfg.HealthCheckInterval,
		probeTimeout:        cfg.ProbeTimeout,
		limiter:             cfg.Limiter,
		clientFactory:       cfg.ClientFactory,
		logger:              cfg.Logger,
		now:                 time.Now,
		sem:                 make(chan struct{}, 1),
	}

	for _, u := range cfg.Endpoints {
		p.endpoints = append(p.endpoints, &endpoint{
			url:    u,
			client: cfg.ClientFactory(u),
		})
	}

	return p, nil
}

// lock acquires the pool's selection slot, honoring ctx.
func (p *Pool) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) unlock() {
	<-p.sem
}

// Connection returns a healthy, rate-limit-admitted client.
//
// When the health-check interval has elapsed, endpoints are probed in
// round-robin order and the first live one wins; probe failures go into
// the failed set. Otherwise the next non-failed endpoint is returned
// after passing the rate limiter; a rate-limited endpoint is skipped
// rather than waited on. When every endpoint is marked failed the
// failed set is cleared and all clients are rebuilt, so the pool can
// never lock itself out permanently.
func (p *Pool) Connection(ctx context.Context) (solana.Client, error) {
	if err := p.lock(ctx); err != nil {
		return nil, err
	}
	defer p.unlock()

	if p.closed {
		return nil, ErrClosed
	}

	if p.now().Sub(p.lastHealthCheck) >= p.healthCheckInterval {
		return p.probeForHealthy(ctx)
	}
	return p.rotate(ctx)
}

// probeForHealthy scans endpoints round-robin with a cheap liveness call.
func (p *Pool) probeForHealthy(ctx context.Context) (solana.Client, error) {
	p.lastHealthCheck = p.now()

	n := len(p.endpoints)
	for i := 0; i < n; i++ {
		ep := p.endpoints[(p.next+i)%n]

		probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
		err := ep.client.GetHealth(probeCtx)
		cancel()

		ep.lastChecked = p.now()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			ep.failed = true
			p.logger.Warn("endpoint failed health probe",
				zap.String("endpoint", ep.url), zap.Error(err))
			continue
		}

		ep.failed = false
		p.next = (p.next + i + 1) % n
		return ep.client, nil
	}

	// Everything failed: full reset rather than permanent lock-out.
	p.reset()
	return p.endpoints[p.next].client, nil
}

// rotate returns the next non-failed endpoint that the limiter admits.
func (p *Pool) rotate(ctx context.Context) (solana.Client, error) {
	n := len(p.endpoints)
	var lastRateLimit error
	sawLive := false

	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		ep := p.endpoints[idx]
		if ep.failed {
			continue
		}
		sawLive = true

		if p.limiter != nil {
			if err := p.limiter.Acquire(hostKey(ep.url)); err != nil {
				// Exhausted window: try the next endpoint instead of
				// blocking the caller.
				observability.RecordRateLimitHit(hostKey(ep.url))
				lastRateLimit = err
				continue
			}
		}

		p.next = (idx + 1) % n
		return ep.client, nil
	}

	if !sawLive {
		p.reset()
		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)
		return ep.client, nil
	}

	if lastRateLimit != nil {
		return nil, lastRateLimit
	}
	return nil, fmt.Errorf("no endpoint available")
}

// reset clears the failed set and rebuilds every client.
func (p *Pool) reset() {
	observability.RecordPoolReset()
	p.logger.Warn("all endpoints failed, resetting pool",
		zap.Int("endpoints", len(p.endpoints)))
	for _, ep := range p.endpoints {
		ep.failed = false
		ep.lastChecked = time.Time{}
		ep.client = p.clientFactory(ep.url)
	}
	p.next = 0
}

// ReportFailure records an endpoint failure observed by a caller. The
// pool remains the only mutator of endpoint state; callers just report.
func (p *Pool) ReportFailure(ctx context.Context, client solana.Client) {
	if err := p.lock(ctx); err != nil {
		return
	}
	defer p.unlock()

	if p.closed {
		return
	}
	for _, ep := range p.endpoints {
		if ep.client == client {
			ep.failed = true
			ep.lastChecked = p.now()
			observability.RecordEndpointFailure()
			p.logger.Warn("endpoint reported failed", zap.String("endpoint", ep.url))
			return
		}
	}
}

// Healthy returns the number of endpoints not currently marked failed.
func (p *Pool) Healthy(ctx context.Context) int {
	if err := p.lock(ctx); err != nil {
		return 0
	}
	defer p.unlock()

	count := 0
	for _, ep := range p.endpoints {
		if !ep.failed {
			count++
		}
	}
	return count
}

// Close marks the pool unusable. Idempotent.
func (p *Pool) Close() {
	p.sem <- struct{}{}
	defer p.unlock()
	p.closed = true
}

// hostKey derives the rate-limit key for an endpoint URL.
func hostKey(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Hostname() == "" {
		return endpoint
	}
	return parsed.Hostname()
}
