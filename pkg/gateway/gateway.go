// Package gateway is the HTTP API surface over the pool and the forwarder.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/fetcher"
	"github.com/FlickerMi/proxyforge/pkg/forwarder"
	"github.com/FlickerMi/proxyforge/pkg/gateway/middleware"
	"github.com/FlickerMi/proxyforge/pkg/proxy"
	"github.com/FlickerMi/proxyforge/pkg/telemetry/health"
	"github.com/FlickerMi/proxyforge/pkg/telemetry/metrics"
)

// PoolService is the pool surface the gateway consumes.
type PoolService interface {
	GetAllProxies() []*proxy.Proxy
	GetValidProxies() []*proxy.Proxy
	GetFastest() *proxy.Proxy
	RemoveProxy(id string) bool
	MarkInvalid(id string)
	Stats() proxy.Stats
	UpdatePool(ctx context.Context, target, maxAttempts, fetchMultiplier int)
	Ready() bool
}

// SourceTester probes every listing source once. Implemented by
// fetcher.Fetcher.
type SourceTester interface {
	TestSources(ctx context.Context) *fetcher.TestReport
}

// RequestForwarder runs the retry-switch loop for one request. Implemented
// by forwarder.Forwarder.
type RequestForwarder interface {
	Forward(ctx context.Context, spec *forwarder.RequestSpec, pick forwarder.PickFunc, markInvalid forwarder.MarkInvalidFunc) (*forwarder.Response, error)
}

// Info describes the service for the banner endpoint.
type Info struct {
	Name        string
	Version     string
	Description string
	Docs        string
}

// Gateway wires the HTTP handlers to their collaborators.
type Gateway struct {
	pool      PoolService
	sources   SourceTester
	forwarder RequestForwarder
	checker   *health.Checker
	metrics   *metrics.Collector
	cfg       *config.Config
	info      Info
}

// New creates a gateway. metrics may be nil.
func New(cfg *config.Config, pool PoolService, sources SourceTester, fwd RequestForwarder, collector *metrics.Collector, info Info) *Gateway {
	checker := health.New(0)
	checker.RegisterCheck("proxy_pool", func(ctx context.Context) error {
		if !pool.Ready() {
			return fmt.Errorf("no valid proxies in pool")
		}
		return nil
	})

	return &Gateway{
		pool:      pool,
		sources:   sources,
		forwarder: fwd,
		checker:   checker,
		metrics:   collector,
		cfg:       cfg,
		info:      info,
	}
}

// Routes assembles the route table and middleware chain.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/proxy/list", g.handleList)
	mux.HandleFunc("GET /api/proxy/random", g.handleRandom)
	mux.HandleFunc("GET /api/proxy/stats", g.handleStats)
	mux.HandleFunc("GET /api/proxy/test-sources", g.handleTestSources)
	mux.HandleFunc("POST /api/proxy/update", g.handleUpdate)
	mux.HandleFunc("DELETE /api/proxy/{id}", g.handleDelete)
	mux.HandleFunc("POST /api/request", g.handleRequest)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /ready", g.handleReady)
	mux.HandleFunc("GET /{$}", g.handleBanner)

	if g.cfg.Metrics.Enabled && g.metrics != nil {
		mux.Handle("GET "+g.cfg.Metrics.Path, g.metrics.Handler())
	}

	var handler http.Handler = mux
	if g.cfg.CORS.Enabled {
		handler = middleware.CORS(g.cfg.CORS.AllowedOrigins)(handler)
	}
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)
	return handler
}
