// Package validator probes candidate proxies against a verification URL and
// records their latency.
package validator

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/proxy"
	"github.com/FlickerMi/proxyforge/pkg/telemetry/metrics"
)

// Validator issues liveness probes through candidate proxies.
type Validator struct {
	url         string
	timeout     time.Duration
	concurrency int
	metrics     *metrics.Collector

	// probe is replaceable in tests.
	probe func(ctx context.Context, p *proxy.Proxy) error
}

// New creates a validator from configuration. metrics may be nil.
func New(cfg config.ValidatorConfig, collector *metrics.Collector) *Validator {
	v := &Validator{
		url:         cfg.URL,
		timeout:     cfg.Timeout,
		concurrency: cfg.Concurrency,
		metrics:     collector,
	}
	v.probe = v.httpProbe
	return v
}

// Probe validates a single proxy in place. On HTTP 200 the proxy becomes
// valid and its speed is set to the probe latency; on any other status or
// error it becomes invalid and keeps its previous speed. LastChecked is
// always updated.
func (v *Validator) Probe(ctx context.Context, p *proxy.Proxy) {
	start := time.Now()
	err := v.probe(ctx, p)
	elapsed := time.Since(start)

	now := time.Now()
	p.LastChecked = &now

	if err != nil {
		p.IsValid = false
		v.metrics.RecordValidation(false, elapsed)
		slog.Debug("proxy validation failed", "proxy", p.Redacted(), "error", err)
		return
	}

	p.IsValid = true
	speed := elapsed.Seconds()
	p.Speed = &speed
	v.metrics.RecordValidation(true, elapsed)
	slog.Debug("proxy validated", "proxy", p.Redacted(), "speed", speed)
}

// httpProbe issues the verification GET through the proxy. Any non-200
// status is a failure.
func (v *Validator) httpProbe(ctx context.Context, p *proxy.Proxy) error {
	client, err := p.Client(v.timeout, true)
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// statusError reports a probe that connected but answered with a non-200.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}

// Validate probes the given proxies with at most concurrency probes in
// flight (0 falls back to the configured default). Fields are mutated in
// place and the input slice is returned. Individual failures never abort
// the batch, and callers must not depend on completion order.
func (v *Validator) Validate(ctx context.Context, proxies []*proxy.Proxy, concurrency int) []*proxy.Proxy {
	if len(proxies) == 0 {
		return proxies
	}
	if concurrency <= 0 {
		concurrency = v.concurrency
	}

	slog.Info("validating proxies", "count", len(proxies), "concurrency", concurrency)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, p := range proxies {
		wg.Add(1)
		go func(p *proxy.Proxy) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			v.Probe(ctx, p)
		}(p)
	}
	wg.Wait()

	valid := 0
	for _, p := range proxies {
		if p.IsValid {
			valid++
		}
	}
	slog.Info("validation finished", "valid", valid, "total", len(proxies))

	return proxies
}

// GetValid probes the given proxies and returns only those that validated.
func (v *Validator) GetValid(ctx context.Context, proxies []*proxy.Proxy, concurrency int) []*proxy.Proxy {
	v.Validate(ctx, proxies, concurrency)

	var valid []*proxy.Proxy
	for _, p := range proxies {
		if p.IsValid {
			valid = append(valid, p)
		}
	}
	return valid
}
