package forwarder

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/proxy"
	"github.com/FlickerMi/proxyforge/pkg/telemetry/metrics"
)

// PickFunc selects the next proxy to try; nil means the pool is empty.
type PickFunc func() *proxy.Proxy

// MarkInvalidFunc marks a pool proxy invalid after its retries are spent.
type MarkInvalidFunc func(id string)

// Forwarder sends RequestSpecs through pool proxies with two-level retry:
// an inner loop reuses one proxy, an outer loop switches proxies.
type Forwarder struct {
	cfg     config.RequestConfig
	metrics *metrics.Collector

	// send is replaceable in tests.
	send func(ctx context.Context, spec *RequestSpec, p *proxy.Proxy, pol retryPolicy) (*Response, error)
}

// New creates a forwarder. metrics may be nil.
func New(cfg config.RequestConfig, collector *metrics.Collector) *Forwarder {
	f := &Forwarder{cfg: cfg, metrics: collector}
	f.send = f.doSend
	return f
}

// resolvePolicy merges per-request knobs with configured defaults, honoring
// the legacy max_retries alias for the switch count.
func (f *Forwarder) resolvePolicy(spec *RequestSpec) retryPolicy {
	pol := retryPolicy{
		maxProxySwitches:   f.cfg.MaxProxySwitches,
		maxRetriesPerProxy: f.cfg.MaxRetriesPerProxy,
		timeoutSeconds:     int(f.cfg.Timeout.Seconds()),
		allowRedirects:     true,
	}

	if spec.MaxProxySwitches != nil {
		pol.maxProxySwitches = *spec.MaxProxySwitches
	} else if spec.MaxRetries != nil {
		// Backward compatibility: the legacy knob steered proxy switching.
		pol.maxProxySwitches = *spec.MaxRetries
	}
	if spec.MaxRetriesPerProxy != nil {
		pol.maxRetriesPerProxy = *spec.MaxRetriesPerProxy
	}
	if spec.Timeout != nil && *spec.Timeout > 0 {
		pol.timeoutSeconds = *spec.Timeout
	}
	if spec.AllowRedirects != nil {
		pol.allowRedirects = *spec.AllowRedirects
	}
	if len(spec.RetryOnStatusCodes) > 0 {
		pol.retryStatusCodes = make(map[int]struct{}, len(spec.RetryOnStatusCodes))
		for _, code := range spec.RetryOnStatusCodes {
			pol.retryStatusCodes[code] = struct{}{}
		}
	}

	return pol
}

// Forward runs the retry-switch loop for one request. pick is consulted once
// per slot; a proxy whose inner retries are all spent is reported through
// markInvalid. When pick returns nil the slot falls back to a direct send.
//
// Attempts within one call are strictly sequential. The total number of
// send attempts is bounded by maxProxySwitches × maxRetriesPerProxy.
func (f *Forwarder) Forward(ctx context.Context, spec *RequestSpec, pick PickFunc, markInvalid MarkInvalidFunc) (*Response, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	pol := f.resolvePolicy(spec)

	start := time.Now()
	defer func() {
		f.metrics.RecordForwardDuration(time.Since(start))
	}()

	var (
		lastErr       error
		lastKind      string
		lastStatus    int
		totalAttempts int
	)

	slog.Info("forwarding request",
		"method", spec.Method,
		"url", spec.URL,
		"max_proxy_switches", pol.maxProxySwitches,
		"max_retries_per_proxy", pol.maxRetriesPerProxy,
	)

	for slot := 1; slot <= pol.maxProxySwitches; slot++ {
		p := pick()

		if p == nil {
			// No proxy available: try sending directly. Success
			// short-circuits everything; failure moves to the next slot,
			// where the pool may have refilled.
			slog.Warn("no proxy available, attempting direct send", "slot", slot, "url", spec.URL)
			resp, err := f.send(ctx, spec, nil, pol)
			if err == nil {
				f.metrics.RecordForwardAttempt("success")
				return resp, nil
			}
			kind := classify(err)
			lastErr, lastKind = err, kindName(kind, err)
			f.metrics.RecordForwardAttempt(string(kind))
			slog.Warn("direct send failed", "slot", slot, "kind", lastKind, "error", err)
			continue
		}

		slog.Info("trying proxy", "slot", slot, "proxy", p.Redacted())

		proxyFailed := false
		for retry := 1; retry <= pol.maxRetriesPerProxy; retry++ {
			totalAttempts++

			resp, err := f.send(ctx, spec, p, pol)
			if err == nil {
				if _, retryable := pol.retryStatusCodes[resp.StatusCode]; retryable {
					lastStatus = resp.StatusCode
					lastKind = string(KindRetryStatus)
					lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
					f.metrics.RecordForwardAttempt(string(KindRetryStatus))
					slog.Warn("status code in retry set",
						"slot", slot, "retry", retry,
						"proxy", p.Redacted(), "status", resp.StatusCode,
					)
					if retry == pol.maxRetriesPerProxy {
						proxyFailed = true
						break
					}
					continue
				}

				f.metrics.RecordForwardAttempt("success")
				slog.Info("request forwarded",
					"attempts", totalAttempts,
					"proxy", p.Redacted(),
					"status", resp.StatusCode,
				)
				return resp, nil
			}

			kind := classify(err)
			lastErr, lastKind = err, kindName(kind, err)
			f.metrics.RecordForwardAttempt(string(kind))
			slog.Warn("send attempt failed",
				"slot", slot, "retry", retry,
				"proxy", p.Redacted(), "kind", lastKind, "error", err,
			)

			if retry == pol.maxRetriesPerProxy {
				proxyFailed = true
			}
		}

		if proxyFailed {
			markInvalid(p.ID)
			slog.Info("proxy exhausted, marked invalid", "slot", slot, "proxy", p.Redacted())
		}
	}

	exhausted := &ExhaustedError{
		ProxySwitches: pol.maxProxySwitches,
		TotalAttempts: totalAttempts,
		LastErrorType: lastKind,
		LastErr:       lastErr,
		LastStatus:    lastStatus,
	}
	slog.Error("all forwarding attempts failed",
		"url", spec.URL,
		"proxy_switches", pol.maxProxySwitches,
		"attempts", totalAttempts,
		"last_kind", lastKind,
		"error", lastErr,
	)
	return nil, exhausted
}

// doSend performs one HTTP round-trip, through p when non-nil.
func (f *Forwarder) doSend(ctx context.Context, spec *RequestSpec, p *proxy.Proxy, pol retryPolicy) (*Response, error) {
	timeout := time.Duration(pol.timeoutSeconds) * time.Second

	client, err := f.clientFor(p, timeout, pol.allowRedirects)
	if err != nil {
		return nil, err
	}
	defer client.CloseIdleConnections()

	req, err := buildRequest(ctx, spec)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	out := &Response{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Content:    string(body),
		Encoding:   responseEncoding(resp.Header.Get("Content-Type")),
		Elapsed:    elapsed.Seconds(),
	}
	if p != nil {
		out.ProxyUsed = p.URL()
	}
	return out, nil
}

// clientFor builds the HTTP client for one attempt: proxied when p is
// non-nil, direct otherwise.
func (f *Forwarder) clientFor(p *proxy.Proxy, timeout time.Duration, followRedirects bool) (*http.Client, error) {
	if p != nil {
		return p.Client(timeout, followRedirects)
	}

	c := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	if !followRedirects {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c, nil
}

// buildRequest assembles the outgoing request: query params merged into the
// URL, JSON body winning over form data when both are present.
func buildRequest(ctx context.Context, spec *RequestSpec) (*http.Request, error) {
	target, err := url.Parse(spec.URL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if len(spec.Params) > 0 {
		q := target.Query()
		for key, val := range spec.Params {
			q.Set(key, fmt.Sprint(val))
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case spec.JSON != nil:
		data, err := json.Marshal(spec.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode json body: %w", err)
		}
		body = strings.NewReader(string(data))
		contentType = "application/json"
	case spec.Data != nil:
		form := url.Values{}
		for key, val := range spec.Data {
			form.Set(key, fmt.Sprint(val))
		}
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, val := range spec.Headers {
		req.Header.Set(key, val)
	}
	return req, nil
}

// flattenHeaders joins multi-valued headers into the flat mapping the API
// exposes.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, vals := range h {
		out[key] = strings.Join(vals, ", ")
	}
	return out
}

// responseEncoding extracts the charset parameter of a Content-Type header.
func responseEncoding(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
