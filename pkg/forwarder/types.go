// Package forwarder sends user-supplied HTTP requests through pool proxies
// with per-proxy retries inside an outer proxy-switch loop.
package forwarder

import (
	"strings"
)

// RequestSpec describes one request to forward. The JSON field names match
// the public API body.
type RequestSpec struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`

	// Params are appended to the URL query string.
	Params map[string]any `json:"params,omitempty"`

	// Data is sent as a form-encoded body. JSON wins when both are present.
	Data map[string]any `json:"data,omitempty"`
	JSON map[string]any `json:"json,omitempty"`

	// Timeout is the per-request timeout in seconds; nil falls back to the
	// configured default.
	Timeout *int `json:"timeout,omitempty"`

	AllowRedirects *bool `json:"allow_redirects,omitempty"`

	// MaxRetries is the legacy retry knob. When set while MaxProxySwitches
	// is absent, it is treated as the proxy-switch count.
	MaxRetries *int `json:"max_retries,omitempty"`

	MaxRetriesPerProxy *int  `json:"max_retries_per_proxy,omitempty"`
	MaxProxySwitches   *int  `json:"max_proxy_switches,omitempty"`
	RetryOnStatusCodes []int `json:"retry_on_status_codes,omitempty"`
}

// Normalize upper-cases the method, defaulting to GET.
func (s *RequestSpec) Normalize() {
	s.Method = strings.ToUpper(strings.TrimSpace(s.Method))
	if s.Method == "" {
		s.Method = "GET"
	}
}

// Validate reports whether the request can be sent.
func (s *RequestSpec) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return errMissingURL
	}
	switch strings.ToUpper(strings.TrimSpace(s.Method)) {
	case "", "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS":
		return nil
	default:
		return errBadMethod
	}
}

// Response is the outcome of a forwarded request.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Content    string            `json:"content"`
	Encoding   string            `json:"encoding,omitempty"`

	// Elapsed is the duration of the final successful send, in seconds.
	Elapsed float64 `json:"elapsed"`

	// ProxyUsed is the proxy URL the response came through; empty for a
	// direct send.
	ProxyUsed string `json:"proxy_used,omitempty"`
}

// retryPolicy is the resolved retry budget for one forwarding call.
type retryPolicy struct {
	maxProxySwitches   int
	maxRetriesPerProxy int
	retryStatusCodes   map[int]struct{}
	timeoutSeconds     int
	allowRedirects     bool
}
