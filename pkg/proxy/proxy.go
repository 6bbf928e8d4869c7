// Package proxy defines the proxy entity shared by the fetcher, validator,
// pool, and forwarder.
package proxy

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Protocol is the scheme a proxy speaks.
type Protocol string

const (
	// ProtocolHTTP is a plain HTTP proxy.
	ProtocolHTTP Protocol = "http"
	// ProtocolHTTPS is an HTTP proxy reached over TLS.
	ProtocolHTTPS Protocol = "https"
	// ProtocolSOCKS4 is a SOCKS version 4 proxy.
	ProtocolSOCKS4 Protocol = "socks4"
	// ProtocolSOCKS5 is a SOCKS version 5 proxy.
	ProtocolSOCKS5 Protocol = "socks5"
)

// ParseProtocol normalizes a protocol string. Unknown values fall back to
// http, matching how free listing sites label their entries.
func ParseProtocol(s string) Protocol {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "https":
		return ProtocolHTTPS
	case "socks4", "socks4a":
		return ProtocolSOCKS4
	case "socks5", "socks5h":
		return ProtocolSOCKS5
	default:
		return ProtocolHTTP
	}
}

// Proxy is a single relay endpoint. A proxy without an ID has not been
// admitted to the pool yet. IsValid starts optimistic and is overwritten by
// every validation attempt.
type Proxy struct {
	ID       string   `json:"id,omitempty"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Protocol Protocol `json:"protocol"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	Country   string `json:"country,omitempty"`
	Anonymity string `json:"anonymity,omitempty"`
	Source    string `json:"source,omitempty"`

	// Speed is the latency of the most recent successful probe, in seconds.
	// Nil until a probe has succeeded.
	Speed *float64 `json:"speed"`

	// LastChecked is the time of the last validation attempt, successful or not.
	LastChecked *time.Time `json:"last_checked"`

	IsValid bool `json:"is_valid"`
}

// URL renders the proxy as {protocol}://[{user}:{pass}@]{host}:{port}.
// Deduplication and pool uniqueness key on this string.
func (p *Proxy) URL() string {
	if p.Username != "" && p.Password != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d", p.Protocol, p.Username, p.Password, p.Host, p.Port)
	}
	return fmt.Sprintf("%s://%s:%d", p.Protocol, p.Host, p.Port)
}

// Redacted renders the proxy URL with credentials masked, for logs.
func (p *Proxy) Redacted() string {
	if p.Username != "" && p.Password != "" {
		return fmt.Sprintf("%s://***:***@%s:%d", p.Protocol, p.Host, p.Port)
	}
	return p.URL()
}

// Clone returns a copy of the proxy. Timestamps and speed are copied by
// value so the clone can be mutated independently.
func (p *Proxy) Clone() *Proxy {
	c := *p
	if p.Speed != nil {
		speed := *p.Speed
		c.Speed = &speed
	}
	if p.LastChecked != nil {
		t := *p.LastChecked
		c.LastChecked = &t
	}
	return &c
}

// Parse builds a Proxy from a proxy URL. It accepts bare "host:port" lines
// (assumed http) as emitted by plain-text listing sources.
func Parse(raw string) (*Proxy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty proxy address")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy address %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("proxy address %q has no host", raw)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("proxy address %q has invalid port", raw)
	}

	p := &Proxy{
		Host:     u.Hostname(),
		Port:     port,
		Protocol: ParseProtocol(u.Scheme),
		IsValid:  true,
	}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	return p, nil
}

// Stats summarizes the pool contents.
type Stats struct {
	TotalProxies   int        `json:"total_proxies"`
	ValidProxies   int        `json:"valid_proxies"`
	InvalidProxies int        `json:"invalid_proxies"`
	LastUpdate     *time.Time `json:"last_update"`
	// AvgSpeed is the mean probe latency over valid proxies with a known
	// speed, in seconds. Nil when no valid proxy has been probed.
	AvgSpeed *float64 `json:"avg_speed"`
}
