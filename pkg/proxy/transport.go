package proxy

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"h12.io/socks"
)

// Transport builds an http.Transport that routes through this proxy.
// HTTP and HTTPS proxies go through the standard CONNECT/forwarding path;
// SOCKS4 and SOCKS5 proxies dial through h12.io/socks. Certificate
// verification is disabled: the endpoints reached through free proxies are
// arbitrary public URLs and many proxies re-terminate TLS.
func (p *Proxy) Transport(timeout time.Duration) (*http.Transport, error) {
	t := &http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
		DisableKeepAlives: true,
	}

	switch p.Protocol {
	case ProtocolHTTP, ProtocolHTTPS:
		u, err := url.Parse(p.URL())
		if err != nil {
			return nil, fmt.Errorf("proxy url: %w", err)
		}
		t.Proxy = http.ProxyURL(u)
	case ProtocolSOCKS4, ProtocolSOCKS5:
		t.Dial = socks.Dial(fmt.Sprintf("%s?timeout=%s", p.URL(), timeout))
	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", p.Protocol)
	}

	return t, nil
}

// Client builds an http.Client bound to this proxy. When followRedirects is
// false the client returns the first response as-is.
func (p *Proxy) Client(timeout time.Duration, followRedirects bool) (*http.Client, error) {
	transport, err := p.Transport(timeout)
	if err != nil {
		return nil, err
	}

	c := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
	if !followRedirects {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c, nil
}
