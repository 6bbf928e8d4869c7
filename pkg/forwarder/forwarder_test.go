package forwarder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/proxy"
)

func testConfig() config.RequestConfig {
	return config.RequestConfig{
		Timeout:            30 * time.Second,
		MaxRetries:         3,
		MaxRetriesPerProxy: 3,
		MaxProxySwitches:   5,
	}
}

func intp(i int) *int { return &i }

func mkProxy(id, host string) *proxy.Proxy {
	return &proxy.Proxy{ID: id, Host: host, Port: 8080, Protocol: proxy.ProtocolHTTP, IsValid: true}
}

// pickerOf returns a PickFunc yielding the given proxies in order, then nil.
func pickerOf(proxies ...*proxy.Proxy) PickFunc {
	i := 0
	return func() *proxy.Proxy {
		if i >= len(proxies) {
			return nil
		}
		p := proxies[i]
		i++
		return p
	}
}

func TestForwardSuccessFirstTry(t *testing.T) {
	f := New(testConfig(), nil)

	calls := 0
	f.send = func(ctx context.Context, spec *RequestSpec, p *proxy.Proxy, pol retryPolicy) (*Response, error) {
		calls++
		return &Response{StatusCode: 200, ProxyUsed: p.URL()}, nil
	}

	marked := []string{}
	resp, err := f.Forward(context.Background(),
		&RequestSpec{URL: "https://example.test/ok", Method: "GET"},
		pickerOf(mkProxy("p1", "p1")),
		func(id string) { marked = append(marked, id) },
	)

	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.ProxyUsed != "http://p1:8080" {
		t.Errorf("proxy_used = %q", resp.ProxyUsed)
	}
	if calls != 1 {
		t.Errorf("send calls = %d, want 1", calls)
	}
	if len(marked) != 0 {
		t.Errorf("no proxy should be marked invalid, got %v", marked)
	}
}

func TestForwardRetryOnStatusSwitchesProxy(t *testing.T) {
	f := New(testConfig(), nil)

	perProxy := map[string]int{}
	f.send = func(ctx context.Context, spec *RequestSpec, p *proxy.Proxy, pol retryPolicy) (*Response, error) {
		perProxy[p.ID]++
		if p.ID == "p1" {
			return &Response{StatusCode: 503, ProxyUsed: p.URL()}, nil
		}
		return &Response{StatusCode: 200, ProxyUsed: p.URL()}, nil
	}

	var marked []string
	resp, err := f.Forward(context.Background(),
		&RequestSpec{
			URL: "https://example.test/flaky", Method: "GET",
			RetryOnStatusCodes: []int{503},
			MaxRetriesPerProxy: intp(2),
			MaxProxySwitches:   intp(2),
		},
		pickerOf(mkProxy("p1", "p1"), mkProxy("p2", "p2")),
		func(id string) { marked = append(marked, id) },
	)

	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if perProxy["p1"] != 2 || perProxy["p2"] != 1 {
		t.Errorf("attempt distribution = %v, want p1:2 p2:1", perProxy)
	}
	if len(marked) != 1 || marked[0] != "p1" {
		t.Errorf("marked = %v, want [p1]", marked)
	}
}

func TestForwardExhaustion(t *testing.T) {
	f := New(testConfig(), nil)

	total := 0
	f.send = func(ctx context.Context, spec *RequestSpec, p *proxy.Proxy, pol retryPolicy) (*Response, error) {
		total++
		return &Response{StatusCode: 503, ProxyUsed: p.URL()}, nil
	}

	var marked []string
	_, err := f.Forward(context.Background(),
		&RequestSpec{
			URL: "https://example.test/dead", Method: "GET",
			RetryOnStatusCodes: []int{503},
			MaxRetriesPerProxy: intp(2),
			MaxProxySwitches:   intp(2),
		},
		pickerOf(mkProxy("p1", "p1"), mkProxy("p2", "p2")),
		func(id string) { marked = append(marked, id) },
	)

	if err == nil {
		t.Fatal("expected exhaustion error")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if exhausted.TotalAttempts != 4 {
		t.Errorf("total attempts = %d, want 4", exhausted.TotalAttempts)
	}
	if exhausted.LastStatus != 503 {
		t.Errorf("last status = %d, want 503", exhausted.LastStatus)
	}
	if !strings.Contains(err.Error(), "请求失败") {
		t.Errorf("error message missing failure text: %s", err)
	}
	if len(marked) != 2 {
		t.Errorf("both proxies should be marked, got %v", marked)
	}
}

func TestForwardNoRetrySetReturnsErrorStatus(t *testing.T) {
	f := New(testConfig(), nil)

	calls := 0
	f.send = func(ctx context.Context, spec *RequestSpec, p *proxy.Proxy, pol retryPolicy) (*Response, error) {
		calls++
		return &Response{StatusCode: 500, ProxyUsed: p.URL()}, nil
	}

	resp, err := f.Forward(context.Background(),
		&RequestSpec{URL: "https://example.test/500", Method: "GET"},
		pickerOf(mkProxy("p1", "p1")),
		func(string) {},
	)

	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500 passed through", resp.StatusCode)
	}
	if calls != 1 {
		t.Errorf("a 500 without retry set must not retry, calls = %d", calls)
	}
}

func TestForwardDirectFallbackWhenPoolEmpty(t *testing.T) {
	f := New(testConfig(), nil)

	direct := 0
	f.send = func(ctx context.Context, spec *RequestSpec, p *proxy.Proxy, pol retryPolicy) (*Response, error) {
		if p != nil {
			t.Fatal("expected direct send")
		}
		direct++
		return &Response{StatusCode: 200}, nil
	}

	resp, err := f.Forward(context.Background(),
		&RequestSpec{URL: "https://example.test/ok", Method: "GET"},
		func() *proxy.Proxy { return nil },
		func(string) {},
	)

	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if resp.ProxyUsed != "" {
		t.Errorf("direct send must report empty proxy_used, got %q", resp.ProxyUsed)
	}
	if direct != 1 {
		t.Errorf("direct sends = %d, want 1", direct)
	}
}

func TestForwardDirectFailureAdvancesSlot(t *testing.T) {
	f := New(testConfig(), nil)

	var sends []string
	p2 := mkProxy("p2", "p2")
	picks := 0
	pick := func() *proxy.Proxy {
		picks++
		if picks == 1 {
			return nil // pool empty on the first slot
		}
		return p2 // refilled meanwhile
	}

	f.send = func(ctx context.Context, spec *RequestSpec, p *proxy.Proxy, pol retryPolicy) (*Response, error) {
		if p == nil {
			sends = append(sends, "direct")
			return nil, errors.New("connection refused")
		}
		sends = append(sends, p.ID)
		return &Response{StatusCode: 200, ProxyUsed: p.URL()}, nil
	}

	resp, err := f.Forward(context.Background(),
		&RequestSpec{URL: "https://example.test/ok", Method: "GET"},
		pick,
		func(string) {},
	)

	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if resp.ProxyUsed != "http://p2:8080" {
		t.Errorf("proxy_used = %q", resp.ProxyUsed)
	}
	want := []string{"direct", "p2"}
	if len(sends) != 2 || sends[0] != want[0] || sends[1] != want[1] {
		t.Errorf("send order = %v, want %v", sends, want)
	}
}

func TestForwardAttemptBound(t *testing.T) {
	f := New(testConfig(), nil)

	total := 0
	f.send = func(ctx context.Context, spec *RequestSpec, p *proxy.Proxy, pol retryPolicy) (*Response, error) {
		total++
		return nil, errors.New("dead proxy")
	}

	supply := []*proxy.Proxy{mkProxy("a", "a"), mkProxy("b", "b"), mkProxy("c", "c"), mkProxy("d", "d"), mkProxy("e", "e")}
	_, err := f.Forward(context.Background(),
		&RequestSpec{URL: "https://example.test/x", Method: "GET"},
		pickerOf(supply...),
		func(string) {},
	)

	if err == nil {
		t.Fatal("expected error")
	}
	if max := 5 * 3; total > max {
		t.Errorf("attempts = %d exceeds bound %d", total, max)
	}
}

func TestForwardMarksAtMostOnePerSlot(t *testing.T) {
	f := New(testConfig(), nil)

	f.send = func(ctx context.Context, spec *RequestSpec, p *proxy.Proxy, pol retryPolicy) (*Response, error) {
		return nil, errors.New("dead")
	}

	counts := map[string]int{}
	_, _ = f.Forward(context.Background(),
		&RequestSpec{URL: "https://example.test/x", Method: "GET", MaxProxySwitches: intp(2)},
		pickerOf(mkProxy("p1", "p1"), mkProxy("p2", "p2")),
		func(id string) { counts[id]++ },
	)

	for id, n := range counts {
		if n > 1 {
			t.Errorf("proxy %s marked invalid %d times", id, n)
		}
	}
	if len(counts) != 2 {
		t.Errorf("expected both slots to mark their proxy, got %v", counts)
	}
}

func TestLegacyMaxRetriesMapsToSwitches(t *testing.T) {
	f := New(testConfig(), nil)

	pol := f.resolvePolicy(&RequestSpec{MaxRetries: intp(2)})
	if pol.maxProxySwitches != 2 {
		t.Errorf("legacy max_retries not mapped: switches = %d", pol.maxProxySwitches)
	}

	// Explicit max_proxy_switches wins over the legacy knob.
	pol = f.resolvePolicy(&RequestSpec{MaxRetries: intp(2), MaxProxySwitches: intp(7)})
	if pol.maxProxySwitches != 7 {
		t.Errorf("explicit switches overridden: %d", pol.maxProxySwitches)
	}

	pol = f.resolvePolicy(&RequestSpec{})
	if pol.maxProxySwitches != 5 || pol.maxRetriesPerProxy != 3 {
		t.Errorf("defaults not applied: %+v", pol)
	}
}

func TestSpecValidate(t *testing.T) {
	if err := (&RequestSpec{URL: ""}).Validate(); err == nil {
		t.Error("expected error for missing url")
	}
	if err := (&RequestSpec{URL: "https://x", Method: "BREW"}).Validate(); err == nil {
		t.Error("expected error for bad method")
	}
	if err := (&RequestSpec{URL: "https://x", Method: "post"}).Validate(); err != nil {
		t.Errorf("lowercase method should validate: %v", err)
	}

	spec := &RequestSpec{URL: "https://x"}
	spec.Normalize()
	if spec.Method != "GET" {
		t.Errorf("Normalize default method = %q", spec.Method)
	}
}
