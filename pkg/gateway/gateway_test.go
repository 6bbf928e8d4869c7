package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/fetcher"
	"github.com/FlickerMi/proxyforge/pkg/forwarder"
	"github.com/FlickerMi/proxyforge/pkg/proxy"
)

// stubPool implements PoolService.
type stubPool struct {
	all     []*proxy.Proxy
	valid   []*proxy.Proxy
	fastest *proxy.Proxy
	removed map[string]bool
	marked  []string
	updated int
}

func (s *stubPool) GetAllProxies() []*proxy.Proxy   { return s.all }
func (s *stubPool) GetValidProxies() []*proxy.Proxy { return s.valid }
func (s *stubPool) GetFastest() *proxy.Proxy        { return s.fastest }
func (s *stubPool) RemoveProxy(id string) bool      { return s.removed[id] }
func (s *stubPool) MarkInvalid(id string)           { s.marked = append(s.marked, id) }
func (s *stubPool) Ready() bool                     { return len(s.valid) > 0 }
func (s *stubPool) UpdatePool(ctx context.Context, target, maxAttempts, fetchMultiplier int) {
	s.updated++
}
func (s *stubPool) Stats() proxy.Stats {
	return proxy.Stats{
		TotalProxies:   len(s.all),
		ValidProxies:   len(s.valid),
		InvalidProxies: len(s.all) - len(s.valid),
	}
}

// stubTester implements SourceTester.
type stubTester struct {
	report *fetcher.TestReport
}

func (s *stubTester) TestSources(ctx context.Context) *fetcher.TestReport { return s.report }

// stubForwarder implements RequestForwarder.
type stubForwarder struct {
	resp *forwarder.Response
	err  error
}

func (s *stubForwarder) Forward(ctx context.Context, spec *forwarder.RequestSpec, pick forwarder.PickFunc, markInvalid forwarder.MarkInvalidFunc) (*forwarder.Response, error) {
	return s.resp, s.err
}

func testGateway(p *stubPool, tester *stubTester, fwd *stubForwarder) http.Handler {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	if tester == nil {
		tester = &stubTester{report: &fetcher.TestReport{}}
	}
	if fwd == nil {
		fwd = &stubForwarder{}
	}
	g := New(cfg, p, tester, fwd, nil, Info{
		Name:        "ProxyForge",
		Version:     "0.1.0",
		Description: "代理服务 API",
		Docs:        "/docs",
	})
	return g.Routes()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var envelope APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	return rec, envelope
}

func mkValid(id, host string, speed float64) *proxy.Proxy {
	return &proxy.Proxy{ID: id, Host: host, Port: 8080, Protocol: proxy.ProtocolHTTP, Speed: &speed, IsValid: true}
}

func TestListDefaultsToValidOnly(t *testing.T) {
	p := &stubPool{
		all:   []*proxy.Proxy{mkValid("a", "1.1.1.1", 0.1), {ID: "b", Host: "2.2.2.2", Port: 80, Protocol: proxy.ProtocolHTTP}},
		valid: []*proxy.Proxy{mkValid("a", "1.1.1.1", 0.1)},
	}
	h := testGateway(p, nil, nil)

	rec, envelope := doRequest(t, h, "GET", "/api/proxy/list", "")
	if rec.Code != http.StatusOK || !envelope.Success {
		t.Fatalf("status=%d envelope=%+v", rec.Code, envelope)
	}
	data := envelope.Data.([]any)
	if len(data) != 1 {
		t.Errorf("default list should be valid-only, got %d entries", len(data))
	}

	_, envelope = doRequest(t, h, "GET", "/api/proxy/list?valid_only=false", "")
	if len(envelope.Data.([]any)) != 2 {
		t.Errorf("valid_only=false should return everything")
	}

	_, envelope = doRequest(t, h, "GET", "/api/proxy/list?valid_only=false&limit=1", "")
	if len(envelope.Data.([]any)) != 1 {
		t.Errorf("limit not applied")
	}
}

func TestRandomReturnsFastest(t *testing.T) {
	p := &stubPool{fastest: mkValid("a", "1.1.1.1", 0.1)}
	h := testGateway(p, nil, nil)

	rec, envelope := doRequest(t, h, "GET", "/api/proxy/random", "")
	if rec.Code != http.StatusOK || !envelope.Success {
		t.Fatalf("status=%d envelope=%+v", rec.Code, envelope)
	}
	data := envelope.Data.(map[string]any)
	if data["id"] != "a" {
		t.Errorf("unexpected proxy: %v", data)
	}
}

func TestRandomEmptyPool(t *testing.T) {
	h := testGateway(&stubPool{}, nil, nil)

	rec, envelope := doRequest(t, h, "GET", "/api/proxy/random", "")
	if rec.Code != http.StatusOK {
		t.Errorf("empty pool is an expected failure, status = %d", rec.Code)
	}
	if envelope.Success {
		t.Error("success should be false for empty pool")
	}
	if envelope.Message != "没有可用代理" {
		t.Errorf("message = %q", envelope.Message)
	}
}

func TestStats(t *testing.T) {
	p := &stubPool{
		all:   []*proxy.Proxy{mkValid("a", "1.1.1.1", 0.1), {ID: "b", Host: "2.2.2.2", Port: 80, Protocol: proxy.ProtocolHTTP}},
		valid: []*proxy.Proxy{mkValid("a", "1.1.1.1", 0.1)},
	}
	_, envelope := doRequest(t, testGateway(p, nil, nil), "GET", "/api/proxy/stats", "")

	data := envelope.Data.(map[string]any)
	if data["total_proxies"].(float64) != 2 || data["valid_proxies"].(float64) != 1 || data["invalid_proxies"].(float64) != 1 {
		t.Errorf("stats payload wrong: %v", data)
	}
}

func TestDeleteProxy(t *testing.T) {
	p := &stubPool{removed: map[string]bool{"known": true}}
	h := testGateway(p, nil, nil)

	rec, envelope := doRequest(t, h, "DELETE", "/api/proxy/known", "")
	if rec.Code != http.StatusOK || !envelope.Success {
		t.Errorf("delete known: status=%d envelope=%+v", rec.Code, envelope)
	}

	rec, envelope = doRequest(t, h, "DELETE", "/api/proxy/unknown", "")
	if rec.Code != http.StatusOK {
		t.Errorf("unknown id must be HTTP 200, got %d", rec.Code)
	}
	if envelope.Success {
		t.Error("unknown id must report success=false")
	}
	if !strings.Contains(envelope.Message, "unknown") {
		t.Errorf("message should carry the id: %q", envelope.Message)
	}
}

func TestUpdateTriggersPoolAndReturnsStats(t *testing.T) {
	p := &stubPool{valid: []*proxy.Proxy{mkValid("a", "1.1.1.1", 0.1)}, all: []*proxy.Proxy{mkValid("a", "1.1.1.1", 0.1)}}
	h := testGateway(p, nil, nil)

	rec, envelope := doRequest(t, h, "POST", "/api/proxy/update", "")
	if rec.Code != http.StatusOK || !envelope.Success {
		t.Fatalf("status=%d envelope=%+v", rec.Code, envelope)
	}
	if p.updated != 1 {
		t.Errorf("update not triggered: %d", p.updated)
	}
	if envelope.Data.(map[string]any)["valid_proxies"].(float64) != 1 {
		t.Errorf("stats missing from response: %v", envelope.Data)
	}
}

func TestTestSourcesEndpoint(t *testing.T) {
	report := &fetcher.TestReport{
		Sources: []fetcher.SourceResult{
			{Source: "five", Count: 5, Status: "success"},
			{Source: "two", Count: 2, Status: "success"},
			{Source: "zero", Count: 0, Status: "failed", Error: "连接超时"},
		},
		TotalSources:      3,
		SuccessfulSources: 2,
		TotalProxies:      7,
	}
	h := testGateway(&stubPool{}, &stubTester{report: report}, nil)

	rec, envelope := doRequest(t, h, "GET", "/api/proxy/test-sources", "")
	if rec.Code != http.StatusOK || !envelope.Success {
		t.Fatalf("status=%d envelope=%+v", rec.Code, envelope)
	}

	data := envelope.Data.(map[string]any)
	if data["successful_sources"].(float64) != 2 || data["total_proxies"].(float64) != 7 {
		t.Errorf("totals wrong: %v", data)
	}
	sources := data["sources"].([]any)
	counts := []float64{
		sources[0].(map[string]any)["count"].(float64),
		sources[1].(map[string]any)["count"].(float64),
		sources[2].(map[string]any)["count"].(float64),
	}
	if counts[0] != 5 || counts[1] != 2 || counts[2] != 0 {
		t.Errorf("sources not ordered by count: %v", counts)
	}
}

func TestForwardRequestSuccess(t *testing.T) {
	fwd := &stubForwarder{resp: &forwarder.Response{StatusCode: 200, ProxyUsed: "http://p1:8080", Content: "ok"}}
	h := testGateway(&stubPool{}, nil, fwd)

	rec, envelope := doRequest(t, h, "POST", "/api/request",
		`{"url": "https://example.test/ok", "method": "GET"}`)

	if rec.Code != http.StatusOK || !envelope.Success {
		t.Fatalf("status=%d envelope=%+v", rec.Code, envelope)
	}
	if envelope.Message != "请求成功" {
		t.Errorf("message = %q", envelope.Message)
	}
	data := envelope.Data.(map[string]any)
	if data["status_code"].(float64) != 200 || data["proxy_used"] != "http://p1:8080" {
		t.Errorf("response payload wrong: %v", data)
	}
}

func TestForwardRequestExhaustionIs500(t *testing.T) {
	fwd := &stubForwarder{err: &forwarder.ExhaustedError{
		ProxySwitches: 2, TotalAttempts: 4, LastErrorType: "retry_status", LastStatus: 503,
	}}
	h := testGateway(&stubPool{}, nil, fwd)

	rec, _ := doRequest(t, h, "POST", "/api/request", `{"url": "https://example.test/dead"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var detail map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if !strings.Contains(detail["detail"], "请求失败") {
		t.Errorf("detail missing failure text: %q", detail["detail"])
	}
}

func TestForwardRequestBadBody(t *testing.T) {
	h := testGateway(&stubPool{}, nil, &stubForwarder{})

	rec, _ := doRequest(t, h, "POST", "/api/request", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec, _ = doRequest(t, h, "POST", "/api/request", `{"method": "GET"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing url: status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	p := &stubPool{valid: []*proxy.Proxy{mkValid("a", "1.1.1.1", 0.1)}, all: []*proxy.Proxy{mkValid("a", "1.1.1.1", 0.1)}}
	h := testGateway(p, nil, nil)

	rec, _ := doRequest(t, h, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
	poolStats := body["proxy_pool"].(map[string]any)
	if poolStats["valid_proxies"].(float64) != 1 {
		t.Errorf("proxy_pool stats missing: %v", poolStats)
	}
}

func TestReadyFlipsWithPool(t *testing.T) {
	empty := testGateway(&stubPool{}, nil, nil)
	rec, _ := doRequest(t, empty, "GET", "/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("empty pool readiness = %d, want 503", rec.Code)
	}

	filled := testGateway(&stubPool{valid: []*proxy.Proxy{mkValid("a", "1.1.1.1", 0.1)}}, nil, nil)
	rec, _ = doRequest(t, filled, "GET", "/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("filled pool readiness = %d, want 200", rec.Code)
	}
}

func TestBanner(t *testing.T) {
	h := testGateway(&stubPool{}, nil, nil)
	rec, _ := doRequest(t, h, "GET", "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["name"] != "ProxyForge" || body["version"] != "0.1.0" {
		t.Errorf("banner = %v", body)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	h := testGateway(&stubPool{}, nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") != "fixed-id" {
		t.Errorf("incoming request id not echoed: %q", rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id not generated")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := testGateway(&stubPool{}, nil, nil)

	req := httptest.NewRequest("OPTIONS", "/api/proxy/stats", nil)
	req.Header.Set("Origin", "https://example.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow-origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
