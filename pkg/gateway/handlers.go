package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/FlickerMi/proxyforge/pkg/forwarder"
	"github.com/FlickerMi/proxyforge/pkg/proxy"
)

// handleList serves GET /api/proxy/list?valid_only=<bool>&limit=<int>.
func (g *Gateway) handleList(w http.ResponseWriter, r *http.Request) {
	validOnly := true
	if raw := r.URL.Query().Get("valid_only"); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			validOnly = b
		}
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if i, err := strconv.Atoi(raw); err == nil && i > 0 {
			limit = i
		}
	}

	var proxies []*proxy.Proxy
	if validOnly {
		proxies = g.pool.GetValidProxies()
	} else {
		proxies = g.pool.GetAllProxies()
	}
	if len(proxies) > limit {
		proxies = proxies[:limit]
	}

	writeOK(w, fmt.Sprintf("获取到 %d 个代理", len(proxies)), proxies)
}

// handleRandom serves GET /api/proxy/random: the fastest valid proxy.
func (g *Gateway) handleRandom(w http.ResponseWriter, r *http.Request) {
	p := g.pool.GetFastest()
	if p == nil {
		writeFail(w, "没有可用代理")
		return
	}
	writeOK(w, "获取代理成功", p)
}

// handleStats serves GET /api/proxy/stats.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "获取统计信息成功", g.pool.Stats())
}

// handleDelete serves DELETE /api/proxy/{id}. An unknown id is an expected
// failure, not an error.
func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if g.pool.RemoveProxy(id) {
		writeOK(w, fmt.Sprintf("删除代理成功: %s", id), nil)
		return
	}
	writeFail(w, fmt.Sprintf("代理不存在: %s", id))
}

// handleUpdate serves POST /api/proxy/update: a manual replenishment
// trigger. It runs synchronously and reports the resulting stats.
func (g *Gateway) handleUpdate(w http.ResponseWriter, r *http.Request) {
	g.pool.UpdatePool(r.Context(), 0, 3, 5)
	writeOK(w, "代理池更新成功", g.pool.Stats())
}

// handleTestSources serves GET /api/proxy/test-sources: probe every source
// once and report per-source yields.
func (g *Gateway) handleTestSources(w http.ResponseWriter, r *http.Request) {
	report := g.sources.TestSources(r.Context())
	writeOK(w, fmt.Sprintf("测试完成,共测试 %d 个代理源", report.TotalSources), report)
}

// handleRequest serves POST /api/request: forward a request through the
// pool with retry and proxy switching.
func (g *Gateway) handleRequest(w http.ResponseWriter, r *http.Request) {
	var spec forwarder.RequestSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	slog.InfoContext(r.Context(), "forward request received", "method", spec.Method, "url", spec.URL)

	resp, err := g.forwarder.Forward(r.Context(), &spec, g.pool.GetFastest, g.pool.MarkInvalid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeOK(w, "请求成功", resp)
}

// handleHealth serves GET /health: liveness plus a pool snapshot.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"proxy_pool": g.pool.Stats(),
	})
}

// handleReady serves GET /ready: 503 until the pool holds a valid proxy.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	status := g.checker.CheckReadiness(r.Context())
	code := http.StatusOK
	if status.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// handleBanner serves GET /.
func (g *Gateway) handleBanner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":        g.info.Name,
		"version":     g.info.Version,
		"description": g.info.Description,
		"docs":        g.info.Docs,
	})
}
