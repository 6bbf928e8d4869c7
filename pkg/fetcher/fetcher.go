package fetcher

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/proxy"
	"github.com/FlickerMi/proxyforge/pkg/telemetry/metrics"
)

// maxSourcesPerFetch caps how many sources one fetch round consults. The
// cursor rotation ensures different rounds hit different listings.
const maxSourcesPerFetch = 5

// Fetcher pulls candidates from the source registry.
type Fetcher struct {
	registry *Registry
	timeout  time.Duration
	metrics  *metrics.Collector
}

// New creates a fetcher over the given registry. timeout bounds each source
// invocation. metrics may be nil.
func New(registry *Registry, timeout time.Duration, collector *metrics.Collector) *Fetcher {
	return &Fetcher{registry: registry, timeout: timeout, metrics: collector}
}

// NewFromConfig builds the registry (built-in or from the configured sources
// file) and wraps it in a fetcher.
func NewFromConfig(cfg config.FetcherConfig, collector *metrics.Collector) (*Fetcher, *Registry, error) {
	var sources []Source
	if cfg.SourcesFile != "" {
		loaded, err := LoadSourcesFile(cfg.SourcesFile, cfg)
		if err != nil {
			return nil, nil, err
		}
		sources = loaded
	} else {
		sources = BuiltinSources(cfg)
	}

	registry := NewRegistry(sources)
	return New(registry, cfg.SourceTimeout, collector), registry, nil
}

// Registry returns the fetcher's source registry.
func (f *Fetcher) Registry() *Registry { return f.registry }

// Fetch acquires up to target candidate proxies. It consults
// min(maxSourcesPerFetch, registry size) sources starting at the rotating
// cursor, invokes each in its own goroutine, concatenates results in source
// order, and deduplicates by proxy URL keeping the first occurrence.
//
// Individual source failures are logged and skipped; an empty result means
// every consulted source failed or returned nothing.
func (f *Fetcher) Fetch(ctx context.Context, target int) []*proxy.Proxy {
	if target <= 0 {
		return nil
	}

	sources := f.registry.Next(maxSourcesPerFetch)
	if len(sources) == 0 {
		slog.Warn("no proxy sources registered")
		return nil
	}

	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	slog.Info("fetching proxies", "target", target, "sources", names)

	// One slot per source preserves listing order for first-seen dedup even
	// though sources run concurrently.
	slots := make([][]*proxy.Proxy, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			slots[i] = f.fetchOne(ctx, src)
		}(i, src)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var unique []*proxy.Proxy
	for _, batch := range slots {
		for _, p := range batch {
			url := p.URL()
			if _, dup := seen[url]; dup {
				continue
			}
			seen[url] = struct{}{}
			unique = append(unique, p)
			if len(unique) >= target {
				slog.Info("fetched proxies", "count", len(unique))
				return unique
			}
		}
	}

	slog.Info("fetched proxies", "count", len(unique))
	return unique
}

// fetchOne runs a single source under the per-source timeout, recording the
// outcome. Errors are swallowed at this boundary.
func (f *Fetcher) fetchOne(ctx context.Context, src Source) []*proxy.Proxy {
	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	proxies, err := src.Fetch(fetchCtx)
	if err != nil {
		slog.Warn("proxy source failed", "source", src.Name(), "error", err)
		f.metrics.RecordFetch(src.Name(), "failed", 0)
		return nil
	}
	if len(proxies) == 0 {
		slog.Debug("proxy source returned nothing", "source", src.Name())
		f.metrics.RecordFetch(src.Name(), "empty", 0)
		return nil
	}

	slog.Debug("proxy source succeeded", "source", src.Name(), "count", len(proxies))
	f.metrics.RecordFetch(src.Name(), "success", len(proxies))
	return proxies
}

// SourceResult is one entry of a source probe report.
type SourceResult struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TestReport aggregates a full source probe.
type TestReport struct {
	Sources           []SourceResult `json:"sources"`
	TotalSources      int            `json:"total_sources"`
	SuccessfulSources int            `json:"successful_sources"`
	TotalProxies      int            `json:"total_proxies"`
}

// TestSources probes every registered source once and reports per-source
// yields, sorted by count descending. Sources yielding nothing report status
// "no_proxies"; failing sources report "failed" with the error message.
func (f *Fetcher) TestSources(ctx context.Context) *TestReport {
	sources := f.registry.All()
	results := make([]SourceResult, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			proxies, err := src.Fetch(fetchCtx)
			switch {
			case err != nil:
				results[i] = SourceResult{Source: src.Name(), Status: "failed", Error: err.Error()}
			case len(proxies) == 0:
				results[i] = SourceResult{Source: src.Name(), Status: "no_proxies"}
			default:
				results[i] = SourceResult{Source: src.Name(), Count: len(proxies), Status: "success"}
			}
		}(i, src)
	}
	wg.Wait()

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Count > results[b].Count
	})

	report := &TestReport{
		Sources:      results,
		TotalSources: len(results),
	}
	for _, r := range results {
		report.TotalProxies += r.Count
		if r.Status == "success" {
			report.SuccessfulSources++
		}
	}
	return report
}
