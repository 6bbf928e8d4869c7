// Package pool maintains the live set of validated proxies: replenishment,
// periodic revalidation, threshold-triggered refill, and selection.
package pool

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/proxy"
	"github.com/FlickerMi/proxyforge/pkg/telemetry/metrics"
)

// missingSpeed ranks proxies that have never been probed behind every
// measured one during selection.
const missingSpeed = 999.0

// Fetcher acquires candidate proxies. Implemented by fetcher.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, target int) []*proxy.Proxy
}

// Validator probes candidates. Implemented by validator.Validator.
type Validator interface {
	Validate(ctx context.Context, proxies []*proxy.Proxy, concurrency int) []*proxy.Proxy
	GetValid(ctx context.Context, proxies []*proxy.Proxy, concurrency int) []*proxy.Proxy
}

// Pool owns the id → proxy mapping and the background maintenance loop.
type Pool struct {
	mu         sync.RWMutex
	proxies    map[string]*proxy.Proxy
	lastUpdate *time.Time

	fetcher   Fetcher
	validator Validator
	cfg       config.PoolConfig
	metrics   *metrics.Collector

	// refillThreshold triggers a background refill when the valid count
	// drops below it.
	refillThreshold int

	// updateMu serializes UpdatePool invocations: the background loop, the
	// cron schedule, and the manual trigger never run a round concurrently.
	updateMu sync.Mutex

	// refilling single-flights the threshold-triggered background refill.
	refilling atomic.Bool

	runCtx  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
	cron    *cron.Cron
}

// New creates a pool. metrics may be nil.
func New(cfg config.PoolConfig, f Fetcher, v Validator, collector *metrics.Collector) *Pool {
	return &Pool{
		proxies:         make(map[string]*proxy.Proxy),
		fetcher:         f,
		validator:       v,
		cfg:             cfg,
		metrics:         collector,
		refillThreshold: cfg.Size / 2,
		done:            make(chan struct{}),
	}
}

// Start warms the pool up and launches the background maintenance loop.
// The warm-up acquires a small quick-start cohort in a single round so the
// service becomes useful fast; the background loop then tops the pool up to
// its full size and enters the periodic cycle.
func (p *Pool) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}
	p.runCtx, p.cancel = context.WithCancel(ctx)

	slog.Info("starting proxy pool",
		"size", p.cfg.Size,
		"quick_start_target", p.cfg.QuickStartTarget,
		"update_interval", p.cfg.UpdateInterval,
	)

	p.UpdatePool(p.runCtx, p.cfg.QuickStartTarget, 1, 5)

	go p.backgroundLoop()

	if p.cfg.RevalidateCron != "" {
		p.cron = cron.New()
		_, err := p.cron.AddFunc(p.cfg.RevalidateCron, func() {
			slog.Info("scheduled revalidation starting", "schedule", p.cfg.RevalidateCron)
			p.ValidatePool(p.runCtx)
			p.UpdatePool(p.runCtx, 0, 3, 5)
		})
		if err != nil {
			return err
		}
		p.cron.Start()
		slog.Info("revalidation schedule active", "schedule", p.cfg.RevalidateCron)
	}

	return nil
}

// Stop cancels the background loop and waits for it to exit. In-flight
// fetches and probes are cancelled through the pool context; results that
// still arrive are discarded at admission.
func (p *Pool) Stop() {
	if !p.started.Load() {
		return
	}
	slog.Info("stopping proxy pool")

	if p.cron != nil {
		cronCtx := p.cron.Stop()
		<-cronCtx.Done()
	}
	p.cancel()
	<-p.done
	slog.Info("proxy pool stopped")
}

// backgroundLoop tops the pool up after startup, then alternates between
// revalidating everything and refilling on each interval tick.
func (p *Pool) backgroundLoop() {
	defer close(p.done)

	// Let the service finish starting before the heavy initial fill.
	select {
	case <-p.runCtx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	slog.Info("background refill to full pool size", "target", p.cfg.Size)
	p.UpdatePool(p.runCtx, 0, 3, 5)

	ticker := time.NewTicker(p.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.runCtx.Done():
			return
		case <-ticker.C:
			slog.Info("periodic pool maintenance starting")
			p.ValidatePool(p.runCtx)
			p.UpdatePool(p.runCtx, 0, 3, 5)
		}
	}
}

// UpdatePool replenishes the pool toward target valid proxies (0 means the
// configured size). Each round requests needed × fetchMultiplier candidates
// to cover the low yield of free listings, validates them, and admits the
// survivors; up to maxAttempts rounds run until the target is met. Invalid
// entries are cleaned up before and after.
func (p *Pool) UpdatePool(ctx context.Context, target, maxAttempts, fetchMultiplier int) {
	p.updateMu.Lock()
	defer p.updateMu.Unlock()

	if target <= 0 {
		target = p.cfg.Size
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if fetchMultiplier <= 0 {
		fetchMultiplier = 5
	}

	slog.Info("updating proxy pool", "target", target)
	p.cleanupInvalid()

	needed := target - p.validCount()
	if needed <= 0 {
		slog.Info("pool already at target", "valid", p.validCount(), "target", target)
		return
	}

	fetchCount := needed * fetchMultiplier
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		slog.Info("replenishment round", "attempt", attempt, "max_attempts", maxAttempts, "fetch_count", fetchCount)

		candidates := p.fetcher.Fetch(ctx, fetchCount)
		if len(candidates) == 0 {
			slog.Warn("replenishment round produced no candidates", "attempt", attempt)
			continue
		}

		valid := p.validator.GetValid(ctx, candidates, 0)
		added := p.admit(ctx, valid)
		slog.Info("replenishment round finished", "attempt", attempt, "added", added)

		current := p.validCount()
		if current >= target {
			slog.Info("pool reached target", "valid", current, "target", target)
			break
		}
		fetchCount = (target - current) * fetchMultiplier
	}

	p.cleanupInvalid()

	now := time.Now()
	p.mu.Lock()
	p.lastUpdate = &now
	p.mu.Unlock()

	final := p.validCount()
	p.updateGauges()
	if final < target {
		slog.Warn("pool below target after replenishment, free listings ran dry", "valid", final, "target", target)
	} else {
		slog.Info("pool replenishment complete", "valid", final, "target", target)
	}
}

// admit inserts validated proxies, assigning ids. Entries whose proxy URL
// is already present are skipped, keeping the pool free of duplicates. A
// cancelled context admits nothing, so late validation results cannot
// resurrect a stopped pool.
func (p *Pool) admit(ctx context.Context, proxies []*proxy.Proxy) int {
	if ctx.Err() != nil {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	existing := make(map[string]struct{}, len(p.proxies))
	for _, cur := range p.proxies {
		existing[cur.URL()] = struct{}{}
	}

	added := 0
	now := time.Now()
	for _, candidate := range proxies {
		url := candidate.URL()
		if _, dup := existing[url]; dup {
			continue
		}
		existing[url] = struct{}{}

		candidate.ID = uuid.NewString()
		candidate.LastChecked = &now
		p.proxies[candidate.ID] = candidate
		added++
	}
	return added
}

// ValidatePool re-probes every pool entry, including currently-invalid ones
// so flapping proxies can recover. Probes run on clones; results are applied
// back under the lock so concurrent readers never observe torn entries.
func (p *Pool) ValidatePool(ctx context.Context) {
	p.mu.RLock()
	clones := make([]*proxy.Proxy, 0, len(p.proxies))
	for _, cur := range p.proxies {
		clones = append(clones, cur.Clone())
	}
	p.mu.RUnlock()

	if len(clones) == 0 {
		slog.Info("pool empty, skipping revalidation")
		return
	}

	slog.Info("revalidating pool", "count", len(clones))
	p.validator.Validate(ctx, clones, 0)

	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	for _, clone := range clones {
		cur, ok := p.proxies[clone.ID]
		if !ok {
			continue
		}
		cur.IsValid = clone.IsValid
		cur.Speed = clone.Speed
		cur.LastChecked = clone.LastChecked
	}
	p.mu.Unlock()

	p.updateGauges()
	slog.Info("pool revalidation finished", "valid", p.validCount())
}

// cleanupInvalid drops every entry whose last validation or forwarding
// attempt failed.
func (p *Pool) cleanupInvalid() {
	p.mu.Lock()
	removed := 0
	for id, cur := range p.proxies {
		if !cur.IsValid {
			delete(p.proxies, id)
			removed++
		}
	}
	p.mu.Unlock()

	if removed > 0 {
		slog.Info("cleaned up invalid proxies", "removed", removed)
	}
	p.updateGauges()
}

// GetFastest returns the valid proxy with the lowest probe latency, or nil
// when the pool holds none. Dropping below the refill threshold triggers a
// background replenishment without blocking the caller.
func (p *Pool) GetFastest() *proxy.Proxy {
	valid := p.GetValidProxies()

	if len(valid) < p.refillThreshold {
		p.triggerRefill()
	}
	if len(valid) == 0 {
		slog.Warn("no valid proxy available")
		return nil
	}

	best := valid[0]
	bestSpeed := speedOf(best)
	for _, cur := range valid[1:] {
		if s := speedOf(cur); s < bestSpeed {
			best, bestSpeed = cur, s
		}
	}
	return best
}

// GetRandomValid returns a uniformly random valid proxy, or nil. Callers
// fanning out across origins want this instead of GetFastest.
func (p *Pool) GetRandomValid() *proxy.Proxy {
	valid := p.GetValidProxies()

	if len(valid) < p.refillThreshold {
		p.triggerRefill()
	}
	if len(valid) == 0 {
		return nil
	}
	return valid[rand.Intn(len(valid))]
}

func speedOf(p *proxy.Proxy) float64 {
	if p.Speed == nil {
		return missingSpeed
	}
	return *p.Speed
}

// triggerRefill fires a background replenishment unless one is already in
// flight.
func (p *Pool) triggerRefill() {
	if !p.started.Load() {
		return
	}
	if !p.refilling.CompareAndSwap(false, true) {
		return
	}

	slog.Warn("valid proxies below threshold, triggering background refill",
		"threshold", p.refillThreshold,
	)
	go func() {
		defer p.refilling.Store(false)
		p.UpdatePool(p.runCtx, 0, 3, 5)
	}()
}

// GetAllProxies returns a snapshot of every entry. Entries are cloned so
// callers can iterate and serialize without holding the pool lock.
func (p *Pool) GetAllProxies() []*proxy.Proxy {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*proxy.Proxy, 0, len(p.proxies))
	for _, cur := range p.proxies {
		out = append(out, cur.Clone())
	}
	return out
}

// GetValidProxies returns a snapshot of the currently-valid entries.
func (p *Pool) GetValidProxies() []*proxy.Proxy {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*proxy.Proxy
	for _, cur := range p.proxies {
		if cur.IsValid {
			out = append(out, cur.Clone())
		}
	}
	return out
}

// RemoveProxy deletes the given entry, reporting whether it existed.
func (p *Pool) RemoveProxy(id string) bool {
	p.mu.Lock()
	_, ok := p.proxies[id]
	if ok {
		delete(p.proxies, id)
	}
	p.mu.Unlock()

	if ok {
		slog.Info("proxy removed", "id", id)
		p.updateGauges()
	}
	return ok
}

// MarkInvalid flags the entry as invalid. It stays visible until the next
// cleanup, which gives the periodic revalidation a chance to revive it.
func (p *Pool) MarkInvalid(id string) {
	p.mu.Lock()
	cur, ok := p.proxies[id]
	if ok {
		cur.IsValid = false
	}
	p.mu.Unlock()

	if ok {
		slog.Info("proxy marked invalid", "id", id)
		p.updateGauges()
	}
}

// Ready reports whether the pool holds at least one valid proxy.
func (p *Pool) Ready() bool {
	return p.validCount() > 0
}

// Stats summarizes the pool.
func (p *Pool) Stats() proxy.Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := proxy.Stats{
		TotalProxies: len(p.proxies),
		LastUpdate:   p.lastUpdate,
	}

	var speedSum float64
	speedCount := 0
	for _, cur := range p.proxies {
		if !cur.IsValid {
			continue
		}
		stats.ValidProxies++
		if cur.Speed != nil {
			speedSum += *cur.Speed
			speedCount++
		}
	}
	stats.InvalidProxies = stats.TotalProxies - stats.ValidProxies

	if speedCount > 0 {
		avg := speedSum / float64(speedCount)
		stats.AvgSpeed = &avg
	}
	return stats
}

func (p *Pool) validCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, cur := range p.proxies {
		if cur.IsValid {
			n++
		}
	}
	return n
}

func (p *Pool) updateGauges() {
	if p.metrics == nil {
		return
	}
	stats := p.Stats()
	p.metrics.SetPoolSize(stats.ValidProxies, stats.InvalidProxies)
}
