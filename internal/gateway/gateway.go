package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/electorate/internal/analysis"
	"github.com/talgya/electorate/internal/cluster"
	"github.com/talgya/electorate/internal/config"
	"github.com/talgya/electorate/internal/telemetry"
	"github.com/talgya/electorate/internal/voters"
)

// PendingState tracks a cohort request through the gateway state machine:
// Collecting → Dispatched → Resolved | Failed, with Cancelled as a
// terminal override when the owning voter is recycled first.
type PendingState uint8

const (
	StateCollecting PendingState = iota
	StateDispatched
	StateResolved
	StateFailed
	StateCancelled
)

// Pending is the future-like handle returned by Submit. It resolves with
// the analysis result, a fallback on failure, or not at all if cancelled.
type Pending struct {
	ID       string
	Kind     analysis.Kind
	Cohort   cluster.Cohort
	Features analysis.Snapshot
	CacheKey string

	// FromCache marks a hit resolved without dispatch.
	FromCache bool

	mu        sync.Mutex
	state     PendingState
	cancelled bool
	result    analysis.Result
	done      chan struct{}
}

// State returns the current state; Cancelled wins over anything else.
func (p *Pending) State() PendingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled {
		return StateCancelled
	}
	return p.state
}

// Result returns the resolution result and whether one is available.
func (p *Pending) Result() (analysis.Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled || (p.state != StateResolved && p.state != StateFailed) {
		return analysis.Result{}, false
	}
	return p.result, true
}

// Done is closed when the request reaches a terminal state.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Cancel marks the future cancelled. Cancelled futures never write back,
// regardless of whether a result arrived.
func (p *Pending) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled {
		return
	}
	p.cancelled = true
	if p.state != StateResolved && p.state != StateFailed {
		p.state = StateCancelled
		close(p.done)
	}
}

func (p *Pending) resolve(res analysis.Result, state PendingState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateResolved || p.state == StateFailed || p.state == StateCancelled {
		return
	}
	p.result = res
	p.state = state
	close(p.done)
}

func (p *Pending) markDispatched() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateCollecting {
		p.state = StateDispatched
	}
}

// Gateway batches cohort requests toward the analysis service. Submit and
// Poll run on the simulation thread; dispatches run on a bounded worker
// pool; resolutions queue on a channel the simulation thread drains once
// per tick, so write-backs never race the parallel update phase.
type Gateway struct {
	cfg         config.GatewayConfig
	callTimeout time.Duration
	client      analysis.Client
	cache       *Cache
	breaker     *Breaker
	sink        telemetry.Sink

	mu             sync.Mutex
	collecting     []*Pending
	windowOpenedAt time.Time
	inflight       map[voters.VoterID][]*Pending // keyed by cohort representative

	dispatchCh chan []*Pending
	resolvedCh chan *Pending

	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu    sync.Mutex
	requests   int
	batches    int
	fallbacks  int
	latencySum time.Duration
	latencyN   int
}

// New creates a gateway and starts its worker pool. The client resolves
// batches; pass the analysis mock when no external endpoint is configured.
func New(cfg config.GatewayConfig, callTimeout time.Duration, client analysis.Client, sink telemetry.Sink) *Gateway {
	if sink == nil {
		sink = telemetry.LogSink{}
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		cfg:         cfg,
		callTimeout: callTimeout,
		client:      client,
		cache:       NewCache(cfg.CacheCapacity, cfg.CacheTTL.Std()),
		sink:        sink,
		inflight:    make(map[voters.VoterID][]*Pending),
		dispatchCh:  make(chan []*Pending, 64),
		resolvedCh:  make(chan *Pending, 4096),
		cancel:      cancel,
	}
	g.breaker = NewBreaker(cfg.FailureThreshold, cfg.Cooldown.Std(), sink.CircuitState)

	for i := 0; i < workers; i++ {
		g.wg.Add(1)
		go g.worker(ctx)
	}
	return g
}

// Submit enqueues a cohort request and returns its handle without
// blocking. A fresh cache hit resolves the handle immediately; a miss
// joins the current collection window, which closes when it reaches the
// max batch size or times out.
func (g *Gateway) Submit(cohort cluster.Cohort, kind analysis.Kind, features analysis.Snapshot, now time.Time) *Pending {
	p := &Pending{
		ID:       uuid.New().String(),
		Kind:     kind,
		Cohort:   cohort,
		Features: features,
		CacheKey: analysis.CacheKey(kind, cohort.Key.String()),
		done:     make(chan struct{}),
	}

	g.statsMu.Lock()
	g.requests++
	g.statsMu.Unlock()

	if res, ok := g.cache.Get(p.CacheKey, now); ok {
		g.sink.CacheLookup(true)
		p.FromCache = true
		p.resolve(res, StateResolved)
		g.enqueueResolved(p)
		return p
	}
	g.sink.CacheLookup(false)

	g.mu.Lock()
	if len(g.collecting) == 0 {
		g.windowOpenedAt = now
	}
	g.collecting = append(g.collecting, p)
	g.inflight[cohort.Representative] = append(g.inflight[cohort.Representative], p)
	full := len(g.collecting) >= g.cfg.MaxBatchSize
	var batch []*Pending
	if full {
		batch = g.collecting
		g.collecting = nil
	}
	g.mu.Unlock()

	if full {
		g.dispatch(batch, now)
	}
	return p
}

// Poll closes the collection window if its timeout has elapsed. The engine
// calls it once per tick; batching needs no timers of its own.
func (g *Gateway) Poll(now time.Time) {
	g.mu.Lock()
	timedOut := len(g.collecting) > 0 && now.Sub(g.windowOpenedAt) >= g.cfg.WindowTimeout.Std()
	var batch []*Pending
	if timedOut {
		batch = g.collecting
		g.collecting = nil
	}
	g.mu.Unlock()

	if timedOut {
		g.dispatch(batch, now)
	}
}

// dispatch re-checks the cache, short-circuits through the breaker, and
// hands the remaining misses to the worker pool.
func (g *Gateway) dispatch(batch []*Pending, now time.Time) {
	// A result may have landed while the batch was collecting.
	misses := batch[:0]
	for _, p := range batch {
		if res, ok := g.cache.Get(p.CacheKey, now); ok {
			p.FromCache = true
			p.resolve(res, StateResolved)
			g.enqueueResolved(p)
			continue
		}
		misses = append(misses, p)
	}
	if len(misses) == 0 {
		return
	}

	if !g.breaker.Allow(now) {
		g.sink.Degraded("gateway", "circuit open, serving fallback")
		g.resolveFallback(misses, StateResolved)
		return
	}

	for _, p := range misses {
		p.markDispatched()
	}

	select {
	case g.dispatchCh <- misses:
	default:
		// Worker backlog full. Shedding to fallback keeps the simulation
		// thread unblocked.
		g.sink.Degraded("gateway", "dispatch backlog full, serving fallback")
		g.resolveFallback(misses, StateFailed)
	}
}

func (g *Gateway) worker(ctx context.Context) {
	defer g.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-g.dispatchCh:
			g.processBatch(ctx, batch)
		}
	}
}

func (g *Gateway) processBatch(ctx context.Context, batch []*Pending) {
	reqs := make([]analysis.Request, len(batch))
	for i, p := range batch {
		reqs[i] = analysis.Request{ID: p.ID, Kind: p.Kind, Features: p.Features}
	}

	g.sink.BatchDispatched(len(batch))
	g.statsMu.Lock()
	g.batches++
	g.statsMu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	start := time.Now()
	results, err := g.client.AnalyzeBatch(callCtx, reqs)
	elapsed := time.Since(start)

	g.statsMu.Lock()
	g.latencySum += elapsed
	g.latencyN++
	g.statsMu.Unlock()

	if err != nil {
		// A failed batch resolves every member to the fallback; nothing
		// is left pending.
		g.breaker.RecordFailure(time.Now())
		g.sink.Degraded("gateway", "batch failed: "+err.Error())
		g.resolveFallback(batch, StateFailed)
		return
	}

	g.breaker.RecordSuccess()
	now := time.Now()
	for i, p := range batch {
		g.cache.Put(p.CacheKey, results[i], now)
		p.resolve(results[i], StateResolved)
		g.enqueueResolved(p)
	}
}

func (g *Gateway) resolveFallback(batch []*Pending, state PendingState) {
	g.statsMu.Lock()
	g.fallbacks += len(batch)
	g.statsMu.Unlock()

	for _, p := range batch {
		req := analysis.Request{ID: p.ID, Kind: p.Kind, Features: p.Features}
		p.resolve(analysis.FallbackResult(req), state)
		g.enqueueResolved(p)
	}
}

func (g *Gateway) enqueueResolved(p *Pending) {
	// Workers may block here briefly; the simulation thread drains every
	// tick so the queue cannot grow unboundedly.
	g.resolvedCh <- p
}

// Drain returns all resolutions that have arrived since the last call.
// Only the simulation thread calls this, once per tick, so write-backs
// never overlap the parallel update phase.
func (g *Gateway) Drain() []*Pending {
	var out []*Pending
	for {
		select {
		case p := <-g.resolvedCh:
			g.forget(p)
			out = append(out, p)
		default:
			return out
		}
	}
}

// CancelOwner cancels every pending future whose cohort representative is
// the given voter. Called when a voter is recycled.
func (g *Gateway) CancelOwner(id voters.VoterID) {
	g.mu.Lock()
	pendings := g.inflight[id]
	delete(g.inflight, id)
	g.mu.Unlock()

	for _, p := range pendings {
		p.Cancel()
	}
}

// forget removes a terminal pending from the owner index.
func (g *Gateway) forget(p *Pending) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rep := p.Cohort.Representative
	list := g.inflight[rep]
	for i, q := range list {
		if q == p {
			g.inflight[rep] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(g.inflight[rep]) == 0 {
		delete(g.inflight, rep)
	}
}

// Close stops the worker pool. Pending dispatches are abandoned; callers
// should drain first if they care about stragglers.
func (g *Gateway) Close() {
	g.cancel()
	g.wg.Wait()
}

// Stats is a point-in-time snapshot of gateway performance counters.
type Stats struct {
	Requests     int     `json:"requests"`
	Batches      int     `json:"batches"`
	Fallbacks    int     `json:"fallbacks"`
	CacheEntries int     `json:"cache_entries"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	CircuitState string  `json:"circuit_state"`
	BreakerTrips int     `json:"breaker_trips"`
	Collecting   int     `json:"collecting"`
}

// Stats returns current gateway counters.
func (g *Gateway) Stats() Stats {
	g.statsMu.Lock()
	s := Stats{
		Requests:  g.requests,
		Batches:   g.batches,
		Fallbacks: g.fallbacks,
	}
	if g.latencyN > 0 {
		s.AvgLatencyMs = float64(g.latencySum.Milliseconds()) / float64(g.latencyN)
	}
	g.statsMu.Unlock()

	g.mu.Lock()
	s.Collecting = len(g.collecting)
	g.mu.Unlock()

	s.CacheEntries = g.cache.Len()
	s.CacheHitRate = g.cache.HitRate()
	s.CircuitState = g.breaker.State().String()
	s.BreakerTrips = g.breaker.Trips()
	return s
}
