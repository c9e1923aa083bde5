// Package telemetry defines the metrics-sink interface the core emits
// through. The sink is injected at construction; the core holds no global
// mutable telemetry state.
package telemetry

import (
	"log/slog"
	"sync"
)

// TierCounts is the population distribution across relevance tiers.
type TierCounts struct {
	Dormant int `json:"dormant"`
	Low     int `json:"low"`
	Medium  int `json:"medium"`
	High    int `json:"high"`
}

// Total returns the population accounted for across all tiers.
func (tc TierCounts) Total() int {
	return tc.Dormant + tc.Low + tc.Medium + tc.High
}

// Sink receives metrics emitted by the core each tick. Implementations must
// be safe for concurrent use: the gateway reports from worker goroutines.
type Sink interface {
	// TickCompleted reports the working-set size and any budget overflow
	// for a finished tick.
	TickCompleted(tick uint64, updated, overflow int)

	// TierDistribution reports tier counts after a classification pass.
	TierDistribution(tick uint64, counts TierCounts)

	// CacheLookup reports a gateway cache hit or miss.
	CacheLookup(hit bool)

	// BatchDispatched reports a dispatched batch and its size.
	BatchDispatched(size int)

	// CircuitState reports a circuit-breaker state change.
	CircuitState(state string)

	// Degraded reports a recovered subsystem fault: uniform scheduling,
	// fallback analysis results, cache anomalies.
	Degraded(subsystem, reason string)
}

// LogSink writes metrics to slog. Cheap enough to leave on in production.
type LogSink struct{}

func (LogSink) TickCompleted(tick uint64, updated, overflow int) {
	if overflow > 0 {
		slog.Warn("budget overflow", "tick", tick, "updated", updated, "overflow", overflow)
	}
}

func (LogSink) TierDistribution(tick uint64, counts TierCounts) {
	slog.Debug("tier distribution",
		"tick", tick,
		"dormant", counts.Dormant,
		"low", counts.Low,
		"medium", counts.Medium,
		"high", counts.High,
	)
}

func (LogSink) CacheLookup(hit bool) {}

func (LogSink) BatchDispatched(size int) {
	slog.Debug("batch dispatched", "size", size)
}

func (LogSink) CircuitState(state string) {
	slog.Warn("circuit breaker state change", "state", state)
}

func (LogSink) Degraded(subsystem, reason string) {
	slog.Warn("degraded operation", "subsystem", subsystem, "reason", reason)
}

// Capture accumulates metrics in memory. Used by tests and by the status
// API to expose current counters.
type Capture struct {
	mu sync.Mutex

	Ticks         uint64
	Updated       int
	Overflow      int
	LastTiers     TierCounts
	CacheHits     int
	CacheMisses   int
	Batches       int
	BatchSizes    []int
	CircuitStates []string
	Degradations  []string
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) TickCompleted(tick uint64, updated, overflow int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ticks++
	c.Updated += updated
	c.Overflow += overflow
}

func (c *Capture) TierDistribution(tick uint64, counts TierCounts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastTiers = counts
}

func (c *Capture) CacheLookup(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.CacheHits++
	} else {
		c.CacheMisses++
	}
}

func (c *Capture) BatchDispatched(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Batches++
	c.BatchSizes = append(c.BatchSizes, size)
}

func (c *Capture) CircuitState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CircuitStates = append(c.CircuitStates, state)
}

func (c *Capture) Degraded(subsystem, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Degradations = append(c.Degradations, subsystem+": "+reason)
}

// HitRate returns the cache hit ratio, or 0 when no lookups occurred.
func (c *Capture) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.CacheHits + c.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(c.CacheHits) / float64(total)
}

// Metrics is a point-in-time copy of the captured counters.
type Metrics struct {
	Ticks         uint64
	Updated       int
	Overflow      int
	LastTiers     TierCounts
	CacheHits     int
	CacheMisses   int
	Batches       int
	BatchSizes    []int
	CircuitStates []string
	Degradations  []string
}

// Snapshot returns a copy of the current counters for safe external reads.
func (c *Capture) Snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := Metrics{
		Ticks:       c.Ticks,
		Updated:     c.Updated,
		Overflow:    c.Overflow,
		LastTiers:   c.LastTiers,
		CacheHits:   c.CacheHits,
		CacheMisses: c.CacheMisses,
		Batches:     c.Batches,
	}
	m.BatchSizes = append(m.BatchSizes, c.BatchSizes...)
	m.CircuitStates = append(m.CircuitStates, c.CircuitStates...)
	m.Degradations = append(m.Degradations, c.Degradations...)
	return m
}

// Multi fans metrics out to several sinks.
type Multi []Sink

func (m Multi) TickCompleted(tick uint64, updated, overflow int) {
	for _, s := range m {
		s.TickCompleted(tick, updated, overflow)
	}
}

func (m Multi) TierDistribution(tick uint64, counts TierCounts) {
	for _, s := range m {
		s.TierDistribution(tick, counts)
	}
}

func (m Multi) CacheLookup(hit bool) {
	for _, s := range m {
		s.CacheLookup(hit)
	}
}

func (m Multi) BatchDispatched(size int) {
	for _, s := range m {
		s.BatchDispatched(size)
	}
}

func (m Multi) CircuitState(state string) {
	for _, s := range m {
		s.CircuitState(state)
	}
}

func (m Multi) Degraded(subsystem, reason string) {
	for _, s := range m {
		s.Degraded(subsystem, reason)
	}
}
