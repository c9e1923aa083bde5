// Package engine provides the tick-based simulation loop and the per-tick
// pipeline: classify, select, update in parallel, cluster, and drain the
// analysis gateway.
package engine

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Engine drives the simulation forward at a fixed tick rate. Tick and speed
// are read by the HTTP API while the loop runs, so they are atomic.
type Engine struct {
	Interval time.Duration // Base tick interval

	// OnTick runs every tick; the Simulation's Step goes here.
	OnTick func(tick uint64)

	tick    atomic.Uint64
	speed   atomic.Uint64 // float64 bits
	running atomic.Bool
}

// NewEngine creates an engine ticking at the given interval.
func NewEngine(interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Second / 60
	}
	e := &Engine{Interval: interval}
	e.SetSpeed(1.0)
	return e
}

// Tick returns the current tick counter (monotonic, never resets).
func (e *Engine) Tick() uint64 {
	return e.tick.Load()
}

// SetTick sets the tick counter; used when resuming from a snapshot.
func (e *Engine) SetTick(tick uint64) {
	e.tick.Store(tick)
}

// Speed returns the current speed multiplier: 1.0 = real-time, 0 = paused.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed changes the speed multiplier, taking effect on the next tick.
func (e *Engine) SetSpeed(speed float64) {
	e.speed.Store(math.Float64bits(speed))
}

// Run starts the loop. Blocks until Stop is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed())

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused — sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		tick := e.tick.Add(1)
		if e.OnTick != nil {
			e.OnTick(tick)
		}

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick())
}

// Stop halts the loop after the current tick completes.
func (e *Engine) Stop() {
	e.running.Store(false)
}
