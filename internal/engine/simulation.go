// Simulation ties the core subsystems together and advances them each tick.
package engine

import (
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/electorate/internal/analysis"
	"github.com/talgya/electorate/internal/cluster"
	"github.com/talgya/electorate/internal/config"
	"github.com/talgya/electorate/internal/events"
	"github.com/talgya/electorate/internal/gateway"
	"github.com/talgya/electorate/internal/opinion"
	"github.com/talgya/electorate/internal/relevance"
	"github.com/talgya/electorate/internal/schedule"
	"github.com/talgya/electorate/internal/telemetry"
	"github.com/talgya/electorate/internal/voters"
)

// reportInterval is how many ticks elapse between summary log lines.
const reportInterval = 3600

// sampleInterval is how often the read-only population sample for the
// status API is refreshed.
const sampleInterval = 300

// sampleSize bounds the published sample.
const sampleSize = 100

// Simulation holds the population and wires classifier, scheduler, update
// engine, clusterer, and gateway into the per-tick pipeline.
type Simulation struct {
	Store      *voters.Store
	Events     events.Source
	Classifier *relevance.Classifier
	Scheduler  *schedule.Scheduler
	Gateway    *gateway.Gateway
	Params     opinion.Params
	Sink       telemetry.Sink

	// Workers is the parallel-update fan-out. Defaults to GOMAXPROCS.
	Workers int

	cfg      config.Config
	LastTick uint64

	// sample holds a periodically refreshed copy of a population slice for
	// read-only consumers (the status API); they never touch the store.
	sample atomic.Value // []voters.Voter

	// Degraded is set when the most recent tick fell back to uniform
	// scheduling or served fallback analysis. Surfaced via the status API.
	Degraded bool
}

// NewSimulation wires a simulation from its parts. The gateway is owned by
// the caller (it has worker goroutines to shut down).
func NewSimulation(cfg config.Config, store *voters.Store, src events.Source,
	gw *gateway.Gateway, sink telemetry.Sink) *Simulation {

	if sink == nil {
		sink = telemetry.LogSink{}
	}
	return &Simulation{
		Store:      store,
		Events:     src,
		Classifier: relevance.NewClassifier(cfg.Relevance),
		Scheduler:  schedule.NewScheduler(cfg.Schedule, sink),
		Gateway:    gw,
		Params:     opinion.DefaultParams(),
		Sink:       sink,
		Workers:    runtime.GOMAXPROCS(0),
		cfg:        cfg,
	}
}

// Step advances the simulation by one tick. It always completes: subsystem
// faults degrade quality, never availability.
func (s *Simulation) Step(tick uint64) {
	s.LastTick = tick
	s.Degraded = false
	now := time.Now()

	// Classification pass on its own cadence. A pass fault degrades this
	// tick to uniform scheduling.
	classified := true
	if s.cfg.Relevance.PassInterval > 0 && tick%s.cfg.Relevance.PassInterval == 0 {
		counts, err := s.Classifier.Pass(s.Store, tick)
		if err != nil {
			s.Sink.Degraded("classifier", err.Error())
			classified = false
		} else {
			s.Sink.TierDistribution(tick, telemetry.TierCounts{
				Dormant: counts[voters.TierDormant],
				Low:     counts[voters.TierLow],
				Medium:  counts[voters.TierMedium],
				High:    counts[voters.TierHigh],
			})
		}
	}

	var ws schedule.WorkingSet
	if classified {
		ws = s.Scheduler.Select(s.Store, tick)
	} else {
		ws = s.Scheduler.SelectUniform(s.Store, tick)
	}
	if ws.Degraded {
		s.Degraded = true
	}

	active := s.Events.ActiveEvents(tick)

	// Parallel update phase: the working set is partitioned by range and
	// each worker writes only its own voters' state, so no locks.
	flagged := s.updateParallel(ws.Full, active, tick)

	// Dormant aging sweep, cheap and sequential.
	for _, id := range ws.Aging {
		v := s.Store.Get(id)
		if v == nil {
			slog.Error("aging update for unknown voter, skipping", "id", id)
			continue
		}
		elapsed := tick - v.Opinion.LastUpdatedTick
		v.Opinion = opinion.Age(s.Params, v.Opinion, elapsed, tick)
	}

	// Cluster flagged voters into cohorts and submit; one request per
	// cohort, resolved asynchronously.
	if len(flagged) > 0 {
		cohorts := cluster.BuildCohorts(s.Store, flagged, s.cfg.Gateway.MaxCohortSize)
		for _, c := range cohorts {
			rep := s.Store.Get(c.Representative)
			if rep == nil {
				continue
			}
			s.Gateway.Submit(c, analysis.KindOpinionInfluence, analysis.SnapshotOf(rep), now)
		}
	}

	// Close any timed-out collection window, then write back every
	// resolution that arrived since last tick.
	s.Gateway.Poll(now)
	s.drainResults(tick)

	s.Sink.TickCompleted(tick, len(ws.Full)+len(ws.Aging), ws.Overflow)

	if tick == 1 || tick%sampleInterval == 0 {
		s.publishSample()
	}

	if tick%reportInterval == 0 {
		counts := s.Store.TierCounts()
		stats := s.Gateway.Stats()
		slog.Info("simulation report",
			"tick", tick,
			"population", s.Store.Len(),
			"dormant", counts[voters.TierDormant],
			"low", counts[voters.TierLow],
			"medium", counts[voters.TierMedium],
			"high", counts[voters.TierHigh],
			"cache_hit_rate", stats.CacheHitRate,
			"batches", stats.Batches,
			"circuit", stats.CircuitState,
		)
	}
}

// updateParallel runs the pure opinion update across workers and returns
// the IDs flagged for external analysis, in working-set order.
func (s *Simulation) updateParallel(ids []voters.VoterID, active []events.Event, tick uint64) []voters.VoterID {
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	if len(ids) < workers*4 {
		workers = 1
	}

	chunkFlagged := make([][]voters.VoterID, workers)
	chunkSize := (len(ids) + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		if start >= len(ids) {
			break
		}
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		w := w
		chunk := ids[start:end]
		g.Go(func() error {
			for _, id := range chunk {
				v := s.Store.Get(id)
				if v == nil {
					slog.Error("update for unknown voter, skipping", "id", id)
					continue
				}
				elapsed := tick - v.Opinion.LastUpdatedTick
				v.Opinion = opinion.Apply(s.Params, v.Opinion, v.Behavior, v.Demographics, active, elapsed, tick)

				if v.Tier == voters.TierHigh && float64(v.Opinion.Volatility) >= s.cfg.Analysis.FlagVolatility {
					chunkFlagged[w] = append(chunkFlagged[w], id)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var flagged []voters.VoterID
	for _, cf := range chunkFlagged {
		flagged = append(flagged, cf...)
	}
	return flagged
}

// drainResults applies every resolution delivered since the previous tick.
// Runs on the simulation thread only, after the parallel phase.
func (s *Simulation) drainResults(tick uint64) {
	for _, p := range s.Gateway.Drain() {
		state := p.State()
		if state == gateway.StateCancelled {
			continue
		}
		res, ok := p.Result()
		if !ok {
			continue
		}
		if res.Fallback {
			s.Degraded = true
		}

		for _, id := range p.Cohort.Members {
			v := s.Store.Get(id)
			if v == nil {
				continue // recycled since submission
			}

			for a := 0; a < voters.NumAxes; a++ {
				v.Opinion.Axes[a] = voters.ClampAxis(v.Opinion.Axes[a] + res.AxisDeltas[a])
			}
			v.Opinion.Confidence = voters.ClampUnit(v.Opinion.Confidence + res.ConfidenceDelta)

			// A substantive result can promote the voter one tier; the
			// analysis found something worth watching.
			if !res.Fallback && v.Tier < voters.TierHigh && maxAbsDelta(res.AxisDeltas) > 0.02 {
				s.Store.SetTier(id, v.Tier+1)
			}
		}
	}
}

// publishSample copies a bounded population slice for lock-free reads by
// the status API.
func (s *Simulation) publishSample() {
	sample := make([]voters.Voter, 0, sampleSize)
	s.Store.ForEach(func(v *voters.Voter) {
		if len(sample) < sampleSize {
			sample = append(sample, *v)
		}
	})
	s.sample.Store(sample)
}

// Sample returns the most recently published population sample. Safe to
// call from any goroutine.
func (s *Simulation) Sample() []voters.Voter {
	if v, ok := s.sample.Load().([]voters.Voter); ok {
		return v
	}
	return nil
}

// RecycleVoter removes a voter, cancelling any analysis future it owns so
// nothing writes back into a reused slot.
func (s *Simulation) RecycleVoter(id voters.VoterID) {
	s.Gateway.CancelOwner(id)
	s.Store.Recycle(id)
}

func maxAbsDelta(deltas [voters.NumAxes]float32) float32 {
	var max float32
	for _, d := range deltas {
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}
