// Package schedule selects the per-tick working set under a fixed compute
// budget. High-tier voters always update; Medium rotates round-robin
// through remaining budget; Low samples 1-in-N; Dormant gets a cheap
// aging-only sweep on a long interval. Every tier carries a staleness
// ceiling — voters past it are force-included even when that overflows the
// budget.
package schedule

import (
	"fmt"
	"log/slog"

	"github.com/talgya/electorate/internal/config"
	"github.com/talgya/electorate/internal/telemetry"
	"github.com/talgya/electorate/internal/voters"
)

// WorkingSet is one tick's selection. Full entries receive the complete
// opinion update; Aging entries receive only time-passage decay.
type WorkingSet struct {
	Full  []voters.VoterID
	Aging []voters.VoterID

	// Overflow counts Full selections beyond the budget (forced by
	// staleness ceilings or High-tier load). Logged, never dropped.
	Overflow int

	// Degraded marks a tick that fell back to uniform round-robin after a
	// classification or selection fault.
	Degraded bool
}

// Scheduler produces deterministic working sets: identical population and
// tick number always yield the same selection.
type Scheduler struct {
	cfg  config.ScheduleConfig
	sink telemetry.Sink
}

// NewScheduler creates a scheduler with the given budget configuration.
func NewScheduler(cfg config.ScheduleConfig, sink telemetry.Sink) *Scheduler {
	return &Scheduler{cfg: cfg, sink: sink}
}

// Select builds the working set for a tick. Any panic in selection is
// recovered: the tick degrades to a uniform round-robin over the whole
// population and the fault is reported, never propagated.
func (s *Scheduler) Select(store *voters.Store, tick uint64) (ws WorkingSet) {
	defer func() {
		if r := recover(); r != nil {
			s.sink.Degraded("scheduler", fmt.Sprintf("selection fault: %v", r))
			ws = s.SelectUniform(store, tick)
		}
	}()

	budget := s.cfg.Budget
	selected := make(map[voters.VoterID]struct{}, budget)

	take := func(id voters.VoterID) {
		if _, dup := selected[id]; dup {
			return
		}
		selected[id] = struct{}{}
		ws.Full = append(ws.Full, id)
	}

	// High tier: due every tick, all included before anything else.
	for _, id := range store.TierMembers(voters.TierHigh) {
		take(id)
	}

	// Medium tier: round-robin through remaining budget. The start offset
	// derives from the tick so selection is a pure function of state.
	medium := store.TierMembers(voters.TierMedium)
	remaining := budget - len(ws.Full)
	if remaining > 0 && len(medium) > 0 {
		n := remaining
		if n > len(medium) {
			n = len(medium)
		}
		start := int((tick * uint64(n)) % uint64(len(medium)))
		for i := 0; i < n; i++ {
			take(medium[(start+i)%len(medium)])
		}
	}

	// Low tier: fixed 1-in-N sampling rotated by tick, cut at remaining
	// budget. Staleness forcing below catches anything sampling misses
	// for too long.
	low := store.TierMembers(voters.TierLow)
	remaining = budget - len(ws.Full)
	rate := s.cfg.LowSampleRate
	for i := 0; i < len(low) && remaining > 0; i++ {
		if (i+int(tick))%rate == 0 {
			take(low[i])
			remaining--
		}
	}

	// Dormant tier: cheap aging-only sweep on the long interval. Not
	// charged against the full-update budget.
	if s.cfg.DormantInterval > 0 && tick%s.cfg.DormantInterval == 0 {
		ws.Aging = append(ws.Aging, store.TierMembers(voters.TierDormant)...)
	}

	// Staleness ceilings: force-include anyone past their tier's ceiling.
	ceilings := [voters.NumTiers]uint64{
		voters.TierDormant: s.cfg.DormantStaleTicks,
		voters.TierLow:     s.cfg.LowStaleTicks,
		voters.TierMedium:  s.cfg.MediumStaleTicks,
		voters.TierHigh:    s.cfg.HighStaleTicks,
	}
	for tier := voters.Tier(0); tier < voters.NumTiers; tier++ {
		ceiling := ceilings[tier]
		if ceiling == 0 {
			continue
		}
		for _, id := range store.TierMembers(tier) {
			v := store.Get(id)
			if v == nil {
				continue
			}
			if tick-v.Opinion.LastUpdatedTick >= ceiling {
				take(id)
			}
		}
	}

	if len(ws.Full) > budget {
		ws.Overflow = len(ws.Full) - budget
		slog.Warn("working set overflows budget",
			"tick", tick, "selected", len(ws.Full), "budget", budget, "overflow", ws.Overflow)
	}
	return ws
}

// SelectUniform is the degraded path: a uniform round-robin over the whole
// population, budget-bounded, ignoring tiers. Quality drops; the tick
// still completes.
func (s *Scheduler) SelectUniform(store *voters.Store, tick uint64) WorkingSet {
	ids := store.IDs()
	ws := WorkingSet{Degraded: true}
	if len(ids) == 0 {
		return ws
	}

	budget := s.cfg.Budget
	if budget > len(ids) {
		budget = len(ids)
	}
	start := int((tick * uint64(budget)) % uint64(len(ids)))
	for i := 0; i < budget; i++ {
		ws.Full = append(ws.Full, ids[(start+i)%len(ids)])
	}
	return ws
}
