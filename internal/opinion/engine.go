// Package opinion implements the per-voter opinion state transition. Apply
// is a pure function over its own voter's state and the read-only active
// event list, so the engine can run it across workers without locks.
package opinion

import (
	"math"

	"github.com/talgya/electorate/internal/events"
	"github.com/talgya/electorate/internal/voters"
)

// Params tunes the update model. The drift model is an explicit
// exponential-decay rate: opinions relax toward neutral at DriftRate per
// tick when no event touches the axis.
type Params struct {
	// StepScale converts event pressure into per-tick axis movement.
	StepScale float32

	// DriftRate is the per-tick exponential relaxation rate toward neutral
	// for untouched axes.
	DriftRate float64

	// ConfidenceDecay is the per-tick rate at which confidence relaxes
	// toward neutral when the voter goes un-updated.
	ConfidenceDecay float64

	// ReinforceGain scales confidence growth when an event pushes in the
	// direction the voter already leans.
	ReinforceGain float32

	// VolatilityAlpha is the EWMA weight for recent opinion movement.
	VolatilityAlpha float32

	// IdleTicks is how long an axis must go untouched before drift and
	// confidence decay engage.
	IdleTicks uint64
}

// DefaultParams returns the baseline update model tuning.
func DefaultParams() Params {
	return Params{
		StepScale:       0.05,
		DriftRate:       0.0004,
		ConfidenceDecay: 0.001,
		ReinforceGain:   0.04,
		VolatilityAlpha: 0.2,
		IdleTicks:       120,
	}
}

const neutralConfidence = 0.5

// Apply computes the next opinion state for one voter. It reads only its
// arguments and returns a new state; it never mutates shared data.
//
// Each active event matching the voter's demographics moves the event's
// axis toward the event target by intensity × susceptibility ×
// (1 − changeResistance) × StepScale per elapsed tick, clamped to axis
// bounds after every addition and never overshooting the target.
func Apply(p Params, old voters.OpinionState, behavior voters.BehaviorState,
	demo voters.Demographics, active []events.Event, elapsed uint64, now uint64) voters.OpinionState {

	next := old
	if elapsed == 0 {
		elapsed = 1
	}

	pressure := behavior.Susceptibility * (1 - behavior.ChangeResistance)

	var touched [voters.NumAxes]bool
	var totalMove float32

	for _, ev := range active {
		if !ev.Filter.Matches(demo) {
			continue
		}
		axis := ev.Axis
		cur := next.Axes[axis]

		step := ev.Intensity * pressure * p.StepScale * float32(elapsed)
		gap := ev.Target - cur
		move := step
		if gap < 0 {
			move = -step
		}
		if abs32(gap) < step {
			move = gap // land on target, never overshoot
		}

		next.Axes[axis] = voters.ClampAxis(cur + move)
		touched[axis] = true
		totalMove += abs32(move)

		// Confidence: reinforcement when the push aligns with the existing
		// lean, erosion when it contradicts it.
		if cur*move > 0 {
			next.Confidence = voters.ClampUnit(next.Confidence + p.ReinforceGain*ev.Intensity)
		} else if cur*move < 0 {
			next.Confidence = voters.ClampUnit(next.Confidence - p.ReinforceGain*ev.Intensity*0.5)
		}
	}

	// Untouched axes relax toward neutral once the voter has idled long
	// enough. Exponential decay, not a function of absolute time.
	idle := now - old.LastUpdatedTick
	if idle >= p.IdleTicks {
		decay := float32(math.Exp(-p.DriftRate * float64(elapsed)))
		for i := 0; i < voters.NumAxes; i++ {
			if !touched[i] {
				next.Axes[i] = voters.ClampAxis(next.Axes[i] * decay)
			}
		}
		if totalMove == 0 {
			confDecay := float32(math.Exp(-p.ConfidenceDecay * float64(elapsed)))
			next.Confidence = voters.ClampUnit(
				neutralConfidence + (next.Confidence-neutralConfidence)*confDecay)
		}
	}

	// Volatility tracks recent movement as an EWMA in [0, 1].
	sample := totalMove * 4
	if sample > 1 {
		sample = 1
	}
	next.Volatility = voters.ClampUnit(
		next.Volatility*(1-p.VolatilityAlpha) + sample*p.VolatilityAlpha)

	next.LastUpdatedTick = now
	return next
}

// Age applies only the cheap time-passage effects (drift and confidence
// decay) without event processing. Used for Dormant-tier sweeps.
func Age(p Params, old voters.OpinionState, elapsed uint64, now uint64) voters.OpinionState {
	next := old
	if elapsed == 0 {
		elapsed = 1
	}

	decay := float32(math.Exp(-p.DriftRate * float64(elapsed)))
	for i := 0; i < voters.NumAxes; i++ {
		next.Axes[i] = voters.ClampAxis(next.Axes[i] * decay)
	}

	confDecay := float32(math.Exp(-p.ConfidenceDecay * float64(elapsed)))
	next.Confidence = voters.ClampUnit(
		neutralConfidence + (next.Confidence-neutralConfidence)*confDecay)

	next.Volatility = voters.ClampUnit(next.Volatility * (1 - p.VolatilityAlpha))
	next.LastUpdatedTick = now
	return next
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
