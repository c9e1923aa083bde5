package analysis

import (
	"context"

	"github.com/talgya/electorate/internal/events"
	"github.com/talgya/electorate/internal/voters"
)

// Mock is a deterministic in-process analysis service used when no
// endpoint is configured and by tests. It pulls each profile a small step
// toward its nearest party's positions, scaled by engagement.
type Mock struct {
	parties []events.Party

	// Fail, when set, makes every batch fail. Tests use it to exercise
	// the circuit breaker.
	Fail bool
}

// NewMock creates a mock backed by the given party table (DefaultParties
// if nil).
func NewMock(parties []events.Party) *Mock {
	if parties == nil {
		parties = events.DefaultParties()
	}
	return &Mock{parties: parties}
}

// AnalyzeBatch resolves every request locally and deterministically.
func (m *Mock) AnalyzeBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	if m.Fail {
		return nil, context.DeadlineExceeded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]Result, len(reqs))
	for i, req := range reqs {
		results[i] = m.analyzeOne(req)
	}
	return results, nil
}

func (m *Mock) analyzeOne(req Request) Result {
	opinion := voters.OpinionState{Axes: req.Features.Axes}
	idx := events.NearestParty(m.parties, opinion)
	party := m.parties[idx]

	var res Result
	res.Stance = party.Name

	switch req.Kind {
	case KindOpinionInfluence:
		// Pull toward the nearest party, harder for engaged voters.
		gain := 0.08 * req.Features.Engagement
		for a := 0; a < voters.NumAxes; a++ {
			res.AxisDeltas[a] = (party.Positions[a] - req.Features.Axes[a]) * gain
		}
		res.ConfidenceDelta = 0.05 * req.Features.Engagement
	case KindTurnout:
		// Turnout work only moves confidence.
		res.ConfidenceDelta = 0.03 * req.Features.Engagement
	case KindMessaging:
		// Messaging sharpens the leading axis slightly.
		leading := opinion.LeadingAxis()
		if req.Features.Axes[leading] >= 0 {
			res.AxisDeltas[leading] = 0.04
		} else {
			res.AxisDeltas[leading] = -0.04
		}
	}
	return res
}

// FallbackResult is the deterministic degraded answer used when the
// circuit is open or a dispatched batch fails: no opinion movement, a
// slight confidence pull toward neutral, flagged as fallback.
func FallbackResult(req Request) Result {
	var res Result
	res.Fallback = true
	res.Stance = "undetermined"
	if req.Features.Confidence > 0.5 {
		res.ConfidenceDelta = -0.02
	} else if req.Features.Confidence < 0.5 {
		res.ConfidenceDelta = 0.02
	}
	return res
}
