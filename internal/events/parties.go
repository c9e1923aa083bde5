package events

import (
	"github.com/talgya/electorate/internal/voters"
)

// Party is an immutable political profile: a fixed position on every
// opinion axis. Loaded once at startup; the core never mutates these.
type Party struct {
	Name      string                     `json:"name"`
	Positions [voters.NumAxes]float32    `json:"positions"`
}

// DefaultParties returns the built-in party table. The surrounding
// application may replace it with authored content at startup.
func DefaultParties() []Party {
	return []Party{
		{Name: "Progressive Alliance", Positions: [voters.NumAxes]float32{-0.6, 0.5, 0.8, 0.7}},
		{Name: "Centrist Union", Positions: [voters.NumAxes]float32{0.1, 0.0, 0.1, 0.1}},
		{Name: "Free Market League", Positions: [voters.NumAxes]float32{0.8, -0.2, -0.4, 0.0}},
		{Name: "National Front", Positions: [voters.NumAxes]float32{0.2, -0.8, -0.3, -0.7}},
		{Name: "Green Compact", Positions: [voters.NumAxes]float32{-0.4, 0.3, 0.9, 0.4}},
	}
}

// NearestParty returns the index of the party whose positions are closest
// to the given opinion vector (squared euclidean distance, ties by table
// order). Deterministic, so it anchors fallback analysis results.
func NearestParty(parties []Party, opinion voters.OpinionState) int {
	best := 0
	bestDist := float32(-1)
	for i, p := range parties {
		var dist float32
		for a := 0; a < voters.NumAxes; a++ {
			d := opinion.Axes[a] - p.Positions[a]
			dist += d * d
		}
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best
}
