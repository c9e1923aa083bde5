// Package analysis provides the client for the external per-voter analysis
// service: typed batch requests, an HTTP implementation, a deterministic
// local mock, and the fallback result used when the service is down.
package analysis

import (
	"fmt"

	"github.com/talgya/electorate/internal/voters"
)

// Kind selects which analysis the service performs on a feature snapshot.
type Kind uint8

const (
	// KindOpinionInfluence asks how current events shift this profile's
	// opinions beyond what local rules capture.
	KindOpinionInfluence Kind = iota

	// KindTurnout asks for turnout propensity given the profile.
	KindTurnout

	// KindMessaging asks which campaign framing the profile responds to.
	KindMessaging
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindOpinionInfluence:
		return "opinion_influence"
	case KindTurnout:
		return "turnout"
	case KindMessaging:
		return "messaging"
	}
	return "unknown"
}

// Snapshot is the representative feature vector sent with a request. It is
// copied out of the store at submission time so a later recycle of the
// voter cannot race the dispatch.
type Snapshot struct {
	Age          uint8                    `json:"age"`
	Education    voters.Education         `json:"education"`
	IncomeDecile uint8                    `json:"income_decile"`
	Axes         [voters.NumAxes]float32  `json:"axes"`
	Confidence   float32                  `json:"confidence"`
	Engagement   float32                  `json:"engagement"`
}

// SnapshotOf captures the analysis-relevant features of a voter.
func SnapshotOf(v *voters.Voter) Snapshot {
	return Snapshot{
		Age:          v.Demographics.Age,
		Education:    v.Demographics.Education,
		IncomeDecile: v.Demographics.IncomeDecile,
		Axes:         v.Opinion.Axes,
		Confidence:   v.Opinion.Confidence,
		Engagement:   v.Behavior.Engagement,
	}
}

// Request is one element of a dispatched batch.
type Request struct {
	ID       string   `json:"id"`
	Kind     Kind     `json:"kind"`
	Features Snapshot `json:"features"`
}

// Result is the service's answer for one request: bounded opinion nudges
// plus a stance label. Fallback results are deterministic and flagged.
type Result struct {
	AxisDeltas      [voters.NumAxes]float32 `json:"axis_deltas"`
	ConfidenceDelta float32                 `json:"confidence_delta"`
	Stance          string                  `json:"stance"`
	Fallback        bool                    `json:"fallback,omitempty"`
}

// CacheKey builds the deterministic fingerprint for a bucketed request:
// analysis kind plus the cohort's bucket key string.
func CacheKey(kind Kind, bucket string) string {
	return fmt.Sprintf("%s:%s", kind, bucket)
}
