// Package cluster groups voters flagged for external analysis into bounded
// cohorts by a cheap quantized bucket key. Cohort members share one
// representative's analysis result, trading bounded accuracy loss for a
// large cut in external call volume.
package cluster

import (
	"fmt"

	"github.com/talgya/electorate/internal/voters"
)

// BucketKey quantizes the demographic and opinion features that drive
// analysis results. Voters sharing a key are similar enough to share one
// result.
type BucketKey struct {
	AgeBand     uint8              // Age / 15
	Education   voters.Education
	IncomeBand  uint8              // (decile-1) / 3, 0–3
	LeadingAxis voters.OpinionAxis
	LeanBin     int8               // leading-axis value quantized into 5 bins
}

// KeyFor computes the bucket key for a voter.
func KeyFor(v *voters.Voter) BucketKey {
	leading := v.Opinion.LeadingAxis()
	lean := v.Opinion.Axes[leading]

	// 5 bins over [-1, 1]: -2, -1, 0, 1, 2.
	bin := int8(lean * 2.5)
	if bin > 2 {
		bin = 2
	}
	if bin < -2 {
		bin = -2
	}

	// Deciles run 1–10; a zero-valued voter would underflow the band.
	decile := v.Demographics.IncomeDecile
	if decile < 1 {
		decile = 1
	}
	if decile > 10 {
		decile = 10
	}

	return BucketKey{
		AgeBand:     v.Demographics.Age / 15,
		Education:   v.Demographics.Education,
		IncomeBand:  (decile - 1) / 3,
		LeadingAxis: leading,
		LeanBin:     bin,
	}
}

// String renders the key as a stable fingerprint component for caching.
func (k BucketKey) String() string {
	return fmt.Sprintf("a%d-e%d-i%d-x%d-l%+d",
		k.AgeBand, k.Education, k.IncomeBand, k.LeadingAxis, k.LeanBin)
}

// Cohort is one batched analysis unit: members in arrival order plus the
// representative whose feature snapshot generates the actual request.
type Cohort struct {
	Key            BucketKey
	Members        []voters.VoterID // arrival order preserved
	Representative voters.VoterID
}

// BuildCohorts partitions the flagged voters (in arrival order) into
// cohorts of at most maxSize members. Oversized buckets split by arrival
// order. Unknown IDs are skipped — a stale flag is not worth an external
// call. Deterministic: same flags in the same order yield the same cohorts.
func BuildCohorts(store *voters.Store, flagged []voters.VoterID, maxSize int) []Cohort {
	if maxSize <= 0 {
		maxSize = 1
	}

	groups := make(map[BucketKey][]voters.VoterID)
	var order []BucketKey // first-arrival ordering of keys

	for _, id := range flagged {
		v := store.Get(id)
		if v == nil {
			continue
		}
		key := KeyFor(v)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], id)
	}

	var cohorts []Cohort
	for _, key := range order {
		members := groups[key]
		for start := 0; start < len(members); start += maxSize {
			end := start + maxSize
			if end > len(members) {
				end = len(members)
			}
			chunk := members[start:end]
			cohorts = append(cohorts, Cohort{
				Key:            key,
				Members:        append([]voters.VoterID(nil), chunk...),
				Representative: pickRepresentative(store, chunk),
			})
		}
	}
	return cohorts
}

// pickRepresentative returns the member closest to the cohort's opinion
// centroid, ties broken by lowest ID.
func pickRepresentative(store *voters.Store, members []voters.VoterID) voters.VoterID {
	var centroid [voters.NumAxes]float32
	n := 0
	for _, id := range members {
		v := store.Get(id)
		if v == nil {
			continue
		}
		for a := 0; a < voters.NumAxes; a++ {
			centroid[a] += v.Opinion.Axes[a]
		}
		n++
	}
	if n == 0 {
		return members[0]
	}
	for a := 0; a < voters.NumAxes; a++ {
		centroid[a] /= float32(n)
	}

	best := members[0]
	bestDist := float32(-1)
	for _, id := range members {
		v := store.Get(id)
		if v == nil {
			continue
		}
		var dist float32
		for a := 0; a < voters.NumAxes; a++ {
			d := v.Opinion.Axes[a] - centroid[a]
			dist += d * d
		}
		if bestDist < 0 || dist < bestDist || (dist == bestDist && id < best) {
			bestDist = dist
			best = id
		}
	}
	return best
}
