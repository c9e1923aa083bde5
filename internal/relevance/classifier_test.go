package relevance

import (
	"testing"

	"github.com/talgya/electorate/internal/config"
	"github.com/talgya/electorate/internal/voters"
)

func testClassifier() *Classifier {
	return NewClassifier(config.Default().Relevance)
}

func addVoter(s *voters.Store, x, y int, vol float32, lastTick uint64) voters.VoterID {
	return s.Insert(voters.Voter{
		Demographics: voters.Demographics{Age: 40, DistrictX: x, DistrictY: y},
		Opinion:      voters.OpinionState{Volatility: vol, LastUpdatedTick: lastTick, Confidence: 0.5},
	})
}

func TestScoreRangeAndOrdering(t *testing.T) {
	c := testClassifier()
	c.SetFocus(Focus{X: 10, Y: 10, Radius: 20})

	near := &voters.Voter{Demographics: voters.Demographics{DistrictX: 10, DistrictY: 10}}
	far := &voters.Voter{Demographics: voters.Demographics{DistrictX: 60, DistrictY: 60}}

	sn := c.Score(near, 100)
	sf := c.Score(far, 100)

	for _, s := range []float64{sn, sf} {
		if s < 0 || s > 1 {
			t.Errorf("score %v out of [0, 1]", s)
		}
	}
	if sn <= sf {
		t.Errorf("near voter scored %v, far voter %v; want near > far", sn, sf)
	}
}

func TestScoreStalenessSaturates(t *testing.T) {
	c := testClassifier()
	v := &voters.Voter{Opinion: voters.OpinionState{LastUpdatedTick: 0}}

	atScale := c.Score(v, 120)
	wayPast := c.Score(v, 100000)

	if atScale != wayPast {
		t.Errorf("staleness not capped: score(120)=%v, score(100000)=%v", atScale, wayPast)
	}
}

func TestTargetTierThresholds(t *testing.T) {
	c := testClassifier()
	tests := []struct {
		score float64
		want  voters.Tier
	}{
		{0.80, voters.TierHigh},
		{0.75, voters.TierHigh},
		{0.60, voters.TierMedium},
		{0.45, voters.TierMedium},
		{0.20, voters.TierLow},
		{0.15, voters.TierLow},
		{0.10, voters.TierDormant},
		{0.0, voters.TierDormant},
	}
	for _, tt := range tests {
		if got := c.targetTier(tt.score); got != tt.want {
			t.Errorf("targetTier(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestStepTowardNeverSkipsALevel(t *testing.T) {
	for cur := voters.Tier(0); cur < voters.NumTiers; cur++ {
		for target := voters.Tier(0); target < voters.NumTiers; target++ {
			next := stepToward(cur, target)
			diff := int(next) - int(cur)
			if diff < -1 || diff > 1 {
				t.Errorf("stepToward(%s, %s) jumped %d levels", cur, target, diff)
			}
			if cur == target && next != cur {
				t.Errorf("stepToward(%s, %s) moved off a matching tier", cur, target)
			}
		}
	}
}

func TestPassTransitionsOneStepPerPass(t *testing.T) {
	c := testClassifier()
	c.SetFocus(Focus{X: 0, Y: 0, Radius: 10})

	s := voters.NewStore(4)
	// At the focus center, very stale, very volatile: argues for High. But
	// the voter starts Low, so it must climb one pass at a time.
	id := addVoter(s, 0, 0, 1.0, 0)

	if _, err := c.Pass(s, 1000); err != nil {
		t.Fatal(err)
	}
	if got := s.Get(id).Tier; got != voters.TierMedium {
		t.Fatalf("after pass 1 tier = %s, want medium", got)
	}

	if _, err := c.Pass(s, 1010); err != nil {
		t.Fatal(err)
	}
	if got := s.Get(id).Tier; got != voters.TierHigh {
		t.Fatalf("after pass 2 tier = %s, want high", got)
	}
}

func TestPassDemotionStepsDown(t *testing.T) {
	c := testClassifier()
	c.SetFocus(Focus{X: 0, Y: 0, Radius: 5})

	s := voters.NewStore(4)
	// Far from focus, freshly updated, calm: argues for Dormant.
	id := addVoter(s, 100, 100, 0, 1000)
	s.SetTier(id, voters.TierHigh)

	want := []voters.Tier{voters.TierMedium, voters.TierLow, voters.TierDormant}
	for i, w := range want {
		s.Get(id).Opinion.LastUpdatedTick = 1000 + uint64(i)*10
		if _, err := c.Pass(s, 1000+uint64(i)*10); err != nil {
			t.Fatal(err)
		}
		if got := s.Get(id).Tier; got != w {
			t.Fatalf("demotion pass %d: tier = %s, want %s", i+1, got, w)
		}
	}
}

func TestPassPinnedVoterClimbsToHighAndStays(t *testing.T) {
	c := testClassifier()
	c.SetFocus(Focus{X: 0, Y: 0, Radius: 5})

	s := voters.NewStore(4)
	// Pinned but otherwise arguing for Dormant.
	id := s.Insert(voters.Voter{
		Pinned:       true,
		Demographics: voters.Demographics{DistrictX: 100, DistrictY: 100},
		Opinion:      voters.OpinionState{LastUpdatedTick: 500},
	})

	for pass := 0; pass < 4; pass++ {
		s.Get(id).Opinion.LastUpdatedTick = 500
		if _, err := c.Pass(s, 500); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.Get(id).Tier; got != voters.TierHigh {
		t.Errorf("pinned voter tier = %s after 4 passes, want high", got)
	}
}

func TestPassDeterministic(t *testing.T) {
	build := func() *voters.Store {
		s := voters.NewStore(32)
		for i := 0; i < 30; i++ {
			addVoter(s, i*3, i%7, float32(i%10)/10, uint64(i*13))
		}
		return s
	}

	c1, c2 := testClassifier(), testClassifier()
	c1.SetFocus(Focus{X: 20, Y: 3, Radius: 15})
	c2.SetFocus(Focus{X: 20, Y: 3, Radius: 15})
	s1, s2 := build(), build()

	c1.Pass(s1, 400)
	c2.Pass(s2, 400)

	for tier := voters.Tier(0); tier < voters.NumTiers; tier++ {
		m1, m2 := s1.TierMembers(tier), s2.TierMembers(tier)
		if len(m1) != len(m2) {
			t.Fatalf("tier %s sizes differ: %d vs %d", tier, len(m1), len(m2))
		}
		for i := range m1 {
			if m1[i] != m2[i] {
				t.Fatalf("tier %s member %d differs: %d vs %d", tier, i, m1[i], m2[i])
			}
		}
	}
}

func TestPassCountsPartitionPopulation(t *testing.T) {
	c := testClassifier()
	s := voters.NewStore(16)
	for i := 0; i < 15; i++ {
		addVoter(s, i, i, 0.2, 0)
	}

	counts, err := c.Pass(s, 200)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != s.Len() {
		t.Errorf("tier counts sum to %d, population is %d", total, s.Len())
	}
}
