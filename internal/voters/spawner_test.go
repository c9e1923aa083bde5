package voters

import (
	"testing"
)

func TestSpawnPopulationCountAndBounds(t *testing.T) {
	sp := NewSpawner(SpawnConfig{Seed: 7, GridSize: 64})
	s := NewStore(1000)

	ids := sp.SpawnPopulation(s, 1000, 0, 0)
	if len(ids) != 1000 || s.Len() != 1000 {
		t.Fatalf("spawned %d ids into a store of %d, want 1000", len(ids), s.Len())
	}

	s.ForEach(func(v *Voter) {
		if v.Demographics.Age < 18 || v.Demographics.Age > 94 {
			t.Errorf("voter %d age %d out of range", v.ID, v.Demographics.Age)
		}
		if v.Demographics.IncomeDecile < 1 || v.Demographics.IncomeDecile > 10 {
			t.Errorf("voter %d income decile %d out of range", v.ID, v.Demographics.IncomeDecile)
		}
		for i, a := range v.Opinion.Axes {
			if a < -1 || a > 1 {
				t.Errorf("voter %d axis %d = %v out of [-1, 1]", v.ID, i, a)
			}
		}
		for name, val := range map[string]float32{
			"confidence":        v.Opinion.Confidence,
			"susceptibility":    v.Behavior.Susceptibility,
			"change_resistance": v.Behavior.ChangeResistance,
			"engagement":        v.Behavior.Engagement,
			"influence":         v.Social.Influence,
		} {
			if val < 0 || val > 1 {
				t.Errorf("voter %d %s = %v out of [0, 1]", v.ID, name, val)
			}
		}
		if v.Tier != TierLow {
			t.Errorf("voter %d seeded into tier %s, want low", v.ID, v.Tier)
		}
	})
}

func TestSpawnPopulationPinsEvenly(t *testing.T) {
	sp := NewSpawner(SpawnConfig{Seed: 7})
	s := NewStore(1000)
	sp.SpawnPopulation(s, 1000, 50, 0)

	pinned := 0
	s.ForEach(func(v *Voter) {
		if v.Pinned {
			pinned++
		}
	})
	if pinned != 50 {
		t.Errorf("pinned %d voters, want 50", pinned)
	}
}

func TestSpawnDeterministicForSeed(t *testing.T) {
	spawn := func(seed int64) []Voter {
		sp := NewSpawner(SpawnConfig{Seed: seed, GridSize: 32})
		s := NewStore(100)
		sp.SpawnPopulation(s, 100, 10, 0)
		var out []Voter
		s.ForEach(func(v *Voter) { out = append(out, *v) })
		return out
	}

	a, b := spawn(99), spawn(99)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("voter %d differs between identical seeds", i)
		}
	}

	c := spawn(100)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical populations")
	}
}

func TestSpawnIncomeSpatiallyCorrelated(t *testing.T) {
	// Neighboring cells share the low-frequency income field, so the
	// population-wide income spread must exceed any single district's.
	sp := NewSpawner(SpawnConfig{Seed: 3, GridSize: 64})
	s := NewStore(4000)
	sp.SpawnPopulation(s, 4000, 0, 0)

	byCell := make(map[[2]int][]int)
	s.ForEach(func(v *Voter) {
		key := [2]int{v.Demographics.DistrictX / 16, v.Demographics.DistrictY / 16}
		byCell[key] = append(byCell[key], int(v.Demographics.IncomeDecile))
	})

	means := make([]float64, 0, len(byCell))
	for _, incomes := range byCell {
		sum := 0
		for _, inc := range incomes {
			sum += inc
		}
		means = append(means, float64(sum)/float64(len(incomes)))
	}

	var lo, hi = means[0], means[0]
	for _, m := range means {
		if m < lo {
			lo = m
		}
		if m > hi {
			hi = m
		}
	}
	if hi-lo < 0.5 {
		t.Errorf("district income means span %.2f deciles; expected visible spatial structure", hi-lo)
	}
}
