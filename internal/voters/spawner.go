// Population seeding — creates voters with demographics, opinion vectors,
// and behavior traits. Opinions and income are spatially correlated across
// the district grid via layered noise, so neighborhoods lean together the
// way real electorates do.
package voters

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// SpawnConfig controls initial population generation.
type SpawnConfig struct {
	Seed int64

	// GridSize is the side length of the square district grid voters are
	// placed on.
	GridSize int
}

// Spawner creates voters for the simulation.
type Spawner struct {
	rng      *rand.Rand
	gridSize int

	// Independent noise layers per opinion axis, plus one for income.
	axisNoise   [NumAxes]opensimplex.Noise
	incomeNoise opensimplex.Noise
}

// NewSpawner creates a population spawner with the given seed.
func NewSpawner(cfg SpawnConfig) *Spawner {
	grid := cfg.GridSize
	if grid <= 0 {
		grid = 64
	}
	sp := &Spawner{
		rng:         rand.New(rand.NewSource(cfg.Seed + 300)),
		gridSize:    grid,
		incomeNoise: opensimplex.NewNormalized(cfg.Seed + 100),
	}
	for i := 0; i < NumAxes; i++ {
		sp.axisNoise[i] = opensimplex.NewNormalized(cfg.Seed + int64(i))
	}
	return sp
}

// SpawnPopulation seeds count voters into the store and returns their IDs.
// pinnedHigh of them, spread evenly, are flagged always-High (party
// figures, journalists, firebrands).
func (sp *Spawner) SpawnPopulation(store *Store, count, pinnedHigh int, tick uint64) []VoterID {
	pinEvery := 0
	if pinnedHigh > 0 {
		pinEvery = count / pinnedHigh
	}

	ids := make([]VoterID, 0, count)
	for i := 0; i < count; i++ {
		v := sp.spawnOne(tick)
		if pinEvery > 0 && i%pinEvery == 0 && len(ids) < count {
			v.Pinned = true
		}
		ids = append(ids, store.Insert(v))
	}
	return ids
}

func (sp *Spawner) spawnOne(tick uint64) Voter {
	x := sp.rng.Intn(sp.gridSize)
	y := sp.rng.Intn(sp.gridSize)

	// Noise coordinates: low frequency so districts span several cells.
	nx := float64(x) / float64(sp.gridSize) * 4
	ny := float64(y) / float64(sp.gridSize) * 4

	demo := Demographics{
		Age:          sp.weightedAge(),
		Education:    sp.weightedEducation(),
		IncomeDecile: sp.incomeDecile(nx, ny),
		DistrictX:    x,
		DistrictY:    y,
	}

	var opinion OpinionState
	for i := 0; i < NumAxes; i++ {
		// Neighborhood lean from noise, individual scatter on top.
		lean := float32(sp.axisNoise[i].Eval2(nx, ny))*2 - 1 // [-1, 1]
		scatter := (sp.rng.Float32()*2 - 1) * 0.35
		opinion.Axes[i] = ClampAxis(lean*0.7 + scatter)
	}
	opinion.Confidence = 0.3 + sp.rng.Float32()*0.4
	opinion.LastUpdatedTick = tick

	behavior := BehaviorState{
		Susceptibility:   0.2 + sp.rng.Float32()*0.6,
		ChangeResistance: 0.1 + sp.rng.Float32()*0.6,
		Expressiveness:   sp.rng.Float32(),
		Engagement:       sp.rng.Float32(),
	}

	// Influence skews low: most voters have little reach.
	influence := sp.rng.Float32() * sp.rng.Float32()
	social := SocialSummary{
		Influence:    influence,
		PeerExposure: 0.2 + sp.rng.Float32()*0.6,
		NetworkSize:  uint16(20 + sp.rng.Intn(280)),
	}

	return Voter{
		Demographics: demo,
		Opinion:      opinion,
		Behavior:     behavior,
		Social:       social,
		Tier:         TierLow,
		SeededTick:   tick,
	}
}

// weightedAge skews toward the 30–65 band that dominates turnout.
func (sp *Spawner) weightedAge() uint8 {
	r := sp.rng.Float32()
	switch {
	case r < 0.15:
		return uint8(18 + sp.rng.Intn(12)) // 18–29
	case r < 0.70:
		return uint8(30 + sp.rng.Intn(35)) // 30–64
	default:
		return uint8(65 + sp.rng.Intn(30)) // 65–94
	}
}

func (sp *Spawner) weightedEducation() Education {
	r := sp.rng.Float32()
	switch {
	case r < 0.10:
		return EduPrimary
	case r < 0.45:
		return EduSecondary
	case r < 0.70:
		return EduVocational
	case r < 0.92:
		return EduBachelor
	default:
		return EduPostgrad
	}
}

// incomeDecile derives income from the noise field with scatter, so
// wealthy and poor districts cluster spatially.
func (sp *Spawner) incomeDecile(nx, ny float64) uint8 {
	base := sp.incomeNoise.Eval2(nx, ny) // [0, 1]
	scatter := (sp.rng.Float64() - 0.5) * 0.3
	d := int((base+scatter)*10) + 1
	if d < 1 {
		d = 1
	}
	if d > 10 {
		d = 10
	}
	return uint8(d)
}
