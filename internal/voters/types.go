// Package voters provides the voter data model and the arena store that
// owns every record in the population.
package voters

// VoterID is a unique identifier for a voter. IDs are issued monotonically
// and never reused: a recycled slot gets a fresh ID, so stale IDs held by
// the scheduler or gateway simply stop resolving.
type VoterID uint64

// Tier is the relevance class controlling a voter's update frequency.
// Classification recomputes it every pass; transitions move at most one
// step per pass.
type Tier uint8

const (
	TierDormant Tier = iota
	TierLow
	TierMedium
	TierHigh
)

// NumTiers is the number of relevance tiers.
const NumTiers = 4

// String returns the tier name for logs and telemetry.
func (t Tier) String() string {
	switch t {
	case TierDormant:
		return "dormant"
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	}
	return "unknown"
}

// OpinionAxis indexes one political opinion dimension.
type OpinionAxis uint8

const (
	AxisEconomy OpinionAxis = iota
	AxisImmigration
	AxisEnvironment
	AxisSocialPolicy
)

// NumAxes is the number of opinion axes.
const NumAxes = 4

// AxisName returns a readable name for an opinion axis.
func AxisName(a OpinionAxis) string {
	switch a {
	case AxisEconomy:
		return "economy"
	case AxisImmigration:
		return "immigration"
	case AxisEnvironment:
		return "environment"
	case AxisSocialPolicy:
		return "social_policy"
	}
	return "unknown"
}

// Education enumerates attainment levels used for demographic bucketing.
type Education uint8

const (
	EduPrimary   Education = iota
	EduSecondary
	EduVocational
	EduBachelor
	EduPostgrad
)

// Demographics are immutable after seeding.
type Demographics struct {
	Age          uint8     `json:"age"`
	Education    Education `json:"education"`
	IncomeDecile uint8     `json:"income_decile"` // 1–10
	DistrictX    int       `json:"district_x"`
	DistrictY    int       `json:"district_y"`
}

// OpinionState holds the mutable per-axis opinion vector.
// Every axis value stays within [-1, 1] after any update; Confidence and
// Volatility stay within [0, 1].
type OpinionState struct {
	Axes            [NumAxes]float32 `json:"axes"`       // -1.0 to 1.0 per axis
	Confidence      float32          `json:"confidence"` // 0.0 to 1.0
	Volatility      float32          `json:"volatility"` // EWMA of recent movement, 0.0 to 1.0
	LastUpdatedTick uint64           `json:"last_updated_tick"`
}

// BehaviorState holds bounded personality and affect scalars, all in [0, 1].
type BehaviorState struct {
	Susceptibility   float32 `json:"susceptibility"`    // How strongly events move opinions
	ChangeResistance float32 `json:"change_resistance"` // Dampens all opinion movement
	Expressiveness   float32 `json:"expressiveness"`    // Propensity to voice opinions
	Engagement       float32 `json:"engagement"`        // Political attention level
}

// SocialSummary is the aggregate social standing of a voter — influence and
// exposure scores, not a full relationship graph.
type SocialSummary struct {
	Influence     float32 `json:"influence"`      // 0.0 to 1.0
	PeerExposure  float32 `json:"peer_exposure"`  // 0.0 to 1.0
	NetworkSize   uint16  `json:"network_size"`   // Approximate contact count
}

// Voter is the core entity: immutable identity and demographics plus
// mutable opinion, behavior, and social state.
type Voter struct {
	ID           VoterID      `json:"id"`
	Demographics Demographics `json:"demographics"`

	Opinion  OpinionState  `json:"opinion"`
	Behavior BehaviorState `json:"behavior"`
	Social   SocialSummary `json:"social"`

	// Tier is owned by the classifier; the store partitions iteration by it.
	Tier Tier `json:"tier"`

	// Pinned forces the classifier to hold this voter at High.
	Pinned bool `json:"pinned,omitempty"`

	// SeededTick records when the voter entered the population.
	SeededTick uint64 `json:"seeded_tick"`
}

// ClampAxis bounds an axis value to [-1, 1].
func ClampAxis(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// ClampUnit bounds a scalar to [0, 1].
func ClampUnit(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// LeadingAxis returns the axis with the largest absolute opinion value,
// ties broken by axis order. Used by the clusterer's bucket key.
func (o *OpinionState) LeadingAxis() OpinionAxis {
	best := OpinionAxis(0)
	bestAbs := float32(-1)
	for i := 0; i < NumAxes; i++ {
		abs := o.Axes[i]
		if abs < 0 {
			abs = -abs
		}
		if abs > bestAbs {
			bestAbs = abs
			best = OpinionAxis(i)
		}
	}
	return best
}
