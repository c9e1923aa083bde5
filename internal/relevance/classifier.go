// Package relevance scores voters and assigns relevance tiers. The score
// is a weighted sum of normalized distance-to-focus, update recency, and
// recent opinion volatility; tier transitions move at most one step per
// classification pass.
package relevance

import (
	"fmt"
	"math"
	"sync"

	"github.com/talgya/electorate/internal/config"
	"github.com/talgya/electorate/internal/voters"
)

// Focus is the current point of player/camera attention in district space.
// Voters near it score higher.
type Focus struct {
	X, Y   float64
	Radius float64
}

// Classifier assigns relevance tiers each classification pass.
type Classifier struct {
	cfg config.RelevanceConfig

	// focus may be moved from another goroutine (the status API) between
	// passes.
	focusMu sync.Mutex
	focus   Focus
}

// NewClassifier creates a classifier with the given tuning.
func NewClassifier(cfg config.RelevanceConfig) *Classifier {
	if cfg.RecencyScale == 0 {
		cfg.RecencyScale = 120
	}
	return &Classifier{cfg: cfg}
}

// SetFocus moves the attention point. Takes effect on the next pass.
func (c *Classifier) SetFocus(f Focus) {
	c.focusMu.Lock()
	c.focus = f
	c.focusMu.Unlock()
}

// Focus returns the current attention point.
func (c *Classifier) Focus() Focus {
	c.focusMu.Lock()
	defer c.focusMu.Unlock()
	return c.focus
}

// Score computes the relevance score for one voter in [0, 1].
func (c *Classifier) Score(v *voters.Voter, tick uint64) float64 {
	focus := c.Focus()

	proximity := 0.5 // no focus set: everything mid-distance
	if focus.Radius > 0 {
		dx := float64(v.Demographics.DistrictX) - focus.X
		dy := float64(v.Demographics.DistrictY) - focus.Y
		d := math.Sqrt(dx*dx+dy*dy) / focus.Radius
		if d > 1 {
			d = 1
		}
		proximity = 1 - d
	}

	stale := float64(0)
	if tick > v.Opinion.LastUpdatedTick {
		stale = float64(tick-v.Opinion.LastUpdatedTick) / float64(c.cfg.RecencyScale)
		if stale > 1 {
			stale = 1
		}
	}

	volatility := float64(v.Opinion.Volatility)

	wSum := c.cfg.WeightDistance + c.cfg.WeightRecency + c.cfg.WeightVolatility
	if wSum <= 0 {
		return 0
	}
	return (c.cfg.WeightDistance*proximity +
		c.cfg.WeightRecency*stale +
		c.cfg.WeightVolatility*volatility) / wSum
}

// targetTier maps a score to the tier it argues for.
func (c *Classifier) targetTier(score float64) voters.Tier {
	switch {
	case score >= c.cfg.HighThreshold:
		return voters.TierHigh
	case score >= c.cfg.MediumThreshold:
		return voters.TierMedium
	case score >= c.cfg.LowThreshold:
		return voters.TierLow
	default:
		return voters.TierDormant
	}
}

// stepToward moves one tier step from current toward target. Demotion from
// High to Dormant therefore takes three successive passes.
func stepToward(current, target voters.Tier) voters.Tier {
	if target > current {
		return current + 1
	}
	if target < current {
		return current - 1
	}
	return current
}

// Pass reclassifies the whole population and returns the resulting tier
// counts. Voters are visited in ascending ID order so ties and transition
// ordering are deterministic. Any panic inside scoring is recovered and
// returned as an error; the caller degrades to uniform scheduling for the
// tick.
func (c *Classifier) Pass(store *voters.Store, tick uint64) (counts [voters.NumTiers]int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classification pass: %v", r)
		}
	}()

	for _, id := range store.IDs() {
		v := store.Get(id)
		if v == nil {
			continue
		}

		// Pinned voters always argue for High but still respect the
		// one-step-per-pass transition rule.
		target := voters.TierHigh
		if !v.Pinned {
			target = c.targetTier(c.Score(v, tick))
		}
		next := stepToward(v.Tier, target)

		if next != v.Tier {
			store.SetTier(id, next)
		}
	}

	return store.TierCounts(), nil
}
