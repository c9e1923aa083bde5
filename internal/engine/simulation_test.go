package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/electorate/internal/analysis"
	"github.com/talgya/electorate/internal/cluster"
	"github.com/talgya/electorate/internal/config"
	"github.com/talgya/electorate/internal/events"
	"github.com/talgya/electorate/internal/gateway"
	"github.com/talgya/electorate/internal/relevance"
	"github.com/talgya/electorate/internal/telemetry"
	"github.com/talgya/electorate/internal/voters"
)

func newTestSim(t *testing.T, clientFails bool) (*Simulation, *telemetry.Capture) {
	t.Helper()

	cfg := config.Default()
	cfg.Schedule.Budget = 100

	store := voters.NewStore(300)
	spawner := voters.NewSpawner(voters.SpawnConfig{Seed: 11, GridSize: 32})
	spawner.SpawnPopulation(store, 300, 10, 0)

	schedule := events.NewSchedule([]events.Event{
		{Axis: voters.AxisEconomy, Target: 0.9, Intensity: 0.8},
		{Axis: voters.AxisEnvironment, Target: -0.6, Intensity: 0.5},
	})

	mock := analysis.NewMock(nil)
	mock.Fail = clientFails
	capture := telemetry.NewCapture()
	gw := gateway.New(cfg.Gateway, time.Second, mock, capture)
	t.Cleanup(gw.Close)

	sim := NewSimulation(cfg, store, schedule, gw, capture)
	sim.Classifier.SetFocus(relevance.Focus{X: 16, Y: 16, Radius: 12})
	return sim, capture
}

func checkPopulationBounds(t *testing.T, s *voters.Store) {
	t.Helper()
	s.ForEach(func(v *voters.Voter) {
		for i, a := range v.Opinion.Axes {
			if a < -1 || a > 1 {
				t.Fatalf("voter %d axis %d = %v out of bounds", v.ID, i, a)
			}
		}
		if v.Opinion.Confidence < 0 || v.Opinion.Confidence > 1 {
			t.Fatalf("voter %d confidence = %v out of bounds", v.ID, v.Opinion.Confidence)
		}
		if v.Opinion.Volatility < 0 || v.Opinion.Volatility > 1 {
			t.Fatalf("voter %d volatility = %v out of bounds", v.ID, v.Opinion.Volatility)
		}
	})
}

func TestStepKeepsOpinionsBounded(t *testing.T) {
	sim, _ := newTestSim(t, false)

	for tick := uint64(1); tick <= 300; tick++ {
		sim.Step(tick)
	}
	checkPopulationBounds(t, sim.Store)
	assert.Equal(t, uint64(300), sim.LastTick)
}

func TestStepCompletesWhenAnalysisServiceIsDown(t *testing.T) {
	sim, capture := newTestSim(t, true)

	// Every dispatched batch fails; ticks must still complete and state
	// must stay bounded.
	for tick := uint64(1); tick <= 200; tick++ {
		sim.Step(tick)
	}
	checkPopulationBounds(t, sim.Store)

	m := capture.Snapshot()
	assert.Equal(t, uint64(200), m.Ticks, "every tick must report completion")
}

func TestStepMovesOpinionsTowardEventTargets(t *testing.T) {
	sim, _ := newTestSim(t, false)

	before := 0.0
	sim.Store.ForEach(func(v *voters.Voter) {
		before += float64(v.Opinion.Axes[voters.AxisEconomy])
	})

	for tick := uint64(1); tick <= 600; tick++ {
		sim.Step(tick)
	}

	after := 0.0
	sim.Store.ForEach(func(v *voters.Voter) {
		after += float64(v.Opinion.Axes[voters.AxisEconomy])
	})

	// The economy event pulls toward +0.9; the population mean must move up.
	assert.Greater(t, after, before, "sustained event did not shift the population")
}

func TestStepReportsTierDistribution(t *testing.T) {
	sim, capture := newTestSim(t, false)

	for tick := uint64(1); tick <= 50; tick++ {
		sim.Step(tick)
	}

	m := capture.Snapshot()
	assert.Equal(t, sim.Store.Len(), m.LastTiers.Total(),
		"classification pass must account for the whole population")
}

func TestSamplePublishedForAPI(t *testing.T) {
	sim, _ := newTestSim(t, false)

	require.Nil(t, sim.Sample(), "no sample before the first tick")
	sim.Step(1)

	sample := sim.Sample()
	require.NotEmpty(t, sample)
	assert.LessOrEqual(t, len(sample), sampleSize)
}

func TestRecycleVoterCancelsItsPendingAnalysis(t *testing.T) {
	sim, _ := newTestSim(t, false)
	id := sim.Store.IDs()[0]

	cohort := cluster.Cohort{
		Members:        []voters.VoterID{id},
		Representative: id,
	}
	p := sim.Gateway.Submit(cohort, analysis.KindOpinionInfluence,
		analysis.SnapshotOf(sim.Store.Get(id)), time.Now())

	sim.RecycleVoter(id)

	assert.Nil(t, sim.Store.Get(id), "recycled voter still resolves")
	assert.Equal(t, gateway.StateCancelled, p.State())
}

func TestNewEngineDefaultsInterval(t *testing.T) {
	e := NewEngine(0)
	assert.Equal(t, time.Second/60, e.Interval)
	assert.Equal(t, 1.0, e.Speed())
}

func TestEngineSpeedAndTickRoundTrip(t *testing.T) {
	e := NewEngine(time.Second)
	e.SetSpeed(4.5)
	assert.Equal(t, 4.5, e.Speed())
	e.SetTick(900)
	assert.Equal(t, uint64(900), e.Tick())
}

func TestEngineRunInvokesOnTickAndStops(t *testing.T) {
	e := NewEngine(time.Millisecond)
	var ticks []uint64
	e.OnTick = func(tick uint64) {
		ticks = append(ticks, tick)
		if tick >= 3 {
			e.Stop()
		}
	}

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	require.GreaterOrEqual(t, len(ticks), 3)
	assert.Equal(t, []uint64{1, 2, 3}, ticks[:3])
}
