// Command electorate runs the adaptive voter-simulation core: a tiered
// population update loop plus the batched, cached, circuit-broken gateway
// to the external analysis service.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/talgya/electorate/internal/analysis"
	"github.com/talgya/electorate/internal/api"
	"github.com/talgya/electorate/internal/config"
	"github.com/talgya/electorate/internal/engine"
	"github.com/talgya/electorate/internal/events"
	"github.com/talgya/electorate/internal/gateway"
	"github.com/talgya/electorate/internal/persistence"
	"github.com/talgya/electorate/internal/relevance"
	"github.com/talgya/electorate/internal/telemetry"
	"github.com/talgya/electorate/internal/voters"
)

const (
	populationSize = 10000
	pinnedHigh     = 500
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("electorate — adaptive voter simulation core", "seed", cfg.Seed)

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll("data", 0755)
	db, err := persistence.Open(cfg.Snapshot.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Snapshot.Path)

	// ── Load or Seed Population ───────────────────────────────────────
	store := voters.NewStore(populationSize)
	var startTick uint64

	if db.HasSnapshot() {
		slog.Info("found saved population, loading...")
		startTick, err = db.LoadSnapshot(store)
		if err != nil {
			slog.Error("failed to load snapshot", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("no saved population, seeding new electorate...")
		spawner := voters.NewSpawner(voters.SpawnConfig{
			Seed:     cfg.Seed,
			GridSize: 64,
		})
		spawner.SpawnPopulation(store, populationSize, pinnedHigh, 0)
	}

	counts := store.TierCounts()
	slog.Info("electorate ready",
		"voters", humanize.Comma(int64(store.Len())),
		"dormant", counts[voters.TierDormant],
		"low", counts[voters.TierLow],
		"medium", counts[voters.TierMedium],
		"high", counts[voters.TierHigh],
		"tick", startTick,
	)

	// ── Telemetry ─────────────────────────────────────────────────────
	metrics := telemetry.NewCapture()
	sink := telemetry.Multi{telemetry.LogSink{}, metrics}

	// ── Analysis Client + Gateway ─────────────────────────────────────
	var client analysis.Client
	if httpClient := analysis.NewHTTPClient(cfg.Analysis.Endpoint, cfg.Analysis.APIKey, cfg.Analysis.Timeout.Std()); httpClient != nil {
		slog.Info("external analysis service enabled", "endpoint", cfg.Analysis.Endpoint)
		client = httpClient
	} else {
		slog.Warn("no analysis endpoint configured — using deterministic local mock")
		client = analysis.NewMock(events.DefaultParties())
	}

	gw := gateway.New(cfg.Gateway, cfg.Analysis.Timeout.Std(), client, sink)
	defer gw.Close()

	// ── Event Source ──────────────────────────────────────────────────
	// A small authored timeline; the surrounding application replaces
	// this with live content.
	schedule := events.NewSchedule([]events.Event{
		{Axis: voters.AxisEconomy, Target: -0.5, Intensity: 0.6, StartTick: 100, EndTick: 7200,
			Description: "budget crisis dominates the news cycle"},
		{Axis: voters.AxisImmigration, Target: 0.4, Intensity: 0.4, StartTick: 3600, EndTick: 14400,
			Filter: events.DemographicFilter{MinAge: 45},
			Description: "border policy debate"},
		{Axis: voters.AxisEnvironment, Target: 0.7, Intensity: 0.5, StartTick: 7200,
			Filter: events.DemographicFilter{MaxAge: 35},
			Description: "climate protests"},
	})

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(cfg, store, schedule, gw, sink)
	sim.LastTick = startTick
	sim.Classifier.SetFocus(relevance.Focus{X: 32, Y: 32, Radius: 24})

	eng := engine.NewEngine(cfg.TickInterval.Std())
	eng.SetTick(startTick)
	eng.OnTick = func(tick uint64) {
		sim.Step(tick)
		if cfg.Snapshot.IntervalTicks > 0 && tick%cfg.Snapshot.IntervalTicks == 0 {
			if err := db.SaveSnapshot(store, tick); err != nil {
				slog.Error("periodic snapshot failed", "error", err)
			}
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("ELECTORATE_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("ELECTORATE_ADMIN_KEY not set — admin POST endpoints disabled")
	}
	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		Metrics:  metrics,
		Port:     cfg.API.Port,
		AdminKey: adminKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nElectorate is live: %s voters, budget %s updates/tick.\n",
		humanize.Comma(int64(store.Len())), humanize.Comma(int64(cfg.Schedule.Budget)))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %d\n", startTick)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	// Final save on shutdown.
	slog.Info("final snapshot...")
	if err := db.SaveSnapshot(store, eng.Tick()); err != nil {
		slog.Error("final snapshot failed", "error", err)
	}

	fmt.Println("Simulation stopped. Population saved.")
}
