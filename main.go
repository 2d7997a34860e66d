package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/flap/components"
	"github.com/pthm-cable/flap/config"
	"github.com/pthm-cable/flap/evolve"
	"github.com/pthm-cable/flap/game"
	"github.com/pthm-cable/flap/renderer"
	"github.com/pthm-cable/flap/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without graphics (generations end on simulation.max_ticks/max_score or when every agent dies)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config snapshot and hall of fame")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	generations := flag.Int("generations", 0, "Generations to run (0 = use config)")
	population := flag.Int("population", 0, "Population size (0 = use config)")
	replayPath := flag.String("replay", "", "Replay genomes from a hall_of_fame.json instead of evolving")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *population > 0 {
		cfg.Population.Size = *population
		cfg.Evolution.Elite = min(cfg.Evolution.Elite, *population)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	om, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	var runner evolve.GenerationRunner
	if !*headless {
		rl.SetConfigFlags(rl.FlagWindowResizable)
		rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), renderer.Title(*replayPath != "", om.RunID()))
		defer rl.CloseWindow()
		rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

		viewer := renderer.NewViewer(cfg)
		defer viewer.Unload()
		viewer.SetReplay(*replayPath != "")

		// Closing the window ends the run
		ctx, stop = context.WithCancel(ctx)
		defer stop()
		viewer.OnClose = stop
		runner = viewer.RunGeneration
	}

	slog.Info("starting",
		"seed", rngSeed,
		"headless", *headless,
		"population", cfg.Population.Size,
		"run_id", om.RunID(),
	)

	if *replayPath != "" {
		if err := replay(ctx, cfg, *replayPath, *generations, rngSeed, runner); err != nil {
			slog.Error("replay failed", "error", err)
			os.Exit(1)
		}
		return
	}

	pop, err := evolve.NewPopulation(cfg, cfg.Population.Size, rand.New(rand.NewSource(rngSeed)))
	if err != nil {
		slog.Error("failed to create population", "error", err)
		os.Exit(1)
	}

	_, err = evolve.Run(ctx, cfg, pop, evolve.Options{
		Generations: *generations,
		Seed:        rngSeed,
		Runner:      runner,
		Output:      om,
		Perf:        telemetry.NewPerfCollector(),
	})
	if err != nil {
		slog.Error("evolution failed", "error", err)
		os.Exit(1)
	}
}

// replay runs the hall-of-fame genomes as a population until the run is
// stopped or the generation count is reached (0 = until stopped).
func replay(ctx context.Context, cfg *config.Config, path string, generations int, seed int64, runner evolve.GenerationRunner) error {
	hof, err := evolve.LoadHallOfFame(path)
	if err != nil {
		return err
	}
	nets, err := hof.Nets()
	if err != nil {
		return err
	}
	if len(nets) == 0 {
		return game.ErrInvalidPopulation
	}
	if runner == nil {
		runner = evolve.Headless(cfg)
		if generations <= 0 {
			generations = 1
		}
	}

	factory := func(id int) components.Policy {
		if id < 0 || id >= len(nets) {
			return nil
		}
		return nets[id]
	}

	gen := game.Generation{}
	for generations <= 0 || gen.Number < generations {
		if ctx.Err() != nil {
			return nil
		}
		next, res, err := runner(ctx, gen, len(nets), factory, game.Options{Seed: seed + int64(gen.Number+1)})
		if err != nil {
			return err
		}
		gen = next
		slog.Info("replay generation",
			"gen", gen.Number,
			"score", res.Score,
			"ticks", res.Ticks,
			"best_fitness", floats.Max(res.Fitness),
			"aborted", res.Aborted,
		)
	}
	return nil
}
