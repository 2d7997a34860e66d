package evolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pthm-cable/flap/config"
	"github.com/pthm-cable/flap/game"
	"github.com/pthm-cable/flap/telemetry"
)

// GenerationRunner simulates one generation. game.RunGeneration bound to a
// config is the headless runner; the viewer supplies its own.
type GenerationRunner func(ctx context.Context, prev game.Generation, size int, factory game.PolicyFactory, opts game.Options) (game.Generation, game.Result, error)

// Headless returns a runner that calls game.RunGeneration with cfg.
func Headless(cfg *config.Config) GenerationRunner {
	return func(ctx context.Context, prev game.Generation, size int, factory game.PolicyFactory, opts game.Options) (game.Generation, game.Result, error) {
		return game.RunGeneration(ctx, cfg, prev, size, factory, opts)
	}
}

// Options configures an evolution run.
type Options struct {
	// Generations to run. Zero uses evolution.generations from the config.
	Generations int
	// Seed for the first generation's obstacles; generation n uses Seed+n.
	Seed int64
	// Runner simulates each generation. Nil runs headless.
	Runner GenerationRunner
	// Output, if set, receives generation stats, perf and the hall of fame.
	Output *telemetry.OutputManager
	// Perf, if set, profiles every generation.
	Perf *telemetry.PerfCollector
	// OnGeneration, if set, is called after each generation is evaluated.
	OnGeneration func(telemetry.GenerationStats)
}

// Summary describes a finished evolution run.
type Summary struct {
	Generation  game.Generation // context after the last generation
	Generations int
	TotalTicks  int64
	BestFitness float64
	BestScore   int
	Stopped     bool // ctx was cancelled before all generations ran
}

// Run evolves pop for the configured number of generations. Cancelling ctx
// finishes the current generation as aborted and stops without error.
func Run(ctx context.Context, cfg *config.Config, pop *Population, opts Options) (Summary, error) {
	generations := opts.Generations
	if generations <= 0 {
		generations = cfg.Evolution.Generations
	}
	runner := opts.Runner
	if runner == nil {
		runner = Headless(cfg)
	}
	logEvery := max(cfg.Telemetry.LogEvery, 1)

	var sum Summary
	gen := game.Generation{}
	for i := 0; i < generations; i++ {
		if ctx.Err() != nil {
			sum.Stopped = true
			break
		}

		start := time.Now()
		next, res, err := runner(ctx, gen, pop.Size(), pop.Factory(), game.Options{
			Seed: opts.Seed + int64(gen.Number+1),
			Perf: opts.Perf,
		})
		if err != nil {
			return sum, fmt.Errorf("generation %d: %w", gen.Number+1, err)
		}
		gen = next

		if err := pop.Evaluate(gen, res); err != nil {
			return sum, fmt.Errorf("evaluating generation %d: %w", gen.Number, err)
		}

		stats := generationStats(gen, res, pop.Size())
		stats.SetWall(time.Since(start))

		sum.Generation = gen
		sum.Generations++
		sum.TotalTicks += int64(res.Ticks)
		sum.BestScore = max(sum.BestScore, res.Score)
		if best := pop.Best().Fitness; sum.Generations == 1 || best > sum.BestFitness {
			sum.BestFitness = best
		}

		if gen.Number%logEvery == 0 {
			stats.LogStats()
			if opts.Perf != nil {
				opts.Perf.Stats().LogStats()
			}
		}
		if err := writeGeneration(opts, stats, gen); err != nil {
			return sum, err
		}
		if opts.OnGeneration != nil {
			opts.OnGeneration(stats)
		}

		if res.Aborted && ctx.Err() != nil {
			sum.Stopped = true
			break
		}
		pop.Next()
	}

	if err := opts.Output.WriteHallOfFame(pop.HallOfFame()); err != nil {
		return sum, fmt.Errorf("writing hall of fame: %w", err)
	}

	slog.Info("evolution finished",
		"generations", sum.Generations,
		"ticks", humanize.Comma(sum.TotalTicks),
		"best_fitness", sum.BestFitness,
		"best_score", sum.BestScore,
		"stopped", sum.Stopped,
	)
	return sum, nil
}

func generationStats(gen game.Generation, res game.Result, size int) telemetry.GenerationStats {
	stats := telemetry.GenerationStats{
		Generation:     gen.Number,
		Population:     size,
		Score:          res.Score,
		Ticks:          res.Ticks,
		Aborted:        res.Aborted,
		ObstacleDeaths: res.Deaths.Obstacle,
		GroundDeaths:   res.Deaths.Ground,
		CeilingDeaths:  res.Deaths.Ceiling,
	}
	stats.ComputeFitnessStats(res.Fitness)
	stats.ComputeSurvivalStats(res.Survived)
	return stats
}

func writeGeneration(opts Options, stats telemetry.GenerationStats, gen game.Generation) error {
	if err := opts.Output.WriteGeneration(stats); err != nil {
		return fmt.Errorf("writing generation %d stats: %w", gen.Number, err)
	}
	if opts.Perf != nil {
		if err := opts.Output.WritePerf(opts.Perf.Stats()); err != nil {
			return fmt.Errorf("writing generation %d perf: %w", gen.Number, err)
		}
	}
	return nil
}
