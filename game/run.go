package game

import (
	"context"
	"log/slog"

	"github.com/pthm-cable/flap/config"
	"github.com/pthm-cable/flap/telemetry"
)

// Options configures a generation run.
type Options struct {
	// Seed for obstacle generation.
	Seed int64
	// OnTick, if set, receives a snapshot after every tick.
	OnTick func(Snapshot)
	// Perf, if set, is restarted for this generation and receives its
	// per-phase tick timings.
	Perf *telemetry.PerfCollector
}

// Result is the outcome of a generation.
type Result struct {
	// Fitness holds the final fitness of every agent, indexed by agent ID.
	Fitness []float64
	Score   int
	Ticks   int
	Aborted bool
	Deaths  DeathCounts

	// Survived holds the ticks each agent lived, indexed by agent ID.
	Survived []int
	// Crossed holds the crossing events each agent lived through.
	Crossed []int
}

// RunGeneration simulates one generation of size agents until the population
// is empty, ctx is cancelled, or a configured cap is reached. prev is the
// context returned by the previous call; the returned context describes the
// generation just run. Cancellation and caps are not errors: they end the
// generation with Result.Aborted set and fitness intact.
func RunGeneration(ctx context.Context, cfg *config.Config, prev Generation, size int, factory PolicyFactory, opts Options) (Generation, Result, error) {
	g, err := NewGame(cfg, prev, size, factory, opts)
	if err != nil {
		return prev, Result{}, err
	}
	defer g.Close()

	for g.State() == Running {
		if ctx.Err() != nil {
			g.Abort()
			break
		}

		g.Step()
		if opts.OnTick != nil {
			opts.OnTick(g.Snapshot())
		}

		if g.CapReached() {
			g.Abort()
		}
	}

	res := g.Result()
	slog.Debug("generation ended",
		"gen", g.gen.Number,
		"score", res.Score,
		"ticks", res.Ticks,
		"aborted", res.Aborted,
	)
	return g.Generation(), res, nil
}
