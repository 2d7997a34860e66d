package game

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/flap/components"
	"github.com/pthm-cable/flap/config"
	"github.com/pthm-cable/flap/telemetry"
)

const eps = 1e-9

// neverJump always outputs 0.
var neverJump = components.PolicyFunc(func(y, top, bottom float64) float64 { return 0 })

// gapSeeker jumps whenever the agent is closer to the bottom of the gap than
// the top, i.e. when y > gapTop + gap/2.
var gapSeeker = components.PolicyFunc(func(y, top, bottom float64) float64 {
	if top > bottom {
		return 1
	}
	return 0
})

func constFactory(p components.Policy) PolicyFactory {
	return func(int) components.Policy { return p }
}

func newTestGame(t *testing.T, cfg *config.Config, size int, factory PolicyFactory, seed int64) *Game {
	t.Helper()
	g, err := NewGame(cfg, Generation{}, size, factory, Options{Seed: seed})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

func TestNeverJumpFallsToGround(t *testing.T) {
	cfg := config.Default()
	g := newTestGame(t, cfg, 1, constFactory(neverJump), 1)

	wantY := []float64{351.5, 357.5, 371, 387, 403}
	for i, want := range wantY {
		g.Step()
		snap := g.Snapshot()
		if len(snap.Agents) != 1 {
			t.Fatalf("tick %d: %d agents, want 1", i+1, len(snap.Agents))
		}
		if got := snap.Agents[0].Y; math.Abs(got-want) > eps {
			t.Errorf("tick %d: y = %v, want %v", i+1, got, want)
		}
	}

	for g.State() == Running {
		g.Step()
		if g.Tick() > 1000 {
			t.Fatal("generation did not end")
		}
	}

	res := g.Result()
	if res.Ticks != 23 {
		t.Errorf("ticks = %d, want 23", res.Ticks)
	}
	if res.Score != 0 {
		t.Errorf("score = %d, want 0", res.Score)
	}
	if math.Abs(res.Fitness[0]-2.3) > eps {
		t.Errorf("fitness = %v, want 2.3", res.Fitness[0])
	}
	if res.Deaths.Ground != 1 || res.Deaths.Obstacle != 0 {
		t.Errorf("deaths = %+v, want one ground death", res.Deaths)
	}
	if res.Aborted {
		t.Error("natural end reported as aborted")
	}
}

func TestResultReportsSurvivalAndCrossings(t *testing.T) {
	cfg := config.Default()
	g := newTestGame(t, cfg, 2, func(id int) components.Policy {
		if id == 0 {
			return neverJump
		}
		return gapSeeker
	}, 1)

	for g.State() == Running && g.Score() == 0 && g.Tick() < 200 {
		g.Step()
	}
	if g.Score() != 1 {
		t.Fatalf("score = %d after %d ticks, want 1", g.Score(), g.Tick())
	}

	res := g.Result()
	if len(res.Survived) != 2 || len(res.Crossed) != 2 {
		t.Fatalf("per-agent slices = %d/%d, want 2/2", len(res.Survived), len(res.Crossed))
	}
	// The faller is removed on tick 23, before any crossing
	if res.Survived[0] != 23 || res.Crossed[0] != 0 {
		t.Errorf("faller: survived %d crossed %d, want 23 and 0", res.Survived[0], res.Crossed[0])
	}
	if res.Survived[1] != g.Tick() || res.Crossed[1] != 1 {
		t.Errorf("seeker: survived %d crossed %d, want %d and 1", res.Survived[1], res.Crossed[1], g.Tick())
	}
}

func TestBoundsUseBodyHeight(t *testing.T) {
	cfg := config.Default()
	g := newTestGame(t, cfg, 2, constFactory(neverJump), 1)

	// Stretch agent 1 so its footprint reaches the floor from the start
	query := g.agentFilter.Query()
	for query.Next() {
		pos, _, body, agent := query.Get()
		if agent.ID == 1 {
			body.Height = cfg.World.FloorY - pos.Y
		}
	}

	g.Step()
	if g.Alive() != 1 {
		t.Fatalf("alive = %d after one tick, want 1", g.Alive())
	}
	res := g.Result()
	if res.Deaths.Ground != 1 || res.Survived[1] != 1 {
		t.Errorf("deaths = %+v survived = %v, want agent 1 grounded on tick 1", res.Deaths, res.Survived)
	}
}

func TestGapSeekerCrossesObstacle(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 42} {
		cfg := config.Default()
		g := newTestGame(t, cfg, 1, constFactory(gapSeeker), seed)

		crossedAt := -1
		for g.State() == Running && g.Tick() < 200 {
			before := g.Fitness()[0]
			scoreBefore := g.Score()
			g.Step()

			if g.Score() > scoreBefore {
				if g.Score() != scoreBefore+1 {
					t.Fatalf("seed %d: score jumped from %d to %d", seed, scoreBefore, g.Score())
				}
				delta := g.Fitness()[0] - before
				if math.Abs(delta-5.1) > eps {
					t.Errorf("seed %d: fitness delta on crossing tick = %v, want 5.1", seed, delta)
				}
				crossedAt = g.Tick()
				break
			}
		}

		if crossedAt < 0 {
			t.Fatalf("seed %d: no crossing within 200 ticks (state %v, alive %d)", seed, g.State(), g.Alive())
		}
		// First obstacle starts at 700 and scrolls 5 per tick past x=230
		if crossedAt != 96 {
			t.Errorf("seed %d: crossed at tick %d, want 96", seed, crossedAt)
		}
		if g.Alive() != 1 {
			t.Errorf("seed %d: agent died on the crossing tick", seed)
		}
	}
}

func TestCrossingCountedOncePerObstacle(t *testing.T) {
	cfg := config.Default()
	const n = 8
	g := newTestGame(t, cfg, n, constFactory(gapSeeker), 7)

	obstaclesBefore := 0
	for g.State() == Running && g.Score() == 0 && g.Tick() < 200 {
		obstaclesBefore = len(g.Snapshot().Obstacles)
		before := append([]float64(nil), g.Fitness()...)
		g.Step()

		if g.Score() == 1 {
			for i := 0; i < n; i++ {
				if d := g.Fitness()[i] - before[i]; math.Abs(d-5.1) > eps {
					t.Errorf("agent %d: crossing delta = %v, want 5.1", i, d)
				}
			}
		}
	}

	if g.Score() != 1 {
		t.Fatalf("score = %d, want exactly 1 after %d agents cross together", g.Score(), n)
	}
	if got := len(g.Snapshot().Obstacles); got != obstaclesBefore+1 {
		t.Errorf("obstacles = %d, want %d (one spawn per crossing)", got, obstaclesBefore+1)
	}
}

func TestCollisionAndBoundsPenalizedOnce(t *testing.T) {
	cfg := config.Default()
	// Agent starts inside the bottom segment and already touching the floor
	cfg.Agent.StartY = 700
	cfg.Obstacle.FirstX = cfg.Agent.StartX
	cfg.Obstacle.MinGapTop = 50
	cfg.Obstacle.MaxGapTop = 51

	g := newTestGame(t, cfg, 1, constFactory(neverJump), 1)
	g.Step()

	res := g.Result()
	if g.State() != Ended {
		t.Fatalf("state = %v, want ended", g.State())
	}
	if math.Abs(res.Fitness[0]-(-0.9)) > eps {
		t.Errorf("fitness = %v, want -0.9 (one tick reward, one penalty)", res.Fitness[0])
	}
	if res.Deaths.Obstacle != 1 || res.Deaths.Ground != 0 {
		t.Errorf("deaths = %+v, want one obstacle death", res.Deaths)
	}
	if g.Alive() != 0 {
		t.Errorf("alive = %d, want 0", g.Alive())
	}

	// Further steps change nothing
	g.Step()
	if g.Tick() != 1 || math.Abs(g.Fitness()[0]-(-0.9)) > eps {
		t.Errorf("ended game advanced: tick %d fitness %v", g.Tick(), g.Fitness()[0])
	}
}

func TestPopulationNeverGrows(t *testing.T) {
	cfg := config.Default()
	factory := func(id int) components.Policy {
		offset := float64(id%7) * 20
		return components.PolicyFunc(func(y, top, bottom float64) float64 {
			if y > 250+offset {
				return 1
			}
			return 0
		})
	}
	g := newTestGame(t, cfg, 30, factory, 3)

	prev := g.Alive()
	for g.State() == Running && g.Tick() < 2000 {
		g.Step()
		if g.Alive() > prev {
			t.Fatalf("tick %d: population grew from %d to %d", g.Tick(), prev, g.Alive())
		}
		prev = g.Alive()
		if n := len(g.Snapshot().Agents); n != g.Alive() {
			t.Fatalf("tick %d: snapshot has %d agents, alive %d", g.Tick(), n, g.Alive())
		}
	}

	res := g.Result()
	total := res.Deaths.Obstacle + res.Deaths.Ground + res.Deaths.Ceiling
	if total+g.Alive() != 30 {
		t.Errorf("deaths %d + alive %d != 30", total, g.Alive())
	}
}

func TestAbortKeepsFitness(t *testing.T) {
	cfg := config.Default()
	g := newTestGame(t, cfg, 3, constFactory(neverJump), 1)

	for i := 0; i < 5; i++ {
		g.Step()
	}
	g.Abort()

	if g.State() != Ended {
		t.Fatalf("state after abort = %v, want ended", g.State())
	}
	g.Step()

	res := g.Result()
	if !res.Aborted {
		t.Error("Result.Aborted not set")
	}
	if res.Ticks != 5 {
		t.Errorf("ticks = %d, want 5", res.Ticks)
	}
	for i, f := range res.Fitness {
		if math.Abs(f-0.5) > eps {
			t.Errorf("agent %d fitness = %v, want 0.5", i, f)
		}
	}
}

func TestNewGameRejectsInvalidInput(t *testing.T) {
	valid := constFactory(neverJump)

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		size    int
		factory PolicyFactory
		want    error
	}{
		{"zero gap", func(c *config.Config) { c.Obstacle.Gap = 0 }, 1, valid, config.ErrInvalidConfig},
		{"empty gap range", func(c *config.Config) { c.Obstacle.MaxGapTop = c.Obstacle.MinGapTop }, 1, valid, config.ErrInvalidConfig},
		{"zero population", nil, 0, valid, ErrInvalidPopulation},
		{"negative population", nil, -3, valid, ErrInvalidPopulation},
		{"nil factory", nil, 1, nil, ErrNilPolicy},
		{"nil policy", nil, 2, func(id int) components.Policy {
			if id == 1 {
				return nil
			}
			return neverJump
		}, ErrNilPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			_, err := NewGame(cfg, Generation{}, tt.size, tt.factory, Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}

			_, res, err := RunGeneration(context.Background(), cfg, Generation{}, tt.size, tt.factory, Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("RunGeneration err = %v, want %v", err, tt.want)
			}
			if res.Ticks != 0 || res.Fitness != nil {
				t.Errorf("RunGeneration simulated despite error: %+v", res)
			}
		})
	}
}

func TestRunGenerationThreadsContext(t *testing.T) {
	cfg := config.Default()
	ctx := context.Background()

	gen, res, err := RunGeneration(ctx, cfg, Generation{}, 2, constFactory(neverJump), Options{Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	if gen.Number != 1 || gen.Ticks != 23 || gen.Score != 0 {
		t.Errorf("first generation = %+v, want {1 0 23}", gen)
	}
	if len(res.Fitness) != 2 {
		t.Fatalf("fitness len = %d, want 2", len(res.Fitness))
	}

	gen, _, err = RunGeneration(ctx, cfg, gen, 2, constFactory(neverJump), Options{Seed: 2})
	if err != nil {
		t.Fatal(err)
	}
	if gen.Number != 2 {
		t.Errorf("second generation number = %d, want 2", gen.Number)
	}
}

func TestRunGenerationCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen, res, err := RunGeneration(ctx, config.Default(), Generation{}, 4, constFactory(gapSeeker), Options{})
	if err != nil {
		t.Fatalf("cancellation reported as error: %v", err)
	}
	if !res.Aborted || res.Ticks != 0 {
		t.Errorf("result = %+v, want aborted at tick 0", res)
	}
	if len(res.Fitness) != 4 {
		t.Errorf("fitness len = %d, want 4", len(res.Fitness))
	}
	if gen.Number != 1 {
		t.Errorf("generation number = %d, want 1", gen.Number)
	}
}

func TestRunGenerationCaps(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.MaxTicks = 40

	var ticks []int
	opts := Options{Seed: 5, OnTick: func(s Snapshot) { ticks = append(ticks, s.Tick) }}
	_, res, err := RunGeneration(context.Background(), cfg, Generation{}, 1, constFactory(gapSeeker), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Aborted || res.Ticks != 40 {
		t.Errorf("result = %+v, want aborted at tick 40", res)
	}
	if len(ticks) != 40 {
		t.Errorf("OnTick called %d times, want 40", len(ticks))
	} else if ticks[39] != 40 {
		t.Errorf("last snapshot tick = %d, want 40", ticks[39])
	}

	cfg = config.Default()
	cfg.Simulation.MaxScore = 1
	_, res, err = RunGeneration(context.Background(), cfg, Generation{}, 1, constFactory(gapSeeker), Options{Seed: 5})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Aborted || res.Score != 1 {
		t.Errorf("result = %+v, want aborted with score 1", res)
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	factory := func(id int) components.Policy {
		bias := float64(id%11) * 9
		return components.PolicyFunc(func(y, top, bottom float64) float64 {
			if top-bias > bottom {
				return 1
			}
			return 0
		})
	}

	run := func(threshold int) Result {
		cfg := config.Default()
		cfg.Simulation.ParallelThreshold = threshold
		cfg.Simulation.MaxTicks = 600
		_, res, err := RunGeneration(context.Background(), cfg, Generation{}, 150, factory, Options{Seed: 11})
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	serial := run(0)
	parallel := run(1)

	if serial.Score != parallel.Score || serial.Ticks != parallel.Ticks {
		t.Fatalf("serial %d/%d vs parallel %d/%d (score/ticks)",
			serial.Score, serial.Ticks, parallel.Score, parallel.Ticks)
	}
	for i := range serial.Fitness {
		if serial.Fitness[i] != parallel.Fitness[i] {
			t.Errorf("agent %d: serial %v, parallel %v", i, serial.Fitness[i], parallel.Fitness[i])
		}
	}
	if serial.Deaths != parallel.Deaths {
		t.Errorf("deaths serial %+v, parallel %+v", serial.Deaths, parallel.Deaths)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	g := newTestGame(t, config.Default(), 2, constFactory(neverJump), 1)
	g.Step()

	snap := g.Snapshot()
	if snap.Generation != 1 || snap.Tick != 1 || snap.Alive != 2 {
		t.Errorf("snapshot header = gen %d tick %d alive %d", snap.Generation, snap.Tick, snap.Alive)
	}
	if len(snap.Obstacles) != 1 || snap.Obstacles[0].X != 695 {
		t.Errorf("obstacles = %+v, want one at x=695", snap.Obstacles)
	}
	if o := snap.Obstacles[0]; o.GapBottom-o.GapTop != 200 {
		t.Errorf("gap = %v, want 200", o.GapBottom-o.GapTop)
	}

	snap.Agents[0].Y = -1000
	g.Step()
	if g.State() != Running {
		t.Error("mutating a snapshot affected the game")
	}
}

func TestPerfProfilesGeneration(t *testing.T) {
	perf := telemetry.NewPerfCollector()
	g, err := NewGame(config.Default(), Generation{}, 4, constFactory(neverJump), Options{Seed: 1, Perf: perf})
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	for i := 0; i < 5; i++ {
		g.Step()
	}
	stats := perf.Stats()
	if stats.Generation != 1 || stats.Ticks != 5 {
		t.Errorf("profile = gen %d, %d ticks, want gen 1, 5 ticks", stats.Generation, stats.Ticks)
	}
	// Four agents decide every tick until the fall kills them
	if stats.Decisions != 20 {
		t.Errorf("decisions = %d, want 20", stats.Decisions)
	}
}

func BenchmarkStep(b *testing.B) {
	cfg := config.Default()
	factory := constFactory(gapSeeker)
	g, err := NewGame(cfg, Generation{}, 500, factory, Options{Seed: 1})
	if err != nil {
		b.Fatal(err)
	}
	defer g.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if g.Step() == Ended {
			b.StopTimer()
			g.Close()
			g, _ = NewGame(cfg, Generation{}, 500, factory, Options{Seed: int64(i)})
			b.StartTimer()
		}
	}
}
