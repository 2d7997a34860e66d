package evolve

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/flap/config"
	"github.com/pthm-cable/flap/game"
	"github.com/pthm-cable/flap/neural"
	"github.com/pthm-cable/flap/telemetry"
)

func testConfig(size int) *config.Config {
	cfg := config.Default()
	cfg.Population.Size = size
	cfg.Evolution.Elite = 2
	cfg.Evolution.Generations = 3
	cfg.Simulation.MaxTicks = 300
	return cfg
}

func newTestPopulation(t *testing.T, cfg *config.Config) *Population {
	t.Helper()
	pop, err := NewPopulation(cfg, cfg.Population.Size, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewPopulation: %v", err)
	}
	return pop
}

// resultWith builds a result assigning fitness[i] to genome i.
func resultWith(fitness ...float64) game.Result {
	return game.Result{Fitness: fitness}
}

func TestNewPopulationRejectsEmpty(t *testing.T) {
	_, err := NewPopulation(config.Default(), 0, rand.New(rand.NewSource(1)))
	if !errors.Is(err, game.ErrInvalidPopulation) {
		t.Errorf("err = %v, want ErrInvalidPopulation", err)
	}
}

func TestFactoryMapsAgentsToGenomes(t *testing.T) {
	pop := newTestPopulation(t, testConfig(4))
	factory := pop.Factory()

	for i, g := range pop.Genomes() {
		if p := factory(i); p != g.Net {
			t.Errorf("factory(%d) did not return genome %d's network", i, i)
		}
	}
	if p := factory(4); p != nil {
		t.Errorf("factory(4) = %v, want nil", p)
	}
}

func TestEvaluateRejectsMismatch(t *testing.T) {
	pop := newTestPopulation(t, testConfig(4))
	err := pop.Evaluate(game.Generation{Number: 1}, resultWith(1, 2, 3))
	if !errors.Is(err, ErrFitnessMismatch) {
		t.Errorf("err = %v, want ErrFitnessMismatch", err)
	}
}

func TestEvaluateRecordsFitnessAndHall(t *testing.T) {
	cfg := testConfig(4)
	cfg.Evolution.HallOfFame = 2
	pop := newTestPopulation(t, cfg)

	res := resultWith(1, 7, 3, 5)
	res.Crossed = []int{0, 2, 1, 3}
	if err := pop.Evaluate(game.Generation{Number: 1, Score: 3}, res); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	best := pop.Best()
	if best.Fitness != 7 || best.ID != pop.Genomes()[1].ID {
		t.Errorf("Best = genome %d fitness %v, want genome %d fitness 7", best.ID, best.Fitness, pop.Genomes()[1].ID)
	}

	entries := pop.HallOfFame().Entries()
	if len(entries) != 2 {
		t.Fatalf("hall has %d entries, want 2", len(entries))
	}
	if entries[0].Fitness != 7 || entries[1].Fitness != 5 {
		t.Errorf("hall fitness = [%v %v], want [7 5]", entries[0].Fitness, entries[1].Fitness)
	}
	if entries[0].Generation != 1 || entries[0].Score != 2 {
		t.Errorf("hall entry context = gen %d score %d, want gen 1 score 2", entries[0].Generation, entries[0].Score)
	}
	if entries[1].Score != 3 {
		t.Errorf("second hall entry score = %d, want its own 3 crossings", entries[1].Score)
	}
}

func TestEvaluateRejectsCrossingMismatch(t *testing.T) {
	pop := newTestPopulation(t, testConfig(3))
	res := resultWith(1, 2, 3)
	res.Crossed = []int{1}

	err := pop.Evaluate(game.Generation{Number: 1}, res)
	if !errors.Is(err, ErrFitnessMismatch) {
		t.Errorf("err = %v, want ErrFitnessMismatch", err)
	}
}

func TestNextKeepsElites(t *testing.T) {
	cfg := testConfig(6)
	cfg.Evolution.Elite = 2
	pop := newTestPopulation(t, cfg)

	before := pop.Genomes()
	best := before[4].Net.Flat()
	second := before[1].Net.Flat()
	if err := pop.Evaluate(game.Generation{Number: 1}, resultWith(0, 8, 1, 2, 9, 3)); err != nil {
		t.Fatal(err)
	}
	pop.Next()

	after := pop.Genomes()
	if len(after) != 6 {
		t.Fatalf("population size = %d, want 6", len(after))
	}
	for i, want := range [][]float64{best, second} {
		got := after[i].Net.Flat()
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("elite %d weight %d = %v, want %v", i, j, got[j], want[j])
			}
		}
		if after[i].Fitness != 0 {
			t.Errorf("elite %d fitness = %v, want reset to 0", i, after[i].Fitness)
		}
	}

	// Elite networks are copies
	if after[0].Net == before[4].Net {
		t.Error("elite shares its network with the previous generation")
	}

	seen := make(map[int]bool)
	for _, g := range after {
		if seen[g.ID] {
			t.Errorf("duplicate genome ID %d", g.ID)
		}
		seen[g.ID] = true
	}
}

func TestTournamentFavorsFittest(t *testing.T) {
	cfg := testConfig(4)
	cfg.Evolution.Tournament = 64
	pop := newTestPopulation(t, cfg)
	if err := pop.Evaluate(game.Generation{Number: 1}, resultWith(1, 4, 2, 3)); err != nil {
		t.Fatal(err)
	}

	ranked := pop.ranked()
	for i := 0; i < 20; i++ {
		if got := pop.tournament(ranked); got.Fitness != 4 {
			t.Fatalf("tournament picked fitness %v, want 4", got.Fitness)
		}
	}
}

func TestCrossoverMixesParents(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := neural.NewFFNN(rng, 4)
	b := neural.NewFFNN(rng, 4)

	child := crossover(rng, a, b)
	wa, wb, wc := a.Flat(), b.Flat(), child.Flat()

	fromA, fromB := 0, 0
	for i := range wc {
		switch wc[i] {
		case wa[i]:
			fromA++
		case wb[i]:
			fromB++
		default:
			t.Fatalf("weight %d = %v comes from neither parent", i, wc[i])
		}
	}
	if fromA == 0 || fromB == 0 {
		t.Errorf("child took %d weights from a and %d from b, want both parents", fromA, fromB)
	}
}

func TestCrossoverShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := neural.NewFFNN(rng, 4)
	b := neural.NewFFNN(rng, 2)

	child := crossover(rng, a, b)
	if child.Hidden != 4 {
		t.Errorf("child hidden = %d, want 4", child.Hidden)
	}
}

func TestRunHeadless(t *testing.T) {
	cfg := testConfig(10)
	pop := newTestPopulation(t, cfg)

	om, err := telemetry.NewOutputManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer om.Close()

	var numbers []int
	sum, err := Run(context.Background(), cfg, pop, Options{
		Seed:   7,
		Output: om,
		Perf:   telemetry.NewPerfCollector(),
		OnGeneration: func(s telemetry.GenerationStats) {
			numbers = append(numbers, s.Generation)
			if s.SurvivalMax < 1 || s.SurvivalMax > s.Ticks {
				t.Errorf("generation %d: longest survival %d outside [1, %d]", s.Generation, s.SurvivalMax, s.Ticks)
			}
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.Generations != 3 || sum.Generation.Number != 3 {
		t.Errorf("summary = %d generations ending at %d, want 3 and 3", sum.Generations, sum.Generation.Number)
	}
	if len(numbers) != 3 || numbers[0] != 1 || numbers[2] != 3 {
		t.Errorf("generation numbers = %v, want [1 2 3]", numbers)
	}
	if sum.Stopped {
		t.Error("Stopped set on a complete run")
	}
	if pop.Size() != 10 {
		t.Errorf("population size = %d, want 10", pop.Size())
	}

	data, err := os.ReadFile(filepath.Join(om.Dir(), "generations.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Errorf("generations.csv has %d lines, want header + 3", len(lines))
	}

	hof, err := LoadHallOfFame(filepath.Join(om.Dir(), "hall_of_fame.json"))
	if err != nil {
		t.Fatalf("LoadHallOfFame: %v", err)
	}
	if hof.Len() == 0 {
		t.Error("hall of fame is empty after a run")
	}
	if hof.TopFitness() != sum.BestFitness {
		t.Errorf("hall top fitness = %v, want best fitness %v", hof.TopFitness(), sum.BestFitness)
	}
	for _, e := range hof.Entries() {
		if e.Score < 0 || e.Score > sum.BestScore {
			t.Errorf("hall entry score %d outside [0, %d]", e.Score, sum.BestScore)
		}
	}
}

func TestRunThreadsGenerationContext(t *testing.T) {
	cfg := testConfig(3)
	pop := newTestPopulation(t, cfg)

	var prevs []int
	var seeds []int64
	runner := func(ctx context.Context, prev game.Generation, size int, factory game.PolicyFactory, opts game.Options) (game.Generation, game.Result, error) {
		prevs = append(prevs, prev.Number)
		seeds = append(seeds, opts.Seed)
		return game.Generation{Number: prev.Number + 1, Ticks: 5}, resultWith(1, 2, 3), nil
	}

	sum, err := Run(context.Background(), cfg, pop, Options{Generations: 4, Seed: 10, Runner: runner})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.TotalTicks != 20 {
		t.Errorf("TotalTicks = %d, want 20", sum.TotalTicks)
	}
	for i := range prevs {
		if prevs[i] != i {
			t.Errorf("call %d got prev %d, want %d", i, prevs[i], i)
		}
		if seeds[i] != int64(11+i) {
			t.Errorf("call %d got seed %d, want %d", i, seeds[i], 11+i)
		}
	}
}

func TestRunPropagatesRunnerError(t *testing.T) {
	cfg := testConfig(3)
	pop := newTestPopulation(t, cfg)
	boom := errors.New("boom")
	runner := func(context.Context, game.Generation, int, game.PolicyFactory, game.Options) (game.Generation, game.Result, error) {
		return game.Generation{}, game.Result{}, boom
	}

	if _, err := Run(context.Background(), cfg, pop, Options{Runner: runner}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(3)
	pop := newTestPopulation(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	runner := func(ctx context.Context, prev game.Generation, size int, factory game.PolicyFactory, opts game.Options) (game.Generation, game.Result, error) {
		calls++
		cancel()
		res := resultWith(1, 1, 1)
		res.Aborted = true
		return game.Generation{Number: prev.Number + 1}, res, nil
	}

	sum, err := Run(ctx, cfg, pop, Options{Generations: 5, Runner: runner})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 || !sum.Stopped {
		t.Errorf("calls = %d stopped = %v, want 1 and true", calls, sum.Stopped)
	}
	if sum.Generations != 1 {
		t.Errorf("Generations = %d, want the aborted generation counted", sum.Generations)
	}
}
