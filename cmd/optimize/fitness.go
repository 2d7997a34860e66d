package main

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/pthm-cable/flap/components"
	"github.com/pthm-cable/flap/config"
	"github.com/pthm-cable/flap/evolve"
	"github.com/pthm-cable/flap/game"
	"github.com/pthm-cable/flap/neural"
)

// FitnessEvaluator runs headless single-agent generations and scores a
// weight vector. Lower is better.
type FitnessEvaluator struct {
	space *WeightSpace
	seeds []int64
	cfg   *config.Config

	mu          sync.Mutex
	evals       int
	bestFitness float64
	best        *neural.FFNN
	last        seedSummary
	hof         *evolve.HallOfFame
}

// NewFitnessEvaluator creates an evaluator. cfg should carry a tick or score
// cap, otherwise a perfect policy never finishes.
func NewFitnessEvaluator(space *WeightSpace, seeds []int64, cfg *config.Config, hallSize int) *FitnessEvaluator {
	return &FitnessEvaluator{
		space:       space,
		seeds:       seeds,
		cfg:         cfg,
		bestFitness: math.Inf(1),
		hof:         evolve.NewHallOfFame(hallSize),
	}
}

// seedSummary aggregates one evaluation across seeds.
type seedSummary struct {
	Fitness float64 // mean agent fitness (higher is better)
	Score   float64 // mean crossings
	Ticks   float64 // mean ticks survived
}

// seedResult holds the result from one seed.
type seedResult struct {
	res game.Result
	err error
}

// Evaluate computes the objective for x: the negated agent fitness averaged
// over all seeds. Seeds run in parallel.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	nn, err := fe.space.Decode(x)
	if err != nil {
		return math.Inf(1)
	}

	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runSeed(nn, s)
		}(i, seed)
	}
	wg.Wait()

	var sum seedSummary
	for _, r := range results {
		if r.err != nil {
			return math.Inf(1)
		}
		sum.Fitness += r.res.Fitness[0]
		sum.Score += float64(r.res.Crossed[0])
		sum.Ticks += float64(r.res.Survived[0])
	}
	n := float64(len(fe.seeds))
	sum.Fitness /= n
	sum.Score /= n
	sum.Ticks /= n
	objective := -sum.Fitness

	fe.mu.Lock()
	fe.evals++
	fe.last = sum
	if objective < fe.bestFitness {
		fe.bestFitness = objective
		fe.best = nn
	}
	fe.hof.Consider(evolve.HallEntry{
		Generation: fe.evals,
		GenomeID:   fe.evals,
		Fitness:    sum.Fitness,
		Score:      int(math.Round(sum.Score)),
		Weights:    nn.MarshalWeights(),
	})
	fe.mu.Unlock()

	return objective
}

// runSeed plays one single-agent generation.
func (fe *FitnessEvaluator) runSeed(nn *neural.FFNN, seed int64) seedResult {
	factory := func(int) components.Policy { return nn }
	_, res, err := game.RunGeneration(context.Background(), fe.cfg, game.Generation{}, 1, factory, game.Options{Seed: seed})
	if err != nil {
		return seedResult{err: fmt.Errorf("seed %d: %w", seed, err)}
	}
	return seedResult{res: res}
}

// Last returns the summary of the most recent evaluation.
func (fe *FitnessEvaluator) Last() seedSummary {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.last
}

// Best returns the best network found and its objective.
func (fe *FitnessEvaluator) Best() (*neural.FFNN, float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.best, fe.bestFitness
}

// HallOfFame returns the best evaluated networks.
func (fe *FitnessEvaluator) HallOfFame() *evolve.HallOfFame {
	return fe.hof
}
