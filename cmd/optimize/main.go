// Package main searches policy network weights with CMA-ES. Each candidate
// flies a single agent through several seeded generations; the objective is
// the negated mean fitness.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/flap/config"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// EvalRecord is one row of optimize_log.csv.
type EvalRecord struct {
	Eval      int     `csv:"eval"`
	Objective float64 `csv:"objective"`
	Fitness   float64 `csv:"fitness"`
	Score     float64 `csv:"score"`
	Ticks     float64 `csv:"ticks"`
	Best      float64 `csv:"best_objective"`
	ElapsedMS int64   `csv:"elapsed_ms"`
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxTicks := flag.Int("max-ticks", 5000, "Tick cap per evaluation run")
	maxScore := flag.Int("max-score", 0, "Crossing cap per evaluation run (0 = only max-ticks applies)")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 500, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	hidden := flag.Int("hidden", 0, "Hidden units (0 = use config)")
	limit := flag.Float64("limit", 5, "Weight bound")
	seed := flag.Int64("seed", 1, "Seed for the initial weights")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Cfg().Clone()
	cfg.Simulation.MaxTicks = *maxTicks
	cfg.Simulation.MaxScore = *maxScore
	if *hidden > 0 {
		cfg.Neural.Hidden = *hidden
	}

	space := NewWeightSpace(cfg.Neural.Hidden, *limit)

	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}
	evaluator := NewFitnessEvaluator(space, evalSeeds, cfg, cfg.Evolution.HallOfFame)

	dim := space.Dim()
	initX := space.InitialVector(rand.New(rand.NewSource(*seed)))

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.1,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // seeds already run in parallel
	}

	logPath := filepath.Join(*outputDir, "optimize_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	evalCount := 0
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			objective := evaluator.Evaluate(x)
			evalCount++

			last := evaluator.Last()
			_, best := evaluator.Best()
			elapsed := time.Since(startTime)
			record := []EvalRecord{{
				Eval:      evalCount,
				Objective: objective,
				Fitness:   last.Fitness,
				Score:     last.Score,
				Ticks:     last.Ticks,
				Best:      best,
				ElapsedMS: elapsed.Milliseconds(),
			}}
			if evalCount == 1 {
				err = gocsv.Marshal(record, logFile)
			} else {
				err = gocsv.MarshalWithoutHeaders(record, logFile)
			}
			if err != nil {
				log.Printf("failed to log evaluation %d: %v", evalCount, err)
			}

			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(*maxEvals-evalCount) * avgPerEval
			fmt.Printf("Eval %s/%s: fitness=%.1f score=%.1f ticks=%s (best=%.1f) | elapsed: %s, ETA: %s\n",
				humanize.Comma(int64(evalCount)), humanize.Comma(int64(*maxEvals)),
				last.Fitness, last.Score, humanize.Comma(int64(last.Ticks)), -best,
				formatDuration(elapsed), formatDuration(remaining))

			return objective
		},
	}

	fmt.Printf("Starting CMA-ES optimization with %d weights, population=%d, max_evals=%d\n",
		dim, popSize, *maxEvals)
	fmt.Printf("Seeds per evaluation: %d, tick cap: %s\n", *seeds, humanize.Comma(int64(*maxTicks)))

	if _, err := optimize.Minimize(problem, initX, settings, method); err != nil {
		log.Printf("optimization ended: %v", err)
	}

	bestNet, bestObjective := evaluator.Best()
	fmt.Printf("\nOptimization complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	if bestNet == nil {
		log.Fatal("no evaluation succeeded")
	}
	fmt.Printf("Best fitness: %.2f\n", -bestObjective)

	weightsPath := filepath.Join(*outputDir, "best_weights.json")
	data, err := json.MarshalIndent(bestNet.MarshalWeights(), "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal best weights: %v", err)
	}
	if err := os.WriteFile(weightsPath, data, 0644); err != nil {
		log.Printf("failed to write best weights: %v", err)
	} else {
		fmt.Printf("Best weights saved to: %s\n", weightsPath)
	}

	// Replayable with the main binary's -replay flag
	hofPath := filepath.Join(*outputDir, "hall_of_fame.json")
	hofData, err := json.MarshalIndent(evaluator.HallOfFame(), "", "  ")
	if err != nil {
		log.Printf("failed to marshal hall of fame: %v", err)
	} else if err := os.WriteFile(hofPath, hofData, 0644); err != nil {
		log.Printf("failed to write hall of fame: %v", err)
	} else {
		fmt.Printf("Hall of fame saved to: %s\n", hofPath)
	}

	if err := cfg.WriteYAML(filepath.Join(*outputDir, "config.yaml")); err != nil {
		log.Printf("failed to write config: %v", err)
	}
}
