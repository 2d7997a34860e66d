package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GenerationStats summarizes one finished generation.
type GenerationStats struct {
	Generation int  `csv:"generation"`
	Population int  `csv:"population"`
	Score      int  `csv:"score"`
	Ticks      int  `csv:"ticks"`
	Aborted    bool `csv:"aborted"`

	// Deaths by cause
	ObstacleDeaths int `csv:"obstacle_deaths"`
	GroundDeaths   int `csv:"ground_deaths"`
	CeilingDeaths  int `csv:"ceiling_deaths"`

	// Fitness distribution
	FitnessMean float64 `csv:"fitness_mean"`
	FitnessStd  float64 `csv:"fitness_std"`
	FitnessMin  float64 `csv:"fitness_min"`
	FitnessMax  float64 `csv:"fitness_max"`
	FitnessP50  float64 `csv:"fitness_p50"`
	FitnessP90  float64 `csv:"fitness_p90"`

	// Ticks survived per agent
	SurvivalMean float64 `csv:"survival_mean"`
	SurvivalMax  int     `csv:"survival_max"`

	WallMS int64 `csv:"wall_ms"`
}

// Percentile returns the p-th quantile of a sorted slice, interpolating the
// empirical CDF. p is clamped to [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(min(max(p, 0), 1), stat.LinInterp, sorted, nil)
}

// ComputeFitnessStats fills the fitness distribution fields from values.
func (s *GenerationStats) ComputeFitnessStats(values []float64) {
	n := len(values)
	if n == 0 {
		return
	}

	if n == 1 {
		s.FitnessMean = values[0]
		s.FitnessStd = 0
	} else {
		s.FitnessMean, s.FitnessStd = stat.MeanStdDev(values, nil)
	}
	s.FitnessMin = floats.Min(values)
	s.FitnessMax = floats.Max(values)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	s.FitnessP50 = Percentile(sorted, 0.50)
	s.FitnessP90 = Percentile(sorted, 0.90)
}

// ComputeSurvivalStats fills the survival fields from per-agent tick counts.
func (s *GenerationStats) ComputeSurvivalStats(ticks []int) {
	if len(ticks) == 0 {
		return
	}
	values := make([]float64, len(ticks))
	for i, t := range ticks {
		values[i] = float64(t)
		s.SurvivalMax = max(s.SurvivalMax, t)
	}
	s.SurvivalMean = stat.Mean(values, nil)
}

// SetWall records the generation's wall-clock duration.
func (s *GenerationStats) SetWall(d time.Duration) {
	s.WallMS = d.Milliseconds()
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Int("population", s.Population),
		slog.Int("score", s.Score),
		slog.Int("ticks", s.Ticks),
		slog.Bool("aborted", s.Aborted),
		slog.Int("obstacle_deaths", s.ObstacleDeaths),
		slog.Int("ground_deaths", s.GroundDeaths),
		slog.Int("ceiling_deaths", s.CeilingDeaths),
		slog.Float64("fitness_mean", s.FitnessMean),
		slog.Float64("fitness_std", s.FitnessStd),
		slog.Float64("fitness_min", s.FitnessMin),
		slog.Float64("fitness_max", s.FitnessMax),
		slog.Float64("fitness_p50", s.FitnessP50),
		slog.Float64("fitness_p90", s.FitnessP90),
		slog.Float64("survival_mean", s.SurvivalMean),
		slog.Int("survival_max", s.SurvivalMax),
		slog.Int64("wall_ms", s.WallMS),
	)
}

// LogStats logs the generation summary using slog.
func (s GenerationStats) LogStats() {
	slog.Info("generation",
		"gen", s.Generation,
		"score", s.Score,
		"ticks", s.Ticks,
		"aborted", s.Aborted,
		"fitness_max", s.FitnessMax,
		"fitness_mean", s.FitnessMean,
		"deaths", slog.GroupValue(
			slog.Int("obstacle", s.ObstacleDeaths),
			slog.Int("ground", s.GroundDeaths),
			slog.Int("ceiling", s.CeilingDeaths),
		),
		"wall_ms", s.WallMS,
	)
}
