package telemetry

import (
	"log/slog"
	"time"
)

// Phase identifies a timed section of a simulation tick.
type Phase uint8

const (
	PhasePolicy Phase = iota
	PhasePhysics
	PhaseCollision
	PhaseObstacles
	PhaseBounds
	PhaseCleanup
	numPhases
)

var phaseNames = [numPhases]string{"policy", "physics", "collision", "obstacles", "bounds", "cleanup"}

func (p Phase) String() string {
	if p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// PerfCollector profiles the ticks of one generation. Begin starts a new
// profile; everything recorded since is reported by Stats.
// Not safe for concurrent use.
type PerfCollector struct {
	generation int
	ticks      int
	decisions  int64
	total      time.Duration
	slowest    time.Duration
	phases     [numPhases]time.Duration

	tickStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool
}

// NewPerfCollector creates an empty collector.
func NewPerfCollector() *PerfCollector {
	return &PerfCollector{}
}

// Begin discards the previous profile and starts one for generation.
func (p *PerfCollector) Begin(generation int) {
	*p = PerfCollector{generation: generation}
}

// StartTick begins timing a tick in which alive agents make a decision.
func (p *PerfCollector) StartTick(alive int) {
	p.tickStart = time.Now()
	p.decisions += int64(alive)
	p.inPhase = false
}

// StartPhase closes the running phase, if any, and starts ph.
func (p *PerfCollector) StartPhase(ph Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phase, p.phaseStart, p.inPhase = ph, now, true
}

// EndTick closes the running phase and adds the tick to the profile.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)
	p.inPhase = false

	d := now.Sub(p.tickStart)
	p.ticks++
	p.total += d
	p.slowest = max(p.slowest, d)
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase && p.phase < numPhases {
		p.phases[p.phase] += now.Sub(p.phaseStart)
	}
}

// PerfStats is the tick profile of one generation, flat for CSV export.
type PerfStats struct {
	Generation      int     `csv:"generation"`
	Ticks           int     `csv:"ticks"`
	Decisions       int64   `csv:"decisions"`
	TickMeanUS      float64 `csv:"tick_mean_us"`
	TickMaxUS       int64   `csv:"tick_max_us"`
	DecisionsPerSec float64 `csv:"decisions_per_sec"`

	// Share of tick time per phase, in percent
	PolicyPct    float64 `csv:"policy_pct"`
	PhysicsPct   float64 `csv:"physics_pct"`
	CollisionPct float64 `csv:"collision_pct"`
	ObstaclesPct float64 `csv:"obstacles_pct"`
	BoundsPct    float64 `csv:"bounds_pct"`
	CleanupPct   float64 `csv:"cleanup_pct"`
}

// Stats reports the profile collected since Begin.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{
		Generation: p.generation,
		Ticks:      p.ticks,
		Decisions:  p.decisions,
		TickMaxUS:  p.slowest.Microseconds(),
	}
	if p.ticks == 0 || p.total <= 0 {
		return s
	}

	s.TickMeanUS = float64(p.total) / float64(p.ticks) / float64(time.Microsecond)
	s.DecisionsPerSec = float64(p.decisions) / p.total.Seconds()

	share := func(ph Phase) float64 {
		return float64(p.phases[ph]) / float64(p.total) * 100
	}
	s.PolicyPct = share(PhasePolicy)
	s.PhysicsPct = share(PhasePhysics)
	s.CollisionPct = share(PhaseCollision)
	s.ObstaclesPct = share(PhaseObstacles)
	s.BoundsPct = share(PhaseBounds)
	s.CleanupPct = share(PhaseCleanup)
	return s
}

// Share returns the percentage of tick time spent in ph.
func (s PerfStats) Share(ph Phase) float64 {
	switch ph {
	case PhasePolicy:
		return s.PolicyPct
	case PhasePhysics:
		return s.PhysicsPct
	case PhaseCollision:
		return s.CollisionPct
	case PhaseObstacles:
		return s.ObstaclesPct
	case PhaseBounds:
		return s.BoundsPct
	case PhaseCleanup:
		return s.CleanupPct
	}
	return 0
}

// LogStats logs the profile, listing phases above a tenth of a percent.
func (s PerfStats) LogStats() {
	attrs := []any{
		"gen", s.Generation,
		"ticks", s.Ticks,
		"tick_mean_us", int64(s.TickMeanUS),
		"tick_max_us", s.TickMaxUS,
		"decisions_per_sec", int64(s.DecisionsPerSec),
	}
	for ph := range numPhases {
		if pct := s.Share(ph); pct > 0.1 {
			attrs = append(attrs, ph.String()+"_pct", float64(int(pct*10))/10)
		}
	}
	slog.Info("perf", attrs...)
}
