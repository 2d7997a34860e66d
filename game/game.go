// Package game runs one generation of the endless-runner simulation: it owns the
// agent population, the obstacle field, and per-agent fitness bookkeeping.
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/flap/components"
	"github.com/pthm-cable/flap/config"
	"github.com/pthm-cable/flap/systems"
	"github.com/pthm-cable/flap/telemetry"
)

var (
	// ErrInvalidPopulation is returned when a generation is started with no agents.
	ErrInvalidPopulation = errors.New("population size must be at least 1")
	// ErrNilPolicy is returned when the factory is nil or yields a nil policy.
	ErrNilPolicy = errors.New("nil policy")
)

// State is the generation state machine.
type State uint8

const (
	Running State = iota
	Ended
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "ended"
}

// PolicyFactory returns the policy for agent id. It is called once per agent at
// generation start, with ids 0..size-1.
type PolicyFactory func(id int) components.Policy

// Generation is the context threaded through successive RunGeneration calls.
type Generation struct {
	Number int // 1 for the first generation run
	Score  int // obstacles crossed in this generation
	Ticks  int // ticks simulated in this generation
}

// DeathCounts tallies removals by cause.
type DeathCounts struct {
	Obstacle int
	Ground   int
	Ceiling  int
}

func (d *DeathCounts) add(c components.DeathCause) {
	switch c {
	case components.CauseObstacle:
		d.Obstacle++
	case components.CauseGround:
		d.Ground++
	case components.CauseCeiling:
		d.Ceiling++
	}
}

// Game holds the state of one generation.
type Game struct {
	cfg   *config.Config
	phys  systems.Physics
	masks systems.Masks
	field *systems.ObstacleField
	rng   *rand.Rand

	world *ecs.World

	// Entity mapper and filter over the agent archetype
	agentMapper *ecs.Map4[
		components.Position,
		components.Kinematics,
		components.Body,
		components.Agent,
	]
	agentFilter *ecs.Filter4[
		components.Position,
		components.Kinematics,
		components.Body,
		components.Agent,
	]

	// Fitness cells, indexed by agent ID; outlives the entities
	fitness []float64

	// Survival ticks and crossings, filled in as agents are removed
	survived []int
	crossed  []int

	// Live agents collected at the start of each tick
	live []liveAgent

	parallel *parallelState
	perf     *telemetry.PerfCollector

	// State
	gen     Generation
	state   State
	aborted atomic.Bool
	tick    int
	score   int
	alive   int
	deaths  DeathCounts
	size    int

	// Shared agent column
	agentX float64
}

// NewGame validates cfg, builds the collision masks, spawns the first obstacle,
// and creates size agents with policies from factory. prev is the context
// returned by the previous generation (zero value before the first).
func NewGame(cfg *config.Config, prev Generation, size int, factory PolicyFactory, opts Options) (*Game, error) {
	if cfg == nil {
		return nil, fmt.Errorf("starting generation: %w: nil config", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("starting generation: %w", err)
	}
	if size < 1 {
		return nil, fmt.Errorf("starting generation with %d agents: %w", size, ErrInvalidPopulation)
	}
	if factory == nil {
		return nil, fmt.Errorf("starting generation: %w factory", ErrNilPolicy)
	}

	masks, err := systems.MasksFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building collision masks: %w", err)
	}

	policies := make([]components.Policy, size)
	for i := range policies {
		p := factory(i)
		if p == nil {
			return nil, fmt.Errorf("agent %d: %w", i, ErrNilPolicy)
		}
		policies[i] = p
	}

	world := ecs.NewWorld()
	rng := rand.New(rand.NewSource(opts.Seed))

	g := &Game{
		cfg:   cfg,
		phys:  systems.PhysicsFromConfig(cfg),
		masks: masks,
		field: systems.NewObstacleField(systems.ObstacleSpecFromConfig(cfg), rng),
		rng:   rng,
		world: world,
		agentMapper: ecs.NewMap4[
			components.Position,
			components.Kinematics,
			components.Body,
			components.Agent,
		](world),
		agentFilter: ecs.NewFilter4[
			components.Position,
			components.Kinematics,
			components.Body,
			components.Agent,
		](world),
		fitness:  make([]float64, size),
		survived: make([]int, size),
		crossed:  make([]int, size),
		live:     make([]liveAgent, 0, size),
		parallel: newParallelState(),
		perf:     opts.Perf,
		gen:      Generation{Number: prev.Number + 1},
		state:    Running,
		size:     size,
		agentX:   cfg.Agent.StartX,
	}

	g.field.Spawn(cfg.Obstacle.FirstX)
	g.spawnPopulation(policies)
	if g.perf != nil {
		g.perf.Begin(g.gen.Number)
	}

	return g, nil
}

// State returns the current generation state.
func (g *Game) State() State {
	if g.aborted.Load() {
		return Ended
	}
	return g.state
}

// Abort ends the generation before the next tick. Accrued fitness is kept.
// Safe to call from any goroutine.
func (g *Game) Abort() {
	g.aborted.Store(true)
}

// Aborted reports whether the generation was ended by Abort.
func (g *Game) Aborted() bool {
	return g.aborted.Load()
}

// CapReached reports whether a running generation has hit simulation.max_ticks
// or simulation.max_score.
func (g *Game) CapReached() bool {
	if g.State() != Running {
		return false
	}
	if maxTicks := g.cfg.Simulation.MaxTicks; maxTicks > 0 && g.tick >= maxTicks {
		return true
	}
	maxScore := g.cfg.Simulation.MaxScore
	return maxScore > 0 && g.score >= maxScore
}

// Tick returns the number of completed ticks.
func (g *Game) Tick() int {
	return g.tick
}

// Score returns the number of crossing events so far.
func (g *Game) Score() int {
	return g.score
}

// Alive returns the live population size.
func (g *Game) Alive() int {
	return g.alive
}

// Generation returns the context of the generation being run.
func (g *Game) Generation() Generation {
	gen := g.gen
	gen.Score = g.score
	gen.Ticks = g.tick
	return gen
}

// Fitness returns the per-agent fitness slice, indexed by agent ID.
// Values of removed agents remain readable.
func (g *Game) Fitness() []float64 {
	return g.fitness
}

// Result returns the generation outcome so far. Agents still alive report
// their counts up to the current tick.
func (g *Game) Result() Result {
	survived := make([]int, len(g.survived))
	copy(survived, g.survived)
	crossed := make([]int, len(g.crossed))
	copy(crossed, g.crossed)

	query := g.agentFilter.Query()
	for query.Next() {
		_, _, _, agent := query.Get()
		survived[agent.ID] = int(agent.Ticks)
		crossed[agent.ID] = int(agent.Crossed)
	}

	return Result{
		Fitness:  g.fitness,
		Survived: survived,
		Crossed:  crossed,
		Score:    g.score,
		Ticks:    g.tick,
		Aborted:  g.Aborted(),
		Deaths:   g.deaths,
	}
}

// Close stops the policy worker pool.
func (g *Game) Close() {
	if g.parallel != nil {
		g.parallel.stopWorkers()
	}
}
