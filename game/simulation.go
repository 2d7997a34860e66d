package game

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/flap/components"
	"github.com/pthm-cable/flap/systems"
	"github.com/pthm-cable/flap/telemetry"
)

// liveAgent holds component pointers for one live agent during a tick.
// The pointers are valid until cleanupDead removes entities.
type liveAgent struct {
	entity ecs.Entity
	pos    *components.Position
	kin    *components.Kinematics
	body   *components.Body
	agent  *components.Agent
}

// Step runs a single tick. It is a no-op once the generation has ended.
func (g *Game) Step() State {
	if g.State() == Ended {
		return Ended
	}

	g.startTick()

	// 1. Policies (batched), then jump/advance and survival reward
	g.startPhase(telemetry.PhasePolicy)
	g.collectLive()
	g.evaluatePolicies()

	g.startPhase(telemetry.PhasePhysics)
	g.applyDecisions()

	// 2. Obstacle collisions and crossings, on pre-advance positions
	g.startPhase(telemetry.PhaseCollision)
	crossed := g.checkObstacles()

	// 3-4. Scroll, retire, then reward the crossing
	g.startPhase(telemetry.PhaseObstacles)
	g.updateObstacles(crossed)

	// 5. World bounds
	g.startPhase(telemetry.PhaseBounds)
	g.checkBounds()

	// 6. Batched removal
	g.startPhase(telemetry.PhaseCleanup)
	g.cleanupDead()

	g.tick++
	g.endTick()

	// 7. End check
	if g.alive == 0 {
		g.state = Ended
	}
	return g.State()
}

// collectLive gathers the live agents for this tick.
func (g *Game) collectLive() {
	g.live = g.live[:0]

	query := g.agentFilter.Query()
	for query.Next() {
		pos, kin, body, agent := query.Get()
		g.live = append(g.live, liveAgent{
			entity: query.Entity(),
			pos:    pos,
			kin:    kin,
			body:   body,
			agent:  agent,
		})
	}
}

// targetInputs returns the policy inputs for an agent at height y against the
// current target obstacle.
func (g *Game) targetInputs(y float64) [3]float64 {
	i := g.field.Target(g.agentX)
	if i < 0 {
		return [3]float64{y, 0, 0}
	}
	o := g.field.At(i)
	return [3]float64{y, math.Abs(y - o.GapTop), math.Abs(y - o.GapBottom())}
}

// applyDecisions jumps, advances, and rewards each agent, in snapshot order.
func (g *Game) applyDecisions() {
	threshold := g.cfg.Population.JumpThreshold
	reward := g.cfg.Fitness.SurvivalReward

	for i := range g.parallel.snapshots {
		snap := &g.parallel.snapshots[i]
		la := &g.live[snap.live]

		if g.parallel.decisions[i] > threshold {
			systems.Jump(la.pos, la.kin, g.phys)
		}
		systems.Advance(la.pos, la.kin, g.phys)

		*la.agent.Fitness += reward
		la.agent.Ticks++
	}
}

// checkObstacles tests every (obstacle, agent) pair. Colliding agents are
// penalized once and marked; unmarked agents may latch an obstacle's crossing.
// Returns true if any obstacle was crossed this tick.
func (g *Game) checkObstacles() bool {
	penalty := g.cfg.Fitness.CollisionPenalty
	crossed := false

	for oi := 0; oi < g.field.Len(); oi++ {
		o := g.field.At(oi)
		for i := range g.live {
			la := &g.live[i]
			if la.agent.Dead {
				continue
			}
			if systems.Collides(g.masks, *la.pos, o) {
				*la.agent.Fitness -= penalty
				la.agent.Dead = true
				la.agent.Cause = components.CauseObstacle
				continue
			}
			if g.field.MarkPassed(oi, la.pos.X) {
				crossed = true
			}
		}
	}
	return crossed
}

// updateObstacles scrolls and retires obstacles, then handles a crossing
// event: score, survivor bonus, and the next obstacle.
func (g *Game) updateObstacles(crossed bool) {
	g.field.Advance()
	g.field.RetireExpired()

	if crossed {
		g.score++
		bonus := g.cfg.Fitness.CrossingBonus
		for i := range g.live {
			if a := g.live[i].agent; !a.Dead {
				*a.Fitness += bonus
				a.Crossed++
			}
		}
		g.field.SpawnAhead(g.cfg.Obstacle.FirstX)
	}

	if g.field.Len() == 0 {
		g.field.SpawnAhead(g.cfg.Obstacle.FirstX)
	}
}

// checkBounds marks agents touching the floor or above the world. Fitness is
// unchanged; agents already marked keep their original cause.
func (g *Game) checkBounds() {
	floorY := g.cfg.World.FloorY
	for i := range g.live {
		la := &g.live[i]
		if la.agent.Dead {
			continue
		}
		h := la.body.Height
		if systems.OutOfBounds(la.pos.Y, h, floorY) {
			la.agent.Dead = true
			la.agent.Cause = systems.BoundsCause(la.pos.Y, h, floorY)
		}
	}
}

func (g *Game) startTick() {
	if g.perf != nil {
		g.perf.StartTick(g.alive)
	}
}

func (g *Game) startPhase(ph telemetry.Phase) {
	if g.perf != nil {
		g.perf.StartPhase(ph)
	}
}

func (g *Game) endTick() {
	if g.perf != nil {
		g.perf.EndTick()
	}
}
