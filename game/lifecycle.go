package game

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/flap/components"
)

// spawnPopulation creates one entity per policy. IDs follow policy order and
// index the fitness slice.
func (g *Game) spawnPopulation(policies []components.Policy) {
	cfg := g.cfg
	body := components.Body{
		Width:  float64(cfg.Agent.Width),
		Height: float64(cfg.Agent.Height),
	}

	for i, p := range policies {
		pos := components.Position{X: cfg.Agent.StartX, Y: cfg.Agent.StartY}
		kin := components.Kinematics{JumpHeight: cfg.Agent.StartY}
		b := body
		agent := components.Agent{
			ID:      uint32(i),
			Policy:  p,
			Fitness: &g.fitness[i],
		}
		g.agentMapper.NewEntity(&pos, &kin, &b, &agent)
		g.alive++
	}
}

// cleanupDead removes every agent marked this tick. Policy and fitness cell go
// with the entity in one removal; the fitness value itself stays in g.fitness.
func (g *Game) cleanupDead() {
	// Collect first; the world must not change while a query is open
	var toRemove []ecs.Entity
	for i := range g.live {
		la := &g.live[i]
		if la.agent.Dead {
			toRemove = append(toRemove, la.entity)
			g.deaths.add(la.agent.Cause)
			g.survived[la.agent.ID] = int(la.agent.Ticks)
			g.crossed[la.agent.ID] = int(la.agent.Crossed)
		}
	}

	for _, e := range toRemove {
		g.world.RemoveEntity(e)
		g.alive--
	}

	// Component pointers are stale after structural changes
	g.live = g.live[:0]
}
