package game

// AgentView is the read-only render view of one live agent.
type AgentView struct {
	ID      uint32
	X, Y    float64
	Tilt    float64
	Fitness float64
}

// ObstacleView is the read-only render view of one obstacle.
type ObstacleView struct {
	X         float64
	GapTop    float64
	GapBottom float64
	Passed    bool
}

// Snapshot is a per-tick view for a presentation layer. It shares no memory
// with the game.
type Snapshot struct {
	Generation int
	Tick       int
	Score      int
	Alive      int
	State      State
	Agents     []AgentView
	Obstacles  []ObstacleView
}

// Snapshot copies the current render view.
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		Generation: g.gen.Number,
		Tick:       g.tick,
		Score:      g.score,
		Alive:      g.alive,
		State:      g.State(),
		Agents:     make([]AgentView, 0, g.alive),
		Obstacles:  make([]ObstacleView, 0, g.field.Len()),
	}

	query := g.agentFilter.Query()
	for query.Next() {
		pos, kin, _, agent := query.Get()
		s.Agents = append(s.Agents, AgentView{
			ID:      agent.ID,
			X:       pos.X,
			Y:       pos.Y,
			Tilt:    kin.Tilt,
			Fitness: *agent.Fitness,
		})
	}

	for _, o := range g.field.All() {
		s.Obstacles = append(s.Obstacles, ObstacleView{
			X:         o.X,
			GapTop:    o.GapTop,
			GapBottom: o.GapBottom(),
			Passed:    o.Passed,
		})
	}

	return s
}
