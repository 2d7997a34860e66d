package components

// DeathCause records why an agent was marked for removal.
type DeathCause uint8

const (
	CauseNone DeathCause = iota
	CauseObstacle
	CauseGround
	CauseCeiling
)

func (c DeathCause) String() string {
	switch c {
	case CauseObstacle:
		return "obstacle"
	case CauseGround:
		return "ground"
	case CauseCeiling:
		return "ceiling"
	default:
		return "none"
	}
}

// Agent bundles identity, decision policy, and the fitness cell.
// Fitness points into the generation's result slice, so it stays readable
// after the entity is removed.
type Agent struct {
	ID      uint32
	Policy  Policy
	Fitness *float64
	Ticks   int32      // ticks survived
	Crossed int32      // crossing events survived
	Dead    bool       // marked for removal at tick end
	Cause   DeathCause // why Dead was set
}
