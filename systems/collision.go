package systems

import (
	"fmt"
	"math"

	"github.com/pthm-cable/flap/components"
	"github.com/pthm-cable/flap/config"
)

// Masks holds the collision footprints for one simulation.
// The agent mask is always the un-rotated footprint.
type Masks struct {
	Agent  *Mask
	Top    *Mask
	Bottom *Mask
}

// MasksFromConfig builds the agent footprint selected by agent.shape and the
// solid obstacle segments.
func MasksFromConfig(cfg *config.Config) (Masks, error) {
	var agent *Mask
	switch cfg.Agent.Shape {
	case config.ShapeBox:
		agent = NewRectMask(cfg.Agent.Width, cfg.Agent.Height)
	case config.ShapeEllipse:
		agent = NewEllipseMask(cfg.Agent.Width, cfg.Agent.Height)
	case config.ShapeSprite:
		m, err := LoadMask(cfg.Agent.Sprite)
		if err != nil {
			return Masks{}, err
		}
		agent = m
	default:
		return Masks{}, fmt.Errorf("unknown agent shape %q", cfg.Agent.Shape)
	}

	segment := NewRectMask(cfg.Obstacle.Width, cfg.Obstacle.SegmentHeight)
	return Masks{Agent: agent, Top: segment, Bottom: segment}, nil
}

// Collides reports whether the agent at pos overlaps either segment of o.
// The top segment ends at the gap top; the bottom one starts at the gap bottom.
func Collides(m Masks, pos components.Position, o *Obstacle) bool {
	ax := int(math.Round(pos.X))
	ay := int(math.Round(pos.Y))
	ox := int(math.Round(o.X)) - ax

	topY := int(math.Round(o.GapTop)) - m.Top.Height() - ay
	if m.Agent.Overlap(m.Top, ox, topY) {
		return true
	}
	bottomY := int(math.Round(o.GapBottom())) - ay
	return m.Agent.Overlap(m.Bottom, ox, bottomY)
}

// OutOfBounds reports whether an agent at y with the given height touches the
// floor or has left the top of the world.
func OutOfBounds(y, height, floorY float64) bool {
	return y+height >= floorY || y < 0
}

// BoundsCause classifies an out-of-bounds agent.
func BoundsCause(y, height, floorY float64) components.DeathCause {
	switch {
	case y+height >= floorY:
		return components.CauseGround
	case y < 0:
		return components.CauseCeiling
	default:
		return components.CauseNone
	}
}
