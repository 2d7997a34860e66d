// Package systems contains the simulation systems: agent physics, obstacle
// lifecycle, and collision detection.
package systems

import (
	"github.com/pthm-cable/flap/components"
	"github.com/pthm-cable/flap/config"
)

// Physics holds the jump parabola constants.
type Physics struct {
	JumpVelocity    float64
	Gravity         float64
	MaxDisplacement float64
	UpwardBonus     float64

	// Cosmetic tilt
	MaxRotation      float64
	RotationVelocity float64
}

// PhysicsFromConfig extracts the physics constants from cfg.
func PhysicsFromConfig(cfg *config.Config) Physics {
	return Physics{
		JumpVelocity:     cfg.Physics.JumpVelocity,
		Gravity:          cfg.Physics.Gravity,
		MaxDisplacement:  cfg.Physics.MaxDisplacement,
		UpwardBonus:      cfg.Physics.UpwardBonus,
		MaxRotation:      cfg.Agent.MaxRotation,
		RotationVelocity: cfg.Agent.RotationVelocity,
	}
}

// Jump applies the rise impulse and restarts integration from the current height.
func Jump(pos *components.Position, kin *components.Kinematics, p Physics) {
	kin.Velocity = p.JumpVelocity
	kin.TickCount = 0
	kin.JumpHeight = pos.Y
}

// Displacement returns the vertical displacement t ticks after a jump with
// initial velocity v0: v0*t + g*t², capped at max, with the upward bonus
// subtracted when the result is negative.
func Displacement(v0 float64, t int, p Physics) float64 {
	ft := float64(t)
	d := v0*ft + p.Gravity*ft*ft
	if d >= p.MaxDisplacement {
		d = p.MaxDisplacement
	}
	if d < 0 {
		d -= p.UpwardBonus
	}
	return d
}

// Advance moves the agent one tick along its jump parabola and returns the
// applied displacement.
func Advance(pos *components.Position, kin *components.Kinematics, p Physics) float64 {
	kin.TickCount++
	d := Displacement(kin.Velocity, kin.TickCount, p)
	pos.Y += d

	// Tilt never feeds back into collision or fitness
	if d < 0 || pos.Y < kin.JumpHeight+50 {
		if kin.Tilt < p.MaxRotation {
			kin.Tilt = p.MaxRotation
		}
	} else if kin.Tilt > -90 {
		kin.Tilt -= p.RotationVelocity
	}

	return d
}
