package components

// Position represents an agent's world position (top-left of its footprint).
type Position struct {
	X, Y float64
}

// Kinematics holds the jump-relative integration state.
// Displacement is re-evaluated from the last jump, not accumulated.
type Kinematics struct {
	Velocity   float64 // velocity set by the last jump (0 before any jump)
	TickCount  int     // ticks since the last jump
	JumpHeight float64 // Y at the last jump
	Tilt       float64 // degrees, cosmetic only
}
