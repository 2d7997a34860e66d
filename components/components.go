// Package components defines ECS components for the simulation.
package components

// Policy decides whether an agent jumps. It receives the agent's height and its
// distances to the top and bottom of the target gap; values above the configured
// threshold mean jump. The core treats it as stateless.
type Policy interface {
	Decide(y, topDist, bottomDist float64) float64
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(y, topDist, bottomDist float64) float64

// Decide calls f.
func (f PolicyFunc) Decide(y, topDist, bottomDist float64) float64 {
	return f(y, topDist, bottomDist)
}
