package systems

import (
	"math/rand"

	"github.com/pthm-cable/flap/config"
)

// Obstacle is a pair of segments with a vertical gap between them.
type Obstacle struct {
	X      float64
	GapTop float64 // immutable once spawned
	Gap    float64
	Passed bool
}

// GapBottom returns the y coordinate where the bottom segment begins.
func (o *Obstacle) GapBottom() float64 {
	return o.GapTop + o.Gap
}

// ObstacleSpec holds obstacle geometry and generation parameters.
type ObstacleSpec struct {
	Width         float64
	SegmentHeight float64
	Gap           float64
	MinGapTop     int
	MaxGapTop     int
	Velocity      float64
	SpawnOffset   float64
}

// ObstacleSpecFromConfig extracts obstacle parameters from cfg.
func ObstacleSpecFromConfig(cfg *config.Config) ObstacleSpec {
	o := cfg.Obstacle
	return ObstacleSpec{
		Width:         float64(o.Width),
		SegmentHeight: float64(o.SegmentHeight),
		Gap:           o.Gap,
		MinGapTop:     o.MinGapTop,
		MaxGapTop:     o.MaxGapTop,
		Velocity:      o.Velocity,
		SpawnOffset:   o.SpawnOffset,
	}
}

// ObstacleField owns the ordered set of live obstacles.
// Obstacles are appended on the right and all move at the same velocity,
// so the slice stays sorted by X.
type ObstacleField struct {
	spec      ObstacleSpec
	rng       *rand.Rand
	obstacles []Obstacle
}

// NewObstacleField creates an empty field.
func NewObstacleField(spec ObstacleSpec, rng *rand.Rand) *ObstacleField {
	return &ObstacleField{
		spec:      spec,
		rng:       rng,
		obstacles: make([]Obstacle, 0, 4),
	}
}

// Spec returns the field's geometry.
func (f *ObstacleField) Spec() ObstacleSpec {
	return f.spec
}

// Spawn appends an obstacle at x with a gap top drawn uniformly from
// [MinGapTop, MaxGapTop).
func (f *ObstacleField) Spawn(x float64) *Obstacle {
	top := f.spec.MinGapTop + f.rng.Intn(f.spec.MaxGapTop-f.spec.MinGapTop)
	f.obstacles = append(f.obstacles, Obstacle{
		X:      x,
		GapTop: float64(top),
		Gap:    f.spec.Gap,
	})
	return &f.obstacles[len(f.obstacles)-1]
}

// SpawnAhead spawns the next obstacle SpawnOffset ahead of the rightmost one.
func (f *ObstacleField) SpawnAhead(fallbackX float64) *Obstacle {
	x := fallbackX
	if len(f.obstacles) > 0 {
		x = f.Rightmost() + f.spec.SpawnOffset
	}
	return f.Spawn(x)
}

// Rightmost returns the X of the last obstacle. The field must not be empty.
func (f *ObstacleField) Rightmost() float64 {
	return f.obstacles[len(f.obstacles)-1].X
}

// Advance scrolls every obstacle left by the configured velocity.
func (f *ObstacleField) Advance() {
	for i := range f.obstacles {
		f.obstacles[i].X -= f.spec.Velocity
	}
}

// RetireExpired drops obstacles whose trailing edge is past the left boundary
// and returns how many were removed.
func (f *ObstacleField) RetireExpired() int {
	kept := f.obstacles[:0]
	for _, o := range f.obstacles {
		if o.X+f.spec.Width < 0 {
			continue
		}
		kept = append(kept, o)
	}
	removed := len(f.obstacles) - len(kept)
	f.obstacles = kept
	return removed
}

// MarkPassed latches the crossing for obstacle i once its leading edge is
// behind agentX. It returns true only on the first such call.
func (f *ObstacleField) MarkPassed(i int, agentX float64) bool {
	o := &f.obstacles[i]
	if o.Passed || o.X >= agentX {
		return false
	}
	o.Passed = true
	return true
}

// Target returns the index of the obstacle an agent at agentX should aim for:
// the nearest one whose trailing edge it has not yet cleared. Returns -1 if the
// field is empty.
func (f *ObstacleField) Target(agentX float64) int {
	if len(f.obstacles) == 0 {
		return -1
	}
	for i := range f.obstacles {
		if agentX <= f.obstacles[i].X+f.spec.Width {
			return i
		}
	}
	return len(f.obstacles) - 1
}

// Len returns the number of live obstacles.
func (f *ObstacleField) Len() int {
	return len(f.obstacles)
}

// At returns obstacle i.
func (f *ObstacleField) At(i int) *Obstacle {
	return &f.obstacles[i]
}

// All returns the live obstacles in ascending X order. The slice is owned by
// the field and is only valid until the next mutation.
func (f *ObstacleField) All() []Obstacle {
	return f.obstacles
}

// Reset removes all obstacles.
func (f *ObstacleField) Reset() {
	f.obstacles = f.obstacles[:0]
}
