package renderer

import (
	"math"
	"math/rand"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/flap/camera"
)

// Puff is a short-lived feather particle left where an agent was removed.
type Puff struct {
	X, Y    float32
	VX, VY  float32
	Life    int32
	MaxLife int32
	Size    float32
	Color   rl.Color
}

// PuffSystem spawns and ages removal puffs. Particles are purely cosmetic.
type PuffSystem struct {
	puffs []Puff
	rng   *rand.Rand
}

// NewPuffSystem creates an empty particle system.
func NewPuffSystem(seed int64) *PuffSystem {
	return &PuffSystem{
		puffs: make([]Puff, 0, 256),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Burst emits n particles from the center (x, y) in the agent's color.
func (s *PuffSystem) Burst(x, y float32, n int, color rl.Color) {
	for i := 0; i < n; i++ {
		angle := s.rng.Float64() * 2 * math.Pi
		speed := 1 + s.rng.Float64()*3
		life := int32(12 + s.rng.Intn(12))
		s.puffs = append(s.puffs, Puff{
			X:       x,
			Y:       y,
			VX:      float32(math.Cos(angle) * speed),
			VY:      float32(math.Sin(angle) * speed),
			Life:    life,
			MaxLife: life,
			Size:    3 + float32(s.rng.Float64())*3,
			Color:   color,
		})
	}
}

// Update advances every particle one frame and drops expired ones.
func (s *PuffSystem) Update(scroll float32) {
	kept := s.puffs[:0]
	for _, p := range s.puffs {
		p.Life--
		if p.Life <= 0 {
			continue
		}
		p.X += p.VX - scroll
		p.Y += p.VY
		p.VY += 0.2
		kept = append(kept, p)
	}
	s.puffs = kept
}

// Len returns the number of live particles.
func (s *PuffSystem) Len() int {
	return len(s.puffs)
}

// Reset drops all particles.
func (s *PuffSystem) Reset() {
	s.puffs = s.puffs[:0]
}

// Draw renders all particles, fading them out over their lifetime.
func (s *PuffSystem) Draw(cam *camera.Camera) {
	for i := range s.puffs {
		p := &s.puffs[i]

		lifeRatio := float32(p.Life) / float32(p.MaxLife)
		color := p.Color
		color.A = uint8(lifeRatio * 200)

		size := p.Size * lifeRatio
		if size < 0.5 {
			size = 0.5
		}
		sx, sy := cam.WorldToScreen(p.X, p.Y)
		rl.DrawCircleV(rl.Vector2{X: sx, Y: sy}, cam.Scale(size), color)
	}
}
