package renderer

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/flap/camera"
)

var (
	skyTop     = rl.Color{R: 78, G: 192, B: 202, A: 255}
	skyBottom  = rl.Color{R: 196, G: 236, B: 226, A: 255}
	floorColor = rl.Color{R: 222, G: 216, B: 149, A: 255}
	floorEdge  = rl.Color{R: 84, G: 56, B: 71, A: 255}
	floorDark  = rl.Color{R: 115, G: 191, B: 46, A: 255}
	floorLight = rl.Color{R: 158, G: 228, B: 89, A: 255}
	letterbox  = rl.Color{R: 20, G: 25, B: 30, A: 255}
)

// stripeWidth is the period of the floor's diagonal pattern in world units.
const stripeWidth = 24

// Background draws the sky gradient and the scrolling floor.
type Background struct {
	worldW, worldH float32
	floorY         float32
	velocity       float32 // floor scroll speed, matches the obstacles
}

// NewBackground creates a background for a world whose floor starts at floorY.
func NewBackground(worldW, worldH, floorY, velocity float64) *Background {
	return &Background{
		worldW:   float32(worldW),
		worldH:   float32(worldH),
		floorY:   float32(floorY),
		velocity: float32(velocity),
	}
}

// FloorOffset returns the floor pattern's scroll offset in [0, stripeWidth)
// after tick ticks.
func (b *Background) FloorOffset(tick int) float32 {
	return float32(math.Mod(float64(b.velocity)*float64(tick), stripeWidth))
}

// DrawSky fills the world area above the floor.
func (b *Background) DrawSky(cam *camera.Camera) {
	x, y := cam.WorldToScreen(0, 0)
	rl.DrawRectangleGradientV(
		int32(x), int32(y),
		int32(cam.Scale(b.worldW)), int32(cam.Scale(b.floorY)),
		skyTop, skyBottom,
	)
}

// DrawFloor draws the ground band and its scrolling stripe pattern. It is
// drawn after the obstacles so it covers their bottom segments.
func (b *Background) DrawFloor(cam *camera.Camera, tick int) {
	x, y := cam.WorldToScreen(0, b.floorY)
	w := cam.Scale(b.worldW)
	h := cam.Scale(b.worldH - b.floorY)
	rl.DrawRectangleRec(rl.Rectangle{X: x, Y: y, Width: w, Height: h}, floorColor)

	// Grass band with stripes moving left
	band := cam.Scale(14)
	rl.DrawRectangleRec(rl.Rectangle{X: x, Y: y, Width: w, Height: band}, floorDark)
	offset := b.FloorOffset(tick)
	for sx := -offset; sx < b.worldW; sx += stripeWidth {
		left, _ := cam.WorldToScreen(sx, b.floorY)
		stripe := rl.Rectangle{X: left, Y: y, Width: cam.Scale(stripeWidth / 2), Height: band}
		rl.DrawRectangleRec(stripe, floorLight)
	}
	rl.DrawLineEx(rl.Vector2{X: x, Y: y}, rl.Vector2{X: x + w, Y: y}, 2, floorEdge)
	rl.DrawLineEx(rl.Vector2{X: x, Y: y + band}, rl.Vector2{X: x + w, Y: y + band}, 2, floorEdge)
}

// DrawLetterbox covers the screen outside the world.
func (b *Background) DrawLetterbox(cam *camera.Camera) {
	for _, bar := range cam.Letterbox() {
		rl.DrawRectangleRec(rl.Rectangle{X: bar[0], Y: bar[1], Width: bar[2], Height: bar[3]}, letterbox)
	}
}
