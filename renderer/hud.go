package renderer

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// MaxSpeed is the most ticks the viewer runs per frame.
const MaxSpeed = 32

// Controls holds viewer playback state.
type Controls struct {
	Speed  int // ticks per frame
	Paused bool
	skip   bool
}

// NewControls returns controls at 1x, running.
func NewControls() *Controls {
	return &Controls{Speed: 1}
}

// Faster doubles the speed up to MaxSpeed.
func (c *Controls) Faster() {
	c.Speed = min(c.Speed*2, MaxSpeed)
}

// Slower halves the speed down to 1x.
func (c *Controls) Slower() {
	c.Speed = max(c.Speed/2, 1)
}

// TogglePause flips the paused state.
func (c *Controls) TogglePause() {
	c.Paused = !c.Paused
}

// RequestSkip asks the viewer to end the current generation.
func (c *Controls) RequestSkip() {
	c.skip = true
}

// TakeSkip reports and clears a pending skip request.
func (c *Controls) TakeSkip() bool {
	skip := c.skip
	c.skip = false
	return skip
}

// HandleKeys applies keyboard shortcuts: space pauses, comma and period
// change speed, N skips the generation.
func (c *Controls) HandleKeys() {
	if rl.IsKeyPressed(rl.KeySpace) {
		c.TogglePause()
	}
	if rl.IsKeyPressed(rl.KeyComma) {
		c.Slower()
	}
	if rl.IsKeyPressed(rl.KeyPeriod) {
		c.Faster()
	}
	if rl.IsKeyPressed(rl.KeyN) {
		c.RequestSkip()
	}
}

// HUDData holds the values shown on the heads-up display.
type HUDData struct {
	Generation int
	Score      int
	Alive      int
	Population int
	Tick       int
	Speed      int
	FPS        int32
	Paused     bool
	Replay     bool
}

// Lines returns the left-column status lines.
func (d HUDData) Lines() []string {
	label := "Gens"
	if d.Replay {
		label = "Replay"
	}
	lines := []string{
		fmt.Sprintf("%s: %d", label, d.Generation),
		fmt.Sprintf("Alive: %d/%d", d.Alive, d.Population),
		fmt.Sprintf("Tick: %d | Speed: %dx | FPS: %d", d.Tick, d.Speed, d.FPS),
	}
	if d.Paused {
		lines = append(lines, "PAUSED")
	}
	return lines
}

// HUD draws status text and the playback buttons.
type HUD struct {
	controls *Controls
}

// NewHUD creates a HUD bound to controls.
func NewHUD(controls *Controls) *HUD {
	return &HUD{controls: controls}
}

// Draw renders the HUD over the full window.
func (h *HUD) Draw(data HUDData, screenW, screenH int32) {
	score := fmt.Sprintf("Score: %d", data.Score)
	rl.DrawText(score, screenW-rl.MeasureText(score, 30)-10, 10, 30, rl.White)

	for i, line := range data.Lines() {
		color := rl.White
		if line == "PAUSED" {
			color = rl.Yellow
		}
		rl.DrawText(line, 10, 10+int32(i)*24, 20, color)
	}

	h.drawButtons(screenH)
}

// drawButtons renders the playback buttons along the bottom edge.
func (h *HUD) drawButtons(screenH int32) {
	c := h.controls
	y := float32(screenH) - 40
	if gui.Button(rl.Rectangle{X: 10, Y: y, Width: 80, Height: 30}, toggleText(c.Paused, "Resume", "Pause")) {
		c.TogglePause()
	}
	if gui.Button(rl.Rectangle{X: 100, Y: y, Width: 40, Height: 30}, "-") {
		c.Slower()
	}
	if gui.Button(rl.Rectangle{X: 150, Y: y, Width: 40, Height: 30}, "+") {
		c.Faster()
	}
	if gui.Button(rl.Rectangle{X: 200, Y: y, Width: 80, Height: 30}, "Skip") {
		c.RequestSkip()
	}
}

func toggleText(on bool, onText, offText string) string {
	if on {
		return onText
	}
	return offText
}
