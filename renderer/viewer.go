// Package renderer draws generations in a raylib window. It reads game
// snapshots only and never changes simulation state except through Abort.
package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/flap/camera"
	"github.com/pthm-cable/flap/config"
	"github.com/pthm-cable/flap/game"
)

var (
	pipeFill   = rl.Color{R: 115, G: 191, B: 46, A: 255}
	pipeBorder = rl.Color{R: 84, G: 56, B: 71, A: 255}
	beakColor  = rl.Color{R: 250, G: 120, B: 40, A: 255}
)

// puffsPerAgent is the particle burst size for a removed agent.
const puffsPerAgent = 10

// Viewer runs generations frame by frame in an open raylib window.
type Viewer struct {
	cfg      *config.Config
	cam      *camera.Camera
	bg       *Background
	puffs    *PuffSystem
	controls *Controls
	hud      *HUD

	sprite    rl.Texture2D
	hasSprite bool

	replay bool
	closed bool

	// OnClose, if set, is called once when the window is closed.
	OnClose func()
}

// NewViewer creates a viewer. rl.InitWindow must already have been called.
func NewViewer(cfg *config.Config) *Viewer {
	controls := NewControls()
	v := &Viewer{
		cfg: cfg,
		cam: camera.New(
			float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight()),
			float32(cfg.Derived.WorldW), float32(cfg.Derived.WorldH),
		),
		bg:       NewBackground(cfg.Derived.WorldW, cfg.Derived.WorldH, cfg.World.FloorY, cfg.Obstacle.Velocity),
		puffs:    NewPuffSystem(1),
		controls: controls,
		hud:      NewHUD(controls),
	}

	if cfg.Agent.Shape == config.ShapeSprite && cfg.Agent.Sprite != "" {
		v.sprite = rl.LoadTexture(cfg.Agent.Sprite)
		v.hasSprite = v.sprite.ID != 0
		if !v.hasSprite {
			slog.Warn("failed to load agent sprite, drawing ellipses", "path", cfg.Agent.Sprite)
		}
	}
	return v
}

// SetReplay labels the HUD for hall-of-fame replays instead of evolution.
func (v *Viewer) SetReplay(replay bool) {
	v.replay = replay
}

// Closed reports whether the window has been closed.
func (v *Viewer) Closed() bool {
	return v.closed
}

// Unload frees GPU resources.
func (v *Viewer) Unload() {
	if v.hasSprite {
		rl.UnloadTexture(v.sprite)
		v.hasSprite = false
	}
}

// RunGeneration simulates one generation, stepping Speed ticks per frame.
// It has the same contract as game.RunGeneration: cancellation, the skip
// button, caps and closing the window all end the generation as aborted
// without error.
func (v *Viewer) RunGeneration(ctx context.Context, prev game.Generation, size int, factory game.PolicyFactory, opts game.Options) (game.Generation, game.Result, error) {
	g, err := game.NewGame(v.cfg, prev, size, factory, opts)
	if err != nil {
		return prev, game.Result{}, err
	}
	defer g.Close()

	v.puffs.Reset()
	snap := g.Snapshot()

	for g.State() == game.Running {
		if v.closed || ctx.Err() != nil {
			g.Abort()
			break
		}
		if rl.WindowShouldClose() {
			v.close()
			g.Abort()
			break
		}

		v.handleInput()
		if v.controls.TakeSkip() {
			g.Abort()
		}

		steps := 0
		if !v.controls.Paused {
			for ; steps < v.controls.Speed && g.State() == game.Running; steps++ {
				g.Step()
				if opts.OnTick != nil {
					opts.OnTick(g.Snapshot())
				}
				if g.CapReached() {
					g.Abort()
				}
			}
		}

		next := g.Snapshot()
		for _, a := range Departed(snap.Agents, next.Agents) {
			cx := float32(a.X) + float32(v.cfg.Agent.Width)/2
			cy := float32(a.Y) + float32(v.cfg.Agent.Height)/2
			v.puffs.Burst(cx, cy, puffsPerAgent, agentColor(a.ID))
		}
		if steps > 0 {
			v.puffs.Update(float32(v.cfg.Obstacle.Velocity))
		}
		snap = next

		v.draw(snap, size)
	}

	return g.Generation(), g.Result(), nil
}

func (v *Viewer) close() {
	if v.closed {
		return
	}
	v.closed = true
	if v.OnClose != nil {
		v.OnClose()
	}
}

// handleInput processes resize and keyboard input.
func (v *Viewer) handleInput() {
	if rl.IsWindowResized() {
		v.cam.Resize(float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight()))
	}
	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
	v.controls.HandleKeys()
}

// draw renders one frame of snap.
func (v *Viewer) draw(snap game.Snapshot, population int) {
	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)

	v.bg.DrawSky(v.cam)
	for _, o := range snap.Obstacles {
		v.drawObstacle(o)
	}
	v.bg.DrawFloor(v.cam, snap.Tick)
	for _, a := range snap.Agents {
		v.drawAgent(a)
	}
	v.puffs.Draw(v.cam)
	v.bg.DrawLetterbox(v.cam)

	v.hud.Draw(HUDData{
		Generation: snap.Generation,
		Score:      snap.Score,
		Alive:      snap.Alive,
		Population: population,
		Tick:       snap.Tick,
		Speed:      v.controls.Speed,
		FPS:        rl.GetFPS(),
		Paused:     v.controls.Paused,
		Replay:     v.replay,
	}, int32(rl.GetScreenWidth()), int32(rl.GetScreenHeight()))

	rl.EndDrawing()
}

// drawObstacle renders both segments of o, skipping any off screen.
func (v *Viewer) drawObstacle(o game.ObstacleView) {
	w := float32(v.cfg.Obstacle.Width)
	h := float32(v.cfg.Obstacle.SegmentHeight)
	segments := [2][2]float32{
		{float32(o.X), float32(o.GapTop) - h},
		{float32(o.X), float32(o.GapBottom)},
	}
	for _, s := range segments {
		if !v.cam.IsVisible(s[0], s[1], w, h) {
			continue
		}
		sx, sy := v.cam.WorldToScreen(s[0], s[1])
		rec := rl.Rectangle{X: sx, Y: sy, Width: v.cam.Scale(w), Height: v.cam.Scale(h)}
		rl.DrawRectangleRec(rec, pipeFill)
		rl.DrawRectangleLinesEx(rec, 2, pipeBorder)
	}
}

// drawAgent renders a at its tilt. Positive tilt points the nose up.
func (v *Viewer) drawAgent(a game.AgentView) {
	w := float32(v.cfg.Agent.Width)
	h := float32(v.cfg.Agent.Height)
	cx, cy := v.cam.WorldToScreen(float32(a.X)+w/2, float32(a.Y)+h/2)
	sw, sh := v.cam.Scale(w), v.cam.Scale(h)
	rotation := float32(-a.Tilt)
	color := agentColor(a.ID)

	switch {
	case v.hasSprite:
		src := rl.Rectangle{Width: float32(v.sprite.Width), Height: float32(v.sprite.Height)}
		dst := rl.Rectangle{X: cx, Y: cy, Width: sw, Height: sh}
		rl.DrawTexturePro(v.sprite, src, dst, rl.Vector2{X: sw / 2, Y: sh / 2}, rotation, rl.White)
	case v.cfg.Agent.Shape == config.ShapeBox:
		dst := rl.Rectangle{X: cx, Y: cy, Width: sw, Height: sh}
		rl.DrawRectanglePro(dst, rl.Vector2{X: sw / 2, Y: sh / 2}, rotation, color)
	default:
		rl.DrawEllipse(int32(cx), int32(cy), sw/2, sh/2, color)
		hx, hy := heading(a.Tilt)
		tip := rl.Vector2{X: cx + hx*sw/2, Y: cy + hy*sw/2}
		rl.DrawLineEx(rl.Vector2{X: cx, Y: cy}, tip, v.cam.Scale(6), beakColor)
	}
}

// heading returns the screen-space unit vector for a tilt in degrees.
func heading(tilt float64) (float32, float32) {
	rad := tilt * math.Pi / 180
	return float32(math.Cos(rad)), float32(-math.Sin(rad))
}

// agentColor gives each agent ID a stable hue.
func agentColor(id uint32) rl.Color {
	return rl.ColorFromHSV(float32((id*47)%360), 0.65, 0.95)
}

// Departed returns the agents in prev that are missing from cur.
func Departed(prev, cur []game.AgentView) []game.AgentView {
	if len(prev) == len(cur) {
		return nil
	}
	present := make(map[uint32]struct{}, len(cur))
	for _, a := range cur {
		present[a.ID] = struct{}{}
	}
	var gone []game.AgentView
	for _, a := range prev {
		if _, ok := present[a.ID]; !ok {
			gone = append(gone, a)
		}
	}
	return gone
}

// Title returns the window title for a run.
func Title(replay bool, runID string) string {
	title := "flap"
	if replay {
		title += " (replay)"
	}
	if runID != "" {
		title = fmt.Sprintf("%s [%s]", title, runID[:min(8, len(runID))])
	}
	return title
}
