// Package camera maps the bounded simulation world onto the window.
package camera

// Camera fits the whole world into the viewport, preserving aspect ratio and
// centering it with letterbox bars on the longer axis.
type Camera struct {
	// Zoom is screen pixels per world unit
	Zoom float32

	// Screen offset of the world origin
	OffsetX, OffsetY float32

	// Viewport dimensions (screen size)
	ViewportW, ViewportH float32

	// World dimensions
	WorldW, WorldH float32
}

// New creates a camera that fits a worldW×worldH world into the viewport.
func New(viewportW, viewportH, worldW, worldH float32) *Camera {
	c := &Camera{WorldW: worldW, WorldH: worldH}
	c.fit(viewportW, viewportH)
	return c
}

// fit recomputes zoom and offsets for a viewport size.
func (c *Camera) fit(viewportW, viewportH float32) {
	c.ViewportW = viewportW
	c.ViewportH = viewportH

	c.Zoom = 1
	if c.WorldW > 0 && c.WorldH > 0 {
		c.Zoom = min(viewportW/c.WorldW, viewportH/c.WorldH)
	}
	c.OffsetX = (viewportW - c.WorldW*c.Zoom) / 2
	c.OffsetY = (viewportH - c.WorldH*c.Zoom) / 2
}

// Resize refits the world to new viewport dimensions.
func (c *Camera) Resize(viewportW, viewportH float32) {
	if viewportW == c.ViewportW && viewportH == c.ViewportH {
		return
	}
	c.fit(viewportW, viewportH)
}

// WorldToScreen converts world coordinates to screen coordinates.
func (c *Camera) WorldToScreen(wx, wy float32) (sx, sy float32) {
	return c.OffsetX + wx*c.Zoom, c.OffsetY + wy*c.Zoom
}

// ScreenToWorld converts screen coordinates to world coordinates.
func (c *Camera) ScreenToWorld(sx, sy float32) (wx, wy float32) {
	return (sx - c.OffsetX) / c.Zoom, (sy - c.OffsetY) / c.Zoom
}

// Scale converts a world length to screen pixels.
func (c *Camera) Scale(length float32) float32 {
	return length * c.Zoom
}

// IsVisible reports whether any part of the world rectangle (x, y, w, h)
// lies inside the world bounds shown on screen.
func (c *Camera) IsVisible(x, y, w, h float32) bool {
	return x+w >= 0 && x <= c.WorldW && y+h >= 0 && y <= c.WorldH
}

// Letterbox returns the screen rectangles outside the world area as
// (x, y, w, h) pairs. Returns none when the aspect ratios match.
func (c *Camera) Letterbox() [][4]float32 {
	var bars [][4]float32
	if c.OffsetX > 0 {
		bars = append(bars,
			[4]float32{0, 0, c.OffsetX, c.ViewportH},
			[4]float32{c.ViewportW - c.OffsetX, 0, c.OffsetX, c.ViewportH},
		)
	}
	if c.OffsetY > 0 {
		bars = append(bars,
			[4]float32{0, 0, c.ViewportW, c.OffsetY},
			[4]float32{0, c.ViewportH - c.OffsetY, c.ViewportW, c.OffsetY},
		)
	}
	return bars
}
