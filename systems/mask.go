package systems

import (
	"fmt"
	"image"
	_ "image/png"
	"math/bits"
	"os"
)

// alphaThreshold matches the usual sprite-mask cutoff: pixels with alpha
// above it are solid.
const alphaThreshold = 127

// Mask is a 1-bit occupancy grid, one row of uint64 words per scanline.
type Mask struct {
	w, h  int
	words int // words per row
	bits  []uint64
}

// NewMask returns an empty w×h mask.
func NewMask(w, h int) *Mask {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	words := (w + 63) / 64
	return &Mask{w: w, h: h, words: words, bits: make([]uint64, words*h)}
}

// NewRectMask returns a fully solid w×h mask.
func NewRectMask(w, h int) *Mask {
	m := NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y)
		}
	}
	return m
}

// NewEllipseMask returns a w×h mask with the inscribed ellipse set.
func NewEllipseMask(w, h int) *Mask {
	m := NewMask(w, h)
	rx := float64(w) / 2
	ry := float64(h) / 2
	for y := 0; y < h; y++ {
		dy := (float64(y) + 0.5 - ry) / ry
		for x := 0; x < w; x++ {
			dx := (float64(x) + 0.5 - rx) / rx
			if dx*dx+dy*dy <= 1 {
				m.Set(x, y)
			}
		}
	}
	return m
}

// MaskFromImage sets every pixel whose alpha exceeds the threshold.
func MaskFromImage(img image.Image) *Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a>>8 > alphaThreshold {
				m.Set(x-b.Min.X, y-b.Min.Y)
			}
		}
	}
	return m
}

// LoadMask decodes a PNG sprite and builds its mask.
func LoadMask(path string) (*Mask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sprite: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding sprite %s: %w", path, err)
	}
	return MaskFromImage(img), nil
}

// Width returns the mask width in pixels.
func (m *Mask) Width() int { return m.w }

// Height returns the mask height in pixels.
func (m *Mask) Height() int { return m.h }

// Set marks pixel (x, y) solid. Out-of-range coordinates are ignored.
func (m *Mask) Set(x, y int) {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return
	}
	m.bits[y*m.words+x/64] |= 1 << uint(x%64)
}

// Get reports whether pixel (x, y) is solid.
func (m *Mask) Get(x, y int) bool {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return false
	}
	return m.bits[y*m.words+x/64]&(1<<uint(x%64)) != 0
}

// Count returns the number of solid pixels.
func (m *Mask) Count() int {
	n := 0
	for _, w := range m.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// Overlap reports whether other, placed with its origin at (dx, dy) in m's
// coordinate frame, shares any solid pixel with m.
func (m *Mask) Overlap(other *Mask, dx, dy int) bool {
	// Intersection rectangle in m's frame
	x0 := max(0, dx)
	y0 := max(0, dy)
	x1 := min(m.w, dx+other.w)
	y1 := min(m.h, dy+other.h)
	if x0 >= x1 || y0 >= y1 {
		return false
	}

	for y := y0; y < y1; y++ {
		oy := y - dy
		for x := x0; x < x1; {
			// Compare up to 64 pixels at a time, aligned on m's word boundary
			n := min(64-x%64, x1-x)
			a := m.row(y, x, n)
			b := other.row(oy, x-dx, n)
			if a&b != 0 {
				return true
			}
			x += n
		}
	}
	return false
}

// row extracts n ≤ 64 bits starting at pixel x of scanline y, low bit first.
func (m *Mask) row(y, x, n int) uint64 {
	base := y * m.words
	word := x / 64
	shift := uint(x % 64)
	v := m.bits[base+word] >> shift
	if shift != 0 && word+1 < m.words {
		v |= m.bits[base+word+1] << (64 - shift)
	}
	if n < 64 {
		v &= (1 << uint(n)) - 1
	}
	return v
}
