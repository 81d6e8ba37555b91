// Package mask holds server-side inpainting masks: a native-resolution alpha
// canvas painted with brush strokes recorded in display coordinates.
package mask

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// MaxDimension bounds either side of a canvas.
const MaxDimension = 8192

// Stroke input limits. MaxPaintCost bounds the pixels a single paint call may
// visit, counted as dabs times the dab bounding box.
const (
	MaxStrokePoints = 20000
	MaxBrushSize    = 2048
	MaxDisplaySize  = 4 * MaxDimension
	MaxPaintCost    = 1 << 30
)

var (
	ErrInvalidSize   = errors.New("mask: invalid canvas size")
	ErrInvalidStroke = errors.New("mask: invalid stroke")
	ErrPaintTooLarge = errors.New("mask: strokes cover too much work")
)

// Point is a position in display coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one brush drag as the user saw it on screen.
type Stroke struct {
	Points        []Point `json:"points"`
	BrushSize     float64 `json:"brushSize"`
	DisplayWidth  float64 `json:"displayWidth"`
	DisplayHeight float64 `json:"displayHeight"`
	Erase         bool    `json:"erase,omitempty"`
}

// Canvas is the painted region at the source image resolution. Painted
// pixels carry alpha 255, untouched ones 0.
type Canvas struct {
	img *image.Alpha
}

func NewCanvas(width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return &Canvas{img: image.NewAlpha(image.Rect(0, 0, width, height))}, nil
}

func (c *Canvas) Width() int  { return c.img.Rect.Dx() }
func (c *Canvas) Height() int { return c.img.Rect.Dy() }

// Validate checks that the stroke is finite and within the input limits.
// A zero display size means the points are already native pixels.
func (s Stroke) Validate() error {
	if !finite(s.BrushSize) || s.BrushSize < 0 || s.BrushSize > MaxBrushSize {
		return fmt.Errorf("%w: brushSize must be between 0 and %d", ErrInvalidStroke, MaxBrushSize)
	}
	for _, d := range []float64{s.DisplayWidth, s.DisplayHeight} {
		if !finite(d) || d < 0 || (d > 0 && d < 1) || d > MaxDisplaySize {
			return fmt.Errorf("%w: display size must be 0 or between 1 and %d", ErrInvalidStroke, MaxDisplaySize)
		}
	}
	if len(s.Points) > MaxStrokePoints {
		return fmt.Errorf("%w: more than %d points", ErrInvalidStroke, MaxStrokePoints)
	}
	for _, p := range s.Points {
		if !finite(p.X) || !finite(p.Y) || math.Abs(p.X) > MaxDisplaySize || math.Abs(p.Y) > MaxDisplaySize {
			return fmt.Errorf("%w: point (%g, %g) out of range", ErrInvalidStroke, p.X, p.Y)
		}
	}
	return nil
}

// segment is a run of evenly spaced dabs from one point to the next, already
// clipped to the canvas grown by the brush radius.
type segment struct {
	from, to Point
	n        int
	first    int
}

// trace maps the stroke to native pixels and returns the brush radius with
// the dab runs that can touch the canvas.
func (c *Canvas) trace(s Stroke) (float64, []segment) {
	if len(s.Points) == 0 || !(s.BrushSize > 0) {
		return 0, nil
	}
	sx := scale(c.Width(), s.DisplayWidth)
	sy := scale(c.Height(), s.DisplayHeight)
	radius := math.Max(s.BrushSize/2*(sx+sy)/2, 0.5)
	if !finite(radius) {
		return 0, nil
	}
	step := math.Max(radius/2, 0.5)
	lo := Point{X: -radius, Y: -radius}
	hi := Point{X: float64(c.Width()) + radius, Y: float64(c.Height()) + radius}

	var segs []segment
	var prev Point
	started := false
	for _, p := range s.Points {
		next := Point{X: p.X * sx, Y: p.Y * sy}
		if !finite(next.X) || !finite(next.Y) {
			continue
		}
		if !started {
			started = true
			if inside(next, lo, hi) {
				segs = append(segs, segment{from: next, to: next})
			}
			prev = next
			continue
		}
		from, to, ok := clip(prev, next, lo, hi)
		if ok {
			if n := int(math.Ceil(math.Hypot(to.X-from.X, to.Y-from.Y) / step)); n > 0 {
				first := 1
				if from != prev {
					first = 0
				}
				segs = append(segs, segment{from: from, to: to, n: n, first: first})
			}
		}
		prev = next
	}
	return radius, segs
}

// Cost estimates the pixels Apply would visit for s.
func (c *Canvas) Cost(s Stroke) float64 {
	radius, segs := c.trace(s)
	side := 2*radius + 2
	area := math.Min(side*side, float64(c.Width()*c.Height()))
	var dabs float64
	for _, sg := range segs {
		if sg.n == 0 {
			dabs++
			continue
		}
		dabs += float64(sg.n - sg.first + 1)
	}
	return dabs * area
}

// Apply paints the stroke onto the canvas. Display coordinates are mapped to
// native pixels per axis and the brush radius follows the mean scale. Parts
// of the stroke farther than one radius from the canvas are skipped.
func (c *Canvas) Apply(s Stroke) {
	radius, segs := c.trace(s)
	value := uint8(255)
	if s.Erase {
		value = 0
	}
	for _, sg := range segs {
		if sg.n == 0 {
			c.dab(sg.from, radius, value)
			continue
		}
		for i := sg.first; i <= sg.n; i++ {
			t := float64(i) / float64(sg.n)
			c.dab(Point{X: sg.from.X + (sg.to.X-sg.from.X)*t, Y: sg.from.Y + (sg.to.Y-sg.from.Y)*t}, radius, value)
		}
	}
}

// Clear erases the whole canvas.
func (c *Canvas) Clear() {
	clear(c.img.Pix)
}

// Invert swaps painted and unpainted pixels.
func (c *Canvas) Invert() {
	for i, v := range c.img.Pix {
		c.img.Pix[i] = 255 - v
	}
}

// Coverage is the painted fraction of the canvas in [0,1].
func (c *Canvas) Coverage() float64 {
	var sum uint64
	for _, v := range c.img.Pix {
		sum += uint64(v)
	}
	return float64(sum) / (255 * float64(len(c.img.Pix)))
}

// PNG encodes the mask white-on-black. A positive width and height rescale
// the output with nearest-neighbour sampling so edges stay hard.
func (c *Canvas) PNG(width, height int) ([]byte, error) {
	src := image.NewGray(c.img.Rect)
	copy(src.Pix, c.img.Pix)

	var out image.Image = src
	if width > 0 && height > 0 && (width != c.Width() || height != c.Height()) {
		if width > MaxDimension || height > MaxDimension {
			return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
		}
		dst := image.NewGray(image.Rect(0, 0, width, height))
		draw.NearestNeighbor.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("mask: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// At reports the alpha value of one native pixel.
func (c *Canvas) At(x, y int) uint8 {
	return c.img.AlphaAt(x, y).A
}

func (c *Canvas) snapshot() []byte {
	return bytes.Clone(c.img.Pix)
}

func (c *Canvas) restore(pix []byte) {
	copy(c.img.Pix, pix)
}

func (c *Canvas) dab(center Point, radius float64, value uint8) {
	b := c.img.Rect
	minX := max(int(math.Floor(center.X-radius)), b.Min.X)
	maxX := min(int(math.Ceil(center.X+radius)), b.Max.X-1)
	minY := max(int(math.Floor(center.Y-radius)), b.Min.Y)
	maxY := min(int(math.Ceil(center.Y+radius)), b.Max.Y-1)
	r2 := radius * radius
	for y := minY; y <= maxY; y++ {
		dy := float64(y) + 0.5 - center.Y
		for x := minX; x <= maxX; x++ {
			dx := float64(x) + 0.5 - center.X
			if dx*dx+dy*dy <= r2 {
				c.img.SetAlpha(x, y, color.Alpha{A: value})
			}
		}
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func inside(p, lo, hi Point) bool {
	return p.X >= lo.X && p.X <= hi.X && p.Y >= lo.Y && p.Y <= hi.Y
}

// clip cuts the segment a-b to the box lo-hi (Liang-Barsky).
func clip(a, b, lo, hi Point) (Point, Point, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{a.X - lo.X, hi.X - a.X, a.Y - lo.Y, hi.Y - a.Y}
	t0, t1 := 0.0, 1.0
	for i := range p {
		if p[i] == 0 {
			if q[i] < 0 {
				return Point{}, Point{}, false
			}
			continue
		}
		r := q[i] / p[i]
		if p[i] < 0 {
			if r > t1 {
				return Point{}, Point{}, false
			}
			t0 = max(t0, r)
		} else {
			if r < t0 {
				return Point{}, Point{}, false
			}
			t1 = min(t1, r)
		}
	}
	return Point{X: a.X + t0*dx, Y: a.Y + t0*dy}, Point{X: a.X + t1*dx, Y: a.Y + t1*dy}, true
}

func scale(native int, display float64) float64 {
	if display <= 0 {
		return 1
	}
	return float64(native) / display
}
