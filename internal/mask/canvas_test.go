package mask

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"math"
	"testing"
	"time"
)

func TestNewCanvasRejectsBadSize(t *testing.T) {
	for _, tc := range []struct{ w, h int }{{0, 10}, {10, -1}, {MaxDimension + 1, 10}} {
		if _, err := NewCanvas(tc.w, tc.h); !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("NewCanvas(%d,%d) error = %v", tc.w, tc.h, err)
		}
	}
}

func TestApplyScalesDisplayCoordinates(t *testing.T) {
	c, _ := NewCanvas(200, 100)
	// Display is half the native size, so (50,25) lands on (100,50).
	c.Apply(Stroke{Points: []Point{{X: 50, Y: 25}}, BrushSize: 4, DisplayWidth: 100, DisplayHeight: 50})

	if c.At(100, 50) != 255 {
		t.Fatal("expected centre pixel painted")
	}
	// Brush 4 at 2x scale gives radius 4.
	if c.At(103, 50) != 255 {
		t.Fatal("expected pixel inside scaled radius painted")
	}
	if c.At(106, 50) != 0 || c.At(50, 25) != 0 {
		t.Fatal("expected pixels outside the brush untouched")
	}
}

func TestApplyJoinsPointsWithoutGaps(t *testing.T) {
	c, _ := NewCanvas(100, 20)
	c.Apply(Stroke{Points: []Point{{X: 5, Y: 10}, {X: 95, Y: 10}}, BrushSize: 4})
	for x := 5; x < 95; x++ {
		if c.At(x, 10) != 255 {
			t.Fatalf("gap at x=%d", x)
		}
	}
}

func TestEraseClearInvert(t *testing.T) {
	c, _ := NewCanvas(20, 20)
	c.Apply(Stroke{Points: []Point{{X: 10, Y: 10}}, BrushSize: 10})
	c.Apply(Stroke{Points: []Point{{X: 10, Y: 10}}, BrushSize: 2, Erase: true})
	if c.At(10, 10) != 0 || c.At(13, 10) != 255 {
		t.Fatal("erase did not clear the inner brush")
	}

	c.Clear()
	if c.Coverage() != 0 {
		t.Fatalf("coverage after clear = %v", c.Coverage())
	}
	c.Invert()
	if c.Coverage() != 1 {
		t.Fatalf("coverage after invert = %v", c.Coverage())
	}
}

func TestPNGRescalesWithHardEdges(t *testing.T) {
	c, _ := NewCanvas(4, 4)
	c.Apply(Stroke{Points: []Point{{X: 0.5, Y: 0.5}}, BrushSize: 1})

	data, err := c.PNG(8, 8)
	if err != nil {
		t.Fatalf("PNG error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 8, 8) {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	gray := img.(*image.Gray)
	if gray.GrayAt(0, 0).Y != 255 || gray.GrayAt(1, 1).Y != 255 {
		t.Fatal("expected painted corner to scale to a 2x2 white block")
	}
	if gray.GrayAt(2, 2).Y != 0 {
		t.Fatal("expected unpainted area to stay black")
	}
}

func TestApplyClipsFarAwayPoints(t *testing.T) {
	c, _ := NewCanvas(100, 100)
	s := Stroke{Points: []Point{{X: 0, Y: 50}, {X: 1e12, Y: 50}}, BrushSize: 4, DisplayWidth: 100, DisplayHeight: 100}
	if cost := c.Cost(s); cost > 1e5 {
		t.Fatalf("Cost = %g, want a bound near the canvas width", cost)
	}

	done := make(chan struct{})
	go func() {
		c.Apply(s)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Apply did not return for a far-away point")
	}
	if c.At(0, 50) != 255 || c.At(50, 50) != 255 || c.At(99, 50) != 255 {
		t.Fatal("expected the visible part of the stroke painted")
	}
	if c.At(50, 40) != 0 {
		t.Fatal("expected rows away from the stroke untouched")
	}
}

func TestApplyEntersFromOutsideCanvas(t *testing.T) {
	c, _ := NewCanvas(50, 50)
	c.Apply(Stroke{Points: []Point{{X: -500, Y: 25}, {X: 25, Y: 25}}, BrushSize: 4})
	for x := 0; x <= 25; x++ {
		if c.At(x, 25) != 255 {
			t.Fatalf("gap at x=%d", x)
		}
	}
	if c.At(40, 25) != 0 {
		t.Fatal("painted past the last point")
	}
}

func TestStrokeValidate(t *testing.T) {
	ok := Stroke{Points: []Point{{X: 1, Y: 2}}, BrushSize: 10, DisplayWidth: 300, DisplayHeight: 200}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate(ok) = %v", err)
	}
	bad := []Stroke{
		{Points: []Point{{X: math.NaN(), Y: 0}}, BrushSize: 4},
		{Points: []Point{{X: 1e12, Y: 0}}, BrushSize: 4},
		{Points: []Point{{X: 0, Y: math.Inf(-1)}}, BrushSize: 4},
		{Points: []Point{{X: 0, Y: 0}}, BrushSize: -1},
		{Points: []Point{{X: 0, Y: 0}}, BrushSize: MaxBrushSize + 1},
		{Points: []Point{{X: 0, Y: 0}}, BrushSize: 4, DisplayWidth: 1e-9},
		{Points: []Point{{X: 0, Y: 0}}, BrushSize: 4, DisplayHeight: -10},
		{Points: make([]Point, MaxStrokePoints+1), BrushSize: 4},
	}
	for i, s := range bad {
		if err := s.Validate(); !errors.Is(err, ErrInvalidStroke) {
			t.Fatalf("case %d: Validate = %v", i, err)
		}
	}
}
