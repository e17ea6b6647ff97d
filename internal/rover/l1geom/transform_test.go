package l1geom

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/google/go-cmp/cmp"
)

const eps = 1e-9

type testMask struct {
	w, h int
	set  map[[2]int]bool
}

func (m testMask) Size() (int, int)        { return m.w, m.h }
func (m testMask) IsSet(col, row int) bool { return m.set[[2]int{col, row}] }

func newTestMask(w, h int, px ...[2]int) testMask {
	m := testMask{w: w, h: h, set: make(map[[2]int]bool)}
	for _, p := range px {
		m.set[p] = true
	}
	return m
}

func TestToPolar(t *testing.T) {
	tests := []struct {
		name      string
		x, y      float64
		wantDist  float64
		wantAngle float64
	}{
		{"forward", 10, 0, 10, 0},
		{"left", 0, 5, 5, math.Pi / 2},
		{"right", 0, -5, 5, -math.Pi / 2},
		{"diagonal", 3, 4, 5, math.Atan2(4, 3)},
		{"origin", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, a := ToPolar(tt.x, tt.y)
			if math.Abs(d-tt.wantDist) > eps || math.Abs(a-tt.wantAngle) > eps {
				t.Errorf("ToPolar(%v,%v) = (%v,%v), want (%v,%v)", tt.x, tt.y, d, a, tt.wantDist, tt.wantAngle)
			}
		})
	}
}

func TestRotate(t *testing.T) {
	x, y := Rotate(1, 0, 90)
	if math.Abs(x) > eps || math.Abs(y-1) > eps {
		t.Fatalf("Rotate(1,0,90) = (%v,%v), want (0,1)", x, y)
	}
	x, y = Rotate(1, 0, 180)
	if math.Abs(x+1) > eps || math.Abs(y) > eps {
		t.Fatalf("Rotate(1,0,180) = (%v,%v), want (-1,0)", x, y)
	}
}

func TestTranslateAndScale(t *testing.T) {
	x, y := TranslateAndScale(20, -10, 100, 50, 10)
	if x != 102 || y != 49 {
		t.Fatalf("got (%v,%v), want (102,49)", x, y)
	}
}

func TestToWorldCell_ClampsAtBorders(t *testing.T) {
	c := ToWorldCell(5000, 5000, 190, 190, 0, 200, 10)
	if c != (Cell{X: 199, Y: 199}) {
		t.Fatalf("expected clamp to 199, got %+v", c)
	}
	c = ToWorldCell(-5000, -5000, 5, 5, 0, 200, 10)
	if c != (Cell{X: 0, Y: 0}) {
		t.Fatalf("expected clamp to 0, got %+v", c)
	}
}

func TestToWorldCell_RoundsToNearest(t *testing.T) {
	// 16 px forward at scale 10 is 1.6 world units; 101.6 rounds to 102 where truncation would give 101.
	c := ToWorldCell(16, 0, 100, 100, 0, 200, 10)
	if c.X != 102 || c.Y != 100 {
		t.Fatalf("got %+v, want {102 100}", c)
	}
}

func TestWorldCell_RoundTrip(t *testing.T) {
	origins := []struct{ x, y, yaw float64 }{
		{100, 100, 0},
		{87.3, 42.1, 33.5},
		{12.5, 150.25, 271},
		{199, 0, 359.9},
	}
	for _, o := range origins {
		for cx := 0; cx < 200; cx += 17 {
			for cy := 0; cy < 200; cy += 23 {
				cell := Cell{X: cx, Y: cy}
				x, y := CellToRover(cell, o.x, o.y, o.yaw, 10)
				got := ToWorldCell(x, y, o.x, o.y, o.yaw, 200, 10)
				if abs(got.X-cx) > 1 || abs(got.Y-cy) > 1 {
					t.Fatalf("round trip %+v via origin %+v -> %+v", cell, o, got)
				}
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestPixelsToRoverFrame(t *testing.T) {
	// 10x4 image: bottom-centre pixel (col 5,row 3) is one px forward, on axis.
	m := newTestMask(10, 4, [2]int{5, 3}, [2]int{0, 0}, [2]int{9, 2})
	got := PixelsToRoverFrame(m)
	want := []r2.Point{
		{X: 4, Y: 5},  // row 0, col 0: far forward, left
		{X: 2, Y: -4}, // row 2, col 9: right
		{X: 1, Y: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("PixelsToRoverFrame mismatch (-want +got):\n%s", diff)
	}
}

func TestPixelsToRoverFrame_Empty(t *testing.T) {
	if pts := PixelsToRoverFrame(newTestMask(4, 4)); len(pts) != 0 {
		t.Fatalf("expected no points, got %d", len(pts))
	}
	if pts := PixelsToRoverFrame(nil); pts != nil {
		t.Fatalf("expected nil for nil mask")
	}
}

func TestToPolarAll(t *testing.T) {
	d, a := ToPolarAll([]r2.Point{{X: 3, Y: 4}, {X: 1, Y: 0}})
	if len(d) != 2 || d[0] != 5 || d[1] != 1 || a[1] != 0 {
		t.Fatalf("unexpected polar output d=%v a=%v", d, a)
	}
}

func TestNormalizeYaw(t *testing.T) {
	for _, tt := range []struct{ in, want float64 }{
		{0, 0}, {359, 359}, {360, 0}, {-90, 270}, {725, 5},
	} {
		if got := NormalizeYaw(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeYaw(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestYawDelta(t *testing.T) {
	for _, tt := range []struct{ a, b, want float64 }{
		{0, 90, 90},
		{350, 10, 20},
		{10, 350, -20},
		{0, 180, -180},
		{45, 45, 0},
	} {
		if got := YawDelta(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("YawDelta(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
