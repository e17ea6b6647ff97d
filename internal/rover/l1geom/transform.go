package l1geom

import (
	"math"

	"github.com/golang/geo/r2"
)

// Cell is a discretised world-grid coordinate.
type Cell struct {
	X int
	Y int
}

// PixelSet is a binary image. It is satisfied by l2vision.Mask without
// importing it.
type PixelSet interface {
	Size() (width, height int)
	IsSet(col, row int) bool
}

// ToPolar converts a rover-frame point to (distance, angle). The angle is
// in radians, measured from the forward axis, positive to the left.
func ToPolar(x, y float64) (dist, angle float64) {
	return math.Sqrt(x*x + y*y), math.Atan2(y, x)
}

// ToPolarAll is the slice form of ToPolar.
func ToPolarAll(pts []r2.Point) (dists, angles []float64) {
	dists = make([]float64, len(pts))
	angles = make([]float64, len(pts))
	for i, p := range pts {
		dists[i], angles[i] = ToPolar(p.X, p.Y)
	}
	return dists, angles
}

// Rotate rotates (x, y) counter-clockwise by yawDeg degrees.
func Rotate(x, y, yawDeg float64) (float64, float64) {
	yaw := yawDeg * math.Pi / 180
	sin, cos := math.Sincos(yaw)
	return x*cos - y*sin, x*sin + y*cos
}

// TranslateAndScale scales rover-frame pixels down to world units and
// shifts them to the rover's world position.
func TranslateAndScale(x, y, originX, originY, scale float64) (float64, float64) {
	return x/scale + originX, y/scale + originY
}

// ToWorldCell maps a rover-frame point to a world-grid cell. The result is
// rounded to the nearest cell and clamped to [0, gridSize-1] on each axis;
// points outside the world saturate at the border rather than wrapping.
func ToWorldCell(x, y, originX, originY, yawDeg float64, gridSize int, scale float64) Cell {
	xr, yr := Rotate(x, y, yawDeg)
	xw, yw := TranslateAndScale(xr, yr, originX, originY, scale)
	return Cell{
		X: clampCell(math.Round(xw), gridSize),
		Y: clampCell(math.Round(yw), gridSize),
	}
}

// CellToRover is the inverse of the unrounded ToWorldCell transform: it
// returns the rover-frame point that maps exactly onto the centre of cell.
func CellToRover(cell Cell, originX, originY, yawDeg, scale float64) (float64, float64) {
	xr := (float64(cell.X) - originX) * scale
	yr := (float64(cell.Y) - originY) * scale
	return Rotate(xr, yr, -yawDeg)
}

func clampCell(v float64, gridSize int) int {
	if gridSize <= 0 {
		return 0
	}
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > float64(gridSize-1) {
		return gridSize - 1
	}
	return int(v)
}

// PixelsToRoverFrame returns every set pixel of the mask as a rover-frame
// point. The origin sits at the bottom centre of the image, x grows
// forward (up the image) and y grows to the left.
func PixelsToRoverFrame(mask PixelSet) []r2.Point {
	if mask == nil {
		return nil
	}
	w, h := mask.Size()
	half := float64(w) / 2
	var pts []r2.Point
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if !mask.IsSet(col, row) {
				continue
			}
			pts = append(pts, r2.Point{
				X: float64(h - row),
				Y: half - float64(col),
			})
		}
	}
	return pts
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
