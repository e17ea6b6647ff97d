package l2vision

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// Rectifier maps a camera-frame mask onto the top-down ground plane. The
// output has the same dimensions as the input.
type Rectifier interface {
	Warp(m Mask) Mask
}

// DefaultSource returns the calibration quadrilateral for the rover camera:
// the image-space corners of a one-metre ground grid square, ordered
// bottom-left, bottom-right, top-right, top-left.
func DefaultSource() [4]r2.Point {
	return [4]r2.Point{
		{X: 6.7, Y: 145.5},
		{X: 306.1, Y: 142.7},
		{X: 197.7, Y: 96.8},
		{X: 118.2, Y: 96.7},
	}
}

// Destination returns the rectified square the calibration quad maps to:
// dstSize pixels wide, centred horizontally, bottomOffset pixels above the
// image bottom. Corner order matches DefaultSource.
func Destination(width, height, dstSize, bottomOffset int) [4]r2.Point {
	cx := float64(width) / 2
	half := float64(dstSize) / 2
	bottom := float64(height - bottomOffset)
	top := bottom - float64(dstSize)
	return [4]r2.Point{
		{X: cx - half, Y: bottom},
		{X: cx + half, Y: bottom},
		{X: cx + half, Y: top},
		{X: cx - half, Y: top},
	}
}

// Perspective is a projective ground-plane rectifier. Warp resamples by
// inverse mapping each destination pixel with nearest-neighbour lookup;
// samples that land outside the source read as unset (constant border).
type Perspective struct {
	fwd [9]float64
	inv [9]float64
}

// NewPerspective builds the rectifier mapping src onto dst.
func NewPerspective(src, dst [4]r2.Point) (*Perspective, error) {
	fwd, err := solveHomography(src, dst)
	if err != nil {
		return nil, err
	}
	inv, err := solveHomography(dst, src)
	if err != nil {
		return nil, err
	}
	return &Perspective{fwd: fwd, inv: inv}, nil
}

// Apply maps a source-image point into the rectified image.
func (p *Perspective) Apply(x, y float64) (float64, float64) {
	return applyHomography(p.fwd, x, y)
}

// Warp rectifies m.
func (p *Perspective) Warp(m Mask) Mask {
	out := NewMask(m.Width, m.Height)
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			sx, sy := applyHomography(p.inv, float64(col), float64(row))
			if math.IsNaN(sx) || math.IsNaN(sy) {
				continue
			}
			if m.IsSet(int(math.Round(sx)), int(math.Round(sy))) {
				out.Pix[row*m.Width+col] = true
			}
		}
	}
	return out
}

// solveHomography computes the 3x3 matrix H (h22 = 1) with H·p[i] ~ q[i]
// by solving the 8x8 linear system of the four correspondences.
func solveHomography(p, q [4]r2.Point) ([9]float64, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := range 4 {
		X, Y := p[i].X, p[i].Y
		x, y := q[i].X, q[i].Y
		r := 2 * i
		// x' = (h00 X + h01 Y + h02)/(h20 X + h21 Y + 1)
		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)
		// y' = (h10 X + h11 Y + h12)/(h20 X + h21 Y + 1)
		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return [9]float64{}, fmt.Errorf("%w: %v", ErrSingularHomography, err)
		}
		// Ill-conditioned but solved.
	}
	var H [9]float64
	for i := range 8 {
		H[i] = h.AtVec(i)
	}
	H[8] = 1
	return H, nil
}

func applyHomography(h [9]float64, x, y float64) (float64, float64) {
	denom := h[6]*x + h[7]*y + h[8]
	if denom == 0 {
		return math.NaN(), math.NaN()
	}
	return (h[0]*x + h[1]*y + h[2]) / denom, (h[3]*x + h[4]*y + h[5]) / denom
}
