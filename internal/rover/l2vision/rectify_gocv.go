//go:build gocv

package l2vision

import (
	"image"
	"image/color"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"
)

// CVPerspective rectifies masks with OpenCV's warpPerspective. Build with
// -tags gocv on hosts that have OpenCV 4 installed.
type CVPerspective struct {
	m gocv.Mat
}

// NewCVPerspective builds an OpenCV rectifier mapping src onto dst.
func NewCVPerspective(src, dst [4]r2.Point) (*CVPerspective, error) {
	sv := gocv.NewPoint2fVectorFromPoints(toPoint2f(src))
	defer sv.Close()
	dv := gocv.NewPoint2fVectorFromPoints(toPoint2f(dst))
	defer dv.Close()
	m := gocv.GetPerspectiveTransform2f(sv, dv)
	if m.Empty() {
		m.Close()
		return nil, ErrSingularHomography
	}
	return &CVPerspective{m: m}, nil
}

// Warp rectifies m using nearest-neighbour sampling and a zero border.
func (p *CVPerspective) Warp(m Mask) Mask {
	buf := make([]byte, len(m.Pix))
	for i, v := range m.Pix {
		if v {
			buf[i] = 1
		}
	}
	src, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8U, buf)
	if err != nil {
		return NewMask(m.Width, m.Height)
	}
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.WarpPerspectiveWithParams(src, &dst, p.m, image.Pt(m.Width, m.Height),
		gocv.InterpolationNearestNeighbor, gocv.BorderConstant, color.RGBA{})

	out := NewMask(m.Width, m.Height)
	for i, v := range dst.ToBytes() {
		if i < len(out.Pix) && v != 0 {
			out.Pix[i] = true
		}
	}
	return out
}

// Close releases the OpenCV transform matrix.
func (p *CVPerspective) Close() error {
	return p.m.Close()
}

func toPoint2f(pts [4]r2.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return out
}
