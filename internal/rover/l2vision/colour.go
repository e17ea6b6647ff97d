package l2vision

import (
	"image"
	"image/draw"
)

// Gray returns the luma of an 8-bit RGB pixel using the fixed-point
// BT.601 weights of OpenCV's RGB2GRAY, so thresholds tuned against OpenCV
// output carry over unchanged.
func Gray(r, g, b uint8) uint8 {
	const (
		rw    = 4899 // 0.299 << 14
		gw    = 9617 // 0.587 << 14
		bw    = 1868 // 0.114 << 14
		shift = 14
	)
	v := (uint32(r)*rw + uint32(g)*gw + uint32(b)*bw + 1<<(shift-1)) >> shift
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

// Saturation returns the HSV saturation of an 8-bit RGB pixel on the
// 0-255 scale used by OpenCV's RGB2HSV. Channel order does not matter.
func Saturation(r, g, b uint8) uint8 {
	hi, lo := r, r
	for _, c := range [2]uint8{g, b} {
		if c > hi {
			hi = c
		}
		if c < lo {
			lo = c
		}
	}
	if hi == 0 {
		return 0
	}
	diff := uint32(hi - lo)
	return uint8((255*diff + uint32(hi)/2) / uint32(hi))
}

// toRGBA returns img as *image.RGBA with its origin at (0,0), copying only
// when the source is some other image type.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Rect, img, b.Min, draw.Src)
	return out
}

// pixel returns the RGB components at (col, row).
func pixel(img *image.RGBA, col, row int) (uint8, uint8, uint8) {
	i := img.PixOffset(col, row)
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}
