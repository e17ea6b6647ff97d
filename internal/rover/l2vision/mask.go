package l2vision

// Mask is a single-channel binary image stored row-major.
type Mask struct {
	Width  int
	Height int
	Pix    []bool
}

// NewMask allocates an empty mask.
func NewMask(width, height int) Mask {
	return Mask{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// Size reports the mask dimensions.
func (m Mask) Size() (int, int) { return m.Width, m.Height }

// IsSet reports whether the pixel is set. Out-of-range pixels are unset.
func (m Mask) IsSet(col, row int) bool {
	if col < 0 || row < 0 || col >= m.Width || row >= m.Height {
		return false
	}
	return m.Pix[row*m.Width+col]
}

// Set assigns the pixel value. Out-of-range writes are ignored.
func (m Mask) Set(col, row int, v bool) {
	if col < 0 || row < 0 || col >= m.Width || row >= m.Height {
		return
	}
	m.Pix[row*m.Width+col] = v
}

// Count returns the number of set pixels.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Inverted returns the logical complement of the mask.
func (m Mask) Inverted() Mask {
	out := NewMask(m.Width, m.Height)
	for i, v := range m.Pix {
		out.Pix[i] = !v
	}
	return out
}
