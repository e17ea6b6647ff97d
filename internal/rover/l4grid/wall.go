package l4grid

import "math"

// WallOnLeft counts the current frame's obstacle points whose rover-frame
// angle (radians) lies more than angleDeg to the left, and reports whether
// that count exceeds threshold. It reads only the given frame, never the
// accumulated map.
func WallOnLeft(obstacleAngles []float64, angleDeg float64, threshold int) (bool, int) {
	limit := angleDeg * math.Pi / 180
	n := 0
	for _, a := range obstacleAngles {
		if a > limit {
			n++
		}
	}
	return n > threshold, n
}
