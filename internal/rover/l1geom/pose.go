package l1geom

import "math"

// Pose is the rover's world position (world units) and heading (degrees).
type Pose struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"`
}

// NormalizeYaw wraps a heading into [0, 360).
func NormalizeYaw(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// YawDelta returns the signed shortest rotation from a to b in degrees,
// in the range [-180, 180).
func YawDelta(a, b float64) float64 {
	d := math.Mod(b-a+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}
