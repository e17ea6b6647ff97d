package l2vision

import "errors"

var (
	// ErrInvalidFrame is returned when a camera frame is nil or does not
	// match the configured camera dimensions.
	ErrInvalidFrame = errors.New("invalid camera frame")

	// ErrSingularHomography is returned when the calibration points do not
	// define a perspective transform (e.g. three collinear points).
	ErrSingularHomography = errors.New("calibration points give a singular homography")
)
