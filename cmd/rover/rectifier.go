//go:build !gocv

package main

import "github.com/banshee-data/sample.return/internal/rover/l2vision"

// newRectifier returns nil, which selects the pure-Go perspective warp.
func newRectifier(l2vision.Config) (l2vision.Rectifier, func() error, error) {
	return nil, func() error { return nil }, nil
}
