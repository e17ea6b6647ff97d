//go:build gocv

package main

import (
	"log"

	"github.com/banshee-data/sample.return/internal/rover/l2vision"
)

// newRectifier builds the OpenCV warp for the configured camera.
func newRectifier(cfg l2vision.Config) (l2vision.Rectifier, func() error, error) {
	p, err := l2vision.NewCVPerspective(l2vision.DefaultSource(),
		l2vision.Destination(cfg.Width, cfg.Height, cfg.DstSize, cfg.BottomOffset))
	if err != nil {
		return nil, nil, err
	}
	log.Printf("using OpenCV rectifier")
	return p, p.Close, nil
}
