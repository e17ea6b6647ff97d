package l2vision

import (
	"fmt"
	"image"

	"github.com/banshee-data/sample.return/internal/config"
	"golang.org/x/sync/errgroup"
)

// Config holds the classifier thresholds and camera geometry.
type Config struct {
	Width             int
	Height            int
	DstSize           int // side of the rectified calibration square
	BottomOffset      int // gap between that square and the image bottom
	NavThreshold      uint8
	SkyRows           int
	RockMinGray       uint8
	RockMinSaturation uint8
	Parallel          bool // rectify the three masks concurrently
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Width:             cfg.GetCameraWidth(),
		Height:            cfg.GetCameraHeight(),
		DstSize:           cfg.GetRectifyDstSize(),
		BottomOffset:      cfg.GetRectifyBottomOffset(),
		NavThreshold:      uint8(cfg.GetNavThreshold()),
		SkyRows:           cfg.GetSkyRows(),
		RockMinGray:       uint8(cfg.GetRockMinGray()),
		RockMinSaturation: uint8(cfg.GetRockMinSaturation()),
		Parallel:          cfg.GetParallelClassify(),
	}
}

// Masks are the three rectified category masks for one frame. They are
// independent: a pixel may be set in none, one or several of them.
type Masks struct {
	Navigable Mask
	Obstacle  Mask
	Rock      Mask
}

// Classifier turns a camera frame into rectified category masks.
type Classifier struct {
	cfg  Config
	rect Rectifier
}

// NewClassifier creates a classifier. A nil rectifier selects the default
// calibration for the configured camera size.
func NewClassifier(cfg Config, rect Rectifier) (*Classifier, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("camera size must be positive, got %dx%d", cfg.Width, cfg.Height)
	}
	if rect == nil {
		p, err := NewPerspective(DefaultSource(), Destination(cfg.Width, cfg.Height, cfg.DstSize, cfg.BottomOffset))
		if err != nil {
			return nil, err
		}
		rect = p
	}
	return &Classifier{cfg: cfg, rect: rect}, nil
}

// Classify thresholds img in camera space and rectifies the results.
//
// Navigable ground is bright (gray >= NavThreshold) below the sky band.
// Obstacles are the complement of that threshold over the whole uncropped
// frame, taken before rectification so the warp's empty border is not
// mistaken for obstacle. Rocks are reasonably bright and strongly
// saturated, below the sky band.
func (c *Classifier) Classify(img image.Image) (Masks, error) {
	if img == nil {
		return Masks{}, ErrInvalidFrame
	}
	if b := img.Bounds(); b.Dx() != c.cfg.Width || b.Dy() != c.cfg.Height {
		return Masks{}, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrInvalidFrame, b.Dx(), b.Dy(), c.cfg.Width, c.cfg.Height)
	}
	rgba := toRGBA(img)

	w, h := c.cfg.Width, c.cfg.Height
	nav := NewMask(w, h)
	obs := NewMask(w, h)
	rock := NewMask(w, h)
	for row := 0; row < h; row++ {
		belowSky := row >= c.cfg.SkyRows
		for col := 0; col < w; col++ {
			r, g, b := pixel(rgba, col, row)
			gray := Gray(r, g, b)
			bright := gray >= c.cfg.NavThreshold
			i := row*w + col
			obs.Pix[i] = !bright
			if !belowSky {
				continue
			}
			nav.Pix[i] = bright
			rock.Pix[i] = gray >= c.cfg.RockMinGray && Saturation(r, g, b) > c.cfg.RockMinSaturation
		}
	}

	var out Masks
	if !c.cfg.Parallel {
		out.Navigable = c.rect.Warp(nav)
		out.Obstacle = c.rect.Warp(obs)
		out.Rock = c.rect.Warp(rock)
		return out, nil
	}

	// Each goroutine owns one output field; Wait orders the merge.
	var g errgroup.Group
	g.Go(func() error { out.Navigable = c.rect.Warp(nav); return nil })
	g.Go(func() error { out.Obstacle = c.rect.Warp(obs); return nil })
	g.Go(func() error { out.Rock = c.rect.Warp(rock); return nil })
	if err := g.Wait(); err != nil {
		return Masks{}, err
	}
	return out, nil
}
