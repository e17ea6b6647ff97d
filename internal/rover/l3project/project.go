package l3project

import (
	"math"

	"github.com/banshee-data/sample.return/internal/config"
	"github.com/banshee-data/sample.return/internal/rover/l1geom"
	"github.com/banshee-data/sample.return/internal/rover/l2vision"
)

// Config controls which rover-frame pixels are trusted and how they map
// onto the world grid.
type Config struct {
	MaxRange    float64 // rover-frame pixels; farther points are rejected
	MaxAngleDeg float64 // points more than this far off the forward axis are rejected
	WorldSize   int     // side of the square world grid in cells
	Scale       float64 // rover-frame pixels per world unit
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxRange:    cfg.GetMaxRangePixels(),
		MaxAngleDeg: cfg.GetMaxAngleDeg(),
		WorldSize:   cfg.GetWorldSize(),
		Scale:       cfg.GetWorldScale(),
	}
}

// Projection is one category's contribution for a single frame. Cells may
// repeat when several pixels land in the same world cell. Dists and Angles
// give the rover-frame polar form of the same points (angles in radians).
// All three slices are index-aligned.
type Projection struct {
	Cells  []l1geom.Cell
	Dists  []float64
	Angles []float64
}

// Len returns the number of surviving points.
func (p Projection) Len() int { return len(p.Dists) }

// Frame holds the projections of all three masks of one camera frame.
type Frame struct {
	Navigable Projection
	Obstacle  Projection
	Rock      Projection
}

// Projector maps classified masks into world cells for a given pose.
type Projector struct {
	cfg      Config
	maxAngle float64 // radians
}

// NewProjector creates a projector.
func NewProjector(cfg Config) *Projector {
	return &Projector{cfg: cfg, maxAngle: cfg.MaxAngleDeg * math.Pi / 180}
}

// Config returns the projector configuration.
func (p *Projector) Config() Config { return p.cfg }

// Project runs every mask through the projector.
func (p *Projector) Project(m l2vision.Masks, pose l1geom.Pose) Frame {
	return Frame{
		Navigable: p.ProjectMask(m.Navigable, pose),
		Obstacle:  p.ProjectMask(m.Obstacle, pose),
		Rock:      p.ProjectMask(m.Rock, pose),
	}
}

// ProjectMask filters the mask's rover-frame points by range and field of
// view and projects the survivors onto the world grid.
func (p *Projector) ProjectMask(mask l1geom.PixelSet, pose l1geom.Pose) Projection {
	pts := l1geom.PixelsToRoverFrame(mask)
	out := Projection{
		Cells:  make([]l1geom.Cell, 0, len(pts)),
		Dists:  make([]float64, 0, len(pts)),
		Angles: make([]float64, 0, len(pts)),
	}
	for _, pt := range pts {
		dist, angle := l1geom.ToPolar(pt.X, pt.Y)
		if dist > p.cfg.MaxRange || math.Abs(angle) > p.maxAngle {
			continue
		}
		out.Dists = append(out.Dists, dist)
		out.Angles = append(out.Angles, angle)
		out.Cells = append(out.Cells, l1geom.ToWorldCell(pt.X, pt.Y, pose.X, pose.Y, pose.Yaw, p.cfg.WorldSize, p.cfg.Scale))
	}
	return out
}
