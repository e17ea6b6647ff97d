package l3project

import (
	"math"
	"testing"

	"github.com/banshee-data/sample.return/internal/config"
	"github.com/banshee-data/sample.return/internal/rover/l1geom"
	"github.com/banshee-data/sample.return/internal/rover/l2vision"
)

func newTestProjector() *Projector {
	return NewProjector(ConfigFromTuning(config.EmptyTuningConfig()))
}

func TestProjectMask_RangeFilter(t *testing.T) {
	p := newTestProjector()
	m := l2vision.NewMask(320, 160)
	m.Set(160, 150, true) // 10 px ahead
	m.Set(160, 70, true)  // 90 px ahead, beyond range

	got := p.ProjectMask(m, l1geom.Pose{X: 100, Y: 100})
	if got.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", got.Len())
	}
	if got.Dists[0] != 10 || got.Angles[0] != 0 {
		t.Errorf("polar = (%v, %v), want (10, 0)", got.Dists[0], got.Angles[0])
	}
	if got.Cells[0] != (l1geom.Cell{X: 101, Y: 100}) {
		t.Errorf("cell = %v, want {101 100}", got.Cells[0])
	}
}

func TestProjectMask_FieldOfViewFilter(t *testing.T) {
	p := newTestProjector()
	m := l2vision.NewMask(320, 160)
	// 20 px ahead, 20 px left: 45 degrees, rejected.
	m.Set(140, 140, true)
	// 40 px ahead, 10 px left: ~14 degrees, kept.
	m.Set(150, 120, true)
	// 40 px ahead, 30 px right: ~-37 degrees, rejected.
	m.Set(190, 120, true)

	got := p.ProjectMask(m, l1geom.Pose{})
	if got.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", got.Len())
	}
	want := math.Atan2(10, 40)
	if math.Abs(got.Angles[0]-want) > 1e-12 {
		t.Errorf("angle = %v, want %v", got.Angles[0], want)
	}
}

func TestProjectMask_YawRotatesCells(t *testing.T) {
	p := newTestProjector()
	m := l2vision.NewMask(320, 160)
	m.Set(160, 110, true) // 50 px ahead = 5 world units

	got := p.ProjectMask(m, l1geom.Pose{X: 50, Y: 50, Yaw: 90})
	if got.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", got.Len())
	}
	if got.Cells[0] != (l1geom.Cell{X: 50, Y: 55}) {
		t.Errorf("cell = %v, want {50 55}", got.Cells[0])
	}
	// Polar description stays rover-centric.
	if got.Angles[0] != 0 {
		t.Errorf("angle = %v, want 0", got.Angles[0])
	}
}

func TestProjectMask_RepeatsCells(t *testing.T) {
	p := newTestProjector()
	m := l2vision.NewMask(320, 160)
	m.Set(160, 150, true)
	m.Set(161, 150, true)

	got := p.ProjectMask(m, l1geom.Pose{X: 10, Y: 10})
	if len(got.Cells) != 2 || got.Cells[0] != got.Cells[1] {
		t.Fatalf("expected two hits on the same cell, got %v", got.Cells)
	}
}

func TestProject_AllCategories(t *testing.T) {
	p := newTestProjector()
	masks := l2vision.Masks{
		Navigable: l2vision.NewMask(320, 160),
		Obstacle:  l2vision.NewMask(320, 160),
		Rock:      l2vision.NewMask(320, 160),
	}
	masks.Navigable.Set(160, 140, true)
	masks.Obstacle.Set(150, 140, true)
	masks.Obstacle.Set(151, 140, true)

	f := p.Project(masks, l1geom.Pose{X: 100, Y: 100})
	if f.Navigable.Len() != 1 || f.Obstacle.Len() != 2 || f.Rock.Len() != 0 {
		t.Fatalf("lens = %d/%d/%d, want 1/2/0", f.Navigable.Len(), f.Obstacle.Len(), f.Rock.Len())
	}
	if f.Rock.Angles == nil {
		t.Error("empty projection should carry a non-nil angle slice")
	}
}
