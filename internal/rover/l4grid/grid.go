package l4grid

import (
	"image"
	"image/color"
	"sync"

	"github.com/banshee-data/sample.return/internal/config"
	"github.com/banshee-data/sample.return/internal/rover/l1geom"
)

// Config sizes the world map and tunes the wall heuristic.
type Config struct {
	Size              int     // side of the square world grid in cells
	WallLeftAngleDeg  float64 // obstacle points left of this angle count towards the wall
	WallLeftThreshold int     // more than this many such points means a wall on the left
	SnapshotEvery     int     // accumulate cycles between persisted snapshots; 0 disables
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Size:              cfg.GetWorldSize(),
		WallLeftAngleDeg:  cfg.GetWallLeftAngleDeg(),
		WallLeftThreshold: cfg.GetWallLeftThreshold(),
		SnapshotEvery:     cfg.GetSnapshotEvery(),
	}
}

// VoteCell holds the accumulated classification votes of one world cell.
// Counters only ever increase.
type VoteCell struct {
	Obstacle  uint32
	Navigable uint32
}

// CellClass is the consensus classification of a cell in the render map.
type CellClass uint8

const (
	Unknown CellClass = iota
	Obstacle
	Navigable
	Rock // terminal: never reclassified once written
)

func (c CellClass) String() string {
	switch c {
	case Obstacle:
		return "obstacle"
	case Navigable:
		return "navigable"
	case Rock:
		return "rock"
	default:
		return "unknown"
	}
}

// Coverage counts render-map cells by class.
type Coverage struct {
	Unknown   int `json:"unknown"`
	Obstacle  int `json:"obstacle"`
	Navigable int `json:"navigable"`
	Rock      int `json:"rock"`
}

// WorldMap is the persistent map of one mission: a vote grid that is the
// source of truth and a lossy render map derived from it by majority.
// Cells are stored row-major with index Y*Size+X.
type WorldMap struct {
	mu sync.RWMutex

	cfg   Config
	votes []VoteCell
	class []CellClass

	// Cycles counts Accumulate calls; ChangesSinceSnapshot counts render
	// cells whose class changed since the last snapshot.
	Cycles               int64
	ChangesSinceSnapshot int

	// snapshotCycle is the Cycles value of the last persisted or restored
	// snapshot; the boundary it sits on is not due again.
	snapshotCycle int64
}

// NewWorldMap creates an empty map. Every cell starts Unknown with no votes.
func NewWorldMap(cfg Config) *WorldMap {
	n := cfg.Size * cfg.Size
	return &WorldMap{
		cfg:   cfg,
		votes: make([]VoteCell, n),
		class: make([]CellClass, n),
	}
}

// Size returns the side of the grid in cells.
func (m *WorldMap) Size() int { return m.cfg.Size }

// Config returns the map configuration.
func (m *WorldMap) Config() Config { return m.cfg }

func (m *WorldMap) index(c l1geom.Cell) (int, bool) {
	if c.X < 0 || c.Y < 0 || c.X >= m.cfg.Size || c.Y >= m.cfg.Size {
		return 0, false
	}
	return c.Y*m.cfg.Size + c.X, true
}

// Accumulate folds one frame's world-cell hits into the map.
//
// Each distinct cell hit by a category this frame gets one vote for that
// category; a cell may receive both obstacle and navigable votes. The
// render map is then recomputed from the whole vote grid: obstacle where
// obstacle votes lead, navigable where navigable votes lead, unchanged on
// a tie, never touching rock cells. Rock hits are written last and are
// terminal. It returns the number of render cells whose class changed.
func (m *WorldMap) Accumulate(obstacle, navigable, rock []l1geom.Cell) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, i := range m.distinct(obstacle) {
		m.votes[i].Obstacle++
	}
	for _, i := range m.distinct(navigable) {
		m.votes[i].Navigable++
	}

	changed := 0
	for i, v := range m.votes {
		if m.class[i] == Rock {
			continue
		}
		next := m.class[i]
		switch {
		case v.Obstacle > v.Navigable:
			next = Obstacle
		case v.Navigable > v.Obstacle:
			next = Navigable
		}
		if next != m.class[i] {
			m.class[i] = next
			changed++
		}
	}
	for _, c := range rock {
		i, ok := m.index(c)
		if !ok || m.class[i] == Rock {
			continue
		}
		m.class[i] = Rock
		changed++
	}

	m.Cycles++
	m.ChangesSinceSnapshot += changed
	tracef("accumulate cycle=%d obstacle_hits=%d nav_hits=%d rock_hits=%d changed=%d",
		m.Cycles, len(obstacle), len(navigable), len(rock), changed)
	return changed
}

// distinct returns the grid indices of cells, each at most once, in first
// occurrence order.
func (m *WorldMap) distinct(cells []l1geom.Cell) []int {
	if len(cells) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(cells))
	out := make([]int, 0, len(cells))
	for _, c := range cells {
		i, ok := m.index(c)
		if !ok {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

// Votes returns the vote counters of a cell. Out-of-grid cells read zero.
func (m *WorldMap) Votes(c l1geom.Cell) VoteCell {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index(c)
	if !ok {
		return VoteCell{}
	}
	return m.votes[i]
}

// Class returns the render classification of a cell.
func (m *WorldMap) Class(c l1geom.Cell) CellClass {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index(c)
	if !ok {
		return Unknown
	}
	return m.class[i]
}

// VoteGrid returns a copy of the vote grid, row-major.
func (m *WorldMap) VoteGrid() []VoteCell {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]VoteCell, len(m.votes))
	copy(out, m.votes)
	return out
}

// Coverage counts render cells by class.
func (m *WorldMap) Coverage() Coverage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return coverageOf(m.class)
}

func coverageOf(class []CellClass) Coverage {
	var cov Coverage
	for _, c := range class {
		switch c {
		case Obstacle:
			cov.Obstacle++
		case Navigable:
			cov.Navigable++
		case Rock:
			cov.Rock++
		default:
			cov.Unknown++
		}
	}
	return cov
}

// Render colours for each class: obstacle red, rock green, navigable blue.
var classColours = [...]color.RGBA{
	Unknown:   {A: 255},
	Obstacle:  {R: 255, A: 255},
	Navigable: {B: 255, A: 255},
	Rock:      {G: 255, A: 255},
}

// Render draws the render map as an image, one pixel per cell, with world
// y increasing up the image.
func (m *WorldMap) Render() *image.RGBA {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := m.cfg.Size
	img := image.NewRGBA(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			img.SetRGBA(x, n-1-y, classColours[m.class[y*n+x]])
		}
	}
	return img
}
