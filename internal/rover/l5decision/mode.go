package l5decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/sample.return/internal/rover/l1geom"
)

// Mode is the label of a controller state.
type Mode int

const (
	ModeFindWall Mode = iota + 1
	ModeFollowWall
	ModeLostWall
	ModeDisruptedPath
	ModeStuck
	ModeRockApproach
	ModeError
)

var modeNames = map[Mode]string{
	ModeFindWall:      "FIND_WALL",
	ModeFollowWall:    "FOLLOW_WALL",
	ModeLostWall:      "LOST_WALL",
	ModeDisruptedPath: "DISRUPTED_PATH",
	ModeStuck:         "STUCK",
	ModeRockApproach:  "ROCK_APPROACH",
	ModeError:         "ERROR",
}

// Modes returns every mode in declaration order.
func Modes() []Mode {
	return []Mode{ModeFindWall, ModeFollowWall, ModeLostWall, ModeDisruptedPath, ModeStuck, ModeRockApproach, ModeError}
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses a mode label. Matching ignores case, and spaces or
// hyphens stand in for underscores ("Follow Wall" parses).
func ParseMode(s string) (Mode, error) {
	norm := strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(s)))
	for m, name := range modeNames {
		if name == norm {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// State is a controller state. The set of implementations is closed;
// only the variants below exist.
type State interface {
	Mode() Mode
	isState()
}

// FindWall drives forward until a wall shows up on the left.
type FindWall struct{}

// FollowWall keeps the wall on the left while the path stays clear.
type FollowWall struct{}

// LostWall stops and turns left in place until the wall is seen again.
type LostWall struct{}

// DisruptedPath stops and turns right in place until the path clears.
type DisruptedPath struct{}

// Stuck turns right in place until the heading has changed by a quarter
// turn from Yaw.
type Stuck struct {
	Yaw float64
}

// RockApproach creeps towards a detected sample. Pose and Entered are
// captured when the rock was first seen.
type RockApproach struct {
	Pose    l1geom.Pose
	Entered time.Duration
}

// Error is held while perception is invalid. Resume is the state to
// return to once perception recovers.
type Error struct {
	Resume State
}

func (FindWall) Mode() Mode      { return ModeFindWall }
func (FollowWall) Mode() Mode    { return ModeFollowWall }
func (LostWall) Mode() Mode      { return ModeLostWall }
func (DisruptedPath) Mode() Mode { return ModeDisruptedPath }
func (Stuck) Mode() Mode         { return ModeStuck }
func (RockApproach) Mode() Mode  { return ModeRockApproach }
func (Error) Mode() Mode         { return ModeError }

func (FindWall) isState()      {}
func (FollowWall) isState()    {}
func (LostWall) isState()      {}
func (DisruptedPath) isState() {}
func (Stuck) isState()         {}
func (RockApproach) isState()  {}
func (Error) isState()         {}
