package pipeline

import (
	"time"

	"github.com/banshee-data/sample.return/internal/rover/l1geom"
	"github.com/banshee-data/sample.return/internal/rover/l3project"
	"github.com/banshee-data/sample.return/internal/rover/l4grid"
	"github.com/banshee-data/sample.return/internal/rover/l5decision"
)

// RoverState is everything known about the rover during one mission. It
// is created once per mission and owned by the Pipeline; perception
// fields are replaced every cycle while the map and controller persist.
type RoverState struct {
	// Kinematics from the latest telemetry frame.
	TotalTime  time.Duration
	Pose       l1geom.Pose
	Vel        float64
	NearSample bool

	// Perception of the latest frame. NavAngles is nil when the frame
	// could not be classified.
	NavDists       []float64
	NavAngles      []float64
	RockDists      []float64
	RockAngles     []float64
	WallOnLeft     bool
	WallLeftAmount int
	Hits           l3project.Frame

	Map        *l4grid.WorldMap
	Controller *l5decision.Controller
	Command    l5decision.Command
}

// NewRoverState returns the start-of-mission state: an empty map and a
// controller in FindWall with zeroed timers.
func NewRoverState(cfg Config) *RoverState {
	ctrl := l5decision.NewController(cfg.Decision)
	return &RoverState{
		Map:        l4grid.NewWorldMap(cfg.Grid),
		Controller: ctrl,
		Command:    ctrl.Command(),
	}
}

// invalidate clears the perception fields after a frame that could not
// be classified.
func (s *RoverState) invalidate() {
	s.NavDists, s.NavAngles = nil, nil
	s.RockDists, s.RockAngles = nil, nil
	s.WallOnLeft, s.WallLeftAmount = false, 0
	s.Hits = l3project.Frame{}
}

// inputs assembles the controller inputs for the current cycle.
func (s *RoverState) inputs() l5decision.Inputs {
	return l5decision.Inputs{
		TotalTime:  s.TotalTime,
		Pose:       s.Pose,
		Vel:        s.Vel,
		NearSample: s.NearSample,
		NavDists:   s.NavDists,
		NavAngles:  s.NavAngles,
		RockAngles: s.RockAngles,
		WallOnLeft: s.WallOnLeft,
	}
}

// Decision is the record of one cycle kept in the mission log.
type Decision struct {
	MissionID  string
	TotalTime  time.Duration
	Pose       l1geom.Pose
	Vel        float64
	Command    l5decision.Command
	NavCount   int
	RockCount  int
	WallOnLeft bool
	Transition *l5decision.Transition
}

// View is a read-only copy of the rover state for monitoring.
type View struct {
	MissionID      string                 `json:"mission_id"`
	TotalTime      float64                `json:"total_time"` // seconds
	Pose           l1geom.Pose            `json:"pose"`
	Vel            float64                `json:"vel"`
	NearSample     bool                   `json:"near_sample"`
	PerceptionOK   bool                   `json:"perception_ok"`
	NavCount       int                    `json:"nav_count"`
	RockCount      int                    `json:"rock_count"`
	WallOnLeft     bool                   `json:"wall_on_left"`
	WallLeftAmount int                    `json:"wall_left_amount"`
	Controller     l5decision.Status      `json:"controller"`
	LastTransition *l5decision.Transition `json:"last_transition,omitempty"`
	Cycles         int64                  `json:"cycles"`
	Coverage       l4grid.Coverage        `json:"coverage"`
}
