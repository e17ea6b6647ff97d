package l5decision

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/sample.return/internal/rover/l1geom"
	"gonum.org/v1/gonum/stat"
)

// Inputs is everything the controller sees for one cycle.
type Inputs struct {
	TotalTime  time.Duration // mission time; drives every timer
	Pose       l1geom.Pose
	Vel        float64
	NearSample bool

	// Rover-frame polar description of this frame's navigable pixels.
	// A nil NavAngles means perception is unavailable for the cycle.
	NavDists  []float64
	NavAngles []float64 // radians

	RockAngles []float64 // radians
	WallOnLeft bool
}

// Command is the actuator output of one cycle.
type Command struct {
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
	Steer    float64 `json:"steer"` // degrees, positive left
	Pickup   bool    `json:"pickup"`
	Mode     Mode    `json:"mode"`
}

// Transition records a mode change made by Step.
type Transition struct {
	From   Mode          `json:"from"`
	To     Mode          `json:"to"`
	Reason string        `json:"reason"`
	At     time.Duration `json:"at"`
}

// Status is a read-only view of the controller for monitoring.
type Status struct {
	Mode            Mode          `json:"mode"`
	Command         Command       `json:"command"`
	TimeWithoutWall time.Duration `json:"time_without_wall"`
	TimeDisrupted   time.Duration `json:"time_disrupted"`
	LastDecision    time.Duration `json:"last_decision"`
	StuckYaw        *float64      `json:"stuck_yaw,omitempty"`
	RockPose        *l1geom.Pose  `json:"rock_pose,omitempty"`
	RockEntered     time.Duration `json:"rock_entered,omitempty"`
}

// stuckProbe is the position recorded at the last stuck check.
type stuckProbe struct {
	armed bool
	x, y  float64
	at    time.Duration
}

// Controller is the wall-following state machine. It is not safe for
// concurrent use; callers serialise Step.
type Controller struct {
	cfg   Config
	state State
	cmd   Command

	timeWithoutWall time.Duration
	timeDisrupted   time.Duration
	lastDecision    time.Duration
	primed          bool

	probe stuckProbe
}

// NewController returns a controller in FindWall with zeroed timers.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg, state: FindWall{}}
	c.cmd.Mode = ModeFindWall
	return c
}

// State returns the current state variant.
func (c *Controller) State() State { return c.state }

// Mode returns the current mode label.
func (c *Controller) Mode() Mode { return c.state.Mode() }

// Command returns the last emitted command.
func (c *Controller) Command() Command { return c.cmd }

// Status returns a snapshot of the controller for monitoring.
func (c *Controller) Status() Status {
	st := Status{
		Mode:            c.state.Mode(),
		Command:         c.cmd,
		TimeWithoutWall: c.timeWithoutWall,
		TimeDisrupted:   c.timeDisrupted,
		LastDecision:    c.lastDecision,
	}
	switch s := c.state.(type) {
	case Stuck:
		yaw := s.Yaw
		st.StuckYaw = &yaw
	case RockApproach:
		pose := s.Pose
		st.RockPose = &pose
		st.RockEntered = s.Entered
	}
	return st
}

// Step advances the state machine by one cycle and returns the command to
// send. The transition is non-nil when the mode changed during the cycle.
func (c *Controller) Step(in Inputs) (Command, *Transition) {
	var dt time.Duration
	if c.primed && in.TotalTime > c.lastDecision {
		dt = in.TotalTime - c.lastDecision
	}
	c.lastDecision = in.TotalTime
	c.primed = true

	if !perceptionValid(in) {
		var tr *Transition
		if _, already := c.state.(Error); !already {
			tr = c.transition(Error{Resume: c.state}, in, "perception invalid")
		}
		c.cmd = Command{Throttle: c.cfg.ErrorThrottle}
		return c.finish(), tr
	}

	var resumed *Transition
	if e, ok := c.state.(Error); ok {
		resumed = c.transition(e.Resume, in, "perception restored")
	}
	tr := c.step(in, dt)
	switch {
	case tr == nil:
		tr = resumed
	case resumed != nil:
		tr.From = resumed.From
	}
	return c.finish(), tr
}

func (c *Controller) step(in Inputs, dt time.Duration) *Transition {
	switch s := c.state.(type) {
	case FindWall:
		if tr := c.stuckCheck(in); tr != nil {
			return tr
		}
		c.driveForward(in)
		if in.WallOnLeft {
			c.halt()
			return c.transition(FollowWall{}, in, "wall acquired")
		}
		return nil

	case FollowWall:
		return c.followWall(in, dt)

	case LostWall:
		if c.moving(in) {
			c.halt()
			return nil
		}
		c.halt()
		if in.WallOnLeft {
			c.timeWithoutWall = 0
			return c.transition(FollowWall{}, in, "wall reacquired")
		}
		c.cmd.Brake = 0
		c.cmd.Steer = MaxSteer
		return nil

	case DisruptedPath:
		if c.moving(in) {
			c.halt()
			return nil
		}
		c.halt()
		if c.clearPath(in) {
			c.timeDisrupted = 0
			return c.transition(FollowWall{}, in, "path cleared")
		}
		c.cmd.Brake = 0
		c.cmd.Steer = -MaxSteer
		return nil

	case Stuck:
		c.cmd.Pickup = false
		// Shortest rotation, so a turn across north is not mistaken for
		// a large one.
		d := l1geom.YawDelta(s.Yaw, in.Pose.Yaw)
		if d*d >= 90*90 {
			c.timeWithoutWall = 0
			c.timeDisrupted = 0
			return c.transition(FollowWall{}, in, "escape turn complete")
		}
		c.cmd.Throttle = 0
		c.cmd.Brake = 0
		c.cmd.Steer = -MaxSteer
		return nil

	case RockApproach:
		return c.rockApproach(s, in)

	default:
		panic(fmt.Sprintf("l5decision: unhandled state %T", s))
	}
}

func (c *Controller) followWall(in Inputs, dt time.Duration) *Transition {
	if tr := c.stuckCheck(in); tr != nil {
		return tr
	}

	if in.WallOnLeft {
		c.timeWithoutWall = 0
	} else {
		c.timeWithoutWall += dt
	}
	if c.timeWithoutWall > c.cfg.LostWallTimeout {
		c.halt()
		return c.transition(LostWall{}, in, fmt.Sprintf("no wall for %v", c.timeWithoutWall))
	}

	if c.clearPath(in) {
		c.driveForward(in)
		c.timeDisrupted = 0
		if len(in.RockAngles) > c.cfg.RockAngleCount {
			c.halt()
			return c.transition(RockApproach{Pose: in.Pose, Entered: in.TotalTime}, in,
				fmt.Sprintf("%d rock points", len(in.RockAngles)))
		}
		return nil
	}

	c.timeDisrupted += dt
	if c.timeDisrupted > c.cfg.DisruptedTimeout {
		c.halt()
		return c.transition(DisruptedPath{}, in, fmt.Sprintf("path blocked for %v", c.timeDisrupted))
	}
	return nil
}

func (c *Controller) rockApproach(s RockApproach, in Inputs) *Transition {
	if in.TotalTime-s.Entered > c.cfg.RockApproachTimeout {
		c.halt()
		return c.transition(Stuck{Yaw: in.Pose.Yaw}, in, "rock approach timed out")
	}
	if !in.NearSample {
		c.cmd.Brake = 0
		c.cmd.Throttle = c.cfg.RockThrottle
		c.cmd.Steer = 0
		if deg, ok := meanDegrees(in.RockAngles); ok {
			c.cmd.Steer = clampSteer(deg)
		}
		return nil
	}
	if c.moving(in) {
		c.halt()
		return nil
	}
	c.cmd.Throttle = 0
	c.cmd.Brake = 0
	c.cmd.Steer = 0
	c.cmd.Pickup = true
	return c.transition(Stuck{Yaw: in.Pose.Yaw}, in, "sample pickup")
}

// clearPath reports whether the mean navigable distance exceeds the
// clear-path threshold. No navigable pixels is never clear.
func (c *Controller) clearPath(in Inputs) bool {
	avg, ok := mean(in.NavDists)
	return ok && avg > c.cfg.ClearPathDistance
}

func (c *Controller) moving(in Inputs) bool {
	return in.Vel > c.cfg.StationaryVelocity
}

// driveForward cruises along the mean navigable bearing, or turns hard
// towards the wall side when there is no wall on the left.
func (c *Controller) driveForward(in Inputs) {
	c.cmd.Brake = 0
	if in.Vel < c.cfg.MaxVelocity {
		c.cmd.Throttle = c.cfg.ThrottleSet
	} else {
		c.cmd.Throttle = 0
	}
	c.cmd.Steer = 0
	if deg, ok := meanDegrees(in.NavAngles); ok {
		c.cmd.Steer = clampSteer(deg * c.cfg.SteeringGain)
	}
	if !in.WallOnLeft {
		c.cmd.Steer = c.cfg.WallSeekSteer
	}
}

func (c *Controller) halt() {
	c.cmd.Throttle = 0
	c.cmd.Brake = c.cfg.BrakeSet
	c.cmd.Steer = 0
}

// stuckCheck compares the position against the one recorded at the last
// check, once per interval. The first call only records.
func (c *Controller) stuckCheck(in Inputs) *Transition {
	if !c.probe.armed {
		c.probe = stuckProbe{armed: true, x: in.Pose.X, y: in.Pose.Y, at: in.TotalTime}
		return nil
	}
	if in.TotalTime-c.probe.at < c.cfg.StuckCheckInterval {
		return nil
	}
	dx := in.Pose.X - c.probe.x
	dy := in.Pose.Y - c.probe.y
	if dx*dx+dy*dy < c.cfg.StuckDistance*c.cfg.StuckDistance {
		c.halt()
		return c.transition(Stuck{Yaw: in.Pose.Yaw}, in, "no progress since last check")
	}
	c.probe = stuckProbe{armed: true, x: in.Pose.X, y: in.Pose.Y, at: in.TotalTime}
	return nil
}

// transition switches state and disarms the stuck probe so the next
// driving state starts a fresh check window.
func (c *Controller) transition(to State, in Inputs, reason string) *Transition {
	from := c.state.Mode()
	c.state = to
	c.probe = stuckProbe{}
	switch to.(type) {
	case Error, Stuck:
		opsf("mode %s -> %s at %v: %s", from, to.Mode(), in.TotalTime, reason)
	default:
		diagf("mode %s -> %s at %v: %s", from, to.Mode(), in.TotalTime, reason)
	}
	return &Transition{From: from, To: to.Mode(), Reason: reason, At: in.TotalTime}
}

// finish enforces the output invariants and stamps the mode.
func (c *Controller) finish() Command {
	c.cmd.Steer = clampSteer(c.cmd.Steer)
	if c.cmd.Brake > 0 {
		c.cmd.Throttle = 0
	}
	c.cmd.Mode = c.state.Mode()
	tracef("cmd mode=%s throttle=%.2f brake=%.2f steer=%.2f pickup=%v",
		c.cmd.Mode, c.cmd.Throttle, c.cmd.Brake, c.cmd.Steer, c.cmd.Pickup)
	return c.cmd
}

// perceptionValid rejects a cycle whose navigable data is missing or
// corrupt. Empty but present data is valid.
func perceptionValid(in Inputs) bool {
	if in.NavAngles == nil || len(in.NavDists) != len(in.NavAngles) {
		return false
	}
	for i := range in.NavAngles {
		if !finite(in.NavAngles[i]) || !finite(in.NavDists[i]) {
			return false
		}
	}
	return true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// mean returns the arithmetic mean, or false for an empty set.
func mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	return stat.Mean(xs, nil), true
}

func meanDegrees(radians []float64) (float64, bool) {
	m, ok := mean(radians)
	return l1geom.Degrees(m), ok
}

func clampSteer(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-MaxSteer, math.Min(MaxSteer, v))
}
