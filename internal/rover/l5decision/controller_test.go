package l5decision

import (
	"bytes"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/banshee-data/sample.return/internal/config"
	"github.com/banshee-data/sample.return/internal/rover/l1geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

func sec(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// cruise returns inputs for a rover moving forward along a clear path with
// the wall on its left. The position advances with time so the stuck check
// stays quiet.
func cruise(at float64) Inputs {
	return Inputs{
		TotalTime:  sec(at),
		Pose:       l1geom.Pose{X: 50 + at, Y: 50, Yaw: 0},
		Vel:        1,
		NavDists:   []float64{40, 40, 40},
		NavAngles:  []float64{0.1, 0, -0.1},
		WallOnLeft: true,
	}
}

// followingController returns a controller that has just entered FollowWall
// at t=0.
func followingController(t *testing.T) *Controller {
	t.Helper()
	c := NewController(testConfig())
	_, tr := c.Step(cruise(0))
	require.NotNil(t, tr)
	require.Equal(t, ModeFollowWall, c.Mode())
	return c
}

func assertOutputInvariants(t *testing.T, cmd Command) {
	t.Helper()
	assert.GreaterOrEqual(t, cmd.Steer, -MaxSteer)
	assert.LessOrEqual(t, cmd.Steer, MaxSteer)
	if cmd.Brake > 0 {
		assert.Zero(t, cmd.Throttle, "braking with throttle applied")
	}
}

func TestNewController(t *testing.T) {
	c := NewController(testConfig())
	assert.Equal(t, ModeFindWall, c.Mode())
	assert.Equal(t, FindWall{}, c.State())
	assert.Equal(t, ModeFindWall, c.Command().Mode)
}

func TestFindWall_SeeksWallWhenNoneOnLeft(t *testing.T) {
	c := NewController(testConfig())
	in := cruise(0)
	in.WallOnLeft = false

	cmd, tr := c.Step(in)
	assert.Nil(t, tr)
	assert.Equal(t, ModeFindWall, cmd.Mode)
	assert.Equal(t, 0.2, cmd.Throttle)
	assert.Zero(t, cmd.Brake)
	assert.Equal(t, 15.0, cmd.Steer)
}

func TestFindWall_WallOnLeftTransitionsAndBrakesSameCycle(t *testing.T) {
	c := NewController(testConfig())
	cmd, tr := c.Step(cruise(0))

	require.NotNil(t, tr)
	assert.Equal(t, ModeFindWall, tr.From)
	assert.Equal(t, ModeFollowWall, tr.To)
	assert.Equal(t, ModeFollowWall, cmd.Mode)
	assert.Equal(t, 10.0, cmd.Brake)
	assert.Zero(t, cmd.Throttle)
	assert.Zero(t, cmd.Steer)
}

func TestDriveForward_Steering(t *testing.T) {
	tests := []struct {
		name   string
		angles []float64
		vel    float64
		steer  float64
		thr    float64
	}{
		{"straight", []float64{0.1, -0.1}, 1, 0, 0.2},
		{"gentle left", []float64{0.2, 0.2}, 1, 0.2 * 180 / math.Pi * 1.2, 0.2},
		{"clamped left", []float64{0.5}, 1, 15, 0.2},
		{"clamped right", []float64{-0.5}, 1, -15, 0.2},
		{"coast at max velocity", []float64{0}, 2, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := followingController(t)
			in := cruise(0.1)
			in.NavAngles = tt.angles
			in.NavDists = make([]float64, len(tt.angles))
			for i := range in.NavDists {
				in.NavDists[i] = 40
			}
			in.Vel = tt.vel

			cmd, tr := c.Step(in)
			assert.Nil(t, tr)
			assert.InDelta(t, tt.steer, cmd.Steer, 1e-9)
			assert.Equal(t, tt.thr, cmd.Throttle)
			assert.Zero(t, cmd.Brake)
		})
	}
}

func TestFollowWall_LostWallAfterTimeout(t *testing.T) {
	c := followingController(t)

	for _, at := range []float64{1, 2, 3} {
		in := cruise(at)
		in.WallOnLeft = false
		cmd, tr := c.Step(in)
		require.Nil(t, tr, "t=%v", at)
		assert.Equal(t, 15.0, cmd.Steer, "drive forward seeks the wall")
	}
	in := cruise(4)
	in.WallOnLeft = false
	cmd, tr := c.Step(in)

	require.NotNil(t, tr)
	assert.Equal(t, ModeLostWall, tr.To)
	assert.Equal(t, 10.0, cmd.Brake)
	assert.Zero(t, cmd.Throttle)
}

func TestFollowWall_WallSightingResetsTimer(t *testing.T) {
	c := followingController(t)
	for _, at := range []float64{1, 2, 3, 3.5, 4.5, 5.5} {
		in := cruise(at)
		in.WallOnLeft = at == 3.5
		_, tr := c.Step(in)
		require.Nil(t, tr, "t=%v", at)
	}
	assert.Equal(t, 2*time.Second, c.Status().TimeWithoutWall)
}

func TestLostWall(t *testing.T) {
	c := NewController(testConfig())
	c.state = LostWall{}
	c.timeWithoutWall = 5 * time.Second

	in := cruise(10)
	in.WallOnLeft = false
	cmd, tr := c.Step(in)
	assert.Nil(t, tr)
	assert.Equal(t, 10.0, cmd.Brake, "halt while still moving")

	in.Vel = 0.05
	in.TotalTime = sec(11)
	cmd, tr = c.Step(in)
	assert.Nil(t, tr)
	assert.Zero(t, cmd.Brake)
	assert.Zero(t, cmd.Throttle)
	assert.Equal(t, 15.0, cmd.Steer, "search turn is to the left")

	in.WallOnLeft = true
	in.TotalTime = sec(12)
	cmd, tr = c.Step(in)
	require.NotNil(t, tr)
	assert.Equal(t, ModeFollowWall, tr.To)
	assert.Zero(t, c.Status().TimeWithoutWall)
	assertOutputInvariants(t, cmd)
}

func TestFollowWall_DisruptedPath(t *testing.T) {
	c := followingController(t)
	blocked := func(at float64) Inputs {
		in := cruise(at)
		in.NavDists = []float64{10, 10, 10}
		return in
	}

	prev, _ := c.Step(cruise(0.5))
	for _, at := range []float64{1, 2, 2.5} {
		cmd, tr := c.Step(blocked(at))
		require.Nil(t, tr, "t=%v", at)
		assert.Equal(t, prev, cmd, "blocked path keeps the previous command")
	}
	cmd, tr := c.Step(blocked(3))
	require.NotNil(t, tr)
	assert.Equal(t, ModeDisruptedPath, tr.To)
	assert.Equal(t, 10.0, cmd.Brake)
}

func TestFollowWall_ClearPathResetsDisruption(t *testing.T) {
	c := followingController(t)
	in := cruise(1)
	in.NavDists = []float64{10, 10, 10}
	c.Step(in)
	in.TotalTime = sec(2)
	c.Step(in)
	assert.Equal(t, 2*time.Second, c.Status().TimeDisrupted)

	c.Step(cruise(2.5))
	assert.Zero(t, c.Status().TimeDisrupted)
}

func TestDisruptedPath(t *testing.T) {
	c := NewController(testConfig())
	c.state = DisruptedPath{}
	c.timeDisrupted = 3 * time.Second

	in := cruise(10)
	in.Vel = 0
	in.NavDists = []float64{5}
	in.NavAngles = []float64{0}
	cmd, tr := c.Step(in)
	assert.Nil(t, tr)
	assert.Zero(t, cmd.Brake)
	assert.Equal(t, -15.0, cmd.Steer, "search turn is to the right")

	in = cruise(11)
	in.Vel = 0
	_, tr = c.Step(in)
	require.NotNil(t, tr)
	assert.Equal(t, ModeFollowWall, tr.To)
	assert.Zero(t, c.Status().TimeDisrupted)
}

func TestDisruptedPath_HaltsWhileMoving(t *testing.T) {
	c := NewController(testConfig())
	c.state = DisruptedPath{}
	in := cruise(1)
	in.Vel = 0.5
	cmd, tr := c.Step(in)
	assert.Nil(t, tr, "must stop before leaving")
	assert.Equal(t, 10.0, cmd.Brake)
}

func TestFollowWall_RockSightingStartsApproach(t *testing.T) {
	c := followingController(t)
	in := cruise(1)
	in.Pose = l1geom.Pose{X: 81.5, Y: 42.25, Yaw: 127}
	in.RockAngles = []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1}

	cmd, tr := c.Step(in)
	require.NotNil(t, tr)
	assert.Equal(t, ModeRockApproach, tr.To)
	assert.Equal(t, 10.0, cmd.Brake)

	st, ok := c.State().(RockApproach)
	require.True(t, ok)
	assert.Equal(t, in.Pose, st.Pose)
	assert.Equal(t, sec(1), st.Entered)

	// Next cycle creeps towards the rock.
	next := cruise(1.2)
	next.RockAngles = in.RockAngles
	cmd, tr = c.Step(next)
	assert.Nil(t, tr)
	assert.Equal(t, ModeRockApproach, cmd.Mode)
	assert.Equal(t, 0.1, cmd.Throttle)
	assert.Zero(t, cmd.Brake)
	assert.InDelta(t, 0.1*180/math.Pi, cmd.Steer, 1e-9)
}

func TestFollowWall_RockCountAtThresholdIgnored(t *testing.T) {
	c := followingController(t)
	in := cruise(1)
	in.RockAngles = []float64{0, 0, 0, 0, 0}
	_, tr := c.Step(in)
	assert.Nil(t, tr)
}

func TestRockApproach_Pickup(t *testing.T) {
	c := NewController(testConfig())
	c.state = RockApproach{Pose: l1geom.Pose{X: 1, Y: 2, Yaw: 30}, Entered: sec(10)}

	in := cruise(11)
	in.RockAngles = nil
	cmd, tr := c.Step(in)
	assert.Nil(t, tr)
	assert.Zero(t, cmd.Steer, "no rock points means straight")

	in.NearSample = true
	in.TotalTime = sec(12)
	cmd, tr = c.Step(in)
	assert.Nil(t, tr)
	assert.Equal(t, 10.0, cmd.Brake, "halt when near and moving")

	in.Vel = 0
	in.Pose.Yaw = 44
	in.TotalTime = sec(13)
	cmd, tr = c.Step(in)
	require.NotNil(t, tr)
	assert.Equal(t, ModeStuck, tr.To)
	assert.True(t, cmd.Pickup)
	assert.Zero(t, cmd.Brake)
	assert.Equal(t, Stuck{Yaw: 44}, c.State())

	in.NearSample = false
	in.TotalTime = sec(14)
	cmd, _ = c.Step(in)
	assert.False(t, cmd.Pickup, "pickup request is one-shot")
	assert.Equal(t, -15.0, cmd.Steer)
}

func TestRockApproach_Timeout(t *testing.T) {
	c := NewController(testConfig())
	c.state = RockApproach{Entered: sec(10)}

	in := cruise(25)
	_, tr := c.Step(in)
	assert.Nil(t, tr, "exactly at the budget is still within it")

	in = cruise(25.1)
	in.Pose.Yaw = 200
	_, tr = c.Step(in)
	require.NotNil(t, tr)
	assert.Equal(t, ModeStuck, tr.To)
	assert.Equal(t, Stuck{Yaw: 200}, c.State())
}

func TestStuck_EscapeAfterQuarterTurn(t *testing.T) {
	tests := []struct {
		name    string
		from    float64
		to      float64
		escaped bool
	}{
		{"not yet", 100, 30, false},
		{"quarter turn right", 100, 10, true},
		{"across north", 350, 80, true},
		{"small turn across north", 350, 20, false},
		{"70 degrees left across north", 10, 300, false},
		{"quarter turn left across north", 10, 280, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(testConfig())
			c.state = Stuck{Yaw: tt.from}
			in := cruise(1)
			in.Pose.Yaw = tt.to
			cmd, tr := c.Step(in)
			if tt.escaped {
				require.NotNil(t, tr)
				assert.Equal(t, ModeFollowWall, tr.To)
				return
			}
			assert.Nil(t, tr)
			assert.Zero(t, cmd.Throttle)
			assert.Zero(t, cmd.Brake)
			assert.Equal(t, -15.0, cmd.Steer)
		})
	}
}

func TestStuckDetection(t *testing.T) {
	hold := func(at float64) Inputs {
		in := cruise(at)
		in.Pose = l1geom.Pose{X: 20, Y: 30, Yaw: 75}
		return in
	}

	t.Run("held position", func(t *testing.T) {
		c := followingController(t)
		for _, at := range []float64{1, 3, 5.9} {
			_, tr := c.Step(hold(at))
			require.Nil(t, tr, "t=%v", at)
		}
		in := hold(6)
		in.Pose.X += 0.3
		cmd, tr := c.Step(in)
		require.NotNil(t, tr)
		assert.Equal(t, ModeStuck, tr.To)
		assert.Equal(t, Stuck{Yaw: 75}, c.State())
		assert.Equal(t, 10.0, cmd.Brake)
	})

	t.Run("progressing", func(t *testing.T) {
		c := followingController(t)
		c.Step(hold(1))
		in := hold(6)
		in.Pose.X += 1
		_, tr := c.Step(in)
		assert.Nil(t, tr)
	})

	t.Run("while finding the wall", func(t *testing.T) {
		c := NewController(testConfig())
		in := hold(1)
		in.WallOnLeft = false
		c.Step(in)
		in.TotalTime = sec(6)
		_, tr := c.Step(in)
		require.NotNil(t, tr)
		assert.Equal(t, ModeFindWall, tr.From)
		assert.Equal(t, ModeStuck, tr.To)
	})
}

func TestErrorGate(t *testing.T) {
	c := followingController(t)

	bad := cruise(1)
	bad.NavAngles = nil
	cmd, tr := c.Step(bad)
	require.NotNil(t, tr)
	assert.Equal(t, ModeFollowWall, tr.From)
	assert.Equal(t, ModeError, tr.To)
	assert.Equal(t, Command{Throttle: 0.1, Mode: ModeError}, cmd)

	bad.TotalTime = sec(2)
	_, tr = c.Step(bad)
	assert.Nil(t, tr, "error is re-entered silently")

	cmd, tr = c.Step(cruise(3))
	require.NotNil(t, tr)
	assert.Equal(t, ModeError, tr.From)
	assert.Equal(t, ModeFollowWall, tr.To)
	assert.Equal(t, ModeFollowWall, cmd.Mode)
	assert.Equal(t, 0.2, cmd.Throttle)
}

func TestTransitionLogStreams(t *testing.T) {
	var ops, diag bytes.Buffer
	SetLogWriters(&ops, &diag, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	c := NewController(testConfig())
	in := cruise(1)
	in.WallOnLeft = true
	c.Step(in)
	assert.Contains(t, diag.String(), "FIND_WALL -> FOLLOW_WALL")
	assert.Empty(t, ops.String(), "routine transitions stay off the ops stream")

	bad := cruise(2)
	bad.NavAngles = nil
	c.Step(bad)
	assert.Contains(t, ops.String(), "FOLLOW_WALL -> ERROR")
	assert.Contains(t, ops.String(), "perception invalid")
}

func TestErrorGate_ResumeThenTransitionReportsFromError(t *testing.T) {
	c := NewController(testConfig())
	bad := cruise(0)
	bad.NavAngles = nil
	c.Step(bad)

	_, tr := c.Step(cruise(1))
	require.NotNil(t, tr)
	assert.Equal(t, ModeError, tr.From)
	assert.Equal(t, ModeFollowWall, tr.To)
}

func TestPerceptionValidity(t *testing.T) {
	tests := []struct {
		name  string
		dists []float64
		angs  []float64
		valid bool
	}{
		{"nil angles", []float64{1}, nil, false},
		{"nan angle", []float64{1}, []float64{math.NaN()}, false},
		{"inf distance", []float64{math.Inf(1)}, []float64{0}, false},
		{"length mismatch", []float64{1, 2}, []float64{0}, false},
		{"empty but present", []float64{}, []float64{}, true},
		{"normal", []float64{30}, []float64{0.2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := cruise(0)
			in.NavDists, in.NavAngles = tt.dists, tt.angs
			assert.Equal(t, tt.valid, perceptionValid(in))
		})
	}
}

func TestEmptyNavigableIsNotClearPath(t *testing.T) {
	c := followingController(t)
	in := cruise(1)
	in.NavDists, in.NavAngles = []float64{}, []float64{}
	cmd, tr := c.Step(in)
	assert.Nil(t, tr)
	assert.Equal(t, ModeFollowWall, cmd.Mode)
	assert.Equal(t, time.Second, c.Status().TimeDisrupted)
}

func TestOutputInvariants_RandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := NewController(testConfig())
	at := 0.0
	for i := 0; i < 2000; i++ {
		at += rng.Float64() * 0.5
		n := rng.Intn(20)
		in := Inputs{
			TotalTime:  sec(at),
			Pose:       l1geom.Pose{X: rng.Float64() * 3, Y: rng.Float64() * 3, Yaw: rng.Float64() * 360},
			Vel:        rng.Float64() * 3,
			NearSample: rng.Intn(4) == 0,
			NavDists:   make([]float64, n),
			NavAngles:  make([]float64, n),
			WallOnLeft: rng.Intn(2) == 0,
		}
		for j := 0; j < n; j++ {
			in.NavDists[j] = rng.Float64() * 80
			in.NavAngles[j] = (rng.Float64() - 0.5) * 2
		}
		for j := rng.Intn(10); j > 0; j-- {
			in.RockAngles = append(in.RockAngles, (rng.Float64()-0.5)*2)
		}
		if rng.Intn(30) == 0 {
			in.NavAngles = nil
		}
		cmd, _ := c.Step(in)
		assertOutputInvariants(t, cmd)
		assert.Equal(t, c.Mode(), cmd.Mode)
	}
}

func TestStatus(t *testing.T) {
	c := NewController(testConfig())
	c.state = RockApproach{Pose: l1geom.Pose{X: 3}, Entered: sec(4)}
	st := c.Status()
	require.NotNil(t, st.RockPose)
	assert.Equal(t, 3.0, st.RockPose.X)
	assert.Nil(t, st.StuckYaw)

	c.state = Stuck{Yaw: 12}
	st = c.Status()
	require.NotNil(t, st.StuckYaw)
	assert.Equal(t, 12.0, *st.StuckYaw)
}
