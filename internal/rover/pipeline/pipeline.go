package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/sample.return/internal/config"
	"github.com/banshee-data/sample.return/internal/monitoring"
	"github.com/banshee-data/sample.return/internal/rover/l2vision"
	"github.com/banshee-data/sample.return/internal/rover/l3project"
	"github.com/banshee-data/sample.return/internal/rover/l4grid"
	"github.com/banshee-data/sample.return/internal/rover/l5decision"
	"github.com/banshee-data/sample.return/internal/telemetry"
	"github.com/banshee-data/sample.return/internal/timeutil"
)

// ErrClosed is returned by Step after Close.
var ErrClosed = errors.New("pipeline closed")

// CommandSink transports actuator command lines to the rover.
// Implemented by serialmux.SerialMuxInterface.
type CommandSink interface {
	SendCommand(command string) error
}

// CycleRecorder keeps the per-cycle decision log.
// Implemented by sqlite.MissionStore.
type CycleRecorder interface {
	RecordDecision(d *Decision) error
}

// Config holds the immutable per-layer configuration.
type Config struct {
	Vision   l2vision.Config
	Project  l3project.Config
	Grid     l4grid.Config
	Decision l5decision.Config
}

// ConfigFromTuning builds every layer configuration from one tuning file.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Vision:   l2vision.ConfigFromTuning(cfg),
		Project:  l3project.ConfigFromTuning(cfg),
		Grid:     l4grid.ConfigFromTuning(cfg),
		Decision: l5decision.ConfigFromTuning(cfg),
	}
}

// Options are the optional collaborators of a Pipeline. Any nil sink is
// skipped.
type Options struct {
	MissionID string
	Commands  CommandSink
	Recorder  CycleRecorder
	Maps      l4grid.MapStore
	Metrics   *monitoring.Metrics
	Rectifier l2vision.Rectifier // nil selects the default calibration
	Clock     timeutil.Clock     // times cycles; nil selects the real clock
}

// Pipeline runs perception and decision cycles. Step is serialised; the
// read accessors may be called from other goroutines.
type Pipeline struct {
	mu     sync.Mutex
	opts   Options
	cfg    Config
	closed bool

	classifier *l2vision.Classifier
	projector  *l3project.Projector
	state      *RoverState
	last       *l5decision.Transition
	modeNames  []string
}

// New creates a pipeline with a fresh RoverState.
func New(cfg Config, opts Options) (*Pipeline, error) {
	if cfg.Grid.Size != cfg.Project.WorldSize {
		return nil, fmt.Errorf("grid size %d does not match projection world size %d", cfg.Grid.Size, cfg.Project.WorldSize)
	}
	classifier, err := l2vision.NewClassifier(cfg.Vision, opts.Rectifier)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	p := &Pipeline{
		opts:       opts,
		cfg:        cfg,
		classifier: classifier,
		projector:  l3project.NewProjector(cfg.Project),
		state:      NewRoverState(cfg),
	}
	for _, m := range l5decision.Modes() {
		p.modeNames = append(p.modeNames, m.String())
	}
	if opts.Metrics != nil {
		opts.Metrics.SetMode(p.state.Controller.Mode().String(), p.modeNames)
	}
	return p, nil
}

// Step runs one cycle for frame f: classify, project, accumulate, wall
// heuristic, decide, strictly in that order. A frame that cannot be
// classified leaves perception invalid, which the controller answers
// with Error mode; it is not reported as an error. The returned error
// only reports sink failures; the command is valid regardless.
func (p *Pipeline) Step(ctx context.Context, f telemetry.Frame) (l5decision.Command, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return l5decision.Command{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return l5decision.Command{}, err
	}
	start := p.opts.Clock.Now()
	s := p.state

	s.TotalTime = f.TotalTime
	s.Pose = f.Pose
	s.Vel = f.Vel
	s.NearSample = f.NearSample

	p.perceive(f)

	cmd, tr := s.Controller.Step(s.inputs())
	s.Command = cmd
	if tr != nil {
		p.last = tr
		diagf("t=%.2fs %s -> %s (%s)", tr.At.Seconds(), tr.From, tr.To, tr.Reason)
	}
	line := telemetry.FormatCommand(cmd)
	tracef("t=%.2fs pose=(%.1f,%.1f,%.1f) vel=%.2f nav=%d rock=%d wall=%v/%d cmd=%s",
		s.TotalTime.Seconds(), s.Pose.X, s.Pose.Y, s.Pose.Yaw, s.Vel,
		len(s.NavAngles), len(s.RockAngles), s.WallOnLeft, s.WallLeftAmount, line)

	err := p.emit(line, cmd, tr)
	p.observe(cmd, tr, start)
	return cmd, err
}

// perceive replaces the perception fields of the state from f and folds
// the frame into the world map.
func (p *Pipeline) perceive(f telemetry.Frame) {
	s := p.state
	masks, err := p.classifier.Classify(f.Image)
	if err != nil {
		s.invalidate()
		if p.opts.Metrics != nil {
			p.opts.Metrics.InvalidFrames.Inc()
		}
		diagf("t=%.2fs frame rejected: %v", f.TotalTime.Seconds(), err)
		return
	}

	hits := p.projector.Project(masks, s.Pose)
	s.Hits = hits
	s.NavDists, s.NavAngles = hits.Navigable.Dists, hits.Navigable.Angles
	s.RockDists, s.RockAngles = hits.Rock.Dists, hits.Rock.Angles
	s.WallOnLeft, s.WallLeftAmount = l4grid.WallOnLeft(hits.Obstacle.Angles, p.cfg.Grid.WallLeftAngleDeg, p.cfg.Grid.WallLeftThreshold)
	s.Map.Accumulate(hits.Obstacle.Cells, hits.Navigable.Cells, hits.Rock.Cells)
}

// emit hands the cycle's results to the sinks. Failures are logged and
// joined; none stops the others.
func (p *Pipeline) emit(line string, cmd l5decision.Command, tr *l5decision.Transition) error {
	var errs []error
	fail := func(sink string, err error) {
		opsf("%s sink failed: %v", sink, err)
		if p.opts.Metrics != nil {
			p.opts.Metrics.SinkErrors.WithLabelValues(sink).Inc()
		}
		errs = append(errs, fmt.Errorf("%s: %w", sink, err))
	}

	if p.opts.Commands != nil {
		if err := p.opts.Commands.SendCommand(line); err != nil {
			fail("command", err)
		}
	}
	if p.opts.Recorder != nil {
		s := p.state
		d := &Decision{
			MissionID:  p.opts.MissionID,
			TotalTime:  s.TotalTime,
			Pose:       s.Pose,
			Vel:        s.Vel,
			Command:    cmd,
			NavCount:   len(s.NavAngles),
			RockCount:  len(s.RockAngles),
			WallOnLeft: s.WallOnLeft,
			Transition: tr,
		}
		if err := p.opts.Recorder.RecordDecision(d); err != nil {
			fail("decision", err)
		}
	}
	if p.opts.Maps != nil && p.state.Map.DueForSnapshot() {
		if err := p.state.Map.Persist(p.opts.Maps, p.opts.MissionID, "periodic"); err != nil {
			fail("map", err)
		}
	}
	return errors.Join(errs...)
}

// observe updates the metrics for a finished cycle.
func (p *Pipeline) observe(cmd l5decision.Command, tr *l5decision.Transition, start time.Time) {
	m := p.opts.Metrics
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.CycleSeconds.Observe(p.opts.Clock.Since(start).Seconds())
	if tr != nil {
		m.Transitions.WithLabelValues(tr.From.String(), tr.To.String()).Inc()
		m.SetMode(tr.To.String(), p.modeNames)
	}
	if cmd.Pickup {
		m.Pickups.Inc()
	}
	cov := p.state.Map.Coverage()
	m.MapCells.WithLabelValues("unknown").Set(float64(cov.Unknown))
	m.MapCells.WithLabelValues("obstacle").Set(float64(cov.Obstacle))
	m.MapCells.WithLabelValues("navigable").Set(float64(cov.Navigable))
	m.MapCells.WithLabelValues("rock").Set(float64(cov.Rock))
}

// Close writes a final map snapshot and stops the pipeline. Later Step
// calls return ErrClosed.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.opts.Maps == nil || p.state.Map.Cycles == 0 {
		return nil
	}
	if err := p.state.Map.Persist(p.opts.Maps, p.opts.MissionID, "close"); err != nil {
		return fmt.Errorf("failed to persist final map: %w", err)
	}
	opsf("mission %s closed after %d cycles in %s", p.opts.MissionID, p.state.Map.Cycles, p.state.Controller.Mode())
	return nil
}

// Restore loads a persisted map into the mission. Controller state is
// not persisted and starts fresh.
func (p *Pipeline) Restore(s *l4grid.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.state.Map.Restore(s); err != nil {
		return err
	}
	opsf("restored map snapshot %d of mission %s (%d cycles)", s.SnapshotID, s.MissionID, s.Cycles)
	return nil
}

// Map returns the world map. It is safe for concurrent reads.
func (p *Pipeline) Map() *l4grid.WorldMap { return p.state.Map }

// MissionID returns the mission this pipeline records under.
func (p *Pipeline) MissionID() string { return p.opts.MissionID }

// Mode returns the controller's current mode.
func (p *Pipeline) Mode() l5decision.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Controller.Mode()
}

// View returns a copy of the current state.
func (p *Pipeline) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	return View{
		MissionID:      p.opts.MissionID,
		TotalTime:      s.TotalTime.Seconds(),
		Pose:           s.Pose,
		Vel:            s.Vel,
		NearSample:     s.NearSample,
		PerceptionOK:   s.NavAngles != nil,
		NavCount:       len(s.NavAngles),
		RockCount:      len(s.RockAngles),
		WallOnLeft:     s.WallOnLeft,
		WallLeftAmount: s.WallLeftAmount,
		Controller:     s.Controller.Status(),
		LastTransition: p.last,
		Cycles:         s.Map.Cycles,
		Coverage:       s.Map.Coverage(),
	}
}
