package l5decision

import (
	"time"

	"github.com/banshee-data/sample.return/internal/config"
)

// MaxSteer is the steering limit in degrees; positive steers left.
const MaxSteer = 15.0

// Config holds the controller's speeds, gains and timeouts. It is fixed
// for the run.
type Config struct {
	MaxVelocity        float64 // cruise throttle is cut at or above this speed
	ThrottleSet        float64 // cruise throttle
	BrakeSet           float64 // brake applied by a halt
	ClearPathDistance  float64 // mean navigable distance (px) above which the path is clear
	SteeringGain       float64 // multiplier on the mean navigable angle
	WallSeekSteer      float64 // steer used when no wall is on the left
	StationaryVelocity float64 // speeds at or below this count as stopped

	LostWallTimeout     time.Duration
	DisruptedTimeout    time.Duration
	StuckCheckInterval  time.Duration
	StuckDistance       float64 // world units
	RockAngleCount      int     // more rock points than this starts an approach
	RockApproachTimeout time.Duration
	RockThrottle        float64
	ErrorThrottle       float64 // non-zero throttle that flags Error mode downstream
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxVelocity:         cfg.GetMaxVelocity(),
		ThrottleSet:         cfg.GetThrottleSet(),
		BrakeSet:            cfg.GetBrakeSet(),
		ClearPathDistance:   cfg.GetClearPathDistance(),
		SteeringGain:        cfg.GetSteeringGain(),
		WallSeekSteer:       cfg.GetWallSeekSteer(),
		StationaryVelocity:  cfg.GetStationaryVelocity(),
		LostWallTimeout:     cfg.GetLostWallTimeout(),
		DisruptedTimeout:    cfg.GetDisruptedTimeout(),
		StuckCheckInterval:  cfg.GetStuckCheckInterval(),
		StuckDistance:       cfg.GetStuckDistance(),
		RockAngleCount:      cfg.GetRockAngleCount(),
		RockApproachTimeout: cfg.GetRockApproachTimeout(),
		RockThrottle:        cfg.GetRockThrottle(),
		ErrorThrottle:       cfg.GetErrorThrottle(),
	}
}
