package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the rover core.
// Every field is optional; the Get* accessors supply the default for any
// field the JSON omits, so partial files are safe.
type TuningConfig struct {
	// Camera and rectification
	CameraWidth         *int  `json:"camera_width,omitempty"`
	CameraHeight        *int  `json:"camera_height,omitempty"`
	RectifyDstSize      *int  `json:"rectify_dst_size,omitempty"`
	RectifyBottomOffset *int  `json:"rectify_bottom_offset,omitempty"`
	ParallelClassify    *bool `json:"parallel_classify,omitempty"`

	// Terrain classifier thresholds (0-255 scale)
	NavThreshold      *int `json:"nav_threshold,omitempty"`
	SkyRows           *int `json:"sky_rows,omitempty"`
	RockMinGray       *int `json:"rock_min_gray,omitempty"`
	RockMinSaturation *int `json:"rock_min_saturation,omitempty"`

	// World projector
	MaxRangePixels *float64 `json:"max_range_pixels,omitempty"`
	MaxAngleDeg    *float64 `json:"max_angle_deg,omitempty"`
	WorldSize      *int     `json:"world_size,omitempty"`
	WorldScale     *float64 `json:"world_scale,omitempty"`

	// Occupancy accumulator
	WallLeftAngleDeg  *float64 `json:"wall_left_angle_deg,omitempty"`
	WallLeftThreshold *int     `json:"wall_left_threshold,omitempty"`
	SnapshotEvery     *int     `json:"snapshot_every,omitempty"` // cycles between map snapshots, 0 disables

	// Decision controller. Timeouts are duration strings like "3s".
	MaxVelocity         *float64 `json:"max_velocity,omitempty"`
	ThrottleSet         *float64 `json:"throttle_set,omitempty"`
	BrakeSet            *float64 `json:"brake_set,omitempty"`
	ClearPathDistance   *float64 `json:"clear_path_distance,omitempty"`
	SteeringGain        *float64 `json:"steering_gain,omitempty"`
	WallSeekSteer       *float64 `json:"wall_seek_steer,omitempty"`
	StationaryVelocity  *float64 `json:"stationary_velocity,omitempty"`
	LostWallTimeout     *string  `json:"lost_wall_timeout,omitempty"`
	DisruptedTimeout    *string  `json:"disrupted_timeout,omitempty"`
	StuckCheckInterval  *string  `json:"stuck_check_interval,omitempty"`
	StuckDistance       *float64 `json:"stuck_distance,omitempty"`
	RockAngleCount      *int     `json:"rock_angle_count,omitempty"`
	RockApproachTimeout *string  `json:"rock_approach_timeout,omitempty"`
	RockThrottle        *float64 `json:"rock_throttle,omitempty"`
	ErrorThrottle       *float64 `json:"error_throttle,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults. It matches config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		CameraWidth:         ptrInt(e.GetCameraWidth()),
		CameraHeight:        ptrInt(e.GetCameraHeight()),
		RectifyDstSize:      ptrInt(e.GetRectifyDstSize()),
		RectifyBottomOffset: ptrInt(e.GetRectifyBottomOffset()),
		ParallelClassify:    ptrBool(e.GetParallelClassify()),
		NavThreshold:        ptrInt(e.GetNavThreshold()),
		SkyRows:             ptrInt(e.GetSkyRows()),
		RockMinGray:         ptrInt(e.GetRockMinGray()),
		RockMinSaturation:   ptrInt(e.GetRockMinSaturation()),
		MaxRangePixels:      ptrFloat64(e.GetMaxRangePixels()),
		MaxAngleDeg:         ptrFloat64(e.GetMaxAngleDeg()),
		WorldSize:           ptrInt(e.GetWorldSize()),
		WorldScale:          ptrFloat64(e.GetWorldScale()),
		WallLeftAngleDeg:    ptrFloat64(e.GetWallLeftAngleDeg()),
		WallLeftThreshold:   ptrInt(e.GetWallLeftThreshold()),
		SnapshotEvery:       ptrInt(e.GetSnapshotEvery()),
		MaxVelocity:         ptrFloat64(e.GetMaxVelocity()),
		ThrottleSet:         ptrFloat64(e.GetThrottleSet()),
		BrakeSet:            ptrFloat64(e.GetBrakeSet()),
		ClearPathDistance:   ptrFloat64(e.GetClearPathDistance()),
		SteeringGain:        ptrFloat64(e.GetSteeringGain()),
		WallSeekSteer:       ptrFloat64(e.GetWallSeekSteer()),
		StationaryVelocity:  ptrFloat64(e.GetStationaryVelocity()),
		LostWallTimeout:     ptrString(e.GetLostWallTimeout().String()),
		DisruptedTimeout:    ptrString(e.GetDisruptedTimeout().String()),
		StuckCheckInterval:  ptrString(e.GetStuckCheckInterval().String()),
		StuckDistance:       ptrFloat64(e.GetStuckDistance()),
		RockAngleCount:      ptrInt(e.GetRockAngleCount()),
		RockApproachTimeout: ptrString(e.GetRockApproachTimeout().String()),
		RockThrottle:        ptrFloat64(e.GetRockThrottle()),
		ErrorThrottle:       ptrFloat64(e.GetErrorThrottle()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/rover/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/rover/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. It is run once at
// startup; out-of-range thresholds are an operator error, not a per-cycle one.
func (c *TuningConfig) Validate() error {
	if c.CameraWidth != nil && *c.CameraWidth <= 0 {
		return fmt.Errorf("camera_width must be positive, got %d", *c.CameraWidth)
	}
	if c.CameraHeight != nil && *c.CameraHeight <= 0 {
		return fmt.Errorf("camera_height must be positive, got %d", *c.CameraHeight)
	}
	if c.SkyRows != nil && (*c.SkyRows < 0 || *c.SkyRows >= c.GetCameraHeight()) {
		return fmt.Errorf("sky_rows must be in [0, camera_height), got %d", *c.SkyRows)
	}
	for name, v := range map[string]*int{
		"nav_threshold":       c.NavThreshold,
		"rock_min_gray":       c.RockMinGray,
		"rock_min_saturation": c.RockMinSaturation,
	} {
		if v != nil && (*v < 0 || *v > 255) {
			return fmt.Errorf("%s must be between 0 and 255, got %d", name, *v)
		}
	}
	if c.RectifyDstSize != nil && *c.RectifyDstSize <= 0 {
		return fmt.Errorf("rectify_dst_size must be positive, got %d", *c.RectifyDstSize)
	}
	if c.MaxRangePixels != nil && *c.MaxRangePixels <= 0 {
		return fmt.Errorf("max_range_pixels must be positive, got %f", *c.MaxRangePixels)
	}
	if c.MaxAngleDeg != nil && (*c.MaxAngleDeg <= 0 || *c.MaxAngleDeg > 90) {
		return fmt.Errorf("max_angle_deg must be in (0, 90], got %f", *c.MaxAngleDeg)
	}
	if c.WorldSize != nil && *c.WorldSize <= 0 {
		return fmt.Errorf("world_size must be positive, got %d", *c.WorldSize)
	}
	if c.WorldScale != nil && *c.WorldScale <= 0 {
		return fmt.Errorf("world_scale must be positive, got %f", *c.WorldScale)
	}
	if c.WallLeftThreshold != nil && *c.WallLeftThreshold < 0 {
		return fmt.Errorf("wall_left_threshold must be non-negative, got %d", *c.WallLeftThreshold)
	}
	if c.SnapshotEvery != nil && *c.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every must be non-negative, got %d", *c.SnapshotEvery)
	}
	if c.MaxVelocity != nil && *c.MaxVelocity <= 0 {
		return fmt.Errorf("max_velocity must be positive, got %f", *c.MaxVelocity)
	}
	if c.ThrottleSet != nil && (*c.ThrottleSet < 0 || *c.ThrottleSet > 1) {
		return fmt.Errorf("throttle_set must be between 0 and 1, got %f", *c.ThrottleSet)
	}
	if c.RockThrottle != nil && (*c.RockThrottle < 0 || *c.RockThrottle > 1) {
		return fmt.Errorf("rock_throttle must be between 0 and 1, got %f", *c.RockThrottle)
	}
	if c.BrakeSet != nil && *c.BrakeSet <= 0 {
		return fmt.Errorf("brake_set must be positive, got %f", *c.BrakeSet)
	}
	if c.WallSeekSteer != nil && (*c.WallSeekSteer < 0 || *c.WallSeekSteer > 15) {
		return fmt.Errorf("wall_seek_steer must be between 0 and 15, got %f", *c.WallSeekSteer)
	}
	if c.StuckDistance != nil && *c.StuckDistance < 0 {
		return fmt.Errorf("stuck_distance must be non-negative, got %f", *c.StuckDistance)
	}
	if c.RockAngleCount != nil && *c.RockAngleCount < 0 {
		return fmt.Errorf("rock_angle_count must be non-negative, got %d", *c.RockAngleCount)
	}

	for name, v := range map[string]*string{
		"lost_wall_timeout":     c.LostWallTimeout,
		"disrupted_timeout":     c.DisruptedTimeout,
		"stuck_check_interval":  c.StuckCheckInterval,
		"rock_approach_timeout": c.RockApproachTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// GetCameraWidth returns the camera frame width in pixels.
func (c *TuningConfig) GetCameraWidth() int { return intOr(c.CameraWidth, 320) }

// GetCameraHeight returns the camera frame height in pixels.
func (c *TuningConfig) GetCameraHeight() int { return intOr(c.CameraHeight, 160) }

// GetRectifyDstSize returns the side of the rectified calibration square in pixels.
func (c *TuningConfig) GetRectifyDstSize() int { return intOr(c.RectifyDstSize, 10) }

// GetRectifyBottomOffset returns the gap between the calibration square and the image bottom.
func (c *TuningConfig) GetRectifyBottomOffset() int { return intOr(c.RectifyBottomOffset, 6) }

// GetParallelClassify returns the parallel_classify value or the default.
func (c *TuningConfig) GetParallelClassify() bool {
	if c.ParallelClassify == nil {
		return false
	}
	return *c.ParallelClassify
}

// GetNavThreshold returns the grayscale threshold for navigable ground.
func (c *TuningConfig) GetNavThreshold() int { return intOr(c.NavThreshold, 150) }

// GetSkyRows returns the number of top image rows zeroed before thresholding.
func (c *TuningConfig) GetSkyRows() int { return intOr(c.SkyRows, 60) }

// GetRockMinGray returns the grayscale floor below which a pixel cannot be a rock.
func (c *TuningConfig) GetRockMinGray() int { return intOr(c.RockMinGray, 90) }

// GetRockMinSaturation returns the saturation a rock pixel must exceed.
func (c *TuningConfig) GetRockMinSaturation() int { return intOr(c.RockMinSaturation, 100) }

// GetMaxRangePixels returns the rover-frame radius beyond which points are dropped.
func (c *TuningConfig) GetMaxRangePixels() float64 { return floatOr(c.MaxRangePixels, 80) }

// GetMaxAngleDeg returns the half field of view kept by the projector.
func (c *TuningConfig) GetMaxAngleDeg() float64 { return floatOr(c.MaxAngleDeg, 30) }

// GetWorldSize returns the side of the square world grid in cells.
func (c *TuningConfig) GetWorldSize() int { return intOr(c.WorldSize, 200) }

// GetWorldScale returns rover-frame pixels per world unit.
func (c *TuningConfig) GetWorldScale() float64 { return floatOr(c.WorldScale, 10) }

// GetWallLeftAngleDeg returns the angle above which an obstacle point counts as "left".
func (c *TuningConfig) GetWallLeftAngleDeg() float64 { return floatOr(c.WallLeftAngleDeg, 10) }

// GetWallLeftThreshold returns the left obstacle pixel count that signals a wall.
func (c *TuningConfig) GetWallLeftThreshold() int { return intOr(c.WallLeftThreshold, 150) }

// GetSnapshotEvery returns the number of cycles between persisted map snapshots.
func (c *TuningConfig) GetSnapshotEvery() int { return intOr(c.SnapshotEvery, 500) }

// GetMaxVelocity returns the velocity cap above which the rover coasts.
func (c *TuningConfig) GetMaxVelocity() float64 { return floatOr(c.MaxVelocity, 2) }

// GetThrottleSet returns the cruise throttle.
func (c *TuningConfig) GetThrottleSet() float64 { return floatOr(c.ThrottleSet, 0.2) }

// GetBrakeSet returns the brake magnitude applied when halting.
func (c *TuningConfig) GetBrakeSet() float64 { return floatOr(c.BrakeSet, 10) }

// GetClearPathDistance returns the mean navigable distance that counts as a clear path.
func (c *TuningConfig) GetClearPathDistance() float64 { return floatOr(c.ClearPathDistance, 25) }

// GetSteeringGain returns the multiplier applied to the mean navigable angle.
func (c *TuningConfig) GetSteeringGain() float64 { return floatOr(c.SteeringGain, 1.2) }

// GetWallSeekSteer returns the leftward steer used while no wall is visible.
func (c *TuningConfig) GetWallSeekSteer() float64 { return floatOr(c.WallSeekSteer, 15) }

// GetStationaryVelocity returns the speed at or below which the rover counts as stopped.
func (c *TuningConfig) GetStationaryVelocity() float64 { return floatOr(c.StationaryVelocity, 0.1) }

// GetLostWallTimeout returns how long the wall may be out of sight before LostWall.
func (c *TuningConfig) GetLostWallTimeout() time.Duration {
	return durationOr(c.LostWallTimeout, 3*time.Second)
}

// GetDisruptedTimeout returns how long the path may stay blocked before DisruptedPath.
func (c *TuningConfig) GetDisruptedTimeout() time.Duration {
	return durationOr(c.DisruptedTimeout, 2*time.Second)
}

// GetStuckCheckInterval returns the spacing between stuck-detection checks.
func (c *TuningConfig) GetStuckCheckInterval() time.Duration {
	return durationOr(c.StuckCheckInterval, 5*time.Second)
}

// GetStuckDistance returns the displacement below which the rover is considered stuck.
func (c *TuningConfig) GetStuckDistance() float64 { return floatOr(c.StuckDistance, 0.5) }

// GetRockAngleCount returns the rock pixel count that triggers RockApproach.
func (c *TuningConfig) GetRockAngleCount() int { return intOr(c.RockAngleCount, 5) }

// GetRockApproachTimeout returns the time budget for reaching a rock.
func (c *TuningConfig) GetRockApproachTimeout() time.Duration {
	return durationOr(c.RockApproachTimeout, 15*time.Second)
}

// GetRockThrottle returns the creep throttle used while approaching a rock.
func (c *TuningConfig) GetRockThrottle() float64 { return floatOr(c.RockThrottle, 0.1) }

// GetErrorThrottle returns the throttle emitted as the Error-mode indicator.
func (c *TuningConfig) GetErrorThrottle() float64 { return floatOr(c.ErrorThrottle, 0.1) }
