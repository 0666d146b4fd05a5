// Package config handles pose pipeline configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config holds all pipeline settings.
type Config struct {
	Animation AnimationConfig `yaml:"animation"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Cloth     ClothConfig     `yaml:"cloth"`
	Debug     DebugConfig     `yaml:"debug"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AnimationConfig holds pose evaluation and update-rate settings.
type AnimationConfig struct {
	// UpdateRateInterval is the time between full evaluations. Zero or
	// negative evaluates every tick.
	UpdateRateInterval time.Duration `yaml:"update_rate_interval"`
	// Interpolate blends live toward the cached pose on skipped ticks.
	Interpolate  bool `yaml:"interpolate"`
	ForceRefPose bool `yaml:"force_ref_pose"`
	// PostProcessLODThreshold is the highest LOD that still runs the
	// post-process graph. Negative means every LOD.
	PostProcessLODThreshold int  `yaml:"post_process_lod_threshold"`
	Parallel                bool `yaml:"parallel"`
}

// PhysicsConfig holds ragdoll blending and kinematic update settings.
type PhysicsConfig struct {
	BlendWeight                  float32 `yaml:"blend_weight"`
	AllowDeferredKinematicUpdate bool    `yaml:"allow_deferred_kinematic_update"`
	DeferKinematicUpdate         bool    `yaml:"defer_kinematic_update"`
}

// ClothConfig holds cloth scheduling settings.
type ClothConfig struct {
	WaitForCompletion bool `yaml:"wait_for_completion"`
	// TeleportDistanceThreshold is in world units; <= 0 disables the check.
	TeleportDistanceThreshold float32 `yaml:"teleport_distance_threshold"`
	// TeleportRotationThreshold is in degrees; <= 0 disables the check.
	TeleportRotationThreshold float32 `yaml:"teleport_rotation_threshold"`
	Parallel                  bool    `yaml:"parallel"`
}

// DebugConfig holds contract-checking settings.
type DebugConfig struct {
	// StrictContracts turns caller contract violations into panics.
	StrictContracts bool `yaml:"strict_contracts"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Animation: AnimationConfig{
			UpdateRateInterval:      0,
			Interpolate:             true,
			ForceRefPose:            false,
			PostProcessLODThreshold: -1,
			Parallel:                true,
		},
		Physics: PhysicsConfig{
			BlendWeight:                  1.0,
			AllowDeferredKinematicUpdate: true,
			DeferKinematicUpdate:         false,
		},
		Cloth: ClothConfig{
			WaitForCompletion:         false,
			TeleportDistanceThreshold: 300,
			TeleportRotationThreshold: 0,
			Parallel:                  true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	if c.Physics.BlendWeight < 0 || c.Physics.BlendWeight > 1 {
		err = multierr.Append(err, fmt.Errorf("physics.blend_weight %v outside [0,1]", c.Physics.BlendWeight))
	}
	if c.Physics.DeferKinematicUpdate && !c.Physics.AllowDeferredKinematicUpdate {
		err = multierr.Append(err, errors.New("physics.defer_kinematic_update requires allow_deferred_kinematic_update"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	return err
}
