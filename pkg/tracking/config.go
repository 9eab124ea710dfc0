// Package tracking turns per-frame eye detections into off-axis cameras.
//
// HeadTrackingContext runs one synchronous frame at a time: smooth the
// eyes, estimate the head pose, build the projection. Tracker drives it
// from a frame source and serializes access from the HTTP API.
package tracking

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/teslashibe/go-parallax/pkg/frustum"
	"github.com/teslashibe/go-parallax/pkg/settings"
)

// Config holds all tunable parameters for head tracking
type Config struct {
	// Timing
	FrameInterval time.Duration // How often to pull a frame from the source

	// StaleAfter is the number of consecutive frames without a face before
	// the output is marked stale
	StaleAfter int

	// RebuildEpsilonCm is the head movement below which the previous
	// cameras are reused
	RebuildEpsilonCm float64

	// Persisted component configuration
	Settings settings.Settings
}

// DefaultConfig returns the recommended configuration for a 30 FPS webcam
func DefaultConfig() Config {
	return Config{
		FrameInterval: 33 * time.Millisecond,
		StaleAfter:    15, // Half a second at 30 FPS
		Settings:      settings.Defaults(),

		RebuildEpsilonCm: frustum.DefaultInputEpsilonCm,
	}
}

// SlowConfig returns a configuration for low-power machines
func SlowConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameInterval = 66 * time.Millisecond
	cfg.StaleAfter = 8
	return cfg
}

// Validate checks timing and every component config
func (c Config) Validate() error {
	var errs []error
	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("tracking: frame interval must be > 0, got %v", c.FrameInterval))
	}
	if !(c.RebuildEpsilonCm >= 0) || math.IsInf(c.RebuildEpsilonCm, 0) {
		errs = append(errs, fmt.Errorf("tracking: rebuild epsilon must be finite and >= 0, got %v", c.RebuildEpsilonCm))
	}
	if c.StaleAfter < 1 {
		errs = append(errs, fmt.Errorf("tracking: stale-after must be >= 1, got %d", c.StaleAfter))
	}
	if err := c.Settings.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
