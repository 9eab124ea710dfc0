// Package camera provides the webcam that feeds face tracking and its
// runtime-configurable capture settings.
package camera

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned for out-of-range capture settings.
var ErrInvalidConfig = errors.New("camera: invalid config")

// Config holds webcam capture parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	DeviceID  int `json:"device_id"` // OpenCV device index
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS

	// Exposure is passed straight to the driver. Zero leaves auto exposure on.
	Exposure float64 `json:"exposure"`
}

// Capture limits accepted by Validate
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns 640x480 at 30 FPS, enough for eye landmarks at
// desk distance and cheap to run YuNet on every frame.
func DefaultConfig() Config {
	return Config{
		DeviceID:  0,
		Width:     640,
		Height:    480,
		Framerate: 30,
	}
}

// Validate checks if the config values are within valid ranges.
func (c Config) Validate() error {
	var errs []error

	if c.DeviceID < 0 {
		errs = append(errs, fmt.Errorf("device_id must be >= 0, got %d", c.DeviceID))
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errs = append(errs, fmt.Errorf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errs = append(errs, fmt.Errorf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errs = append(errs, fmt.Errorf("framerate must be between 1 and %d", MaxFramerate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
