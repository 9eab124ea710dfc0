// Package smoothing reduces per-frame jitter in detected eye keypoints.
//
// Three interchangeable strategies exist: a static one-dimensional Kalman
// filter, a sliding-window average and an identity passthrough. Filters are
// generic over geom.Vector so the same code smooths scalars, single points
// and whole eye pairs.
package smoothing

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidParams is returned when a configuration would make a filter
// divide by zero or grow without bound.
var ErrInvalidParams = errors.New("smoothing: invalid parameters")

// Window size limits for the average filter.
const (
	MinWindow = 1
	MaxWindow = 200
)

// Mode selects the active smoothing strategy.
type Mode int

const (
	// ModeOff passes raw measurements through untouched.
	ModeOff Mode = iota
	// ModeKalman runs a static 1-D Kalman filter per coordinate.
	ModeKalman
	// ModeAverage returns the mean of the last N samples.
	ModeAverage
)

// String returns the persisted name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeKalman:
		return "kalman"
	case ModeAverage:
		return "average"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a persisted name back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return ModeOff, nil
	case "kalman":
		return ModeKalman, nil
	case "average", "avg":
		return ModeAverage, nil
	}
	return ModeOff, fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	mode, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Config holds the tunable smoothing parameters.
type Config struct {
	Mode Mode `json:"mode"`

	// Kalman: Q >= 0, R > 0, P after reset >= 0
	ProcessNoise      float64 `json:"q"`
	MeasurementNoise  float64 `json:"r"`
	InitialCovariance float64 `json:"initial_p"`

	// Average: N in 1..200
	WindowSize int `json:"window"`
}

// DefaultConfig returns settings tuned for a 30 fps webcam.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeKalman,
		ProcessNoise:      0.0001, // Slow-moving head
		MeasurementNoise:  0.002,  // Landmark jitter is a few pixels at 640px
		InitialCovariance: 1.0,
		WindowSize:        10,
	}
}

// Validate checks the configuration. R must be strictly positive so the
// Kalman gain denominator P+Q+R can never reach zero.
func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeOff, ModeKalman, ModeAverage:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown mode %d", ErrInvalidParams, int(c.Mode)))
	}
	if err := checkNoise(c.ProcessNoise, c.MeasurementNoise); err != nil {
		errs = append(errs, err)
	}
	if !finiteNonNeg(c.InitialCovariance) {
		errs = append(errs, fmt.Errorf("%w: initial covariance must be finite and >= 0, got %v", ErrInvalidParams, c.InitialCovariance))
	}
	if c.WindowSize < MinWindow || c.WindowSize > MaxWindow {
		errs = append(errs, fmt.Errorf("%w: window size must be %d-%d, got %d", ErrInvalidParams, MinWindow, MaxWindow, c.WindowSize))
	}
	return errors.Join(errs...)
}

// checkNoise validates Kalman Q and R. Both must be finite: an infinite
// Q or R turns the gain into Inf/Inf.
func checkNoise(q, r float64) error {
	if !(r > 0) || math.IsInf(r, 0) {
		return fmt.Errorf("%w: measurement noise R must be finite and > 0, got %v", ErrInvalidParams, r)
	}
	if !finiteNonNeg(q) {
		return fmt.Errorf("%w: process noise Q must be finite and >= 0, got %v", ErrInvalidParams, q)
	}
	return nil
}

func finiteNonNeg(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
