// Package calibration converts smoothed eye positions into a head pose and
// runs the guided procedure that records the calibration constants.
//
// Distance uses a pinhole model: the eye separation seen by the camera
// shrinks in inverse proportion to the head's distance, so
//
//	distanceCm = RealEyeSeparationCm * focalLength / separation
//
// and DeriveFocalLength is the same equation solved for focalLength.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-parallax/pkg/geom"
)

const (
	// RealEyeSeparationCm is the average adult interpupillary distance.
	RealEyeSeparationCm = 6.0

	// MinEyeSeparation is the smallest eye-space separation treated as a
	// real pair of eyes. Below it distance estimation is unavailable.
	MinEyeSeparation = 1e-4

	// DefaultFocalLength reads an eye separation of 0.1 as 60 cm.
	DefaultFocalLength = 1.0
)

var (
	// ErrDegenerateSeparation means the eyes are too close together to
	// estimate a distance.
	ErrDegenerateSeparation = errors.New("calibration: degenerate eye separation")

	// ErrInvalidBounds means left >= right or bottom >= top.
	ErrInvalidBounds = errors.New("calibration: invalid bounds")

	// ErrInvalidFocalLength means the focal length is not a positive number.
	ErrInvalidFocalLength = errors.New("calibration: invalid focal length")

	// ErrInvalidDistance means a known calibration distance is not positive.
	ErrInvalidDistance = errors.New("calibration: invalid distance")
)

// Constants are the persisted calibration values. Bounds are the eye-center
// coordinates recorded while the viewer lined up with each screen edge.
type Constants struct {
	Left        float64 `json:"left"`
	Right       float64 `json:"right"`
	Bottom      float64 `json:"bottom"`
	Top         float64 `json:"top"`
	FocalLength float64 `json:"focal_length"`
}

// DefaultConstants returns the fallback used when nothing valid is stored:
// the full unit rectangle and DefaultFocalLength.
func DefaultConstants() Constants {
	return Constants{
		Left:        0,
		Right:       1,
		Bottom:      0,
		Top:         1,
		FocalLength: DefaultFocalLength,
	}
}

// Validate checks left < right, bottom < top and focalLength > 0.
func (c Constants) Validate() error {
	var errs []error
	if err := c.ValidateBounds(); err != nil {
		errs = append(errs, err)
	}
	if !(c.FocalLength > 0) || math.IsInf(c.FocalLength, 0) {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidFocalLength, c.FocalLength))
	}
	return errors.Join(errs...)
}

// ValidateBounds checks only the bounding rectangle.
func (c Constants) ValidateBounds() error {
	for _, v := range []float64{c.Left, c.Right, c.Bottom, c.Top} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite bound %v", ErrInvalidBounds, v)
		}
	}
	if !(c.Left < c.Right) {
		return fmt.Errorf("%w: left %.4f must be < right %.4f", ErrInvalidBounds, c.Left, c.Right)
	}
	if !(c.Bottom < c.Top) {
		return fmt.Errorf("%w: bottom %.4f must be < top %.4f", ErrInvalidBounds, c.Bottom, c.Top)
	}
	return nil
}

// HeadDistanceCm estimates the viewer's distance from the camera.
func HeadDistanceCm(eyes geom.EyePair, focalLength float64) (float64, error) {
	sep := eyes.Separation()
	if !(sep >= MinEyeSeparation) || math.IsInf(sep, 0) {
		return 0, fmt.Errorf("%w: %v", ErrDegenerateSeparation, sep)
	}
	if !(focalLength > 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFocalLength, focalLength)
	}
	return RealEyeSeparationCm * focalLength / sep, nil
}

// DeriveFocalLength solves the distance model for the focal length given
// eyes observed at a known distance.
func DeriveFocalLength(knownDistanceCm float64, eyes geom.EyePair) (float64, error) {
	if !(knownDistanceCm > 0) || math.IsInf(knownDistanceCm, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDistance, knownDistanceCm)
	}
	sep := eyes.Separation()
	if !(sep >= MinEyeSeparation) || math.IsInf(sep, 0) {
		return 0, fmt.Errorf("%w: %v", ErrDegenerateSeparation, sep)
	}
	return knownDistanceCm * sep / RealEyeSeparationCm, nil
}

// NormalizedHeadPosition remaps the eye center from the calibrated
// rectangle onto [0,1] per axis. Points outside the rectangle extrapolate.
func NormalizedHeadPosition(eyes geom.EyePair, c Constants) (x, y float64) {
	center := eyes.Center()
	x = geom.Map(center.X, c.Left, c.Right, 0, 1)
	y = geom.Map(center.Y, c.Bottom, c.Top, 0, 1)
	return x, y
}
