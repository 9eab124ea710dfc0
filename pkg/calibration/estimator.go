package calibration

import (
	"errors"
	"log/slog"

	"github.com/teslashibe/go-parallax/internal/log"
	"github.com/teslashibe/go-parallax/pkg/geom"
)

const separationLogKey = "degenerate-separation"

// HeadPose is the per-frame result handed to the projection builder.
type HeadPose struct {
	DistanceCm  float64 `json:"distance_cm"`
	NormalizedX float64 `json:"normalized_x"`
	NormalizedY float64 `json:"normalized_y"`

	// DistanceHeld is true when DistanceCm is the last valid value because
	// this frame's eye separation was degenerate.
	DistanceHeld bool `json:"distance_held"`
}

// Estimator turns smoothed eye pairs into head poses using a set of
// constants. It holds the last valid distance across degenerate frames.
type Estimator struct {
	constants Constants
	logger    *slog.Logger
	once      *log.Once

	lastDistance float64
	hasDistance  bool
}

// NewEstimator creates an estimator. Invalid constants are replaced by
// DefaultConstants so the first frame never divides by zero.
func NewEstimator(c Constants, logger *slog.Logger) *Estimator {
	e := &Estimator{
		logger: log.Component(logger, "calibration"),
		once:   log.NewOnce(),
	}
	e.SetConstants(c)
	return e
}

// Constants returns the constants in use.
func (e *Estimator) Constants() Constants {
	return e.constants
}

// SetConstants swaps in new constants. Invalid ones fall back to defaults.
func (e *Estimator) SetConstants(c Constants) {
	if err := c.Validate(); err != nil {
		e.logger.Warn("invalid calibration constants, using defaults", "error", err)
		c = DefaultConstants()
	}
	e.constants = c
}

// Estimate computes the head pose for one frame. ok is false only when no
// valid distance has ever been measured.
func (e *Estimator) Estimate(eyes geom.EyePair) (pose HeadPose, ok bool) {
	pose.NormalizedX, pose.NormalizedY = NormalizedHeadPosition(eyes, e.constants)

	dist, err := HeadDistanceCm(eyes, e.constants.FocalLength)
	if err != nil {
		if errors.Is(err, ErrDegenerateSeparation) {
			e.once.Do(separationLogKey, func() {
				e.logger.Warn("eye separation too small, holding last distance",
					"separation", eyes.Separation(), "held_cm", e.lastDistance)
			})
		}
		if !e.hasDistance {
			return pose, false
		}
		pose.DistanceCm = e.lastDistance
		pose.DistanceHeld = true
		return pose, true
	}

	if e.once.Fired(separationLogKey) {
		e.logger.Info("eye separation recovered", "distance_cm", dist)
		e.once.Reset(separationLogKey)
	}
	e.lastDistance = dist
	e.hasDistance = true
	pose.DistanceCm = dist
	return pose, true
}

// LastDistance returns the last valid distance, if any.
func (e *Estimator) LastDistance() (float64, bool) {
	return e.lastDistance, e.hasDistance
}

// Forget drops the held distance.
func (e *Estimator) Forget() {
	e.lastDistance = 0
	e.hasDistance = false
}
