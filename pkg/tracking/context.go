package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang/geo/r3"

	"github.com/teslashibe/go-parallax/internal/log"
	"github.com/teslashibe/go-parallax/pkg/calibration"
	"github.com/teslashibe/go-parallax/pkg/frustum"
	"github.com/teslashibe/go-parallax/pkg/geom"
	"github.com/teslashibe/go-parallax/pkg/settings"
	"github.com/teslashibe/go-parallax/pkg/smoothing"
)

// ErrNoFace is returned when a calibration step needs a face in the
// latest frame and none was found.
var ErrNoFace = errors.New("tracking: no face in the latest frame")

// HeadTrackingContext owns every per-session component of the pipeline.
// It is not safe for concurrent use; Tracker serializes access.
type HeadTrackingContext struct {
	config Config
	store  settings.Store
	logger *slog.Logger

	smoother  *smoothing.Smoother
	estimator *calibration.Estimator
	builder   *frustum.Builder
	session   *calibration.Session
	screen    frustum.ScreenGeometry

	frame     uint64
	missed    int
	head      r3.Vector
	pose      calibration.HeadPose
	poseValid bool

	// Smoothed eyes of the latest frame, used by calibration steps
	eyes      geom.EyePair
	eyesFound bool

	lastResult *calibration.Result
}

// NewHeadTrackingContext wires the pipeline from a validated config.
// store may be nil, in which case calibration and tuning are not persisted.
func NewHeadTrackingContext(cfg Config, store settings.Store, logger *slog.Logger) (*HeadTrackingContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := cfg.Settings

	smoother, err := smoothing.New(s.Smoothing)
	if err != nil {
		return nil, err
	}
	builder, err := frustum.NewBuilder(s.Projection, s.Rig)
	if err != nil {
		return nil, err
	}
	builder.SetEpsilon(cfg.RebuildEpsilonCm)
	screen, err := s.Screen.Geometry()
	if err != nil {
		return nil, err
	}

	h := &HeadTrackingContext{
		config:    cfg,
		store:     store,
		logger:    log.Component(logger, "tracking"),
		smoother:  smoother,
		estimator: calibration.NewEstimator(s.Calibration, logger),
		builder:   builder,
		session:   calibration.NewSession(s.Calibration),
		screen:    screen,
		head:      r3.Vector{Z: s.Screen.DistanceCm},
	}
	h.session.OnTransition = func(from, to calibration.State) {
		h.logger.Info("calibration step", "session", h.session.ID, "from", from, "to", to)
	}
	return h, nil
}

// Step runs one frame through the pipeline.
func (h *HeadTrackingContext) Step(f FrameResult) Output {
	h.frame++

	if !f.Found || !f.Eyes.Finite() {
		// A new face must not be blended with the last one
		h.smoother.Reset()
		h.eyesFound = false
		h.missed++
		if h.missed == h.config.StaleAfter {
			// The viewer may come back at another distance
			h.estimator.Forget()
			h.logger.Debug("face lost", "frames", h.missed)
		}
		return h.output(false, false)
	}

	h.missed = 0
	left, right := h.smoother.Update(f.Eyes.Left, f.Eyes.Right)
	h.eyes = geom.EyePair{Left: left, Right: right}
	h.eyesFound = true

	pose, ok := h.estimator.Estimate(h.eyes)
	if ok {
		h.pose = pose
		h.poseValid = true
	}

	moved := ok && f.TrackingEnabled
	if moved {
		h.head = frustum.HeadPosition(pose.NormalizedX, pose.NormalizedY, pose.DistanceCm, h.screen)
	}
	return h.output(true, moved)
}

func (h *HeadTrackingContext) output(found, moved bool) Output {
	return Output{
		Frame:       h.frame,
		Found:       found,
		Moved:       moved,
		Pose:        h.pose,
		PoseValid:   h.poseValid,
		HeadCm:      h.head,
		Cameras:     h.builder.Build(h.head, h.screen),
		Stale:       h.missed >= h.config.StaleAfter,
		Calibration: h.session.State(),
	}
}

// Settings returns the configuration currently in effect.
func (h *HeadTrackingContext) Settings() settings.Settings {
	return h.config.Settings
}

// Screen returns the physical screen extents in use.
func (h *HeadTrackingContext) Screen() frustum.ScreenGeometry {
	return h.screen
}

// Frames returns the number of frames processed.
func (h *HeadTrackingContext) Frames() uint64 {
	return h.frame
}

// Builds returns how many times the cameras were recomputed.
func (h *HeadTrackingContext) Builds() int {
	return h.builder.Builds()
}

// apply pushes s into every component. s must already be valid.
func (h *HeadTrackingContext) apply(s settings.Settings) error {
	screen, err := s.Screen.Geometry()
	if err != nil {
		return err
	}
	if err := h.smoother.SetConfig(s.Smoothing); err != nil {
		return err
	}
	if err := h.builder.SetConfig(s.Projection); err != nil {
		return err
	}
	if err := h.builder.SetRig(s.Rig); err != nil {
		return err
	}
	h.estimator.SetConstants(s.Calibration)
	h.screen = screen
	h.config.Settings = s
	return nil
}

func (h *HeadTrackingContext) persist(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	return settings.Save(ctx, h.store, h.config.Settings)
}

// CalibrationStatus describes the calibration procedure for the API.
type CalibrationStatus struct {
	Active    bool                  `json:"active"`
	SessionID string                `json:"session_id,omitempty"`
	State     calibration.State     `json:"state"`
	Prompt    string                `json:"prompt,omitempty"`
	ElapsedMs int64                 `json:"elapsed_ms,omitempty"`
	Working   calibration.Constants `json:"working"`
	Constants calibration.Constants `json:"constants"`

	// LastResult is the most recent committed calibration, if any
	LastResult *calibration.Result `json:"last_result,omitempty"`
}

// CalibrationStatus reports the procedure state.
func (h *HeadTrackingContext) CalibrationStatus() CalibrationStatus {
	st := CalibrationStatus{
		Active:     h.session.Active(),
		State:      h.session.State(),
		Prompt:     h.session.State().Prompt(),
		Working:    h.session.Working(),
		Constants:  h.estimator.Constants(),
		LastResult: h.lastResult,
	}
	if st.Active {
		st.SessionID = h.session.ID.String()
		st.ElapsedMs = time.Since(h.session.StartedAt).Milliseconds()
	}
	return st
}

// StartCalibration begins a new procedure from the constants in use.
func (h *HeadTrackingContext) StartCalibration() (CalibrationStatus, error) {
	if err := h.session.Start(h.estimator.Constants()); err != nil {
		return h.CalibrationStatus(), err
	}
	h.logger.Info("calibration started", "session", h.session.ID)
	return h.CalibrationStatus(), nil
}

// NextCalibration records the current step from the latest smoothed eyes
// and advances. Completing the Sliders step applies the new constants and
// screen size, persists them and returns the procedure to Off.
func (h *HeadTrackingContext) NextCalibration(ctx context.Context, sliders calibration.Sliders) (CalibrationStatus, error) {
	if !h.session.Active() {
		return h.CalibrationStatus(), calibration.ErrNotActive
	}
	if !h.eyesFound && h.session.State() != calibration.StateReset {
		return h.CalibrationStatus(), ErrNoFace
	}

	state, err := h.session.Next(h.eyes, sliders)
	if err != nil {
		return h.CalibrationStatus(), err
	}
	if state != calibration.StateReset {
		return h.CalibrationStatus(), nil
	}

	res, _ := h.session.Result()
	s := h.config.Settings
	s.Calibration = res.Constants
	s.Screen.DiagonalIn = res.Sliders.DiagonalIn
	s.Screen.DistanceCm = res.Sliders.DistanceCm

	var persistErr error
	if err := s.Validate(); err != nil {
		persistErr = err
	} else if err := h.apply(s); err != nil {
		persistErr = err
	} else {
		h.lastResult = &res
		h.logger.Info("calibration committed",
			"session", h.session.ID,
			"left", res.Constants.Left, "right", res.Constants.Right,
			"bottom", res.Constants.Bottom, "top", res.Constants.Top,
			"focal_length", res.Constants.FocalLength)
		if h.store != nil {
			persistErr = settings.SaveCalibration(ctx, h.store, s.Calibration, s.Screen)
		}
	}

	// Reset -> Off
	h.session.Next(h.eyes, sliders)

	if persistErr != nil {
		return h.CalibrationStatus(), fmt.Errorf("tracking: save calibration: %w", persistErr)
	}
	return h.CalibrationStatus(), nil
}

// CancelCalibration abandons the procedure and keeps the previous constants.
func (h *HeadTrackingContext) CancelCalibration() CalibrationStatus {
	if h.session.Active() {
		h.logger.Info("calibration cancelled", "session", h.session.ID, "state", h.session.State())
	}
	h.session.Cancel()
	return h.CalibrationStatus()
}
