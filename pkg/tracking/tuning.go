package tracking

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-parallax/pkg/smoothing"
)

// TuningParams holds the real-time adjustable tracking parameters.
// These can be modified via the tuning API without restarting.
type TuningParams struct {
	// Smoothing
	SmoothingMode    string  `json:"smoothing_mode,omitempty"`    // "off", "kalman" or "average"
	ProcessNoise     float64 `json:"process_noise,omitempty"`     // Kalman Q
	MeasurementNoise float64 `json:"measurement_noise,omitempty"` // Kalman R
	WindowSize       int     `json:"window_size,omitempty"`       // Average N (1-200)

	// Screen
	ScreenDiagonalIn float64 `json:"screen_diagonal_in,omitempty"`
	ScreenDistanceCm float64 `json:"screen_distance_cm,omitempty"`

	// Projection
	NearClip float64 `json:"near_clip,omitempty"`
	FarClip  float64 `json:"far_clip,omitempty"`

	// Stereo rig. Pointers so false can be sent explicitly.
	Stereo          *bool   `json:"stereo,omitempty"`
	EyeSeparationCm float64 `json:"eye_separation_cm,omitempty"`
	WorldScale      float64 `json:"world_scale,omitempty"`

	GlassesEnabled *bool `json:"glasses_enabled,omitempty"`
}

// GetTuningParams returns current tuning parameters.
func (h *HeadTrackingContext) GetTuningParams() TuningParams {
	s := h.config.Settings
	stereo := s.Rig.Stereo
	glasses := s.GlassesEnabled

	return TuningParams{
		SmoothingMode:    s.Smoothing.Mode.String(),
		ProcessNoise:     s.Smoothing.ProcessNoise,
		MeasurementNoise: s.Smoothing.MeasurementNoise,
		WindowSize:       s.Smoothing.WindowSize,
		ScreenDiagonalIn: s.Screen.DiagonalIn,
		ScreenDistanceCm: s.Screen.DistanceCm,
		NearClip:         s.Projection.NearClip,
		FarClip:          s.Projection.FarClip,
		Stereo:           &stereo,
		EyeSeparationCm:  s.Rig.EyeSeparationCm,
		WorldScale:       s.Rig.WorldScale,
		GlassesEnabled:   &glasses,
	}
}

// SetTuningParams updates tuning parameters at runtime.
// Only non-zero values are applied. The whole update is validated before
// any component changes; a rejected update leaves everything untouched.
// Accepted updates are persisted.
func (h *HeadTrackingContext) SetTuningParams(ctx context.Context, params TuningParams) error {
	s := h.config.Settings

	// Smoothing
	if params.SmoothingMode != "" {
		mode, err := smoothing.ParseMode(params.SmoothingMode)
		if err != nil {
			return err
		}
		s.Smoothing.Mode = mode
	}
	if params.ProcessNoise > 0 {
		s.Smoothing.ProcessNoise = params.ProcessNoise
	}
	if params.MeasurementNoise > 0 {
		s.Smoothing.MeasurementNoise = params.MeasurementNoise
	}
	if params.WindowSize > 0 {
		s.Smoothing.WindowSize = params.WindowSize
	}

	// Screen
	if params.ScreenDiagonalIn > 0 {
		s.Screen.DiagonalIn = params.ScreenDiagonalIn
	}
	if params.ScreenDistanceCm > 0 {
		s.Screen.DistanceCm = params.ScreenDistanceCm
	}

	// Projection
	if params.NearClip > 0 {
		s.Projection.NearClip = params.NearClip
	}
	if params.FarClip > 0 {
		s.Projection.FarClip = params.FarClip
	}

	// Stereo
	if params.Stereo != nil {
		s.Rig.Stereo = *params.Stereo
	}
	if params.EyeSeparationCm > 0 {
		s.Rig.EyeSeparationCm = params.EyeSeparationCm
	}
	if params.WorldScale > 0 {
		s.Rig.WorldScale = params.WorldScale
	}

	if params.GlassesEnabled != nil {
		s.GlassesEnabled = *params.GlassesEnabled
	}

	if err := s.Validate(); err != nil {
		return fmt.Errorf("tracking: rejected tuning: %w", err)
	}
	if err := h.apply(s); err != nil {
		return err
	}

	h.logger.Info("tuning updated",
		"smoothing", s.Smoothing.Mode,
		"q", s.Smoothing.ProcessNoise,
		"r", s.Smoothing.MeasurementNoise,
		"window", s.Smoothing.WindowSize,
		"stereo", s.Rig.Stereo,
		"near", s.Projection.NearClip,
		"far", s.Projection.FarClip)

	return h.persist(ctx)
}
