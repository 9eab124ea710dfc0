package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/teslashibe/go-parallax/pkg/calibration"
	"github.com/teslashibe/go-parallax/pkg/frustum"
	"github.com/teslashibe/go-parallax/pkg/smoothing"
)

// Persisted keys
const (
	KeySmoothingMode   = "smoothing.mode"
	KeySmoothingQ      = "smoothing.q"
	KeySmoothingR      = "smoothing.r"
	KeySmoothingP0     = "smoothing.initial_p"
	KeySmoothingWindow = "smoothing.window"

	KeyCalibrationLeft   = "calibration.left"
	KeyCalibrationRight  = "calibration.right"
	KeyCalibrationBottom = "calibration.bottom"
	KeyCalibrationTop    = "calibration.top"
	KeyFocalLength       = "calibration.focal_length"

	KeyScreenDiagonal   = "screen.diagonal_in"
	KeyScreenAspectW    = "screen.aspect_w"
	KeyScreenAspectH    = "screen.aspect_h"
	KeyScreenDistanceCm = "screen.distance_cm"

	KeyNearClip = "projection.near"
	KeyFarClip  = "projection.far"

	KeyStereo          = "stereo.enabled"
	KeyEyeSeparationCm = "stereo.eye_separation_cm"
	KeyWorldScale      = "stereo.world_scale"

	KeyGlassesEnabled = "glasses.enabled"
)

// Screen is the physical display description entered by the viewer.
type Screen struct {
	DiagonalIn float64 `json:"diagonal_in"`
	AspectW    float64 `json:"aspect_w"`
	AspectH    float64 `json:"aspect_h"`

	// DistanceCm is the viewing distance last entered on the sliders.
	DistanceCm float64 `json:"distance_cm"`
}

// DefaultScreen returns a 24" 16:9 monitor viewed from 60cm.
func DefaultScreen() Screen {
	return Screen{
		DiagonalIn: 24,
		AspectW:    frustum.DefaultAspectW,
		AspectH:    frustum.DefaultAspectH,
		DistanceCm: 60,
	}
}

// Geometry converts the screen to physical extents.
func (s Screen) Geometry() (frustum.ScreenGeometry, error) {
	return frustum.ScreenFromDiagonal(s.DiagonalIn, s.AspectW, s.AspectH)
}

// Validate checks the screen describes a real rectangle and distance.
func (s Screen) Validate() error {
	if _, err := s.Geometry(); err != nil {
		return err
	}
	if !(s.DistanceCm > 0) || math.IsInf(s.DistanceCm, 0) {
		return fmt.Errorf("%w: distance %v", frustum.ErrInvalidScreen, s.DistanceCm)
	}
	return nil
}

// Settings is the complete persisted configuration.
type Settings struct {
	Smoothing      smoothing.Config      `json:"smoothing"`
	Calibration    calibration.Constants `json:"calibration"`
	Screen         Screen                `json:"screen"`
	Projection     frustum.Config        `json:"projection"`
	Rig            frustum.RigConfig     `json:"rig"`
	GlassesEnabled bool                  `json:"glasses_enabled"`
}

// Defaults returns the configuration used for anything not stored.
func Defaults() Settings {
	return Settings{
		Smoothing:   smoothing.DefaultConfig(),
		Calibration: calibration.DefaultConstants(),
		Screen:      DefaultScreen(),
		Projection:  frustum.DefaultConfig(),
		Rig:         frustum.DefaultRigConfig(),
	}
}

// Validate checks every component config.
func (s Settings) Validate() error {
	return errors.Join(
		s.Smoothing.Validate(),
		s.Calibration.Validate(),
		s.Screen.Validate(),
		s.Projection.Validate(),
		s.Rig.Validate(),
	)
}

// loader reads typed values out of a raw map, falling back to the default
// and logging once per bad key.
type loader struct {
	raw    map[string]string
	logger *slog.Logger
}

func (l loader) float(key string, def float64) float64 {
	s, ok := l.raw[key]
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		l.logger.Warn("malformed setting, using default", "key", key, "value", s, "default", def)
		return def
	}
	return v
}

func (l loader) int(key string, def int) int {
	s, ok := l.raw[key]
	if !ok {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		l.logger.Warn("malformed setting, using default", "key", key, "value", s, "default", def)
		return def
	}
	return v
}

func (l loader) bool(key string, def bool) bool {
	s, ok := l.raw[key]
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		l.logger.Warn("malformed setting, using default", "key", key, "value", s, "default", def)
		return def
	}
	return v
}

func (l loader) mode(key string, def smoothing.Mode) smoothing.Mode {
	s, ok := l.raw[key]
	if !ok {
		return def
	}
	v, err := smoothing.ParseMode(s)
	if err != nil {
		l.logger.Warn("malformed setting, using default", "key", key, "value", s, "default", def)
		return def
	}
	return v
}

// Load reads settings from store. Missing or malformed values fall back to
// Defaults; a group that fails validation is replaced by its defaults as a
// whole, so the result always validates. Only store failures are returned.
func Load(ctx context.Context, store Store, logger *slog.Logger) (Settings, error) {
	if logger == nil {
		logger = slog.Default()
	}
	raw, err := store.All(ctx)
	if err != nil {
		return Defaults(), fmt.Errorf("settings: load: %w", err)
	}

	def := Defaults()
	l := loader{raw: raw, logger: logger}

	s := Settings{
		Smoothing: smoothing.Config{
			Mode:              l.mode(KeySmoothingMode, def.Smoothing.Mode),
			ProcessNoise:      l.float(KeySmoothingQ, def.Smoothing.ProcessNoise),
			MeasurementNoise:  l.float(KeySmoothingR, def.Smoothing.MeasurementNoise),
			InitialCovariance: l.float(KeySmoothingP0, def.Smoothing.InitialCovariance),
			WindowSize:        l.int(KeySmoothingWindow, def.Smoothing.WindowSize),
		},
		Calibration: calibration.Constants{
			Left:        l.float(KeyCalibrationLeft, def.Calibration.Left),
			Right:       l.float(KeyCalibrationRight, def.Calibration.Right),
			Bottom:      l.float(KeyCalibrationBottom, def.Calibration.Bottom),
			Top:         l.float(KeyCalibrationTop, def.Calibration.Top),
			FocalLength: l.float(KeyFocalLength, def.Calibration.FocalLength),
		},
		Screen: Screen{
			DiagonalIn: l.float(KeyScreenDiagonal, def.Screen.DiagonalIn),
			AspectW:    l.float(KeyScreenAspectW, def.Screen.AspectW),
			AspectH:    l.float(KeyScreenAspectH, def.Screen.AspectH),
			DistanceCm: l.float(KeyScreenDistanceCm, def.Screen.DistanceCm),
		},
		Projection: frustum.Config{
			NearClip:      l.float(KeyNearClip, def.Projection.NearClip),
			FarClip:       l.float(KeyFarClip, def.Projection.FarClip),
			MinDistanceCm: def.Projection.MinDistanceCm,
		},
		Rig: frustum.RigConfig{
			Stereo:          l.bool(KeyStereo, def.Rig.Stereo),
			EyeSeparationCm: l.float(KeyEyeSeparationCm, def.Rig.EyeSeparationCm),
			WorldScale:      l.float(KeyWorldScale, def.Rig.WorldScale),
		},
		GlassesEnabled: l.bool(KeyGlassesEnabled, def.GlassesEnabled),
	}

	if err := s.Smoothing.Validate(); err != nil {
		logger.Warn("stored smoothing config invalid, using defaults", "error", err)
		s.Smoothing = def.Smoothing
	}
	if err := s.Calibration.Validate(); err != nil {
		logger.Warn("stored calibration invalid, using defaults", "error", err)
		s.Calibration = def.Calibration
	}
	if err := s.Screen.Validate(); err != nil {
		logger.Warn("stored screen invalid, using defaults", "error", err)
		s.Screen = def.Screen
	}
	if err := s.Projection.Validate(); err != nil {
		logger.Warn("stored projection invalid, using defaults", "error", err)
		s.Projection = def.Projection
	}
	if err := s.Rig.Validate(); err != nil {
		logger.Warn("stored rig invalid, using defaults", "error", err)
		s.Rig = def.Rig
	}

	return s, nil
}

// Save writes every setting in one transaction.
func Save(ctx context.Context, store Store, s Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("settings: refusing to save: %w", err)
	}
	values := calibrationValues(s.Calibration, s.Screen)
	values[KeySmoothingMode] = s.Smoothing.Mode.String()
	values[KeySmoothingQ] = formatFloat(s.Smoothing.ProcessNoise)
	values[KeySmoothingR] = formatFloat(s.Smoothing.MeasurementNoise)
	values[KeySmoothingP0] = formatFloat(s.Smoothing.InitialCovariance)
	values[KeySmoothingWindow] = strconv.Itoa(s.Smoothing.WindowSize)
	values[KeyNearClip] = formatFloat(s.Projection.NearClip)
	values[KeyFarClip] = formatFloat(s.Projection.FarClip)
	values[KeyStereo] = strconv.FormatBool(s.Rig.Stereo)
	values[KeyEyeSeparationCm] = formatFloat(s.Rig.EyeSeparationCm)
	values[KeyWorldScale] = formatFloat(s.Rig.WorldScale)
	values[KeyGlassesEnabled] = strconv.FormatBool(s.GlassesEnabled)
	return store.SetMany(ctx, values)
}

// SaveCalibration writes only the calibration constants and screen values,
// atomically.
func SaveCalibration(ctx context.Context, store Store, c calibration.Constants, screen Screen) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("settings: refusing to save: %w", err)
	}
	if err := screen.Validate(); err != nil {
		return fmt.Errorf("settings: refusing to save: %w", err)
	}
	return store.SetMany(ctx, calibrationValues(c, screen))
}

func calibrationValues(c calibration.Constants, screen Screen) map[string]string {
	return map[string]string{
		KeyCalibrationLeft:   formatFloat(c.Left),
		KeyCalibrationRight:  formatFloat(c.Right),
		KeyCalibrationBottom: formatFloat(c.Bottom),
		KeyCalibrationTop:    formatFloat(c.Top),
		KeyFocalLength:       formatFloat(c.FocalLength),
		KeyScreenDiagonal:    formatFloat(screen.DiagonalIn),
		KeyScreenAspectW:     formatFloat(screen.AspectW),
		KeyScreenAspectH:     formatFloat(screen.AspectH),
		KeyScreenDistanceCm:  formatFloat(screen.DistanceCm),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
