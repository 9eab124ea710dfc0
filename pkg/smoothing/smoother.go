package smoothing

import (
	"fmt"

	"github.com/teslashibe/go-parallax/pkg/geom"
)

// Filter is the contract every strategy satisfies.
type Filter[V any] interface {
	Update(V) V
	Reset()
}

// Passthrough is the identity filter used by ModeOff.
type Passthrough[V any] struct{}

// Update returns v unchanged.
func (Passthrough[V]) Update(v V) V { return v }

// Reset is a no-op.
func (Passthrough[V]) Reset() {}

// Smoother filters the left and right eye keypoints using the configured
// strategy. Mode-specific state is allocated on first use of that mode and
// dropped whenever the mode changes or Reset is called.
type Smoother struct {
	config Config

	kalmanLeft  *Kalman[geom.Vec2]
	kalmanRight *Kalman[geom.Vec2]
	average     *Average[geom.EyePair]
}

// New creates a smoother from a validated configuration.
func New(config Config) (*Smoother, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Smoother{config: config}, nil
}

// Config returns the active configuration.
func (s *Smoother) Config() Config {
	return s.config
}

// Update filters one raw frame and returns the smoothed eyes.
func (s *Smoother) Update(rawLeft, rawRight geom.Vec2) (geom.Vec2, geom.Vec2) {
	switch s.config.Mode {
	case ModeKalman:
		s.ensureKalman()
		return s.kalmanLeft.Update(rawLeft), s.kalmanRight.Update(rawRight)
	case ModeAverage:
		s.ensureAverage()
		out := s.average.Update(geom.EyePair{Left: rawLeft, Right: rawRight})
		return out.Left, out.Right
	default:
		return rawLeft, rawRight
	}
}

// UpdatePair is Update for an EyePair.
func (s *Smoother) UpdatePair(raw geom.EyePair) geom.EyePair {
	l, r := s.Update(raw.Left, raw.Right)
	return geom.EyePair{Left: l, Right: r}
}

// Reset clears all filter state. Call it when the detector loses the face.
func (s *Smoother) Reset() {
	s.kalmanLeft = nil
	s.kalmanRight = nil
	s.average = nil
}

// SetConfig applies a new configuration. Changing the mode clears state.
// Q and R changes keep the current estimate and covariance; a smaller
// window truncates the buffer immediately.
func (s *Smoother) SetConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Mode != s.config.Mode {
		s.Reset()
	}
	if s.kalmanLeft != nil {
		if err := s.kalmanLeft.SetNoise(config.ProcessNoise, config.MeasurementNoise); err != nil {
			return fmt.Errorf("left eye: %w", err)
		}
		if err := s.kalmanRight.SetNoise(config.ProcessNoise, config.MeasurementNoise); err != nil {
			return fmt.Errorf("right eye: %w", err)
		}
		s.kalmanLeft.p0 = config.InitialCovariance
		s.kalmanRight.p0 = config.InitialCovariance
	}
	if s.average != nil {
		if err := s.average.SetWindow(config.WindowSize); err != nil {
			return err
		}
	}
	s.config = config
	return nil
}

func (s *Smoother) ensureKalman() {
	if s.kalmanLeft != nil {
		return
	}
	// Config was validated, so construction cannot fail.
	s.kalmanLeft, _ = NewKalman[geom.Vec2](s.config.ProcessNoise, s.config.MeasurementNoise, s.config.InitialCovariance)
	s.kalmanRight, _ = NewKalman[geom.Vec2](s.config.ProcessNoise, s.config.MeasurementNoise, s.config.InitialCovariance)
}

func (s *Smoother) ensureAverage() {
	if s.average != nil {
		return
	}
	s.average, _ = NewAverage[geom.EyePair](s.config.WindowSize)
}
