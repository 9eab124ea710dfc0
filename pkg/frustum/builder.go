package frustum

import (
	"math"

	"github.com/golang/geo/r3"
)

// DefaultInputEpsilonCm is the head movement below which the builder
// reuses the previous cameras.
const DefaultInputEpsilonCm = 0.01

// Builder caches the cameras of the last frame and only rebuilds when the
// head, screen or configuration changed.
type Builder struct {
	config  Config
	rig     RigConfig
	epsilon float64

	lastHead   r3.Vector
	lastScreen ScreenGeometry
	cameras    []Camera
	valid      bool
	builds     int
}

// NewBuilder creates a builder from validated configs.
func NewBuilder(c Config, rig RigConfig) (*Builder, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := rig.Validate(); err != nil {
		return nil, err
	}
	return &Builder{config: c, rig: rig, epsilon: DefaultInputEpsilonCm}, nil
}

// Config returns the projection config.
func (b *Builder) Config() Config { return b.config }

// Rig returns the rig config.
func (b *Builder) Rig() RigConfig { return b.rig }

// SetConfig replaces the projection config and forces a rebuild.
func (b *Builder) SetConfig(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	b.config = c
	b.valid = false
	return nil
}

// SetRig replaces the rig config and forces a rebuild.
func (b *Builder) SetRig(rig RigConfig) error {
	if err := rig.Validate(); err != nil {
		return err
	}
	b.rig = rig
	b.valid = false
	return nil
}

// SetEpsilon changes the rebuild threshold. Zero rebuilds every call.
func (b *Builder) SetEpsilon(eps float64) {
	b.epsilon = math.Max(0, eps)
}

// Build returns the cameras for head, rebuilding only when needed.
// The returned slice must not be modified.
func (b *Builder) Build(head r3.Vector, screen ScreenGeometry) []Camera {
	if b.valid && b.epsilon > 0 && screen == b.lastScreen && head.Sub(b.lastHead).Norm() <= b.epsilon {
		return b.cameras
	}
	b.cameras = BuildCameras(head, screen, b.config, b.rig)
	b.lastHead = head
	b.lastScreen = screen
	b.valid = true
	b.builds++
	return b.cameras
}

// Last returns the most recent cameras, or nil before the first build.
func (b *Builder) Last() []Camera {
	return b.cameras
}

// Builds returns how many times the cameras were recomputed.
func (b *Builder) Builds() int {
	return b.builds
}
