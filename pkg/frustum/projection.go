package frustum

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// ErrInvalidClip is returned when near/far planes are not 0 < near < far.
var ErrInvalidClip = errors.New("frustum: invalid clip planes")

// maxDistanceCm caps runaway distances (10 km) so the near extents never
// collapse to zero width.
const maxDistanceCm = 1e6

// Config holds projection parameters. Clip planes are in scene units.
type Config struct {
	NearClip float64 `json:"near_clip"`
	FarClip  float64 `json:"far_clip"`

	// MinDistanceCm is the floor for the head's distance from the screen
	// plane. Heads at or behind the plane are clamped to it.
	MinDistanceCm float64 `json:"min_distance_cm"`
}

// DefaultConfig returns clip planes suited to a desk-sized scene.
func DefaultConfig() Config {
	return Config{
		NearClip:      0.05,
		FarClip:       1000,
		MinDistanceCm: 1.0,
	}
}

// Validate checks 0 < near < far and a positive distance floor.
func (c Config) Validate() error {
	var errs []error
	if !(c.NearClip > 0) || !(c.FarClip > c.NearClip) || math.IsInf(c.FarClip, 0) {
		errs = append(errs, fmt.Errorf("%w: near %v far %v", ErrInvalidClip, c.NearClip, c.FarClip))
	}
	if !(c.MinDistanceCm > 0) || math.IsInf(c.MinDistanceCm, 0) {
		errs = append(errs, fmt.Errorf("%w: min distance %v must be > 0", ErrInvalidClip, c.MinDistanceCm))
	}
	return errors.Join(errs...)
}

// Extents are the frustum bounds projected onto the near plane.
type Extents struct {
	Left, Right, Bottom, Top float64

	// Ratio is near / screenDistance, the similar-triangles scale from the
	// screen plane to the near plane.
	Ratio float64

	// DistanceCm is the head distance actually used, after clamping.
	DistanceCm float64
	Clamped    bool
}

// ComputeExtents returns the near-plane extents for a head at position
// head in the screen frame.
func ComputeExtents(head r3.Vector, screen ScreenGeometry, c Config) Extents {
	dist := head.Z
	clamped := false
	switch {
	case !(dist >= c.MinDistanceCm):
		dist = c.MinDistanceCm
		clamped = true
	case dist > maxDistanceCm:
		dist = maxDistanceCm
		clamped = true
	}
	ratio := c.NearClip / dist

	halfW, halfH := screen.WidthCm/2, screen.HeightCm/2
	return Extents{
		Left:       (-halfW - head.X) * ratio,
		Right:      (halfW - head.X) * ratio,
		Bottom:     (-halfH - head.Y) * ratio,
		Top:        (halfH - head.Y) * ratio,
		Ratio:      ratio,
		DistanceCm: dist,
		Clamped:    clamped,
	}
}

// BuildProjection returns the off-axis projection for a camera at head
// (screen frame, centimeters) looking through the screen. The head's
// lateral position may lie far outside the screen; its distance is clamped
// to c.MinDistanceCm so the result is always finite.
func BuildProjection(head r3.Vector, screen ScreenGeometry, c Config) (Mat4, Extents) {
	e := ComputeExtents(centerNonFinite(head), screen, c)
	return OffCenter(e.Left, e.Right, e.Bottom, e.Top, c.NearClip, c.FarClip), e
}

// centerNonFinite moves a NaN or infinite lateral coordinate back to the
// screen center. Z is left to the distance clamp.
func centerNonFinite(head r3.Vector) r3.Vector {
	if math.IsNaN(head.X) || math.IsInf(head.X, 0) {
		head.X = 0
	}
	if math.IsNaN(head.Y) || math.IsInf(head.Y, 0) {
		head.Y = 0
	}
	return head
}
