package frustum

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// ErrInvalidRig is returned for unusable camera rig parameters.
var ErrInvalidRig = errors.New("frustum: invalid rig")

// Eye identifies which camera of the rig a projection belongs to.
type Eye string

const (
	EyeCenter Eye = "center"
	EyeLeft   Eye = "left"
	EyeRight  Eye = "right"
)

// RigConfig describes the cameras driven by the head position.
type RigConfig struct {
	Stereo bool `json:"stereo"`

	// EyeSeparationCm is the lateral distance between stereo cameras.
	EyeSeparationCm float64 `json:"eye_separation_cm"`

	// WorldScale converts centimeters to scene units for camera positions.
	WorldScale float64 `json:"world_scale"`
}

// DefaultRigConfig returns a mono rig with one scene unit per centimeter.
func DefaultRigConfig() RigConfig {
	return RigConfig{
		Stereo:          false,
		EyeSeparationCm: 6.0,
		WorldScale:      1.0,
	}
}

// Validate checks the rig parameters.
func (r RigConfig) Validate() error {
	var errs []error
	if !(r.WorldScale > 0) || math.IsInf(r.WorldScale, 0) {
		errs = append(errs, fmt.Errorf("%w: world scale must be > 0, got %v", ErrInvalidRig, r.WorldScale))
	}
	if r.Stereo && (!(r.EyeSeparationCm >= 0) || math.IsInf(r.EyeSeparationCm, 0)) {
		errs = append(errs, fmt.Errorf("%w: eye separation must be finite and >= 0, got %v", ErrInvalidRig, r.EyeSeparationCm))
	}
	return errors.Join(errs...)
}

// Camera is one rendering camera for a frame.
type Camera struct {
	Eye Eye `json:"eye"`

	// PositionCm is the camera position in the screen frame.
	PositionCm r3.Vector `json:"position_cm"`

	// Position is PositionCm in scene units.
	Position r3.Vector `json:"position"`

	Projection Mat4    `json:"projection"`
	Extents    Extents `json:"extents"`
}

// View returns the world-to-camera matrix. Cameras never rotate; the screen
// stays fixed and only the eye point moves.
func (c Camera) View() Mat4 {
	return Translation(c.Position.Mul(-1))
}

// ViewProjection returns Projection * View.
func (c Camera) ViewProjection() Mat4 {
	return c.Projection.Mul(c.View())
}

// eyeOffsets returns the lateral offsets in centimeters for each camera.
func (r RigConfig) eyeOffsets() []struct {
	eye Eye
	dx  float64
} {
	if !r.Stereo {
		return []struct {
			eye Eye
			dx  float64
		}{{EyeCenter, 0}}
	}
	half := r.EyeSeparationCm / 2
	return []struct {
		eye Eye
		dx  float64
	}{{EyeLeft, -half}, {EyeRight, half}}
}

// BuildCameras builds one camera (mono) or two (stereo) for a head at
// head in the screen frame.
func BuildCameras(head r3.Vector, screen ScreenGeometry, c Config, rig RigConfig) []Camera {
	head = centerNonFinite(head)
	offsets := rig.eyeOffsets()
	cams := make([]Camera, 0, len(offsets))
	for _, o := range offsets {
		pos := head.Add(r3.Vector{X: o.dx})
		proj, ext := BuildProjection(pos, screen, c)
		// Keep the camera where the frustum was actually built.
		pos.Z = ext.DistanceCm
		cams = append(cams, Camera{
			Eye:        o.eye,
			PositionCm: pos,
			Position:   pos.Mul(rig.WorldScale),
			Projection: proj,
			Extents:    ext,
		})
	}
	return cams
}
