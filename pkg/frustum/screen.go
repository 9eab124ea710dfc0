// Package frustum builds off-axis perspective projections that make a
// physical screen behave like a window into the scene.
//
// Screen frame: the screen is centered on the origin in the z=0 plane,
// X points right, Y points up and the viewer sits on +Z looking toward -Z.
// All physical lengths are centimeters.
package frustum

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// CmPerInch converts screen diagonals to centimeters.
const CmPerInch = 2.54

// Default aspect ratio for screens.
const (
	DefaultAspectW = 16.0
	DefaultAspectH = 9.0
)

// ErrInvalidScreen is returned for non-positive screen dimensions.
var ErrInvalidScreen = errors.New("frustum: invalid screen geometry")

// ScreenGeometry is the physical size of the display.
type ScreenGeometry struct {
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
}

// ScreenFromDiagonal derives width and height from a diagonal in inches
// and an aspect ratio.
func ScreenFromDiagonal(diagonalIn, aspectW, aspectH float64) (ScreenGeometry, error) {
	if !(diagonalIn > 0) || !(aspectW > 0) || !(aspectH > 0) {
		return ScreenGeometry{}, fmt.Errorf("%w: diagonal %v aspect %v:%v", ErrInvalidScreen, diagonalIn, aspectW, aspectH)
	}
	diagCm := diagonalIn * CmPerInch
	hyp := math.Hypot(aspectW, aspectH)
	s := ScreenGeometry{
		WidthCm:  diagCm * aspectW / hyp,
		HeightCm: diagCm * aspectH / hyp,
	}
	// Catches Inf inputs and diagonals that overflow once converted
	if err := s.Validate(); err != nil {
		return ScreenGeometry{}, err
	}
	return s, nil
}

// Validate checks both dimensions are positive and finite.
func (s ScreenGeometry) Validate() error {
	if !(s.WidthCm > 0) || !(s.HeightCm > 0) || math.IsInf(s.WidthCm, 0) || math.IsInf(s.HeightCm, 0) {
		return fmt.Errorf("%w: %vx%v cm", ErrInvalidScreen, s.WidthCm, s.HeightCm)
	}
	return nil
}

// Aspect returns width / height.
func (s ScreenGeometry) Aspect() float64 {
	return s.WidthCm / s.HeightCm
}

// Corners returns the screen corners in the screen frame, counter-clockwise
// from bottom-left.
func (s ScreenGeometry) Corners() [4]r3.Vector {
	w, h := s.WidthCm/2, s.HeightCm/2
	return [4]r3.Vector{
		{X: -w, Y: -h},
		{X: w, Y: -h},
		{X: w, Y: h},
		{X: -w, Y: h},
	}
}

// HeadPosition places the head in the screen frame from a normalized
// position (0..1 across the calibrated screen edges, values outside allowed)
// and a distance from the screen plane.
func HeadPosition(normalizedX, normalizedY, distanceCm float64, s ScreenGeometry) r3.Vector {
	return r3.Vector{
		X: (normalizedX - 0.5) * s.WidthCm,
		Y: (normalizedY - 0.5) * s.HeightCm,
		Z: distanceCm,
	}
}
