// Package detection finds faces and eye landmarks in webcam frames
package detection

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-parallax/pkg/geom"
)

// Landmark indices in Detection.Landmarks (YuNet order, viewer's perspective)
const (
	LandmarkRightEye = iota
	LandmarkLeftEye
	LandmarkNose
	LandmarkRightMouth
	LandmarkLeftMouth
	NumLandmarks
)

var (
	ErrDetectorClosed = errors.New("detection: detector closed")
	ErrEmptyFrame     = errors.New("detection: empty frame")
)

// Detection is one face in eye space: bottom-left origin, X mirrored so
// it grows toward the viewer's right.
type Detection struct {
	X, Y       float64 // bottom-left corner of the box
	W, H       float64
	Confidence float64

	Landmarks [NumLandmarks]geom.Vec2
}

// Center returns the center of the box
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the box area as a fraction of the frame
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Eyes returns the eye landmarks as a pair
func (d Detection) Eyes() geom.EyePair {
	return geom.EyePair{
		Left:  d.Landmarks[LandmarkLeftEye],
		Right: d.Landmarks[LandmarkRightEye],
	}
}

// usable reports whether the eye landmarks can drive tracking
func (d Detection) usable(minSep float64) bool {
	eyes := d.Eyes()
	return eyes.Finite() && eyes.Separation() > minSep
}

// Detector finds faces in BGR frames
type Detector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  `json:"model_path"`
	ConfidenceThresh float64 `json:"confidence_thresh"`
	NMSThresh        float64 `json:"nms_thresh"`
	InputWidth       int     `json:"input_width"`
	InputHeight      int     `json:"input_height"`

	// MinEyeSeparation rejects faces whose eye landmarks collapse together
	// (profile views, tiny background faces)
	MinEyeSeparation float64 `json:"min_eye_separation"`
}

// DefaultConfig returns defaults for the bundled YuNet model
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
		MinEyeSeparation: 0.01,
	}
}

// Validate checks thresholds and sizes
func (c Config) Validate() error {
	switch {
	case c.ModelPath == "":
		return errors.New("detection: model path is empty")
	case c.ConfidenceThresh <= 0 || c.ConfidenceThresh > 1:
		return fmt.Errorf("detection: confidence threshold %v outside (0, 1]", c.ConfidenceThresh)
	case c.NMSThresh <= 0 || c.NMSThresh > 1:
		return fmt.Errorf("detection: nms threshold %v outside (0, 1]", c.NMSThresh)
	case c.InputWidth <= 0 || c.InputHeight <= 0:
		return fmt.Errorf("detection: input size %dx%d", c.InputWidth, c.InputHeight)
	case c.MinEyeSeparation < 0:
		return fmt.Errorf("detection: min eye separation %v", c.MinEyeSeparation)
	}
	return nil
}

// SelectViewer picks the face to track. Faces without usable eyes are
// skipped. The rest score confidence*0.6 plus eye separation relative to
// the widest pair *0.4, so the nearest confident face wins.
// Returns nil when no face qualifies.
func SelectViewer(dets []Detection, minSep float64) *Detection {
	maxSep := 0.0
	for _, d := range dets {
		if d.usable(minSep) {
			maxSep = max(maxSep, d.Eyes().Separation())
		}
	}
	if maxSep == 0 {
		return nil
	}

	var best *Detection
	bestScore := -1.0
	for i := range dets {
		if !dets[i].usable(minSep) {
			continue
		}
		score := dets[i].Confidence*0.6 + dets[i].Eyes().Separation()/maxSep*0.4
		if score > bestScore {
			best, bestScore = &dets[i], score
		}
	}
	return best
}

// toEyeSpace converts a pixel coordinate to normalized eye space.
func toEyeSpace(px, py, imgW, imgH float64) geom.Vec2 {
	return geom.Vec2{X: 1 - px/imgW, Y: 1 - py/imgH}
}

// toPixels converts a normalized eye-space point back to pixels.
func toPixels(p geom.Vec2, imgW, imgH float64) (px, py float64) {
	return (1 - p.X) * imgW, (1 - p.Y) * imgH
}
