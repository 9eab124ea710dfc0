package tracking

import (
	"context"
	"time"

	"github.com/golang/geo/r3"

	"github.com/teslashibe/go-parallax/pkg/calibration"
	"github.com/teslashibe/go-parallax/pkg/frustum"
	"github.com/teslashibe/go-parallax/pkg/geom"
)

// FrameResult is what the detector hands the pipeline for one frame.
// Eyes are in normalized eye space (bottom-left origin, viewer's perspective).
type FrameResult struct {
	Found      bool
	Eyes       geom.EyePair
	Confidence float64

	// TrackingEnabled is the glasses gate. When false the cameras keep
	// their previous position.
	TrackingEnabled bool

	CapturedAt time.Time
}

// FrameSource produces frames for Tracker.Run
type FrameSource interface {
	// Next blocks until the next frame is available
	Next(ctx context.Context) (FrameResult, error)
}

// FrameSourceFunc adapts a function to FrameSource
type FrameSourceFunc func(ctx context.Context) (FrameResult, error)

func (f FrameSourceFunc) Next(ctx context.Context) (FrameResult, error) { return f(ctx) }

// Output is the per-frame pipeline result
type Output struct {
	Frame uint64 `json:"frame"`
	Found bool   `json:"found"`

	// Moved is false when the glasses gate held the cameras in place
	Moved bool `json:"moved"`

	// Pose is the latest estimate; PoseValid is false until the first
	// usable distance was measured
	Pose      calibration.HeadPose `json:"pose"`
	PoseValid bool                 `json:"pose_valid"`

	// HeadCm is the head position in the screen frame the cameras were
	// built from
	HeadCm  r3.Vector        `json:"head_cm"`
	Cameras []frustum.Camera `json:"cameras"`

	// Stale means no face has been seen for Config.StaleAfter frames
	Stale bool `json:"stale"`

	Calibration calibration.State `json:"calibration"`
}

// Publisher receives every Output produced by Tracker.Run
type Publisher interface {
	Publish(out Output)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(out Output)

func (f PublisherFunc) Publish(out Output) { f(out) }
