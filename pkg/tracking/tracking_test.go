package tracking

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-parallax/pkg/calibration"
	"github.com/teslashibe/go-parallax/pkg/frustum"
	"github.com/teslashibe/go-parallax/pkg/geom"
	"github.com/teslashibe/go-parallax/pkg/settings"
	"github.com/teslashibe/go-parallax/pkg/smoothing"
)

// face returns a detection with the eye center at (cx, cy) and the given
// eye separation.
func face(cx, cy, sep float64) FrameResult {
	return FrameResult{
		Found: true,
		Eyes: geom.EyePair{
			Left:  geom.Vec2{X: cx - sep/2, Y: cy},
			Right: geom.Vec2{X: cx + sep/2, Y: cy},
		},
		Confidence:      0.9,
		TrackingEnabled: true,
	}
}

func rawConfig() Config {
	cfg := DefaultConfig()
	cfg.StaleAfter = 3
	cfg.Settings.Smoothing.Mode = smoothing.ModeOff
	return cfg
}

func newContext(t *testing.T, cfg Config, store settings.Store) *HeadTrackingContext {
	t.Helper()
	h, err := NewHeadTrackingContext(cfg, store, nil)
	require.NoError(t, err)
	return h
}

func assertVec(t *testing.T, want, got r3.Vector, tol float64) {
	t.Helper()
	if math.Abs(want.X-got.X) > tol || math.Abs(want.Y-got.Y) > tol || math.Abs(want.Z-got.Z) > tol {
		t.Errorf("vector: got %v, want %v", got, want)
	}
}

func TestStep_NoFaceBeforeFirstDetection(t *testing.T) {
	h := newContext(t, rawConfig(), nil)

	out := h.Step(FrameResult{})
	assert.False(t, out.Found)
	assert.False(t, out.PoseValid)
	require.Len(t, out.Cameras, 1)
	// Rest position: centered at the configured viewing distance
	assertVec(t, r3.Vector{Z: 60}, out.HeadCm, 1e-12)
	assert.True(t, out.Cameras[0].Projection.Finite())
}

func TestStep_CenteredFace(t *testing.T) {
	h := newContext(t, rawConfig(), nil)

	out := h.Step(face(0.5, 0.5, 0.1))
	require.True(t, out.Found)
	require.True(t, out.PoseValid)
	assert.True(t, out.Moved)
	assert.InDelta(t, 60.0, out.Pose.DistanceCm, 1e-9)
	assertVec(t, r3.Vector{Z: 60}, out.HeadCm, 1e-9)

	// Centered head means a symmetric frustum
	ext := out.Cameras[0].Extents
	assert.InDelta(t, 0, ext.Left+ext.Right, 1e-12)
	assert.InDelta(t, 0, ext.Bottom+ext.Top, 1e-12)
}

func TestStep_HeadFollowsEyes(t *testing.T) {
	h := newContext(t, rawConfig(), nil)
	screen := h.Screen()

	// Eyes at the right edge of the default [0,1] rectangle, closer in
	out := h.Step(face(1.0, 0.75, 0.2))
	assert.InDelta(t, 30.0, out.Pose.DistanceCm, 1e-9)
	assertVec(t, r3.Vector{X: screen.WidthCm / 2, Y: screen.HeightCm / 4, Z: 30}, out.HeadCm, 1e-9)
	// Standing at the right edge, the screen lies entirely to the left
	assert.InDelta(t, 0, out.Cameras[0].Extents.Right, 1e-12)
	assert.Less(t, out.Cameras[0].Extents.Left, 0.0)
}

func TestStep_GlassesGateHoldsCameras(t *testing.T) {
	h := newContext(t, rawConfig(), nil)

	first := h.Step(face(0.5, 0.5, 0.1))
	builds := h.Builds()

	gated := face(0.9, 0.1, 0.12)
	gated.TrackingEnabled = false
	out := h.Step(gated)

	assert.True(t, out.Found)
	assert.False(t, out.Moved)
	assert.Equal(t, first.HeadCm, out.HeadCm)
	assert.Equal(t, first.Cameras[0].Projection, out.Cameras[0].Projection)
	assert.Equal(t, builds, h.Builds(), "unchanged head must reuse cached cameras")
	// The pose is still reported
	assert.InDelta(t, 50.0, out.Pose.DistanceCm, 1e-9)
}

func TestStep_LostFaceFreezesAndGoesStale(t *testing.T) {
	h := newContext(t, rawConfig(), nil)

	seen := h.Step(face(0.4, 0.6, 0.1))
	var out Output
	for i := 0; i < 3; i++ {
		out = h.Step(FrameResult{})
		assert.Equal(t, i == 2, out.Stale, "frame %d", i)
	}
	assert.False(t, out.Found)
	assert.True(t, out.PoseValid)
	assert.Equal(t, seen.HeadCm, out.HeadCm)
	assert.Equal(t, seen.Cameras[0].Projection, out.Cameras[0].Projection)

	again := h.Step(face(0.4, 0.6, 0.1))
	assert.False(t, again.Stale)
}

func TestStep_NonFiniteEyesTreatedAsNoFace(t *testing.T) {
	h := newContext(t, rawConfig(), nil)
	h.Step(face(0.5, 0.5, 0.1))

	out := h.Step(face(math.NaN(), 0.5, 0.1))
	assert.False(t, out.Found)
	for _, cam := range out.Cameras {
		assert.True(t, cam.Projection.Finite())
	}
}

func TestStep_DegenerateSeparationHoldsDistance(t *testing.T) {
	h := newContext(t, rawConfig(), nil)
	h.Step(face(0.5, 0.5, 0.1))

	for i := 0; i < 5; i++ {
		out := h.Step(face(0.6, 0.5, 0))
		require.True(t, out.PoseValid)
		assert.True(t, out.Pose.DistanceHeld)
		assert.InDelta(t, 60.0, out.Pose.DistanceCm, 1e-9)
		assert.True(t, out.Cameras[0].Projection.Finite())
	}
}

func TestStep_StaleFaceDropsHeldDistance(t *testing.T) {
	h := newContext(t, rawConfig(), nil)
	h.Step(face(0.5, 0.5, 0.1))

	// A short dropout keeps the held distance
	h.Step(FrameResult{})
	out := h.Step(face(0.6, 0.5, 0))
	assert.True(t, out.Moved)
	assert.True(t, out.Pose.DistanceHeld)

	for i := 0; i < h.config.StaleAfter; i++ {
		out = h.Step(FrameResult{})
	}
	require.True(t, out.Stale)

	// After going stale a collapsed eye pair cannot reuse the old distance
	before := out.HeadCm
	out = h.Step(face(0.7, 0.5, 0))
	assert.False(t, out.Moved)
	assert.Equal(t, before, out.HeadCm)

	out = h.Step(face(0.7, 0.5, 0.05))
	assert.True(t, out.Moved)
	assert.InDelta(t, 120.0, out.Pose.DistanceCm, 1e-9)
}

func TestStep_RebuildEpsilon(t *testing.T) {
	cfg := rawConfig()
	cfg.RebuildEpsilonCm = 0
	h := newContext(t, cfg, nil)

	h.Step(face(0.5, 0.5, 0.1))
	h.Step(face(0.5, 0.5, 0.1))
	assert.Equal(t, 2, h.Builds(), "zero epsilon rebuilds every frame")

	cfg = rawConfig()
	cfg.RebuildEpsilonCm = 1000
	h = newContext(t, cfg, nil)
	h.Step(face(0.5, 0.5, 0.1))
	h.Step(face(0.9, 0.5, 0.1))
	assert.Equal(t, 1, h.Builds(), "moves under epsilon reuse cameras")

	cfg.RebuildEpsilonCm = math.Inf(1)
	assert.Error(t, cfg.Validate())
}

func TestStep_SmootherResetOnLoss(t *testing.T) {
	cfg := rawConfig()
	cfg.Settings.Smoothing.Mode = smoothing.ModeAverage
	cfg.Settings.Smoothing.WindowSize = 5
	h := newContext(t, cfg, nil)

	h.Step(face(0.2, 0.5, 0.1))
	h.Step(FrameResult{})

	// After a reset the new face is not averaged with the old one
	out := h.Step(face(0.8, 0.5, 0.1))
	assert.InDelta(t, 0.8, out.Pose.NormalizedX, 1e-12)
}

func TestStep_StereoCameras(t *testing.T) {
	cfg := rawConfig()
	cfg.Settings.Rig.Stereo = true
	h := newContext(t, cfg, nil)

	out := h.Step(face(0.5, 0.5, 0.1))
	require.Len(t, out.Cameras, 2)
	assert.InDelta(t, cfg.Settings.Rig.EyeSeparationCm, out.Cameras[1].PositionCm.X-out.Cameras[0].PositionCm.X, 1e-12)
}

// calibrate walks a full procedure: edges at x=0.3/0.7, y=0.2/0.8 and a
// final confirm at 50cm with 0.1 eye separation.
func calibrate(t *testing.T, h *HeadTrackingContext, diagonal float64) CalibrationStatus {
	t.Helper()
	ctx := context.Background()

	st, err := h.StartCalibration()
	require.NoError(t, err)
	require.Equal(t, calibration.StateLeft, st.State)
	require.NotEmpty(t, st.SessionID)

	steps := []FrameResult{
		face(0.3, 0.5, 0.1),
		face(0.7, 0.5, 0.1),
		face(0.5, 0.2, 0.1),
		face(0.5, 0.8, 0.1),
		face(0.5, 0.5, 0.1),
	}
	for _, f := range steps {
		h.Step(f)
		st, err = h.NextCalibration(ctx, calibration.Sliders{DistanceCm: 50, DiagonalIn: diagonal})
		require.NoError(t, err)
	}
	return st
}

func TestCalibration_FullProcedure(t *testing.T) {
	store := settings.NewMemoryStore()
	h := newContext(t, rawConfig(), store)

	st := calibrate(t, h, 27)
	assert.False(t, st.Active)
	assert.Equal(t, calibration.StateOff, st.State)
	require.NotNil(t, st.LastResult)

	want := calibration.Constants{Left: 0.3, Right: 0.7, Bottom: 0.2, Top: 0.8, FocalLength: 50 * 0.1 / 6}
	got := st.Constants
	assert.InDelta(t, want.Left, got.Left, 1e-12)
	assert.InDelta(t, want.Right, got.Right, 1e-12)
	assert.InDelta(t, want.Bottom, got.Bottom, 1e-12)
	assert.InDelta(t, want.Top, got.Top, 1e-12)
	assert.InDelta(t, want.FocalLength, got.FocalLength, 1e-12)
	assert.Equal(t, 27.0, h.Settings().Screen.DiagonalIn)

	// The new constants are in effect
	out := h.Step(face(0.7, 0.5, 0.1))
	assert.InDelta(t, 1.0, out.Pose.NormalizedX, 1e-9)
	assert.InDelta(t, 50.0, out.Pose.DistanceCm, 1e-9)

	// and persisted
	loaded, err := settings.Load(context.Background(), store, nil)
	require.NoError(t, err)
	assert.InDelta(t, want.FocalLength, loaded.Calibration.FocalLength, 1e-12)
	assert.Equal(t, 27.0, loaded.Screen.DiagonalIn)
	assert.Equal(t, 50.0, loaded.Screen.DistanceCm)
}

func TestCalibration_CancelKeepsConstants(t *testing.T) {
	store := settings.NewMemoryStore()
	h := newContext(t, rawConfig(), store)
	before := h.CalibrationStatus().Constants

	_, err := h.StartCalibration()
	require.NoError(t, err)
	h.Step(face(0.3, 0.5, 0.1))
	_, err = h.NextCalibration(context.Background(), calibration.Sliders{})
	require.NoError(t, err)

	st := h.CancelCalibration()
	assert.False(t, st.Active)
	assert.Equal(t, before, st.Constants)
	assert.Empty(t, store.Keys(), "cancel must not persist anything")
}

func TestCalibration_InvertedBoundsRejected(t *testing.T) {
	h := newContext(t, rawConfig(), nil)
	ctx := context.Background()
	sliders := calibration.Sliders{DistanceCm: 50, DiagonalIn: 24}

	_, err := h.StartCalibration()
	require.NoError(t, err)
	// Left edge recorded to the right of the right edge
	for _, f := range []FrameResult{face(0.7, 0.5, 0.1), face(0.3, 0.5, 0.1), face(0.5, 0.2, 0.1), face(0.5, 0.8, 0.1)} {
		h.Step(f)
		_, err = h.NextCalibration(ctx, sliders)
		require.NoError(t, err)
	}

	h.Step(face(0.5, 0.5, 0.1))
	st, err := h.NextCalibration(ctx, sliders)
	assert.ErrorIs(t, err, calibration.ErrInvalidBounds)
	assert.Equal(t, calibration.StateSliders, st.State)
	assert.Equal(t, calibration.DefaultConstants(), st.Constants)
}

func TestCalibration_NeedsFace(t *testing.T) {
	h := newContext(t, rawConfig(), nil)

	_, err := h.NextCalibration(context.Background(), calibration.Sliders{})
	assert.ErrorIs(t, err, calibration.ErrNotActive)

	_, err = h.StartCalibration()
	require.NoError(t, err)
	_, err = h.StartCalibration()
	assert.ErrorIs(t, err, calibration.ErrAlreadyActive)

	h.Step(FrameResult{})
	st, err := h.NextCalibration(context.Background(), calibration.Sliders{})
	assert.ErrorIs(t, err, ErrNoFace)
	assert.Equal(t, calibration.StateLeft, st.State)
}

func TestTuning_AppliesNonZeroOnly(t *testing.T) {
	store := settings.NewMemoryStore()
	h := newContext(t, rawConfig(), store)
	ctx := context.Background()

	stereo := true
	require.NoError(t, h.SetTuningParams(ctx, TuningParams{
		SmoothingMode: "average",
		WindowSize:    4,
		Stereo:        &stereo,
		NearClip:      0.1,
	}))

	got := h.GetTuningParams()
	assert.Equal(t, "average", got.SmoothingMode)
	assert.Equal(t, 4, got.WindowSize)
	assert.True(t, *got.Stereo)
	assert.Equal(t, 0.1, got.NearClip)
	assert.Equal(t, DefaultConfig().Settings.Projection.FarClip, got.FarClip)

	out := h.Step(face(0.5, 0.5, 0.1))
	assert.Len(t, out.Cameras, 2)

	loaded, err := settings.Load(ctx, store, nil)
	require.NoError(t, err)
	assert.Equal(t, smoothing.ModeAverage, loaded.Smoothing.Mode)
	assert.True(t, loaded.Rig.Stereo)
}

func TestTuning_RejectedUpdateChangesNothing(t *testing.T) {
	h := newContext(t, rawConfig(), nil)
	before := h.Settings()

	err := h.SetTuningParams(context.Background(), TuningParams{NearClip: 5000, WindowSize: 3})
	assert.Error(t, err)
	assert.Equal(t, before, h.Settings())

	err = h.SetTuningParams(context.Background(), TuningParams{SmoothingMode: "wavelet"})
	assert.ErrorIs(t, err, smoothing.ErrInvalidParams)
}

func TestTuning_RejectsNonFinite(t *testing.T) {
	stereo := true
	tests := []struct {
		name    string
		params  TuningParams
		wantErr error
	}{
		{"diagonal overflows", TuningParams{ScreenDiagonalIn: 1e308}, frustum.ErrInvalidScreen},
		{"infinite diagonal", TuningParams{ScreenDiagonalIn: math.Inf(1)}, frustum.ErrInvalidScreen},
		{"infinite distance", TuningParams{ScreenDistanceCm: math.Inf(1)}, frustum.ErrInvalidScreen},
		{"infinite Q", TuningParams{ProcessNoise: math.Inf(1)}, smoothing.ErrInvalidParams},
		{"infinite R", TuningParams{MeasurementNoise: math.Inf(1)}, smoothing.ErrInvalidParams},
		{"infinite eye separation", TuningParams{Stereo: &stereo, EyeSeparationCm: math.Inf(1)}, frustum.ErrInvalidRig},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newContext(t, rawConfig(), nil)
			before := h.Settings()

			err := h.SetTuningParams(context.Background(), tc.params)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, before, h.Settings())

			// Frames keep producing finite cameras
			out := h.Step(face(0.5, 0.5, 0.1))
			for _, cam := range out.Cameras {
				assert.True(t, cam.Projection.Finite(), "camera %s", cam.Eye)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, SlowConfig().Validate())

	cfg := DefaultConfig()
	cfg.FrameInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Settings.Smoothing.MeasurementNoise = 0
	_, err := NewHeadTrackingContext(cfg, nil, nil)
	assert.ErrorIs(t, err, smoothing.ErrInvalidParams)
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []Output
}

func (p *recordingPublisher) Publish(out Output) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, out)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

func TestTracker_RunPublishesFrames(t *testing.T) {
	cfg := rawConfig()
	cfg.FrameInterval = time.Millisecond
	pub := &recordingPublisher{}

	tr, err := New(cfg, nil, pub, nil)
	require.NoError(t, err)

	var calls int
	source := FrameSourceFunc(func(ctx context.Context) (FrameResult, error) {
		calls++
		if calls%4 == 0 {
			return FrameResult{}, errors.New("camera hiccup")
		}
		return face(0.5, 0.5, 0.1), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, source) }()

	require.Eventually(t, func() bool { return pub.count() >= 10 }, 2*time.Second, time.Millisecond)
	assert.True(t, tr.IsRunning())

	// Handlers can run concurrently with the loop
	_, err = tr.StartCalibration()
	require.NoError(t, err)
	assert.True(t, tr.CalibrationStatus().Active)
	tr.CancelCalibration()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, tr.IsRunning())

	last, ok := tr.Last()
	require.True(t, ok)
	assert.True(t, last.Found)
	assert.Equal(t, tr.Frames(), last.Frame)
	assert.Equal(t, last.Frame, tr.Status().Last.Frame)
}

func TestTracker_NotifiesSettingsChange(t *testing.T) {
	tr, err := New(rawConfig(), nil, nil, nil)
	require.NoError(t, err)

	var got []settings.Settings
	tr.OnSettingsChange = func(s settings.Settings) { got = append(got, s) }

	on := true
	require.NoError(t, tr.SetTuningParams(context.Background(), TuningParams{GlassesEnabled: &on}))
	require.Len(t, got, 1)
	assert.True(t, got[0].GlassesEnabled)
}
