package calibration

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-parallax/pkg/geom"
)

func pairAt(cx, cy, sep float64) geom.EyePair {
	return geom.EyePair{
		Left:  geom.Vec2{X: cx - sep/2, Y: cy},
		Right: geom.Vec2{X: cx + sep/2, Y: cy},
	}
}

func TestDistanceFocalLengthRoundTrip(t *testing.T) {
	distances := []float64{10, 35.5, 50, 80, 250}
	pairs := []geom.EyePair{
		pairAt(0.5, 0.5, 0.1),
		pairAt(0.2, 0.7, 0.03),
		{Left: geom.Vec2{X: 0.41, Y: 0.52}, Right: geom.Vec2{X: 0.58, Y: 0.49}},
	}

	for _, d := range distances {
		for _, p := range pairs {
			focal, err := DeriveFocalLength(d, p)
			if err != nil {
				t.Fatalf("DeriveFocalLength(%v): %v", d, err)
			}
			got, err := HeadDistanceCm(p, focal)
			if err != nil {
				t.Fatalf("HeadDistanceCm: %v", err)
			}
			if math.Abs(got-d) > 1e-9*d {
				t.Errorf("round trip: got %v, want %v", got, d)
			}
		}
	}
}

func TestHeadDistance_InverseProportional(t *testing.T) {
	near, _ := HeadDistanceCm(pairAt(0.5, 0.5, 0.2), 1)
	far, _ := HeadDistanceCm(pairAt(0.5, 0.5, 0.1), 1)
	if math.Abs(far-2*near) > 1e-9 {
		t.Errorf("halving separation should double distance: near=%v far=%v", near, far)
	}
	if math.Abs(far-60) > 1e-9 {
		t.Errorf("0.1 separation at focal 1 should read 60cm, got %v", far)
	}
}

func TestHeadDistance_DegenerateSeparation(t *testing.T) {
	tests := []struct {
		name string
		eyes geom.EyePair
	}{
		{"coincident", pairAt(0.5, 0.5, 0)},
		{"below epsilon", pairAt(0.5, 0.5, MinEyeSeparation/2)},
		{"NaN", geom.EyePair{Left: geom.Vec2{X: math.NaN()}, Right: geom.Vec2{X: 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := HeadDistanceCm(tt.eyes, 1)
			if !errors.Is(err, ErrDegenerateSeparation) {
				t.Errorf("expected ErrDegenerateSeparation, got %v (d=%v)", err, d)
			}
			if _, err := DeriveFocalLength(50, tt.eyes); !errors.Is(err, ErrDegenerateSeparation) {
				t.Errorf("DeriveFocalLength: expected ErrDegenerateSeparation, got %v", err)
			}
		})
	}
}

func TestDeriveFocalLength_InvalidDistance(t *testing.T) {
	for _, d := range []float64{0, -10, math.Inf(1), math.NaN()} {
		if _, err := DeriveFocalLength(d, pairAt(0.5, 0.5, 0.1)); !errors.Is(err, ErrInvalidDistance) {
			t.Errorf("distance %v: expected ErrInvalidDistance, got %v", d, err)
		}
	}
}

func TestNormalizedHeadPosition(t *testing.T) {
	c := Constants{Left: 0.2, Right: 0.8, Bottom: 0.3, Top: 0.7, FocalLength: 1}

	tests := []struct {
		name   string
		cx, cy float64
		wantX  float64
		wantY  float64
	}{
		{"left-bottom corner", 0.2, 0.3, 0, 0},
		{"right-top corner", 0.8, 0.7, 1, 1},
		{"midpoint", 0.5, 0.5, 0.5, 0.5},
		{"quarter", 0.35, 0.4, 0.25, 0.25},
		{"past the right edge", 1.1, 0.5, 1.5, 0.5},
		{"below the bottom edge", 0.5, 0.1, 0.5, -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := NormalizedHeadPosition(pairAt(tt.cx, tt.cy, 0.1), c)
			if math.Abs(x-tt.wantX) > 1e-9 || math.Abs(y-tt.wantY) > 1e-9 {
				t.Errorf("got (%v, %v), want (%v, %v)", x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestConstants_Validate(t *testing.T) {
	if err := DefaultConstants().Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}

	tests := []struct {
		name string
		c    Constants
		want error
	}{
		{"left == right", Constants{Left: 0.5, Right: 0.5, Bottom: 0, Top: 1, FocalLength: 1}, ErrInvalidBounds},
		{"inverted vertical", Constants{Left: 0, Right: 1, Bottom: 0.9, Top: 0.1, FocalLength: 1}, ErrInvalidBounds},
		{"zero focal", Constants{Left: 0, Right: 1, Bottom: 0, Top: 1, FocalLength: 0}, ErrInvalidFocalLength},
		{"NaN bound", Constants{Left: math.NaN(), Right: 1, Bottom: 0, Top: 1, FocalLength: 1}, ErrInvalidBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.c.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEstimator_HoldsLastValidDistance(t *testing.T) {
	e := NewEstimator(DefaultConstants(), nil)

	if _, ok := e.Estimate(pairAt(0.5, 0.5, 0)); ok {
		t.Fatal("expected no pose before any valid distance")
	}

	pose, ok := e.Estimate(pairAt(0.5, 0.5, 0.1))
	if !ok || math.Abs(pose.DistanceCm-60) > 1e-9 || pose.DistanceHeld {
		t.Fatalf("unexpected pose %+v ok=%v", pose, ok)
	}

	for i := 0; i < 10; i++ {
		pose, ok = e.Estimate(pairAt(0.5, 0.5, 0))
		if !ok || !pose.DistanceHeld || math.Abs(pose.DistanceCm-60) > 1e-9 {
			t.Fatalf("frame %d: expected held distance 60, got %+v ok=%v", i, pose, ok)
		}
		if math.IsNaN(pose.DistanceCm) || math.IsInf(pose.DistanceCm, 0) {
			t.Fatal("distance must stay finite")
		}
	}
	if !e.once.Fired(separationLogKey) {
		t.Error("expected the degenerate separation to be logged")
	}

	pose, _ = e.Estimate(pairAt(0.5, 0.5, 0.2))
	if pose.DistanceHeld || math.Abs(pose.DistanceCm-30) > 1e-9 {
		t.Errorf("expected fresh distance 30, got %+v", pose)
	}
	if e.once.Fired(separationLogKey) {
		t.Error("expected log limiter to re-arm after recovery")
	}
}

func TestEstimator_InvalidConstantsFallBack(t *testing.T) {
	e := NewEstimator(Constants{Left: 1, Right: 0, Bottom: 0, Top: 0, FocalLength: -1}, nil)
	if e.Constants() != DefaultConstants() {
		t.Errorf("expected defaults, got %+v", e.Constants())
	}
}
