// Package geom defines the 2D eye-space types shared by the tracking pipeline.
//
// Eye space is normalized image space [0,1]x[0,1] with a bottom-left origin,
// seen from the viewer's perspective: X grows toward the viewer's right and
// Y grows upward. Detector adapters convert into this convention once, so
// smoothing, calibration and projection never flip an axis themselves.
package geom

import "math"

// Vector is the constraint for values the smoothing filters operate on.
// Implementations must treat the receiver as immutable.
type Vector[V any] interface {
	Add(V) V
	Scale(float64) V
}

// Scalar is a float64 that satisfies Vector.
type Scalar float64

// Add returns s + o.
func (s Scalar) Add(o Scalar) Scalar { return s + o }

// Scale returns s * k.
func (s Scalar) Scale(k float64) Scalar { return Scalar(float64(s) * k) }

// Vec2 is a point in normalized eye space (an EyeKeypoint).
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v + o componentwise.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v - o componentwise.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale returns v * k.
func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }

// Len returns the Euclidean length of v.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Dist returns the Euclidean distance between v and o.
func (v Vec2) Dist(o Vec2) float64 { return v.Sub(o).Len() }

// Finite reports whether both components are neither NaN nor Inf.
func (v Vec2) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// Lerp interpolates between a and b.
func Lerp(a, b Vec2, t float64) Vec2 {
	return a.Add(b.Sub(a).Scale(t))
}

// EyePair holds one left and one right eye keypoint.
// Left and right are from the viewer's perspective.
type EyePair struct {
	Left  Vec2 `json:"left"`
	Right Vec2 `json:"right"`
}

// Add returns the componentwise sum, so EyePair satisfies Vector.
func (p EyePair) Add(o EyePair) EyePair {
	return EyePair{Left: p.Left.Add(o.Left), Right: p.Right.Add(o.Right)}
}

// Scale scales both eyes, so EyePair satisfies Vector.
func (p EyePair) Scale(k float64) EyePair {
	return EyePair{Left: p.Left.Scale(k), Right: p.Right.Scale(k)}
}

// Center returns the midpoint between the two eyes.
func (p EyePair) Center() Vec2 {
	return Lerp(p.Left, p.Right, 0.5)
}

// Separation returns the eye-space distance between the eyes.
func (p EyePair) Separation() float64 {
	return p.Left.Dist(p.Right)
}

// Finite reports whether all coordinates are finite.
func (p EyePair) Finite() bool {
	return p.Left.Finite() && p.Right.Finite()
}

// Map linearly remaps n from [start1, stop1] onto [start2, stop2].
// No clamping: values outside the source range extrapolate.
func Map(n, start1, stop1, start2, stop2 float64) float64 {
	return (n-start1)/(stop1-start1)*(stop2-start2) + start2
}

// Clamp limits a value to a range.
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
