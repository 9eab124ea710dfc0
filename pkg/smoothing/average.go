package smoothing

import (
	"fmt"

	"github.com/teslashibe/go-parallax/pkg/geom"
)

// Average is a sliding-window mean over the last N samples.
// Until the window fills it returns the cumulative mean.
type Average[V geom.Vector[V]] struct {
	window  int
	samples []V // oldest first
}

// NewAverage creates a window of size n (1..200).
func NewAverage[V geom.Vector[V]](n int) (*Average[V], error) {
	a := &Average[V]{}
	if err := a.SetWindow(n); err != nil {
		return nil, err
	}
	return a, nil
}

// SetWindow resizes the window. Shrinking drops the oldest samples
// immediately.
func (a *Average[V]) SetWindow(n int) error {
	if n < MinWindow || n > MaxWindow {
		return fmt.Errorf("%w: window size must be %d-%d, got %d", ErrInvalidParams, MinWindow, MaxWindow, n)
	}
	a.window = n
	if n == 1 {
		a.samples = nil
		return nil
	}
	if len(a.samples) > n {
		a.samples = append(a.samples[:0], a.samples[len(a.samples)-n:]...)
	}
	return nil
}

// Window returns the configured window size.
func (a *Average[V]) Window() int {
	return a.window
}

// Len returns how many samples are buffered.
func (a *Average[V]) Len() int {
	return len(a.samples)
}

// Update appends a sample and returns the mean of the buffer.
// A window of 1 returns the sample itself without buffering.
func (a *Average[V]) Update(v V) V {
	if a.window == 1 {
		return v
	}
	if len(a.samples) == a.window {
		a.samples = append(a.samples[:0], a.samples[1:]...)
	}
	a.samples = append(a.samples, v)

	var sum V
	for _, s := range a.samples {
		sum = sum.Add(s)
	}
	return sum.Scale(1 / float64(len(a.samples)))
}

// Reset empties the buffer.
func (a *Average[V]) Reset() {
	a.samples = a.samples[:0]
}
