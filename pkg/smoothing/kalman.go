package smoothing

import (
	"fmt"

	"github.com/teslashibe/go-parallax/pkg/geom"
)

// Kalman is a static (no control input) 1-D Kalman filter applied to every
// component of V with a shared scalar error covariance.
//
//	K  = (P+Q) / (P+Q+R)
//	P' = R(P+Q) / (R+P+Q)
//	x' = predict + (z - predict)K
//
// The first measurement after a reset seeds the estimate, so re-acquiring a
// face does not sweep in from the origin.
type Kalman[V geom.Vector[V]] struct {
	q, r float64
	p0   float64

	estimate V
	predict  V
	p        float64
	primed   bool
}

// NewKalman creates a filter. r must be > 0 and q, p0 >= 0.
func NewKalman[V geom.Vector[V]](q, r, p0 float64) (*Kalman[V], error) {
	k := &Kalman[V]{p0: p0, p: p0}
	if err := k.SetNoise(q, r); err != nil {
		return nil, err
	}
	if !finiteNonNeg(p0) {
		return nil, fmt.Errorf("%w: initial covariance must be finite and >= 0, got %v", ErrInvalidParams, p0)
	}
	return k, nil
}

// SetNoise changes Q and R without touching the estimate or covariance.
func (k *Kalman[V]) SetNoise(q, r float64) error {
	if err := checkNoise(q, r); err != nil {
		return err
	}
	k.q, k.r = q, r
	return nil
}

// Update folds in one measurement and returns the new estimate.
func (k *Kalman[V]) Update(z V) V {
	if !k.primed {
		k.estimate = z
		k.predict = z
		k.primed = true
		return z
	}

	pq := k.p + k.q
	gain := pq / (pq + k.r)
	k.p = k.r * pq / (k.r + pq)

	innovation := z.Add(k.predict.Scale(-1))
	k.estimate = k.predict.Add(innovation.Scale(gain))
	k.predict = k.estimate

	return k.estimate
}

// Estimate returns the current estimate without updating.
func (k *Kalman[V]) Estimate() V {
	return k.estimate
}

// Covariance returns the current error covariance P.
func (k *Kalman[V]) Covariance() float64 {
	return k.p
}

// Reset discards the estimate and restores the initial covariance.
func (k *Kalman[V]) Reset() {
	var zero V
	k.estimate = zero
	k.predict = zero
	k.p = k.p0
	k.primed = false
}
