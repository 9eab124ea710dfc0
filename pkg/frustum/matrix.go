package frustum

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Mat4 is a row-major 4x4 matrix using the OpenGL clip-space convention
// (column vectors, camera looking down -Z, NDC depth in [-1, 1]).
type Mat4 [4][4]float64

// Identity returns the identity matrix.
func Identity() Mat4 {
	var m Mat4
	for i := 0; i < 4; i++ {
		m[i][i] = 1
	}
	return m
}

// OffCenter returns the perspective matrix for an asymmetric frustum with
// the given near-plane extents, like glFrustum.
func OffCenter(left, right, bottom, top, near, far float64) Mat4 {
	var m Mat4
	m[0][0] = 2 * near / (right - left)
	m[0][2] = (right + left) / (right - left)
	m[1][1] = 2 * near / (top - bottom)
	m[1][2] = (top + bottom) / (top - bottom)
	m[2][2] = -(far + near) / (far - near)
	m[2][3] = -2 * far * near / (far - near)
	m[3][2] = -1
	return m
}

// Perspective returns a symmetric perspective matrix for a vertical field
// of view in radians.
func Perspective(fovY, aspect, near, far float64) Mat4 {
	f := 1 / math.Tan(fovY/2)
	var m Mat4
	m[0][0] = f / aspect
	m[1][1] = f
	m[2][2] = -(far + near) / (far - near)
	m[2][3] = -2 * far * near / (far - near)
	m[3][2] = -1
	return m
}

// Translation returns a matrix that moves points by v.
func Translation(v r3.Vector) Mat4 {
	m := Identity()
	m[0][3] = v.X
	m[1][3] = v.Y
	m[2][3] = v.Z
	return m
}

// Dense copies m into a gonum matrix.
func (m Mat4) Dense() *mat.Dense {
	data := make([]float64, 0, 16)
	for _, row := range m {
		data = append(data, row[:]...)
	}
	return mat.NewDense(4, 4, data)
}

// FromDense copies a 4x4 gonum matrix into a Mat4.
func FromDense(d mat.Matrix) Mat4 {
	var m Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m[i][j] = d.At(i, j)
		}
	}
	return m
}

// Mul returns m * o.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out mat.Dense
	out.Mul(m.Dense(), o.Dense())
	return FromDense(&out)
}

// Project transforms p as a point and divides by w. ok is false when the
// point lands on the camera plane.
func (m Mat4) Project(p r3.Vector) (ndc r3.Vector, ok bool) {
	var out mat.VecDense
	out.MulVec(m.Dense(), mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1}))
	w := out.AtVec(3)
	if w == 0 {
		return r3.Vector{}, false
	}
	return r3.Vector{X: out.AtVec(0) / w, Y: out.AtVec(1) / w, Z: out.AtVec(2) / w}, true
}

// Finite reports whether every element is neither NaN nor Inf.
func (m Mat4) Finite() bool {
	for _, row := range m {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// ApproxEqual compares two matrices elementwise within tol.
func (m Mat4) ApproxEqual(o Mat4, tol float64) bool {
	return mat.EqualApprox(m.Dense(), o.Dense(), tol)
}

// ColumnMajor flattens m the way GPU uniform uploads expect.
func (m Mat4) ColumnMajor() [16]float64 {
	var out [16]float64
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c*4+r] = m[r][c]
		}
	}
	return out
}
