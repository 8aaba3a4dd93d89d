package types

import (
	"fmt"
	"math"
)

// Matrix44 is a homogeneous 4x4 transform stored row-major.
// The upper-left 3x3 block is the rotation, the last column the translation
// in meters.
type Matrix44 [16]float64

// Identity returns the identity transform.
func Identity() Matrix44 {
	return Matrix44{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a pure translation transform.
func Translation(x, y, z float64) Matrix44 {
	m := Identity()
	m[3], m[7], m[11] = x, y, z
	return m
}

// RotationZ returns a rotation of theta radians around the z axis.
func RotationZ(theta float64) Matrix44 {
	c, s := math.Cos(theta), math.Sin(theta)
	return Matrix44{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at row r, column c.
func (m Matrix44) At(r, c int) float64 {
	return m[r*4+c]
}

// Mul returns m × n.
func (m Matrix44) Mul(n Matrix44) Matrix44 {
	var out Matrix44
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[r*4+k] * n[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

// Inverse returns the inverse of a rigid-body transform: the rotation block
// is transposed and the translation rotated back and negated.
func (m Matrix44) Inverse() Matrix44 {
	var out Matrix44
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*4+c] = m[c*4+r]
		}
	}
	for r := 0; r < 3; r++ {
		out[r*4+3] = -(out[r*4+0]*m[3] + out[r*4+1]*m[7] + out[r*4+2]*m[11])
	}
	out[15] = 1
	return out
}

// TranslationPart returns the x, y, z translation.
func (m Matrix44) TranslationPart() (x, y, z float64) {
	return m[3], m[7], m[11]
}

// Rows returns the matrix as four rows of four values.
func (m Matrix44) Rows() [][]float64 {
	rows := make([][]float64, 4)
	for r := 0; r < 4; r++ {
		rows[r] = []float64{m[r*4], m[r*4+1], m[r*4+2], m[r*4+3]}
	}
	return rows
}

// MatrixFromRows builds a Matrix44 from four rows of four values.
func MatrixFromRows(rows [][]float64) (Matrix44, error) {
	var m Matrix44
	if len(rows) != 4 {
		return m, fmt.Errorf("matrix needs 4 rows, got %d", len(rows))
	}
	for r, row := range rows {
		if len(row) != 4 {
			return m, fmt.Errorf("matrix row %d needs 4 values, got %d", r, len(row))
		}
		copy(m[r*4:r*4+4], row)
	}
	return m, nil
}

// ApproxEqual reports whether every element differs by at most tolerance.
func (m Matrix44) ApproxEqual(n Matrix44, tolerance float64) bool {
	for i := range m {
		if math.Abs(m[i]-n[i]) > tolerance {
			return false
		}
	}
	return true
}

// Uncertainty is a 6x6 covariance (x, y, z, roll, pitch, yaw) stored row-major.
type Uncertainty [36]float64

// DiagonalUncertainty returns a covariance with the given variances on the
// diagonal.
func DiagonalUncertainty(variances ...float64) Uncertainty {
	var u Uncertainty
	for i := 0; i < 6 && i < len(variances); i++ {
		u[i*6+i] = variances[i]
	}
	return u
}
