package stella

import (
	"errors"
	"fmt"
	"math"
)

// singularTol is the determinant magnitude below which a matrix is considered singular.
const singularTol = 1e-10

var (
	// ErrDimensionMismatch is returned when operand shapes are incompatible.
	ErrDimensionMismatch = errors.New("matrix: dimension mismatch")
	// ErrSingularMatrix is returned when the determinant is below the singularity tolerance.
	ErrSingularMatrix = errors.New("matrix: singular matrix")
	// ErrUnsupportedInversion is returned for inversions other than 2x2 and 3x3.
	ErrUnsupportedInversion = errors.New("matrix: inversion only supported for 2x2 and 3x3")
)

// Matrix is a dense row-major matrix sized for the needs of the navigation filter.
type Matrix struct {
	rows, cols int
	data       []float64
}

// NewMatrix returns a rows x cols matrix of zeros.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{rows, cols, make([]float64, rows*cols)}
}

// NewMatrixFilled returns a rows x cols matrix with every element set to fill.
func NewMatrixFilled(rows, cols int, fill float64) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.data {
		m.data[i] = fill
	}
	return m
}

// Identity returns the n x n identity matrix.
func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// At returns the element at (row, col).
func (m *Matrix) At(row, col int) float64 {
	return m.data[row*m.cols+col]
}

// Set stores v at (row, col).
func (m *Matrix) Set(row, col int, v float64) {
	m.data[row*m.cols+col] = v
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	c := NewMatrix(m.rows, m.cols)
	copy(c.data, m.data)
	return c
}

// Trace returns the sum of the diagonal elements.
func (m *Matrix) Trace() float64 {
	n := m.rows
	if m.cols < n {
		n = m.cols
	}
	var tr float64
	for i := 0; i < n; i++ {
		tr += m.At(i, i)
	}
	return tr
}

// Multiply returns a*b.
func Multiply(a, b *Matrix) (*Matrix, error) {
	if a.cols != b.rows {
		return nil, fmt.Errorf("cannot multiply %dx%d by %dx%d: %w", a.rows, a.cols, b.rows, b.cols, ErrDimensionMismatch)
	}
	out := NewMatrix(a.rows, b.cols)
	for i := 0; i < a.rows; i++ {
		for j := 0; j < b.cols; j++ {
			var sum float64
			for k := 0; k < a.cols; k++ {
				sum += a.At(i, k) * b.At(k, j)
			}
			out.Set(i, j, sum)
		}
	}
	return out, nil
}

// Add returns a+b.
func Add(a, b *Matrix) (*Matrix, error) {
	if a.rows != b.rows || a.cols != b.cols {
		return nil, fmt.Errorf("cannot add %dx%d and %dx%d: %w", a.rows, a.cols, b.rows, b.cols, ErrDimensionMismatch)
	}
	out := NewMatrix(a.rows, a.cols)
	for i := range out.data {
		out.data[i] = a.data[i] + b.data[i]
	}
	return out, nil
}

// Subtract returns a-b.
func Subtract(a, b *Matrix) (*Matrix, error) {
	if a.rows != b.rows || a.cols != b.cols {
		return nil, fmt.Errorf("cannot subtract %dx%d from %dx%d: %w", b.rows, b.cols, a.rows, a.cols, ErrDimensionMismatch)
	}
	out := NewMatrix(a.rows, a.cols)
	for i := range out.data {
		out.data[i] = a.data[i] - b.data[i]
	}
	return out, nil
}

// Transpose returns the transpose.
func (m *Matrix) Transpose() *Matrix {
	out := NewMatrix(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			out.Set(j, i, m.At(i, j))
		}
	}
	return out
}

// Invert returns the inverse via the closed-form 2x2 or 3x3 formula.
func (m *Matrix) Invert() (*Matrix, error) {
	switch {
	case m.rows == 2 && m.cols == 2:
		return m.invert2x2()
	case m.rows == 3 && m.cols == 3:
		return m.invert3x3()
	default:
		return nil, fmt.Errorf("cannot invert %dx%d matrix: %w", m.rows, m.cols, ErrUnsupportedInversion)
	}
}

func (m *Matrix) invert2x2() (*Matrix, error) {
	a, b := m.At(0, 0), m.At(0, 1)
	c, d := m.At(1, 0), m.At(1, 1)
	det := a*d - b*c
	if math.Abs(det) < singularTol {
		return nil, fmt.Errorf("2x2 determinant %e: %w", det, ErrSingularMatrix)
	}
	out := NewMatrix(2, 2)
	out.Set(0, 0, d/det)
	out.Set(0, 1, -b/det)
	out.Set(1, 0, -c/det)
	out.Set(1, 1, a/det)
	return out, nil
}

func (m *Matrix) invert3x3() (*Matrix, error) {
	a00, a01, a02 := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	a10, a11, a12 := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	a20, a21, a22 := m.At(2, 0), m.At(2, 1), m.At(2, 2)
	det := a00*(a11*a22-a12*a21) - a01*(a10*a22-a12*a20) + a02*(a10*a21-a11*a20)
	if math.Abs(det) < singularTol {
		return nil, fmt.Errorf("3x3 determinant %e: %w", det, ErrSingularMatrix)
	}
	out := NewMatrix(3, 3)
	out.Set(0, 0, (a11*a22-a12*a21)/det)
	out.Set(0, 1, -(a01*a22-a02*a21)/det)
	out.Set(0, 2, (a01*a12-a02*a11)/det)
	out.Set(1, 0, -(a10*a22-a12*a20)/det)
	out.Set(1, 1, (a00*a22-a02*a20)/det)
	out.Set(1, 2, -(a00*a12-a02*a10)/det)
	out.Set(2, 0, (a10*a21-a11*a20)/det)
	out.Set(2, 1, -(a00*a21-a01*a20)/det)
	out.Set(2, 2, (a00*a11-a01*a10)/det)
	return out, nil
}

// symmetrize projects m onto its symmetric part, (m + mᵀ)/2. Square matrices only.
func (m *Matrix) symmetrize() {
	for i := 0; i < m.rows; i++ {
		for j := i + 1; j < m.cols; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}
