package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CPUDevice is the device id of host memory.
const CPUDevice = -1

// Format is the storage format of a Matrix.
type Format int

const (
	// FormatDense stores rows*cols values in column-major order.
	FormatDense Format = iota
	// FormatSparseCSC stores compressed sparse columns.
	FormatSparseCSC
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatDense:
		return "dense"
	case FormatSparseCSC:
		return "sparse_csc"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Matrix is a column-major matrix whose backing storage is reused across
// minibatches. Storage only grows: resizing to a smaller or equal extent
// reuses the existing allocation.
//
// A Matrix is not safe for concurrent use.
type Matrix struct {
	deviceID int
	format   Format
	rows     int
	cols     int

	values     []float64
	colStarts  []int
	rowIndices []int

	allocations int
}

// NewMatrix returns an empty dense matrix placed on deviceID.
func NewMatrix(deviceID int) *Matrix {
	return &Matrix{deviceID: deviceID}
}

// DeviceID returns the device the matrix lives on.
func (m *Matrix) DeviceID() int { return m.deviceID }

// Format returns the current storage format.
func (m *Matrix) Format() Format { return m.format }

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Allocations returns how many times backing storage had to be reallocated.
func (m *Matrix) Allocations() int { return m.allocations }

// Capacity returns the number of values the backing storage can hold
// without reallocating.
func (m *Matrix) Capacity() int { return cap(m.values) }

// NNZ returns the number of stored values. For dense matrices it is
// rows*cols.
func (m *Matrix) NNZ() int { return len(m.values) }

// Values returns the live region of the backing storage.
func (m *Matrix) Values() []float64 { return m.values }

// ColStarts returns the column offsets of a sparse matrix, or nil.
func (m *Matrix) ColStarts() []int {
	if m.format != FormatSparseCSC {
		return nil
	}
	return m.colStarts
}

// RowIndices returns the row indices of a sparse matrix, or nil.
func (m *Matrix) RowIndices() []int {
	if m.format != FormatSparseCSC {
		return nil
	}
	return m.rowIndices
}

// TransferToDevice moves the matrix to deviceID.
func (m *Matrix) TransferToDevice(deviceID int) {
	m.deviceID = deviceID
}

// ResizeDense switches m to dense format with the given extent and returns
// the live region, rows*cols values in column-major order. The caller must
// overwrite every value of the returned slice.
func (m *Matrix) ResizeDense(rows, cols int) []float64 {
	m.format = FormatDense
	m.rows, m.cols = rows, cols
	m.values = growSlice(m, m.values, rows*cols)
	m.colStarts = m.colStarts[:0]
	m.rowIndices = m.rowIndices[:0]
	return m.values
}

// ResizeSparseCSC switches m to sparse CSC format with the given extent and
// number of stored values. It returns the live column offsets (cols+1),
// row indices (nnz) and values (nnz) for the caller to overwrite.
func (m *Matrix) ResizeSparseCSC(rows, cols, nnz int) (colStarts, rowIndices []int, values []float64) {
	m.format = FormatSparseCSC
	m.rows, m.cols = rows, cols
	m.colStarts = growSlice(m, m.colStarts, cols+1)
	m.rowIndices = growSlice(m, m.rowIndices, nnz)
	m.values = growSlice(m, m.values, nnz)
	return m.colStarts, m.rowIndices, m.values
}

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) float64 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("tensor: index (%d, %d) out of range for %dx%d matrix", i, j, m.rows, m.cols))
	}
	if m.format == FormatDense {
		return m.values[j*m.rows+i]
	}
	for k := m.colStarts[j]; k < m.colStarts[j+1]; k++ {
		if m.rowIndices[k] == i {
			return m.values[k]
		}
	}
	return 0
}

// View returns a dense view of m. Dense matrices share storage with the
// view; sparse matrices are densified into a new matrix. View returns nil
// for an empty matrix.
func (m *Matrix) View() mat.Matrix {
	if m.rows == 0 || m.cols == 0 {
		return nil
	}
	if m.format == FormatDense {
		// Column-major rows x cols is row-major cols x rows.
		return mat.NewDense(m.cols, m.rows, m.values).T()
	}
	d := mat.NewDense(m.rows, m.cols, nil)
	for j := 0; j < m.cols; j++ {
		for k := m.colStarts[j]; k < m.colStarts[j+1]; k++ {
			d.Set(m.rowIndices[k], j, m.values[k])
		}
	}
	return d
}

// Swap exchanges the contents of m and other, including their backing
// storage.
func (m *Matrix) Swap(other *Matrix) {
	*m, *other = *other, *m
}

// String implements fmt.Stringer.
func (m *Matrix) String() string {
	return fmt.Sprintf("Matrix(%dx%d, %s, device=%d)", m.rows, m.cols, m.format, m.deviceID)
}

// growSlice returns buf resliced to n, reallocating only when the capacity
// is too small.
func growSlice[T any](m *Matrix, buf []T, n int) []T {
	if cap(buf) >= n {
		return buf[:n]
	}
	m.allocations++
	return make([]T, n)
}
