package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMatrix_ResizeDenseReusesStorage(t *testing.T) {
	m := NewMatrix(CPUDevice)

	vals := m.ResizeDense(3, 4)
	require.Len(t, vals, 12)
	assert.Equal(t, 1, m.Allocations())

	m.ResizeDense(3, 2)
	assert.Equal(t, 1, m.Allocations(), "shrinking must not reallocate")
	assert.Equal(t, 12, m.Capacity())

	m.ResizeDense(2, 6)
	assert.Equal(t, 1, m.Allocations(), "same extent must not reallocate")

	m.ResizeDense(4, 4)
	assert.Equal(t, 2, m.Allocations())
	assert.Equal(t, 16, m.Capacity())
}

func TestMatrix_DenseAtAndView(t *testing.T) {
	m := NewMatrix(CPUDevice)
	vals := m.ResizeDense(2, 3)
	// column-major: column 0 = {1, 2}, column 1 = {3, 4}, column 2 = {5, 6}
	copy(vals, []float64{1, 2, 3, 4, 5, 6})

	assert.Equal(t, 1.0, m.At(0, 0))
	assert.Equal(t, 2.0, m.At(1, 0))
	assert.Equal(t, 5.0, m.At(0, 2))

	want := mat.NewDense(2, 3, []float64{
		1, 3, 5,
		2, 4, 6,
	})
	assert.True(t, mat.Equal(want, m.View()))
}

func TestMatrix_SparseCSC(t *testing.T) {
	m := NewMatrix(0)
	colStarts, rowIndices, values := m.ResizeSparseCSC(4, 3, 3)
	copy(colStarts, []int{0, 1, 1, 3})
	copy(rowIndices, []int{2, 0, 3})
	copy(values, []float64{7, 8, 9})

	assert.Equal(t, FormatSparseCSC, m.Format())
	assert.Equal(t, 3, m.NNZ())
	assert.Equal(t, 7.0, m.At(2, 0))
	assert.Equal(t, 0.0, m.At(1, 1))
	assert.Equal(t, 9.0, m.At(3, 2))

	want := mat.NewDense(4, 3, []float64{
		0, 0, 8,
		0, 0, 0,
		7, 0, 0,
		0, 0, 9,
	})
	assert.True(t, mat.Equal(want, m.View()))
}

func TestMatrix_Swap(t *testing.T) {
	a := NewMatrix(CPUDevice)
	copy(a.ResizeDense(1, 2), []float64{1, 2})
	b := NewMatrix(1)

	a.Swap(b)

	assert.Equal(t, 0, a.Rows())
	assert.Equal(t, 1, a.DeviceID())
	assert.Equal(t, 2, b.Cols())
	assert.Equal(t, CPUDevice, b.DeviceID())
	assert.Equal(t, 2.0, b.At(0, 1))
}

func TestMatrix_EmptyView(t *testing.T) {
	assert.Nil(t, NewMatrix(CPUDevice).View())
}

func TestMatrix_AtOutOfRange(t *testing.T) {
	m := NewMatrix(CPUDevice)
	m.ResizeDense(1, 1)
	assert.Panics(t, func() { m.At(1, 0) })
}
