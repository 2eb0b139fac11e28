package shim

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/devu10/CNTK/reader"
	"github.com/devu10/CNTK/stream"
	"github.com/devu10/CNTK/tensor"
)

func denseDesc(elem stream.ElementType, rows int) *stream.Description {
	return &stream.Description{Name: "x", StorageType: stream.StorageDense, ElementType: elem, SampleShape: []int{rows}}
}

func sparseDesc(rows int) *stream.Description {
	return &stream.Description{Name: "y", StorageType: stream.StorageSparseCSC, ElementType: stream.Float32, SampleShape: []int{rows}}
}

func TestFillMatrix_Dense(t *testing.T) {
	values := []float32{1, 2, 3, 4, 5, 6}
	for _, elem := range []stream.ElementType{stream.Float16, stream.Float32, stream.Float64} {
		t.Run(elem.String(), func(t *testing.T) {
			m := tensor.NewMatrix(tensor.CPUDevice)
			raw := reader.DenseStream(elem, tensor.NewFrameLayout(3), values)

			require.NoError(t, fillMatrix(denseDesc(elem, 2), raw, m))
			assert.Equal(t, tensor.FormatDense, m.Format())
			assert.Equal(t, 2, m.Rows())
			assert.Equal(t, 3, m.Cols())

			// Column-major: column j holds values 2j and 2j+1.
			want := mat.NewDense(2, 3, []float64{1, 3, 5, 2, 4, 6})
			assert.True(t, mat.Equal(want, m.View()), "got %v", mat.Formatted(m.View()))
		})
	}
}

func TestFillMatrix_Sparse(t *testing.T) {
	m := tensor.NewMatrix(tensor.CPUDevice)
	// 3x2: column 0 has (0, 1.5), column 1 has (1, 2) and (2, -1).
	raw := reader.SparseStream(stream.Float32, tensor.NewFrameLayout(2),
		[]int32{0, 1, 3}, []int32{0, 1, 2}, []float32{1.5, 2, -1})

	require.NoError(t, fillMatrix(sparseDesc(3), raw, m))
	assert.Equal(t, tensor.FormatSparseCSC, m.Format())
	assert.Equal(t, 3, m.NNZ())
	if diff := cmp.Diff([]int{0, 1, 3}, m.ColStarts()); diff != "" {
		t.Errorf("column starts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, m.RowIndices()); diff != "" {
		t.Errorf("row indices mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1.5, m.At(0, 0))
	assert.Equal(t, 0.0, m.At(1, 0))
	assert.Equal(t, -1.0, m.At(2, 1))
}

func TestFillMatrix_ReusesStorage(t *testing.T) {
	m := tensor.NewMatrix(tensor.CPUDevice)
	desc := denseDesc(stream.Float32, 4)

	require.NoError(t, fillMatrix(desc, reader.DenseStream(stream.Float32, tensor.NewFrameLayout(8), make([]float32, 32)), m))
	allocs := m.Allocations()

	for _, n := range []int{8, 3, 8, 1} {
		raw := reader.DenseStream(stream.Float32, tensor.NewFrameLayout(n), make([]float32, 4*n))
		require.NoError(t, fillMatrix(desc, raw, m))
		assert.Equal(t, n, m.Cols())
	}
	assert.Equal(t, allocs, m.Allocations(), "smaller or equal minibatches must not reallocate")
}

func TestFillMatrix_Errors(t *testing.T) {
	layout := tensor.NewFrameLayout(2)
	sparse := func(colStarts, rowIndices []int32, values []float32) *reader.StreamMinibatch {
		return reader.SparseStream(stream.Float32, layout, colStarts, rowIndices, values)
	}
	negativeSteps := &tensor.MBLayout{NumParallelSequences: 1, NumTimeSteps: -1}
	negativeBoth := &tensor.MBLayout{NumParallelSequences: -1, NumTimeSteps: -1}

	tests := []struct {
		name string
		desc *stream.Description
		raw  *reader.StreamMinibatch
	}{
		{"nil buffer", denseDesc(stream.Float32, 2), nil},
		{"nil layout", denseDesc(stream.Float32, 2), reader.DenseStream(stream.Float32, nil, []float32{1, 2})},
		{"dense short", denseDesc(stream.Float32, 2), reader.DenseStream(stream.Float32, layout, []float32{1, 2, 3})},
		{"dense long", denseDesc(stream.Float32, 2), reader.DenseStream(stream.Float32, layout, []float32{1, 2, 3, 4, 5})},
		{"storage mismatch", denseDesc(stream.Float32, 3), sparse([]int32{0, 1, 2}, []int32{0, 1}, []float32{1, 1})},
		{"element mismatch", denseDesc(stream.Float64, 2), reader.DenseStream(stream.Float32, layout, []float32{1, 2, 3, 4})},
		{"column starts length", sparseDesc(3), sparse([]int32{0, 2}, []int32{0, 1}, []float32{1, 1})},
		{"column starts not zero based", sparseDesc(3), sparse([]int32{1, 1, 2}, []int32{0, 1}, []float32{1, 1})},
		{"column starts decrease", sparseDesc(3), sparse([]int32{0, 3, 2}, []int32{0, 1}, []float32{1, 1})},
		{"value count", sparseDesc(3), sparse([]int32{0, 1, 2}, []int32{0, 1}, []float32{1})},
		{"row out of range", sparseDesc(3), sparse([]int32{0, 1, 2}, []int32{0, 3}, []float32{1, 1})},
		{"negative row", sparseDesc(3), sparse([]int32{0, 1, 2}, []int32{-1, 0}, []float32{1, 1})},
		{"sparse negative time steps", sparseDesc(3), reader.SparseStream(stream.Float32, negativeSteps, nil, nil, nil)},
		{"dense negative time steps", denseDesc(stream.Float32, 2), reader.DenseStream(stream.Float32, negativeSteps, nil)},
		{"dense negative layout", denseDesc(stream.Float32, 2), reader.DenseStream(stream.Float32, negativeBoth, []float32{1, 2})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tensor.NewMatrix(tensor.CPUDevice)
			m.ResizeDense(1, 1)[0] = 42

			err := fillMatrix(tt.desc, tt.raw, m)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrShapeMismatch)

			var shapeErr *ShapeError
			require.True(t, errors.As(err, &shapeErr))
			assert.Equal(t, tt.desc.Name, shapeErr.Stream)

			// A failed fill leaves the matrix alone.
			assert.Equal(t, 1, m.Cols())
			assert.Equal(t, 42.0, m.At(0, 0))
		})
	}
}
