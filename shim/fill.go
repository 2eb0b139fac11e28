package shim

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"

	"github.com/devu10/CNTK/reader"
	"github.com/devu10/CNTK/stream"
	"github.com/devu10/CNTK/tensor"
)

// fillMatrix materializes raw into m with the declared shape of desc. The
// buffer is validated completely before m is touched, so a failed fill
// leaves m as it was.
func fillMatrix(desc *stream.Description, raw *reader.StreamMinibatch, m *tensor.Matrix) error {
	name := desc.Name
	if raw == nil {
		return shapeErrorf(name, "no data for stream")
	}
	if raw.Layout == nil {
		return shapeErrorf(name, "no minibatch layout")
	}
	if raw.StorageType != desc.StorageType {
		return shapeErrorf(name, "declared %v storage, received %v", desc.StorageType, raw.StorageType)
	}
	if raw.ElementType != desc.ElementType {
		return shapeErrorf(name, "declared %v elements, received %v", desc.ElementType, raw.ElementType)
	}

	if raw.Layout.NumParallelSequences < 0 || raw.Layout.NumTimeSteps < 0 {
		return shapeErrorf(name, "invalid layout of %d parallel sequences by %d time steps", raw.Layout.NumParallelSequences, raw.Layout.NumTimeSteps)
	}

	rows := desc.SampleSize()
	cols := raw.Layout.NumColumns()
	size := desc.ElementType.Size()
	if rows <= 0 || size == 0 {
		return shapeErrorf(name, "invalid sample shape %v of %v", desc.SampleShape, desc.ElementType)
	}

	switch desc.StorageType {
	case stream.StorageDense:
		if want := rows * cols * size; len(raw.Data) != want {
			return shapeErrorf(name, "dense buffer has %d bytes, expected %d for %dx%d %v", len(raw.Data), want, rows, cols, desc.ElementType)
		}
		decode(desc.ElementType, raw.Data, m.ResizeDense(rows, cols))
		return nil

	case stream.StorageSparseCSC:
		nnz := len(raw.RowIndices)
		if err := checkCSC(name, raw, rows, cols, nnz); err != nil {
			return err
		}
		if want := nnz * size; len(raw.Data) != want {
			return shapeErrorf(name, "sparse buffer has %d bytes, expected %d for %d values", len(raw.Data), want, nnz)
		}
		colStarts, rowIndices, values := m.ResizeSparseCSC(rows, cols, nnz)
		for i, v := range raw.ColStarts {
			colStarts[i] = int(v)
		}
		for i, v := range raw.RowIndices {
			rowIndices[i] = int(v)
		}
		decode(desc.ElementType, raw.Data, values)
		return nil

	default:
		return shapeErrorf(name, "unsupported storage %v", desc.StorageType)
	}
}

func checkCSC(name string, raw *reader.StreamMinibatch, rows, cols, nnz int) error {
	if len(raw.ColStarts) != cols+1 {
		return shapeErrorf(name, "sparse buffer has %d column starts, expected %d", len(raw.ColStarts), cols+1)
	}
	if raw.ColStarts[0] != 0 || int(raw.ColStarts[cols]) != nnz {
		return shapeErrorf(name, "column starts span [%d, %d], expected [0, %d]", raw.ColStarts[0], raw.ColStarts[cols], nnz)
	}
	for c := 0; c < cols; c++ {
		if raw.ColStarts[c] > raw.ColStarts[c+1] {
			return shapeErrorf(name, "column starts decrease at column %d", c)
		}
	}
	for i, r := range raw.RowIndices {
		if r < 0 || int(r) >= rows {
			return shapeErrorf(name, "row index %d at position %d out of range [0, %d)", r, i, rows)
		}
	}
	return nil
}

// decode converts little-endian elements of data into dst. len(dst) elements
// are decoded.
func decode(elem stream.ElementType, data []byte, dst []float64) {
	switch elem {
	case stream.Float16:
		for i := range dst {
			dst[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32())
		}
	case stream.Float32:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
		}
	case stream.Float64:
		for i := range dst {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
	}
}
