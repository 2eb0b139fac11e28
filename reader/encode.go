package reader

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/devu10/CNTK/stream"
	"github.com/devu10/CNTK/tensor"
)

// Encode encodes values as little-endian bytes of the given element type.
func Encode(elem stream.ElementType, values []float32) ([]byte, error) {
	size := elem.Size()
	if size == 0 {
		return nil, fmt.Errorf("unsupported element type %v", elem)
	}

	buf := make([]byte, len(values)*size)
	for i, v := range values {
		b := buf[i*size:]
		switch elem {
		case stream.Float16:
			binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits())
		case stream.Float32:
			binary.LittleEndian.PutUint32(b, math.Float32bits(v))
		case stream.Float64:
			binary.LittleEndian.PutUint64(b, math.Float64bits(float64(v)))
		}
	}
	return buf, nil
}

// MustEncode is like Encode but panics on error. It is meant for tests and
// static data.
func MustEncode(elem stream.ElementType, values []float32) []byte {
	buf, err := Encode(elem, values)
	if err != nil {
		panic(err)
	}
	return buf
}

// DenseStream builds a dense StreamMinibatch from column-major values.
func DenseStream(elem stream.ElementType, layout *tensor.MBLayout, values []float32) *StreamMinibatch {
	return &StreamMinibatch{
		StorageType: stream.StorageDense,
		ElementType: elem,
		Layout:      layout,
		Data:        MustEncode(elem, values),
	}
}

// SparseStream builds a sparse CSC StreamMinibatch.
func SparseStream(elem stream.ElementType, layout *tensor.MBLayout, colStarts, rowIndices []int32, values []float32) *StreamMinibatch {
	return &StreamMinibatch{
		StorageType: stream.StorageSparseCSC,
		ElementType: elem,
		Layout:      layout,
		Data:        MustEncode(elem, values),
		ColStarts:   colStarts,
		RowIndices:  rowIndices,
	}
}
