package stream

import (
	"fmt"
	"strings"
)

// StorageType is the storage kind of the samples in a stream.
type StorageType int

const (
	// StorageUndefined means no storage kind was requested. A request with
	// StorageUndefined accepts whatever the reader exposes.
	StorageUndefined StorageType = iota
	// StorageDense stores every element of every sample.
	StorageDense
	// StorageSparseCSC stores samples as compressed sparse columns.
	StorageSparseCSC
)

// String returns the string representation of the storage type.
func (s StorageType) String() string {
	switch s {
	case StorageUndefined:
		return "undefined"
	case StorageDense:
		return "dense"
	case StorageSparseCSC:
		return "sparse_csc"
	default:
		return fmt.Sprintf("StorageType(%d)", int(s))
	}
}

// ParseStorageType parses the names returned by StorageType.String.
func ParseStorageType(s string) (StorageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "undefined":
		return StorageUndefined, nil
	case "dense":
		return StorageDense, nil
	case "sparse", "sparse_csc":
		return StorageSparseCSC, nil
	}
	return StorageUndefined, fmt.Errorf("unknown storage type %q", s)
}

// ElementType is the encoding of a single value in a raw stream buffer.
type ElementType int

const (
	// Float32 values are IEEE 754 single precision.
	Float32 ElementType = iota
	// Float64 values are IEEE 754 double precision.
	Float64
	// Float16 values are IEEE 754 half precision.
	Float16
)

// Size returns the number of bytes used by one value.
func (e ElementType) Size() int {
	switch e {
	case Float16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// String returns the string representation of the element type.
func (e ElementType) String() string {
	switch e {
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("ElementType(%d)", int(e))
	}
}

// Description describes one stream exposed by a reader. A Description is
// immutable once created; every other component only references it.
type Description struct {
	// ID is the stream id. Readers number their streams 0..n-1 and index
	// Minibatch.Data by it.
	ID int

	// Name is the unique stream name inputs are requested by.
	Name string

	// StorageType is how samples of this stream are delivered.
	StorageType StorageType

	// ElementType is how values of this stream are encoded.
	ElementType ElementType

	// SampleShape is the shape of a single sample.
	SampleShape []int
}

// SampleSize returns the number of elements in one sample, which is the row
// count of a matrix filled from this stream.
func (d *Description) SampleSize() int {
	if len(d.SampleShape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range d.SampleShape {
		n *= dim
	}
	return n
}

// String implements fmt.Stringer.
func (d *Description) String() string {
	return fmt.Sprintf("%s(id=%d, %s, %s, shape=%v)", d.Name, d.ID, d.StorageType, d.ElementType, d.SampleShape)
}

// InputDescription is a stream requested by the consumer of a minibatch loop.
type InputDescription struct {
	// Name of the requested stream.
	Name string

	// DeviceID is the compute device the stream's matrix must live on.
	DeviceID int

	// StorageType is the storage the consumer expects. StorageUndefined
	// accepts whatever the reader exposes.
	StorageType StorageType
}
