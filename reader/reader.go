package reader

import (
	"math"

	"github.com/devu10/CNTK/stream"
	"github.com/devu10/CNTK/tensor"
)

// RequestDataSize requests an unbounded epoch: the epoch runs until the
// reader reaches the natural end of its data.
const RequestDataSize = math.MaxInt

// EpochConfiguration configures a reader for one epoch.
type EpochConfiguration struct {
	// MinibatchSizeInSamples is the global minibatch size, summed over all
	// workers.
	MinibatchSizeInSamples int

	// TotalEpochSizeInSamples is the epoch size, or RequestDataSize.
	TotalEpochSizeInSamples int

	// EpochIndex is the zero-based epoch number.
	EpochIndex int

	// WorkerRank is the index of this worker, in [0, NumberOfWorkers).
	WorkerRank int

	// NumberOfWorkers is the number of workers the epoch is partitioned
	// across. Single-worker reading uses 1.
	NumberOfWorkers int
}

// StreamMinibatch is the data of one stream in a minibatch, as produced by a
// reader. Values are little-endian encoded according to ElementType.
//
// Dense data holds sampleSize * Layout.NumColumns() values in column-major
// order. Sparse data holds len(RowIndices) values with ColStarts of length
// Layout.NumColumns()+1.
type StreamMinibatch struct {
	StorageType stream.StorageType
	ElementType stream.ElementType
	Layout      *tensor.MBLayout

	Data       []byte
	ColStarts  []int32
	RowIndices []int32
}

// Minibatch is the result of a single ReadMinibatch call.
type Minibatch struct {
	// Data is indexed by stream id. Streams that were not requested may be
	// nil. An empty Data means no minibatch was produced.
	Data []*StreamMinibatch

	// EndOfEpoch is set on the last minibatch of the epoch, or on an empty
	// minibatch returned after it.
	EndOfEpoch bool

	// EndOfData is set when the reader has no data left at all, not just in
	// this epoch. It implies EndOfEpoch.
	EndOfData bool
}

// Empty reports whether the minibatch carries no data.
func (m Minibatch) Empty() bool {
	for _, s := range m.Data {
		if s != nil {
			return false
		}
	}
	return true
}

// Reader produces minibatches for a training loop.
//
// StartEpoch resets the reader's position; it is never called while a
// ReadMinibatch call is in progress. ReadMinibatch is called repeatedly from
// a single goroutine, which may differ from the goroutine that called
// StartEpoch.
type Reader interface {
	// StreamDescriptions returns the streams the reader exposes.
	StreamDescriptions() []*stream.Description

	// StartEpoch configures the reader for an epoch. inputs are the streams
	// the consumer requested.
	StartEpoch(cfg EpochConfiguration, inputs []*stream.Description) error

	// ReadMinibatch returns the next minibatch of the epoch.
	ReadMinibatch() (Minibatch, error)
}
