package shim

import "github.com/devu10/CNTK/stream"

// LoopRequest describes how a minibatch loop is started. It is one of
// InputsRequest or LegacyRequest.
type LoopRequest interface {
	loopRequest()
}

// InputsRequest starts a loop over the named input streams. A WorkerCount of
// zero is invalid; single-worker reading uses worker 0 of 1.
type InputsRequest struct {
	MinibatchSize int
	Epoch         int
	WorkerIndex   int
	WorkerCount   int
	Inputs        []stream.InputDescription

	// RequestedEpochSamples is the epoch size in samples. Zero or
	// reader.RequestDataSize reads until the end of the data.
	RequestedEpochSamples int
}

func (InputsRequest) loopRequest() {}

// LegacyRequest is the older loop shape that does not name its inputs. It is
// never supported.
type LegacyRequest struct {
	MinibatchSize         int
	Epoch                 int
	WorkerIndex           int
	WorkerCount           int
	RequestedEpochSamples int
}

func (LegacyRequest) loopRequest() {}
