package reader

import (
	"errors"

	"github.com/devu10/CNTK/stream"
)

// Error is a Reader that produces no data and fails every read with Err. It
// is useful for testing error handling of minibatch loops.
type Error struct {
	// Streams describes the exposed streams.
	Streams []*stream.Description

	// Err is returned from ReadMinibatch. If nil, a generic error is used.
	Err error

	// StartErr, if set, is returned from StartEpoch.
	StartErr error
}

var _ Reader = (*Error)(nil)

var errReadFailed = errors.New("reader: read failed")

// StreamDescriptions implements the Reader interface.
func (r *Error) StreamDescriptions() []*stream.Description {
	return r.Streams
}

// StartEpoch implements the Reader interface.
func (r *Error) StartEpoch(cfg EpochConfiguration, _ []*stream.Description) error {
	if r.StartErr != nil {
		return r.StartErr
	}
	return validateEpoch(cfg)
}

// ReadMinibatch implements the Reader interface.
func (r *Error) ReadMinibatch() (Minibatch, error) {
	if r.Err == nil {
		return Minibatch{}, errReadFailed
	}
	return Minibatch{}, r.Err
}
