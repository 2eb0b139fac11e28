package reader

import (
	"time"

	"github.com/devu10/CNTK/stream"
)

// Nil is a Reader that doesn't produce any data. Each read waits for
// Duration and then reports the end of the data. It can be used as a mock
// Reader.
type Nil struct {
	Streams  []*stream.Description
	Duration time.Duration
}

var _ Reader = (*Nil)(nil)

// NewNil creates a new Nil reader exposing streams.
func NewNil(streams []*stream.Description) *Nil {
	return &Nil{Streams: streams}
}

// StreamDescriptions implements the Reader interface.
func (r *Nil) StreamDescriptions() []*stream.Description {
	return r.Streams
}

// StartEpoch implements the Reader interface.
func (r *Nil) StartEpoch(cfg EpochConfiguration, _ []*stream.Description) error {
	return validateEpoch(cfg)
}

// ReadMinibatch doesn't read anything.
func (r *Nil) ReadMinibatch() (Minibatch, error) {
	time.Sleep(r.Duration)
	return Minibatch{EndOfEpoch: true, EndOfData: true}, nil
}
