package reader

import (
	"errors"
	"fmt"

	"github.com/devu10/CNTK/stream"
)

// ChannelConfig provides configuration options for creating a Channel reader.
type ChannelConfig struct {
	// Streams describes the exposed streams.
	// This field is required.
	Streams []*stream.Description

	// Input is the channel from which this reader will take minibatches.
	// This field is required.
	Input <-chan Minibatch
}

// Validate checks if the ChannelConfig is valid.
func (c ChannelConfig) Validate() error {
	if len(c.Streams) == 0 {
		return errors.New("at least one stream is required")
	}
	if c.Input == nil {
		return errors.New("input channel cannot be nil")
	}
	return nil
}

// NewChannel creates a new Channel reader with the given configuration.
// It validates the configuration and returns an error if invalid.
//
// Example:
//
//	input := make(chan reader.Minibatch, 10)
//	r, err := reader.NewChannel(reader.ChannelConfig{
//		Streams: streams,
//		Input:   input,
//	})
//	if err != nil {
//		// handle error
//	}
func NewChannel(config ChannelConfig) (*Channel, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid channel config: %w", err)
	}
	return &Channel{
		streams: config.Streams,
		input:   config.Input,
	}, nil
}

// Channel is a Reader that forwards minibatches received on a channel. It
// does not partition or cut epochs itself; whoever feeds the channel decides
// what each minibatch contains. When the channel is closed the reader
// reports the end of the data.
type Channel struct {
	streams []*stream.Description
	input   <-chan Minibatch

	epochs []EpochConfiguration
}

var _ Reader = (*Channel)(nil)

// StreamDescriptions implements the Reader interface.
func (r *Channel) StreamDescriptions() []*stream.Description {
	return r.streams
}

// StartEpoch implements the Reader interface. It only records cfg.
func (r *Channel) StartEpoch(cfg EpochConfiguration, _ []*stream.Description) error {
	if err := validateEpoch(cfg); err != nil {
		return err
	}
	r.epochs = append(r.epochs, cfg)
	return nil
}

// ReadMinibatch implements the Reader interface. It blocks until a
// minibatch is available or the input channel is closed.
func (r *Channel) ReadMinibatch() (Minibatch, error) {
	mb, ok := <-r.input
	if !ok {
		return Minibatch{EndOfEpoch: true, EndOfData: true}, nil
	}
	return mb, nil
}

// Epochs returns the configurations StartEpoch was called with.
func (r *Channel) Epochs() []EpochConfiguration {
	return r.epochs
}
