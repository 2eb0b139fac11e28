package shim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/devu10/CNTK/prefetch"
	"github.com/devu10/CNTK/reader"
	"github.com/devu10/CNTK/stream"
)

// epochController turns loop parameters into an EpochConfiguration and
// repositions the reader. It owns the only call sites of Reader.StartEpoch.
type epochController struct {
	reader reader.Reader
	engine *prefetch.Engine[prefetchResult]
	logger Logger

	mu         sync.Mutex
	cfg        reader.EpochConfiguration
	configured bool
}

// epochConfiguration validates the loop parameters. A requested size of zero
// reads the whole data.
func epochConfiguration(mbSize, epoch, workerIndex, workerCount, requestedEpochSamples int) (reader.EpochConfiguration, error) {
	var err error
	switch {
	case mbSize <= 0:
		err = fmt.Errorf("minibatch size must be positive, got %d", mbSize)
	case epoch < 0:
		err = fmt.Errorf("epoch must not be negative, got %d", epoch)
	case workerCount <= 0:
		err = fmt.Errorf("worker count must be positive, got %d", workerCount)
	case workerIndex < 0 || workerIndex >= workerCount:
		err = fmt.Errorf("worker index %d out of range for %d workers", workerIndex, workerCount)
	case requestedEpochSamples < 0:
		err = fmt.Errorf("requested epoch samples must not be negative, got %d", requestedEpochSamples)
	}
	if err != nil {
		return reader.EpochConfiguration{}, &ConfigError{Op: "configure epoch", Err: err}
	}

	if requestedEpochSamples == 0 {
		requestedEpochSamples = reader.RequestDataSize
	}
	return reader.EpochConfiguration{
		MinibatchSizeInSamples:  mbSize,
		TotalEpochSizeInSamples: requestedEpochSamples,
		EpochIndex:              epoch,
		WorkerRank:              workerIndex,
		NumberOfWorkers:         workerCount,
	}, nil
}

func (c *epochController) configure(mbSize, epoch, requestedEpochSamples int, inputs []*stream.Description) error {
	return c.configureDistributed(mbSize, epoch, 0, 1, requestedEpochSamples, inputs)
}

// configureDistributed waits for any in-flight prefetch and drops its result
// before the reader is repositioned, so no buffer ever mixes two epochs.
func (c *epochController) configureDistributed(mbSize, epoch, workerIndex, workerCount, requestedEpochSamples int, inputs []*stream.Description) error {
	cfg, err := epochConfiguration(mbSize, epoch, workerIndex, workerCount, requestedEpochSamples)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return &ConfigError{Op: "configure epoch", Err: errors.New("no input streams")}
	}

	if c.engine.InFlight() {
		c.logger.Debug("Waiting for in-flight prefetch before starting epoch %d", epoch)
	}
	c.engine.Discard()

	c.mu.Lock()
	c.configured = false
	c.mu.Unlock()
	if err := c.reader.StartEpoch(cfg, inputs); err != nil {
		return &ReaderError{Op: "start epoch", Err: err}
	}

	c.mu.Lock()
	c.cfg = cfg
	c.configured = true
	c.mu.Unlock()
	return nil
}

// current returns the configuration the reader was last positioned with. It
// reports false before the first epoch and after a failed StartEpoch.
func (c *epochController) current() (reader.EpochConfiguration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg, c.configured
}
