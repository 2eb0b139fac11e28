package shim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devu10/CNTK/prefetch"
	"github.com/devu10/CNTK/reader"
	"github.com/devu10/CNTK/stream"
)

func TestEpochConfiguration(t *testing.T) {
	tests := []struct {
		name                                string
		mbSize, epoch, index, count, sample int
		wantErr                             bool
	}{
		{name: "single worker", mbSize: 4, count: 1},
		{name: "last worker", mbSize: 4, index: 2, count: 3},
		{name: "zero minibatch", mbSize: 0, count: 1, wantErr: true},
		{name: "negative epoch", mbSize: 4, epoch: -1, count: 1, wantErr: true},
		{name: "no workers", mbSize: 4, count: 0, wantErr: true},
		{name: "index equals count", mbSize: 4, index: 2, count: 2, wantErr: true},
		{name: "negative index", mbSize: 4, index: -1, count: 2, wantErr: true},
		{name: "negative samples", mbSize: 4, count: 1, sample: -5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := epochConfiguration(tt.mbSize, tt.epoch, tt.index, tt.count, tt.sample)
			if tt.wantErr {
				var cfgErr *ConfigError
				assert.True(t, errors.As(err, &cfgErr), "want *ConfigError, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.index, cfg.WorkerRank)
			assert.Equal(t, tt.count, cfg.NumberOfWorkers)
		})
	}

	cfg, err := epochConfiguration(4, 0, 0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, reader.RequestDataSize, cfg.TotalEpochSizeInSamples, "zero samples reads the whole data")
}

func TestEpochController_Configure(t *testing.T) {
	streams := []*stream.Description{{ID: 0, Name: "x", StorageType: stream.StorageDense, ElementType: stream.Float32, SampleShape: []int{1}}}
	input := make(chan reader.Minibatch)
	r, err := reader.NewChannel(reader.ChannelConfig{Streams: streams, Input: input})
	require.NoError(t, err)

	c := &epochController{
		reader: r,
		engine: prefetch.NewEngine[prefetchResult](prefetch.LaunchAsync),
		logger: &NoOpLogger{},
	}

	_, ok := c.current()
	assert.False(t, ok)

	require.NoError(t, c.configure(8, 3, 100, streams))
	require.NoError(t, c.configureDistributed(8, 4, 1, 2, 0, streams))

	assert.Equal(t, []reader.EpochConfiguration{
		{MinibatchSizeInSamples: 8, TotalEpochSizeInSamples: 100, EpochIndex: 3, WorkerRank: 0, NumberOfWorkers: 1},
		{MinibatchSizeInSamples: 8, TotalEpochSizeInSamples: reader.RequestDataSize, EpochIndex: 4, WorkerRank: 1, NumberOfWorkers: 2},
	}, r.Epochs())
	cfg, ok := c.current()
	assert.True(t, ok)
	assert.Equal(t, r.Epochs()[1], cfg)

	var cfgErr *ConfigError
	assert.True(t, errors.As(c.configureDistributed(8, 0, 2, 2, 0, streams), &cfgErr))
	assert.True(t, errors.As(c.configure(8, 0, 0, nil), &cfgErr))
	assert.Len(t, r.Epochs(), 2, "an invalid configuration must not reach the reader")
}

func TestEpochController_ReaderFailure(t *testing.T) {
	want := errors.New("no such epoch")
	streams := []*stream.Description{{ID: 0, Name: "x", StorageType: stream.StorageDense, ElementType: stream.Float32, SampleShape: []int{1}}}
	c := &epochController{
		reader: &reader.Error{Streams: streams, StartErr: want},
		engine: prefetch.NewEngine[prefetchResult](prefetch.LaunchAsync),
		logger: &NoOpLogger{},
	}

	err := c.configure(8, 0, 0, streams)
	var readerErr *ReaderError
	require.True(t, errors.As(err, &readerErr))
	assert.ErrorIs(t, err, want)
	_, ok := c.current()
	assert.False(t, ok)
}
