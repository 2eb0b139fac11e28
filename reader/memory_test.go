package reader

import (
	"encoding/binary"
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devu10/CNTK/stream"
)

func frameStreams() []*stream.Description {
	return []*stream.Description{
		{ID: 0, Name: "x", StorageType: stream.StorageDense, ElementType: stream.Float32, SampleShape: []int{1}},
	}
}

// frameCorpus returns n frames whose single value equals the sequence id.
func frameCorpus(n int) []Sequence {
	seqs := make([]Sequence, n)
	for i := range seqs {
		seqs[i] = Sequence{ID: uint64(i), Length: 1, Values: [][]float32{{float32(i)}}}
	}
	return seqs
}

func newFrameReader(t *testing.T, n int, repeat bool) *Memory {
	t.Helper()
	r, err := NewMemory(MemoryConfig{Streams: frameStreams(), Sequences: frameCorpus(n), Repeat: repeat})
	require.NoError(t, err)
	return r
}

func epoch(mbSize, epochSize, index, rank, workers int) EpochConfiguration {
	return EpochConfiguration{
		MinibatchSizeInSamples:  mbSize,
		TotalEpochSizeInSamples: epochSize,
		EpochIndex:              index,
		WorkerRank:              rank,
		NumberOfWorkers:         workers,
	}
}

func decodeFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// readAll drains the epoch and returns the sequence ids of every minibatch.
func readAll(t *testing.T, r Reader) (batches [][]uint64, last Minibatch) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		mb, err := r.ReadMinibatch()
		require.NoError(t, err)
		if !mb.Empty() {
			var ids []uint64
			for _, s := range mb.Data[0].Layout.Sequences {
				ids = append(ids, s.ID)
			}
			batches = append(batches, ids)
		}
		if mb.EndOfEpoch {
			return batches, mb
		}
	}
	t.Fatal("reader never signalled end of epoch")
	return nil, Minibatch{}
}

func TestMemory_SingleWorker(t *testing.T) {
	r := newFrameReader(t, 12, false)
	require.NoError(t, r.StartEpoch(epoch(4, RequestDataSize, 0, 0, 1), frameStreams()))

	mb, err := r.ReadMinibatch()
	require.NoError(t, err)
	require.NotNil(t, mb.Data[0])
	assert.False(t, mb.EndOfEpoch)
	assert.Equal(t, []float32{0, 1, 2, 3}, decodeFloat32(mb.Data[0].Data))
	assert.Equal(t, 4, mb.Data[0].Layout.NumParallelSequences)
	assert.Equal(t, 1, mb.Data[0].Layout.NumTimeSteps)

	batches, last := readAll(t, r)
	assert.Equal(t, [][]uint64{{4, 5, 6, 7}, {8, 9, 10, 11}}, batches)
	assert.True(t, last.EndOfEpoch)
	assert.True(t, last.EndOfData)

	// Reading past the end keeps reporting the end.
	mb, err = r.ReadMinibatch()
	require.NoError(t, err)
	assert.True(t, mb.Empty())
	assert.True(t, mb.EndOfData)
}

func TestMemory_DistributedShardsAreDisjoint(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 5} {
		single := newFrameReader(t, 23, false)
		require.NoError(t, single.StartEpoch(epoch(4, RequestDataSize, 0, 0, 1), frameStreams()))
		want, _ := readAll(t, single)

		var got [][]uint64
		for rank := 0; rank < workers; rank++ {
			r := newFrameReader(t, 23, false)
			require.NoError(t, r.StartEpoch(epoch(4, RequestDataSize, 0, rank, workers), frameStreams()))
			shard, last := readAll(t, r)
			assert.True(t, last.EndOfData, "worker %d of %d", rank, workers)
			got = append(got, shard...)
		}

		sort.Slice(got, func(i, j int) bool { return got[i][0] < got[j][0] })
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%d workers: union of shards differs from single worker (-want +got):\n%s", workers, diff)
		}
	}
}

func TestMemory_BoundedEpochs(t *testing.T) {
	r := newFrameReader(t, 10, true)

	require.NoError(t, r.StartEpoch(epoch(3, 6, 0, 0, 1), frameStreams()))
	batches, last := readAll(t, r)
	assert.Equal(t, [][]uint64{{0, 1, 2}, {3, 4, 5}}, batches)
	assert.False(t, last.EndOfData)

	// Epoch 1 wraps around the repeated corpus.
	require.NoError(t, r.StartEpoch(epoch(3, 6, 1, 0, 1), frameStreams()))
	batches, _ = readAll(t, r)
	assert.Equal(t, [][]uint64{{6, 7, 8}, {9, 0, 1}}, batches)
}

func TestMemory_BoundedEpochRunsOutOfData(t *testing.T) {
	r := newFrameReader(t, 10, false)

	require.NoError(t, r.StartEpoch(epoch(4, 8, 1, 0, 1), frameStreams()))
	batches, last := readAll(t, r)
	assert.Equal(t, [][]uint64{{8, 9}}, batches)
	assert.True(t, last.EndOfData)

	require.NoError(t, r.StartEpoch(epoch(4, 8, 2, 0, 1), frameStreams()))
	batches, last = readAll(t, r)
	assert.Empty(t, batches)
	assert.True(t, last.EndOfData)
}

func TestMemory_SequencesAndSparse(t *testing.T) {
	streams := []*stream.Description{
		{ID: 0, Name: "x", StorageType: stream.StorageDense, ElementType: stream.Float32, SampleShape: []int{2}},
		{ID: 1, Name: "y", StorageType: stream.StorageSparseCSC, ElementType: stream.Float32, SampleShape: []int{3}},
	}
	r, err := NewMemory(MemoryConfig{
		Streams: streams,
		Sequences: []Sequence{
			{ID: 10, Length: 2, Values: [][]float32{{1, 2, 3, 4}, {0, 1, 0, 0, 0, 5}}},
			{ID: 11, Length: 1, Values: [][]float32{{5, 6}, {7, 0, 0}}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.StartEpoch(epoch(8, RequestDataSize, 0, 0, 1), streams))

	mb, err := r.ReadMinibatch()
	require.NoError(t, err)
	assert.True(t, mb.EndOfEpoch)
	assert.True(t, mb.EndOfData)

	layout := mb.Data[0].Layout
	assert.Same(t, layout, mb.Data[1].Layout, "streams of one minibatch share a layout")
	assert.Equal(t, 2, layout.NumParallelSequences)
	assert.Equal(t, 2, layout.NumTimeSteps)
	assert.Equal(t, 3, layout.NumSamples())

	// Columns: (t0,s10) (t0,s11) (t1,s10) (t1,gap)
	assert.Equal(t, []float32{1, 2, 5, 6, 3, 4, 0, 0}, decodeFloat32(mb.Data[0].Data))

	y := mb.Data[1]
	assert.Equal(t, stream.StorageSparseCSC, y.StorageType)
	assert.Equal(t, []int32{0, 1, 2, 3, 3}, y.ColStarts)
	assert.Equal(t, []int32{1, 0, 2}, y.RowIndices)
	assert.Equal(t, []float32{1, 7, 5}, decodeFloat32(y.Data))
}

func TestMemory_OnlyRequestedStreams(t *testing.T) {
	streams := []*stream.Description{
		{ID: 0, Name: "x", StorageType: stream.StorageDense, ElementType: stream.Float32, SampleShape: []int{1}},
		{ID: 1, Name: "y", StorageType: stream.StorageDense, ElementType: stream.Float32, SampleShape: []int{1}},
	}
	r, err := NewMemory(MemoryConfig{
		Streams:   streams,
		Sequences: []Sequence{{ID: 0, Length: 1, Values: [][]float32{{1}, {2}}}},
	})
	require.NoError(t, err)
	require.NoError(t, r.StartEpoch(epoch(1, RequestDataSize, 0, 0, 1), streams[1:]))

	mb, err := r.ReadMinibatch()
	require.NoError(t, err)
	assert.Nil(t, mb.Data[0])
	require.NotNil(t, mb.Data[1])
}

func TestMemory_Errors(t *testing.T) {
	t.Run("read before start", func(t *testing.T) {
		r := newFrameReader(t, 1, false)
		_, err := r.ReadMinibatch()
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("invalid epoch configuration", func(t *testing.T) {
		r := newFrameReader(t, 1, false)
		assert.Error(t, r.StartEpoch(epoch(0, RequestDataSize, 0, 0, 1), nil))
		assert.Error(t, r.StartEpoch(epoch(1, RequestDataSize, 0, 2, 2), nil))
		assert.Error(t, r.StartEpoch(epoch(1, RequestDataSize, -1, 0, 1), nil))
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewMemory(MemoryConfig{})
		assert.Error(t, err)

		_, err = NewMemory(MemoryConfig{
			Streams:   frameStreams(),
			Sequences: []Sequence{{ID: 0, Length: 2, Values: [][]float32{{1}}}},
		})
		assert.Error(t, err)

		_, err = NewMemory(MemoryConfig{Streams: frameStreams(), Repeat: true})
		assert.Error(t, err)
	})
}

func TestSynthetic(t *testing.T) {
	a, err := Synthetic(SyntheticConfig{NumSequences: 20, MaxSequenceLength: 3, Seed: 7})
	require.NoError(t, err)
	b, err := Synthetic(SyntheticConfig{NumSequences: 20, MaxSequenceLength: 3, Seed: 7})
	require.NoError(t, err)

	if diff := cmp.Diff(a.sequences, b.sequences); diff != "" {
		t.Errorf("same seed generated different corpora:\n%s", diff)
	}

	streams := a.StreamDescriptions()
	require.Len(t, streams, 2)
	assert.Equal(t, FeaturesStream, streams[0].Name)
	assert.Equal(t, LabelsStream, streams[1].Name)

	require.NoError(t, a.StartEpoch(epoch(16, RequestDataSize, 0, 0, 1), streams))
	for _, mb := range mustReadEpoch(t, a) {
		assert.Equal(t, mb.Data[0].Layout.NumSamples(), len(mb.Data[1].RowIndices), "one label per sample")
	}
}

func mustReadEpoch(t *testing.T, r Reader) []Minibatch {
	t.Helper()
	var out []Minibatch
	for {
		mb, err := r.ReadMinibatch()
		require.NoError(t, err)
		if !mb.Empty() {
			out = append(out, mb)
		}
		if mb.EndOfEpoch {
			return out
		}
	}
}
