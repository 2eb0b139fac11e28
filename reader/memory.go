package reader

import (
	"errors"
	"fmt"

	"github.com/devu10/CNTK/stream"
	"github.com/devu10/CNTK/tensor"
)

// ErrNotConfigured is returned by ReadMinibatch when StartEpoch has not been
// called.
var ErrNotConfigured = errors.New("reader: StartEpoch has not been called")

// Sequence is one sequence of a Memory corpus.
type Sequence struct {
	// ID identifies the sequence. It is reported in the minibatch layout.
	ID uint64

	// Length is the number of samples (time steps) in the sequence.
	Length int

	// Values holds, per stream id, Length samples in time order. Each sample
	// holds the stream's SampleSize values.
	Values [][]float32
}

// MemoryConfig provides configuration options for creating a Memory reader.
type MemoryConfig struct {
	// Streams describes the exposed streams. Streams[i].ID must be i.
	Streams []*stream.Description

	// Sequences is the corpus, in reading order.
	Sequences []Sequence

	// Repeat makes the corpus repeat indefinitely. Without it the data ends
	// after one sweep over Sequences.
	Repeat bool
}

// Validate checks if the MemoryConfig is valid.
func (c MemoryConfig) Validate() error {
	if len(c.Streams) == 0 {
		return errors.New("at least one stream is required")
	}
	for i, d := range c.Streams {
		if d == nil {
			return fmt.Errorf("stream %d is nil", i)
		}
		if d.ID != i {
			return fmt.Errorf("stream %q has id %d, expected %d", d.Name, d.ID, i)
		}
		if d.SampleSize() <= 0 {
			return fmt.Errorf("stream %q has an empty sample shape", d.Name)
		}
		if d.StorageType == stream.StorageUndefined {
			return fmt.Errorf("stream %q has no storage type", d.Name)
		}
	}
	if c.Repeat && len(c.Sequences) == 0 {
		return errors.New("cannot repeat an empty corpus")
	}
	for i, seq := range c.Sequences {
		if seq.Length <= 0 {
			return fmt.Errorf("sequence %d has length %d", i, seq.Length)
		}
		if len(seq.Values) != len(c.Streams) {
			return fmt.Errorf("sequence %d has values for %d streams, expected %d", i, len(seq.Values), len(c.Streams))
		}
		for id, vals := range seq.Values {
			if want := seq.Length * c.Streams[id].SampleSize(); len(vals) != want {
				return fmt.Errorf("sequence %d stream %q has %d values, expected %d", i, c.Streams[id].Name, len(vals), want)
			}
		}
	}
	return nil
}

// NewMemory creates a new Memory reader with the given configuration.
// It validates the configuration and returns an error if invalid.
//
// Example:
//
//	r, err := reader.NewMemory(reader.MemoryConfig{
//		Streams:   streams,
//		Sequences: corpus,
//	})
//	if err != nil {
//		// handle error
//	}
func NewMemory(config MemoryConfig) (*Memory, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}
	return &Memory{
		streams:   config.Streams,
		sequences: config.Sequences,
		repeat:    config.Repeat,
	}, nil
}

// Memory is a Reader over an in-memory corpus of sequences.
//
// An epoch is cut from the corpus by sample count, packed into global
// minibatches of at most MinibatchSizeInSamples samples (a longer sequence
// forms a minibatch on its own), and minibatch k is assigned to worker
// k mod NumberOfWorkers. The shards of all workers are therefore disjoint
// and together equal the single-worker epoch.
//
// Memory is not safe for concurrent use.
type Memory struct {
	streams   []*stream.Description
	sequences []Sequence
	repeat    bool

	started   bool
	requested []bool
	pending   [][]int
	next      int
	endOfData bool
}

var _ Reader = (*Memory)(nil)

// StreamDescriptions implements the Reader interface.
func (r *Memory) StreamDescriptions() []*stream.Description {
	return r.streams
}

// StartEpoch implements the Reader interface.
func (r *Memory) StartEpoch(cfg EpochConfiguration, inputs []*stream.Description) error {
	if err := validateEpoch(cfg); err != nil {
		return err
	}

	requested := make([]bool, len(r.streams))
	for _, in := range inputs {
		if in == nil || in.ID < 0 || in.ID >= len(r.streams) {
			return fmt.Errorf("reader: requested stream %v is not exposed", in)
		}
		requested[in.ID] = true
	}

	start, end, endOfData := r.epochRange(cfg)

	r.pending = r.pending[:0]
	var (
		current []int
		samples int
		index   int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		if index%cfg.NumberOfWorkers == cfg.WorkerRank {
			r.pending = append(r.pending, current)
		}
		index++
		current = nil
		samples = 0
	}
	for g := start; g < end; g++ {
		n := r.sequence(g).Length
		if len(current) > 0 && samples+n > cfg.MinibatchSizeInSamples {
			flush()
		}
		current = append(current, g)
		samples += n
	}
	flush()

	r.requested = requested
	r.next = 0
	r.endOfData = endOfData
	r.started = true
	return nil
}

// ReadMinibatch implements the Reader interface.
func (r *Memory) ReadMinibatch() (Minibatch, error) {
	if !r.started {
		return Minibatch{}, ErrNotConfigured
	}
	if r.next >= len(r.pending) {
		return Minibatch{EndOfEpoch: true, EndOfData: r.endOfData}, nil
	}

	seqs := r.pending[r.next]
	r.next++
	last := r.next == len(r.pending)

	layout := r.layout(seqs)
	mb := Minibatch{
		Data:       make([]*StreamMinibatch, len(r.streams)),
		EndOfEpoch: last,
		EndOfData:  last && r.endOfData,
	}
	for id, desc := range r.streams {
		if !r.requested[id] {
			continue
		}
		s, err := r.pack(desc, layout, seqs)
		if err != nil {
			return Minibatch{}, err
		}
		mb.Data[id] = s
	}
	return mb, nil
}

func (r *Memory) sequence(g int) *Sequence {
	return &r.sequences[g%len(r.sequences)]
}

// epochRange returns the global sequence positions [start, end) of the
// configured epoch and whether the epoch stops at the end of the data. A
// sequence belongs to the epoch its first sample falls into.
func (r *Memory) epochRange(cfg EpochConfiguration) (start, end int, endOfData bool) {
	total := len(r.sequences)
	if total == 0 {
		return 0, 0, true
	}

	if cfg.TotalEpochSizeInSamples == RequestDataSize {
		start, end = cfg.EpochIndex*total, (cfg.EpochIndex+1)*total
		if !r.repeat {
			return min(start, total), min(end, total), true
		}
		return start, end, false
	}

	epochStart := cfg.EpochIndex * cfg.TotalEpochSizeInSamples
	epochEnd := epochStart + cfg.TotalEpochSizeInSamples
	pos, g := 0, 0
	for pos < epochStart {
		if !r.repeat && g == total {
			return total, total, true
		}
		pos += r.sequence(g).Length
		g++
	}
	start = g
	for pos < epochEnd {
		if !r.repeat && g == total {
			return start, total, true
		}
		pos += r.sequence(g).Length
		g++
	}
	return start, g, !r.repeat && g == total
}

func (r *Memory) layout(seqs []int) *tensor.MBLayout {
	l := &tensor.MBLayout{
		NumParallelSequences: len(seqs),
		Sequences:            make([]tensor.SequenceInfo, len(seqs)),
	}
	for p, g := range seqs {
		seq := r.sequence(g)
		l.NumTimeSteps = max(l.NumTimeSteps, seq.Length)
		l.Sequences[p] = tensor.SequenceInfo{ID: seq.ID, ParallelIndex: p, Begin: 0, End: seq.Length}
	}
	return l
}

// pack lays the samples of seqs out column by column; column t*P+p holds
// time step t of parallel sequence p. Gap columns are zero.
func (r *Memory) pack(desc *stream.Description, layout *tensor.MBLayout, seqs []int) (*StreamMinibatch, error) {
	size := desc.SampleSize()
	par := layout.NumParallelSequences
	cols := layout.NumColumns()
	values := make([]float32, size*cols)
	for p, g := range seqs {
		seq := r.sequence(g)
		src := seq.Values[desc.ID]
		for t := 0; t < seq.Length; t++ {
			col := t*par + p
			copy(values[col*size:(col+1)*size], src[t*size:(t+1)*size])
		}
	}

	if desc.StorageType == stream.StorageDense {
		data, err := Encode(desc.ElementType, values)
		if err != nil {
			return nil, err
		}
		return &StreamMinibatch{
			StorageType: stream.StorageDense,
			ElementType: desc.ElementType,
			Layout:      layout,
			Data:        data,
		}, nil
	}

	colStarts := make([]int32, cols+1)
	var rowIndices []int32
	var nz []float32
	for col := 0; col < cols; col++ {
		for row, v := range values[col*size : (col+1)*size] {
			if v != 0 {
				rowIndices = append(rowIndices, int32(row))
				nz = append(nz, v)
			}
		}
		colStarts[col+1] = int32(len(nz))
	}
	data, err := Encode(desc.ElementType, nz)
	if err != nil {
		return nil, err
	}
	return &StreamMinibatch{
		StorageType: stream.StorageSparseCSC,
		ElementType: desc.ElementType,
		Layout:      layout,
		Data:        data,
		ColStarts:   colStarts,
		RowIndices:  rowIndices,
	}, nil
}

func validateEpoch(cfg EpochConfiguration) error {
	if cfg.MinibatchSizeInSamples <= 0 {
		return fmt.Errorf("reader: minibatch size must be positive, got %d", cfg.MinibatchSizeInSamples)
	}
	if cfg.TotalEpochSizeInSamples <= 0 {
		return fmt.Errorf("reader: epoch size must be positive, got %d", cfg.TotalEpochSizeInSamples)
	}
	if cfg.EpochIndex < 0 {
		return fmt.Errorf("reader: epoch index must not be negative, got %d", cfg.EpochIndex)
	}
	if cfg.NumberOfWorkers <= 0 || cfg.WorkerRank < 0 || cfg.WorkerRank >= cfg.NumberOfWorkers {
		return fmt.Errorf("reader: invalid worker %d of %d", cfg.WorkerRank, cfg.NumberOfWorkers)
	}
	return nil
}
