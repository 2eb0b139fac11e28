package reader

import (
	"errors"
	"math/rand"

	"github.com/devu10/CNTK/stream"
)

// Stream names exposed by Synthetic readers.
const (
	FeaturesStream = "features"
	LabelsStream   = "labels"
)

// SyntheticConfig configures a generated corpus.
type SyntheticConfig struct {
	// NumSequences is the size of the corpus.
	NumSequences int

	// MaxSequenceLength bounds the length of each sequence. 1 (or 0)
	// generates independent frames.
	MaxSequenceLength int

	// FeatureDim is the size of a features sample. Default: 8.
	FeatureDim int

	// NumClasses is the size of a one-hot labels sample. Default: 4.
	NumClasses int

	// FeatureElementType is the encoding of the dense features stream.
	FeatureElementType stream.ElementType

	// Seed seeds the generator. The same seed generates the same corpus.
	Seed int64

	// Repeat makes the corpus repeat indefinitely.
	Repeat bool
}

// Synthetic returns a Memory reader over a generated corpus exposing a dense
// "features" stream and a sparse one-hot "labels" stream.
func Synthetic(cfg SyntheticConfig) (*Memory, error) {
	if cfg.NumSequences < 0 {
		return nil, errors.New("number of sequences cannot be negative")
	}
	if cfg.FeatureDim <= 0 {
		cfg.FeatureDim = 8
	}
	if cfg.NumClasses <= 0 {
		cfg.NumClasses = 4
	}
	if cfg.MaxSequenceLength <= 0 {
		cfg.MaxSequenceLength = 1
	}

	streams := []*stream.Description{
		{ID: 0, Name: FeaturesStream, StorageType: stream.StorageDense, ElementType: cfg.FeatureElementType, SampleShape: []int{cfg.FeatureDim}},
		{ID: 1, Name: LabelsStream, StorageType: stream.StorageSparseCSC, ElementType: stream.Float32, SampleShape: []int{cfg.NumClasses}},
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	seqs := make([]Sequence, cfg.NumSequences)
	for i := range seqs {
		length := 1 + rng.Intn(cfg.MaxSequenceLength)
		features := make([]float32, length*cfg.FeatureDim)
		for j := range features {
			features[j] = rng.Float32()
		}
		labels := make([]float32, length*cfg.NumClasses)
		for t := 0; t < length; t++ {
			labels[t*cfg.NumClasses+rng.Intn(cfg.NumClasses)] = 1
		}
		seqs[i] = Sequence{
			ID:     uint64(i),
			Length: length,
			Values: [][]float32{features, labels},
		}
	}

	return NewMemory(MemoryConfig{
		Streams:   streams,
		Sequences: seqs,
		Repeat:    cfg.Repeat,
	})
}
