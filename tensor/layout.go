package tensor

import "slices"

// SequenceInfo places one sequence inside a minibatch layout.
type SequenceInfo struct {
	// ID identifies the sequence in the underlying corpus.
	ID uint64

	// ParallelIndex is the row of the layout the sequence occupies.
	ParallelIndex int

	// Begin and End are the time steps the sequence spans, [Begin, End).
	// Begin may be negative and End may exceed NumTimeSteps when a sequence
	// was split across minibatches.
	Begin int
	End   int
}

// Len returns the number of time steps of the sequence.
func (s SequenceInfo) Len() int {
	return s.End - s.Begin
}

// MBLayout describes the sequence structure of a minibatch. Column j of every
// matrix filled from the same minibatch holds time step j/NumParallelSequences
// of parallel sequence j%NumParallelSequences.
type MBLayout struct {
	NumParallelSequences int
	NumTimeSteps         int
	Sequences            []SequenceInfo
}

// NewFrameLayout returns the layout of numSamples independent samples, each a
// sequence of length one.
func NewFrameLayout(numSamples int) *MBLayout {
	l := &MBLayout{
		NumParallelSequences: numSamples,
		NumTimeSteps:         1,
		Sequences:            make([]SequenceInfo, numSamples),
	}
	for i := range l.Sequences {
		l.Sequences[i] = SequenceInfo{ID: uint64(i), ParallelIndex: i, Begin: 0, End: 1}
	}
	return l
}

// NumColumns returns the number of matrix columns covered by the layout.
func (l *MBLayout) NumColumns() int {
	if l == nil {
		return 0
	}
	return l.NumParallelSequences * l.NumTimeSteps
}

// NumSamples returns the number of valid (non-gap) samples in the layout.
func (l *MBLayout) NumSamples() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, s := range l.Sequences {
		begin, end := max(s.Begin, 0), min(s.End, l.NumTimeSteps)
		if end > begin {
			n += end - begin
		}
	}
	return n
}

// CopyFrom overwrites l with a deep copy of other. A nil other resets l.
func (l *MBLayout) CopyFrom(other *MBLayout) {
	if other == nil {
		*l = MBLayout{}
		return
	}
	l.NumParallelSequences = other.NumParallelSequences
	l.NumTimeSteps = other.NumTimeSteps
	l.Sequences = append(l.Sequences[:0], other.Sequences...)
}

// Clone returns a deep copy of l.
func (l *MBLayout) Clone() *MBLayout {
	c := &MBLayout{}
	c.CopyFrom(l)
	return c
}

// Equal reports whether l and other describe the same layout.
func (l *MBLayout) Equal(other *MBLayout) bool {
	if l == nil || other == nil {
		return l == other
	}
	return l.NumParallelSequences == other.NumParallelSequences &&
		l.NumTimeSteps == other.NumTimeSteps &&
		slices.Equal(l.Sequences, other.Sequences)
}
