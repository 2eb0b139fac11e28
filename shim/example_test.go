package shim_test

import (
	"errors"
	"fmt"
	"log"

	"github.com/devu10/CNTK/reader"
	"github.com/devu10/CNTK/shim"
	"github.com/devu10/CNTK/stream"
	"github.com/devu10/CNTK/tensor"
)

// Example demonstrates a training loop reading one epoch through a ReaderShim.
func Example() {
	// A corpus of 10 single-sample sequences, value i for sequence i
	streams := []*stream.Description{
		{ID: 0, Name: "x", StorageType: stream.StorageDense, ElementType: stream.Float32, SampleShape: []int{1}},
	}
	seqs := make([]reader.Sequence, 10)
	for i := range seqs {
		seqs[i] = reader.Sequence{ID: uint64(i), Length: 1, Values: [][]float32{{float32(i)}}}
	}
	r, err := reader.NewMemory(reader.MemoryConfig{Streams: streams, Sequences: seqs})
	if err != nil {
		log.Fatal(err)
	}

	s := shim.New(r, nil)
	defer s.Close()

	inputs := []stream.InputDescription{{Name: "x", DeviceID: tensor.CPUDevice}}
	if err := s.StartMinibatchLoop(4, 0, inputs, 0); err != nil {
		log.Fatal(err)
	}

	// The shim swaps its prefetched matrices into these on every call
	out := map[string]*shim.StreamInput{
		"x": {Matrix: tensor.NewMatrix(tensor.CPUDevice), Layout: &tensor.MBLayout{}},
	}
	for {
		ok, err := s.GetMinibatch(out)
		if err != nil {
			log.Fatal(err)
		}
		if !ok {
			break
		}
		fmt.Println(out["x"].Matrix.Values(), out["x"].Layout.NumSamples())
	}
	fmt.Println("data end:", s.DataEnd())
	// Output:
	// [0 1 2 3] 4
	// [4 5 6 7] 4
	// [8 9] 2
	// data end: true
}

// Example_legacy shows that loops which do not name their inputs are rejected.
func Example_legacy() {
	s := shim.New(reader.NewNil(nil), nil)
	defer s.Close()

	err := s.StartMinibatchLoopLegacy(4, 0, 0)
	fmt.Println(errors.Is(err, shim.ErrNotImplemented))
	// Output: true
}

// Example_dynamicConfig demonstrates switching prefetching off between epochs.
func Example_dynamicConfig() {
	config := shim.NewDynamicConfig(nil)
	fmt.Println("prefetch:", config.Get().Prefetch)

	// Subsequent loop starts read inline, which is easier to debug
	config.UpdatePrefetch(false)
	fmt.Println("prefetch:", config.Get().Prefetch)
	// Output:
	// prefetch: true
	// prefetch: false
}
