package shim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/devu10/CNTK/prefetch"
	"github.com/devu10/CNTK/reader"
	"github.com/devu10/CNTK/stream"
	"github.com/devu10/CNTK/tensor"
)

// LoopState is the state of a ReaderShim's minibatch loop.
type LoopState int

const (
	// LoopNotStarted means no loop has been started, or the last start failed.
	LoopNotStarted LoopState = iota
	// LoopRunning means minibatches are being delivered.
	LoopRunning
	// LoopEndOfEpoch means the epoch is over but the reader has more data.
	LoopEndOfEpoch
	// LoopEndOfData means the reader is exhausted or the loop failed.
	LoopEndOfData
)

// String returns the string representation of the loop state.
func (s LoopState) String() string {
	switch s {
	case LoopNotStarted:
		return "NotStarted"
	case LoopRunning:
		return "Running"
	case LoopEndOfEpoch:
		return "EndOfEpoch"
	case LoopEndOfData:
		return "EndOfData"
	default:
		return fmt.Sprintf("LoopState(%d)", int(s))
	}
}

// StreamInput is the caller's destination for one input stream. Matrix
// receives the stream's data; Layout, if not nil, receives the minibatch
// layout.
type StreamInput struct {
	Matrix *tensor.Matrix
	Layout *tensor.MBLayout
}

// prefetchResult is what a prefetch task reports about the read it did.
type prefetchResult struct {
	endOfEpoch   bool
	dataProduced bool
	endOfData    bool
	samples      int
	duration     time.Duration
}

// ReaderShim adapts a reader.Reader to the minibatch interface of a training
// loop. While the caller works on one minibatch, the next one is read and
// converted into a second set of matrices on a background goroutine; the two
// sets are exchanged on every GetMinibatch call.
//
// The caller must be finished with the matrices of a minibatch before it
// calls GetMinibatch again, since their storage is reused for the minibatch
// after next.
//
// A ReaderShim exclusively owns its reader. Start and GetMinibatch must be
// called from one goroutine at a time; State, DataEnd and Close may be called
// from any goroutine.
//
// Example:
//
//	s := shim.New(r, nil)
//	defer s.Close()
//	if err := s.StartMinibatchLoop(64, 0, inputs, 0); err != nil {
//		// handle error
//	}
//	for {
//		ok, err := s.GetMinibatch(matrices)
//		if err != nil {
//			// handle error
//		}
//		if !ok {
//			break
//		}
//		// train on matrices
//	}
type ReaderShim struct {
	reader reader.Reader
	config Config
	logger Logger
	stats  StatsCollector
	engine *prefetch.Engine[prefetchResult]
	epochs *epochController

	mu      sync.Mutex
	started bool
	closed  bool
	state   LoopState
	dataEnd bool
	err     error
	loopID  uuid.UUID
	layout  tensor.MBLayout

	inGet atomic.Bool

	// Set up by a loop start and only touched by the prefetch task while
	// one is in flight.
	registry       *stream.Registry
	deviceID       int
	buffers        map[string]*tensor.Matrix
	prefetchLayout tensor.MBLayout
}

// New creates a new ReaderShim over r. If config is nil, DefaultConfigValues
// is used.
func New(r reader.Reader, config Config) *ReaderShim {
	if config == nil {
		config = NewConstantConfig(nil)
	}
	s := &ReaderShim{
		reader:  r,
		config:  config,
		logger:  &NoOpLogger{},
		stats:   &NoOpStatsCollector{},
		engine:  prefetch.NewEngine[prefetchResult](prefetch.LaunchAsync),
		buffers: make(map[string]*tensor.Matrix),
	}
	s.epochs = &epochController{reader: r, engine: s.engine, logger: s.logger}
	return s
}

// ReaderFactory creates the reader of a ReaderShim from the shim's config.
type ReaderFactory func(ConfigValues) (reader.Reader, error)

// NewFromConfig creates a ReaderShim whose reader is built by factory from
// the current values of config, so that the reader and the prefetch switch
// come from one config record. If config is nil, DefaultConfigValues is used.
func NewFromConfig(factory ReaderFactory, config Config) (*ReaderShim, error) {
	if factory == nil {
		return nil, &ConfigError{Op: "create reader", Err: errors.New("nil reader factory")}
	}
	if config == nil {
		config = NewConstantConfig(nil)
	}

	r, err := factory(config.Get().fixed())
	if err != nil {
		return nil, &ConfigError{Op: "create reader", Err: err}
	}
	if r == nil {
		return nil, &ConfigError{Op: "create reader", Err: errors.New("factory returned a nil reader")}
	}
	return New(r, config), nil
}

// WithLogger sets a custom logger for the ReaderShim.
// If nil is passed, a no-op logger will be used.
// Panics if called after the first loop start.
func (s *ReaderShim) WithLogger(logger Logger) *ReaderShim {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		panic("cannot set logger after a minibatch loop has started")
	}

	if logger == nil {
		logger = &NoOpLogger{}
	}
	s.logger = logger
	s.epochs.logger = logger
	return s
}

// WithStats sets a custom stats collector for the ReaderShim.
// If nil is passed, a no-op stats collector will be used.
// Panics if called after the first loop start.
func (s *ReaderShim) WithStats(stats StatsCollector) *ReaderShim {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		panic("cannot set stats collector after a minibatch loop has started")
	}

	if stats == nil {
		stats = &NoOpStatsCollector{}
	}
	s.stats = stats
	return s
}

// StartMinibatchLoop starts a single-worker loop over inputs. See
// StartDistributedMinibatchLoop.
func (s *ReaderShim) StartMinibatchLoop(mbSize, epoch int, inputs []stream.InputDescription, requestedEpochSamples int) error {
	return s.StartDistributedMinibatchLoop(mbSize, epoch, 0, 1, inputs, requestedEpochSamples)
}

// StartDistributedMinibatchLoop starts a loop that delivers worker
// workerIndex's share of the given epoch. mbSize is the global minibatch size
// in samples. A requestedEpochSamples of zero or reader.RequestDataSize
// reads until the end of the data.
//
// Any prefetch still in flight from a previous loop is waited for and
// dropped. On failure the shim is left not started.
func (s *ReaderShim) StartDistributedMinibatchLoop(mbSize, epoch, workerIndex, workerCount int, inputs []stream.InputDescription, requestedEpochSamples int) error {
	return s.Start(InputsRequest{
		MinibatchSize:         mbSize,
		Epoch:                 epoch,
		WorkerIndex:           workerIndex,
		WorkerCount:           workerCount,
		Inputs:                inputs,
		RequestedEpochSamples: requestedEpochSamples,
	})
}

// StartMinibatchLoopLegacy is the loop start that does not name its inputs.
// It always fails with a LogicError wrapping ErrNotImplemented.
func (s *ReaderShim) StartMinibatchLoopLegacy(mbSize, epoch, requestedEpochSamples int) error {
	return s.Start(LegacyRequest{
		MinibatchSize:         mbSize,
		Epoch:                 epoch,
		WorkerCount:           1,
		RequestedEpochSamples: requestedEpochSamples,
	})
}

// StartDistributedMinibatchLoopLegacy is the distributed loop start that does
// not name its inputs. It always fails with a LogicError wrapping
// ErrNotImplemented.
func (s *ReaderShim) StartDistributedMinibatchLoopLegacy(mbSize, epoch, workerIndex, workerCount, requestedEpochSamples int) error {
	return s.Start(LegacyRequest{
		MinibatchSize:         mbSize,
		Epoch:                 epoch,
		WorkerIndex:           workerIndex,
		WorkerCount:           workerCount,
		RequestedEpochSamples: requestedEpochSamples,
	})
}

// Start starts a minibatch loop described by req.
func (s *ReaderShim) Start(req LoopRequest) error {
	switch r := req.(type) {
	case InputsRequest:
		return s.start(r)
	case *InputsRequest:
		if r == nil {
			return &LogicError{Op: "start minibatch loop", Err: errors.New("nil request")}
		}
		return s.start(*r)
	case LegacyRequest, *LegacyRequest:
		return &LogicError{Op: "start minibatch loop without inputs", Err: ErrNotImplemented}
	default:
		return &LogicError{Op: "start minibatch loop", Err: fmt.Errorf("unsupported request %T", req)}
	}
}

func (s *ReaderShim) start(req InputsRequest) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &LogicError{Op: "start minibatch loop", Err: ErrClosed}
	}
	s.state = LoopNotStarted
	s.mu.Unlock()

	if _, err := epochConfiguration(req.MinibatchSize, req.Epoch, req.WorkerIndex, req.WorkerCount, req.RequestedEpochSamples); err != nil {
		return err
	}
	if len(req.Inputs) == 0 {
		return &ConfigError{Op: "start minibatch loop", Err: errors.New("no inputs requested")}
	}

	deviceID := req.Inputs[0].DeviceID
	for _, in := range req.Inputs[1:] {
		if in.DeviceID != deviceID {
			return &ConfigError{
				Op:  "start minibatch loop",
				Err: fmt.Errorf("input %q is on device %d, expected device %d like %q", in.Name, in.DeviceID, deviceID, req.Inputs[0].Name),
			}
		}
	}

	registry, err := stream.NewRegistry(s.reader.StreamDescriptions(), req.Inputs)
	if err != nil {
		return &ConfigError{Op: "resolve input streams", Err: err}
	}

	values := s.config.Get().fixed()
	mode := prefetch.LaunchSync
	if values.Prefetch {
		mode = prefetch.LaunchAsync
	}

	// The controller waits for any in-flight task, so the fields the task
	// reads may be replaced afterwards.
	if err := s.epochs.configureDistributed(req.MinibatchSize, req.Epoch, req.WorkerIndex, req.WorkerCount, req.RequestedEpochSamples, registry.Descriptions()); err != nil {
		return err
	}

	s.registry = registry
	s.deviceID = deviceID
	buffers := make(map[string]*tensor.Matrix, registry.Len())
	for _, name := range registry.Names() {
		m, ok := s.buffers[name]
		switch {
		case !ok:
			m = tensor.NewMatrix(deviceID)
		case m.DeviceID() != deviceID:
			m.TransferToDevice(deviceID)
		}
		buffers[name] = m
	}
	s.buffers = buffers
	s.prefetchLayout.CopyFrom(nil)
	s.engine.SetMode(mode)

	loopID := uuid.New()
	s.mu.Lock()
	if s.closed {
		// Close ran while the reader was being positioned.
		s.mu.Unlock()
		return &LogicError{Op: "start minibatch loop", Err: ErrClosed}
	}
	s.started = true
	s.loopID = loopID
	s.state = LoopRunning
	s.dataEnd = false
	s.err = nil
	s.layout.CopyFrom(nil)
	s.mu.Unlock()

	s.stats.RecordLoopStart()
	if cfg, ok := s.epochs.current(); ok {
		s.logger.Info("Started minibatch loop %s: epoch %d, worker %d of %d, minibatch size %d, epoch size %s, %d inputs, %s prefetch",
			loopID, cfg.EpochIndex, cfg.WorkerRank, cfg.NumberOfWorkers, cfg.MinibatchSizeInSamples, epochSize(cfg.TotalEpochSizeInSamples), registry.Len(), mode)
	}

	return s.launch()
}

func epochSize(samples int) string {
	if samples == reader.RequestDataSize {
		return "all data"
	}
	return fmt.Sprintf("%d samples", samples)
}

// launch arms the engine for the next minibatch. It fails only when Close has
// drained the engine, in which case the loop is left stopped.
func (s *ReaderShim) launch() error {
	err := s.engine.Start(s.prefetch)
	switch {
	case err == nil:
		s.stats.RecordPrefetchStart()
		return nil
	case errors.Is(err, prefetch.ErrDrained):
		s.mu.Lock()
		s.state = LoopNotStarted
		s.mu.Unlock()
		return &LogicError{Op: "prefetch minibatch", Err: ErrClosed}
	default:
		// Only one consumer arms the engine, after joining or discarding.
		panic(fmt.Sprintf("shim: prefetch engine: %v", err))
	}
}

// prefetch reads one minibatch and converts it into the prefetch buffers. It
// runs on the prefetch goroutine in asynchronous mode.
func (s *ReaderShim) prefetch() (prefetchResult, error) {
	start := time.Now()

	mb, err := s.reader.ReadMinibatch()
	if err != nil {
		return prefetchResult{}, &ReaderError{Op: "read minibatch", Err: err}
	}

	res := prefetchResult{
		endOfEpoch: mb.EndOfEpoch || mb.EndOfData,
		endOfData:  mb.EndOfData,
	}
	if mb.Empty() {
		// Nothing more can come from this epoch.
		res.endOfEpoch = true
		res.duration = time.Since(start)
		return res, nil
	}

	var layout *tensor.MBLayout
	for _, name := range s.registry.Names() {
		desc, _ := s.registry.Lookup(name)

		var raw *reader.StreamMinibatch
		if desc.ID >= 0 && desc.ID < len(mb.Data) {
			raw = mb.Data[desc.ID]
		}
		if raw == nil {
			return res, shapeErrorf(name, "reader returned no data for requested stream")
		}
		if layout == nil {
			layout = raw.Layout
		} else if !layout.Equal(raw.Layout) {
			return res, shapeErrorf(name, "layout differs from the other streams of the minibatch")
		}

		if err := fillMatrix(desc, raw, s.buffers[name]); err != nil {
			return res, err
		}
	}

	s.prefetchLayout.CopyFrom(layout)
	res.dataProduced = true
	res.samples = layout.NumSamples()
	res.duration = time.Since(start)
	return res, nil
}

// GetMinibatch delivers the next minibatch into matrices, which must be keyed
// by names of the loop's inputs. It returns false once the epoch or the data
// is exhausted, and keeps returning false until a new loop is started.
//
// Each matrix is swapped with the shim's prefetch buffer, so after the call
// the caller holds the storage the minibatch was converted into.
//
// A read or conversion error ends the loop: it is returned once, and later
// calls return false. A call that overlaps Close returns ErrClosed, and the
// contents of matrices are then unspecified.
func (s *ReaderShim) GetMinibatch(matrices map[string]*StreamInput) (bool, error) {
	if !s.inGet.CompareAndSwap(false, true) {
		return false, ErrConcurrentGetMinibatch
	}
	defer s.inGet.Store(false)

	s.mu.Lock()
	state, closed := s.state, s.closed
	s.mu.Unlock()

	switch {
	case closed:
		return false, &LogicError{Op: "get minibatch", Err: ErrClosed}
	case state == LoopNotStarted:
		return false, &LogicError{Op: "get minibatch", Err: ErrNotStarted}
	case state != LoopRunning:
		return false, nil
	}

	if err := s.checkOutputs(matrices); err != nil {
		return false, err
	}

	waitStart := time.Now()
	res, err := s.engine.Join()
	if err != nil {
		s.stats.RecordWait(time.Since(waitStart))
		s.engine.Release()
		if s.isClosed() {
			return false, &LogicError{Op: "get minibatch", Err: ErrClosed}
		}
		return false, s.fail(err)
	}
	s.stats.RecordPrefetchComplete(res.duration)

	next := LoopRunning
	switch {
	case res.endOfData:
		next = LoopEndOfData
	case res.endOfEpoch:
		next = LoopEndOfEpoch
	}

	s.mu.Lock()
	if s.closed {
		// Close drained the task this call joined; do not re-arm.
		s.state = LoopNotStarted
		s.mu.Unlock()
		s.engine.Release()
		return false, &LogicError{Op: "get minibatch", Err: ErrClosed}
	}
	s.dataEnd = res.endOfData
	s.state = next
	if res.dataProduced {
		s.layout.CopyFrom(&s.prefetchLayout)
	}
	loopID := s.loopID
	s.mu.Unlock()

	if res.dataProduced {
		for name, in := range matrices {
			in.Matrix.Swap(s.buffers[name])
			if in.Layout != nil {
				in.Layout.CopyFrom(&s.prefetchLayout)
			}
		}
	}
	s.engine.Release()

	if next == LoopRunning {
		if err := s.launch(); err != nil {
			return false, err
		}
	}
	s.stats.RecordWait(time.Since(waitStart))

	if res.dataProduced {
		s.stats.RecordMinibatch(res.samples)
	}
	if next != LoopRunning {
		s.stats.RecordEndOfEpoch()
		s.logger.Info("Minibatch loop %s reached %s", loopID, next)
	}
	return res.dataProduced, nil
}

// checkOutputs validates the caller's destinations before a minibatch is
// consumed, so a bad request does not lose data.
func (s *ReaderShim) checkOutputs(matrices map[string]*StreamInput) error {
	seen := make(map[*tensor.Matrix]string, len(matrices))
	for name, in := range matrices {
		if _, ok := s.registry.ID(name); !ok {
			return &ConfigError{Op: "get minibatch", Err: fmt.Errorf("%w: %q was not requested when the loop started", stream.ErrUnknownStream, name)}
		}
		if in == nil || in.Matrix == nil {
			return &ConfigError{Op: "get minibatch", Err: fmt.Errorf("no matrix for input %q", name)}
		}
		if in.Matrix.DeviceID() != s.deviceID {
			return &ConfigError{Op: "get minibatch", Err: fmt.Errorf("matrix for input %q is on device %d, loop runs on device %d", name, in.Matrix.DeviceID(), s.deviceID)}
		}
		if other, dup := seen[in.Matrix]; dup {
			return &ConfigError{Op: "get minibatch", Err: fmt.Errorf("inputs %q and %q share a matrix", other, name)}
		}
		seen[in.Matrix] = name
	}
	return nil
}

func (s *ReaderShim) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *ReaderShim) fail(err error) error {
	s.mu.Lock()
	if !s.closed {
		s.state = LoopEndOfData
	}
	s.err = err
	loopID := s.loopID
	s.mu.Unlock()

	s.stats.RecordError()
	s.logger.Error("Minibatch loop %s failed: %v", loopID, err)
	return err
}

// DataEnd reports whether the last resolved read reached the end of the
// reader's data, as opposed to only the end of the epoch.
func (s *ReaderShim) DataEnd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataEnd
}

// Err returns the error that ended the current loop, if any.
func (s *ReaderShim) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CopyMBLayoutTo copies the layout of the last delivered minibatch to out.
func (s *ReaderShim) CopyMBLayoutTo(out *tensor.MBLayout) error {
	if out == nil {
		return &LogicError{Op: "copy minibatch layout", Err: errors.New("nil layout")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == LoopNotStarted {
		return &LogicError{Op: "copy minibatch layout", Err: ErrNotStarted}
	}
	out.CopyFrom(&s.layout)
	return nil
}

// GetNumParallelSequencesForFixingBPTTMode returns the number of parallel
// sequences of the last delivered minibatch.
func (s *ReaderShim) GetNumParallelSequencesForFixingBPTTMode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout.NumParallelSequences
}

// SupportsDistributedMBRead reports that the shim can read a worker's share
// of a distributed epoch. It is always true.
func (s *ReaderShim) SupportsDistributedMBRead() bool {
	return true
}

// State returns the state of the current loop.
func (s *ReaderShim) State() LoopState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoopID identifies the current loop in logs. It is the zero UUID before the
// first successful start.
func (s *ReaderShim) LoopID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopID
}

// Close waits up to the configured drain timeout for an in-flight prefetch
// and releases the shim. A prefetch that does not finish in time is left to
// run to completion on its own. No prefetch starts after Close, including
// from a GetMinibatch or Start that is still running. Close is idempotent and
// always returns nil.
func (s *ReaderShim) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	loopID := s.loopID
	s.mu.Unlock()

	timeout := s.config.Get().fixed().DrainTimeout
	if !s.engine.Drain(timeout) {
		s.stats.RecordDrainTimeout()
		s.logger.Warn("Minibatch loop %s: prefetch did not finish within %v, abandoning it", loopID, timeout)
	}

	s.mu.Lock()
	s.state = LoopNotStarted
	s.mu.Unlock()
	return nil
}
