package prefetch

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrInFlight is returned by Start when a task is already in flight.
	ErrInFlight = errors.New("prefetch: a task is already in flight")

	// ErrNotStarted is returned by Join when no task is in flight.
	ErrNotStarted = errors.New("prefetch: no task in flight")

	// ErrDrained is returned by Start once the engine has been drained.
	ErrDrained = errors.New("prefetch: engine drained")
)

// State is the lifecycle state of an Engine.
type State int

const (
	// StateIdle means no task is in flight and no result is held.
	StateIdle State = iota
	// StatePrefetching means a task is in flight.
	StatePrefetching
	// StateReady means the last task was joined and its result has not been
	// released yet.
	StateReady
	// StateDraining means the engine is waiting for a task during teardown.
	StateDraining
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePrefetching:
		return "Prefetching"
	case StateReady:
		return "Ready"
	case StateDraining:
		return "Draining"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Engine owns at most one in-flight Task. Create one with NewEngine.
//
// Start, Join and Release are meant to be called by a single consumer.
// Discard, Drain and the accessors may be called from any goroutine. Drain
// is terminal: no task starts after it.
type Engine[T any] struct {
	mu      sync.Mutex
	mode    LaunchMode
	task    *Task[T]
	state   State
	drained bool
}

// NewEngine returns an idle Engine launching tasks with mode.
func NewEngine[T any](mode LaunchMode) *Engine[T] {
	return &Engine[T]{mode: mode}
}

// Mode returns the launch mode used by Start.
func (e *Engine[T]) Mode() LaunchMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetMode changes the launch mode of subsequent tasks.
func (e *Engine[T]) SetMode(mode LaunchMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
}

// State returns the current state.
func (e *Engine[T]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// InFlight reports whether a task has been started and not yet joined.
func (e *Engine[T]) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task != nil
}

// Drained reports whether Drain has been called.
func (e *Engine[T]) Drained() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drained
}

// Start launches fn. It fails with ErrInFlight if the previous task has not
// been joined or discarded, and with ErrDrained after Drain. Starting from
// StateReady releases the held result.
func (e *Engine[T]) Start(fn func() (T, error)) error {
	e.mu.Lock()
	switch {
	case e.drained:
		e.mu.Unlock()
		return ErrDrained
	case e.task != nil:
		e.mu.Unlock()
		return ErrInFlight
	}
	// The task is visible to Drain before fn runs.
	task := newTask[T]()
	e.task = task
	e.state = StatePrefetching
	mode := e.mode
	e.mu.Unlock()

	// A synchronous launch runs fn here, so the lock must not be held.
	task.start(mode, fn)
	return nil
}

// Join blocks until the in-flight task finishes and returns its result. It
// fails with ErrNotStarted if no task is in flight.
func (e *Engine[T]) Join() (T, error) {
	e.mu.Lock()
	task := e.task
	e.mu.Unlock()

	if task == nil {
		var zero T
		return zero, ErrNotStarted
	}

	value, err := task.Wait()

	e.mu.Lock()
	if e.task == task {
		e.task = nil
		e.state = StateReady
	}
	e.mu.Unlock()
	return value, err
}

// Release marks the result of the last Join as consumed.
func (e *Engine[T]) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateReady {
		e.state = StateIdle
	}
}

// Discard waits for the in-flight task, if any, and drops its result.
func (e *Engine[T]) Discard() {
	e.mu.Lock()
	task := e.task
	e.mu.Unlock()

	if task != nil {
		_, _ = task.Wait()
	}

	e.mu.Lock()
	if e.task == task {
		e.task = nil
	}
	e.state = StateIdle
	e.mu.Unlock()
}

// Drain waits up to timeout for the in-flight task and drops its result. It
// reports whether the task finished in time; on timeout the task is
// abandoned and keeps running until it returns on its own. Later calls to
// Start fail with ErrDrained.
func (e *Engine[T]) Drain(timeout time.Duration) bool {
	e.mu.Lock()
	e.drained = true
	task := e.task
	if task == nil {
		e.state = StateIdle
		e.mu.Unlock()
		return true
	}
	e.state = StateDraining
	e.mu.Unlock()

	finished := task.WaitTimeout(timeout)

	e.mu.Lock()
	if e.task == task {
		e.task = nil
	}
	e.state = StateIdle
	e.mu.Unlock()
	return finished
}
