package prefetch

import (
	"fmt"
	"strings"
	"time"
)

// LaunchMode selects how a Task runs.
type LaunchMode int

const (
	// LaunchAsync runs the task on its own goroutine, concurrently with the
	// caller.
	LaunchAsync LaunchMode = iota
	// LaunchSync runs the task inline before Launch returns.
	LaunchSync
)

// String returns the string representation of the launch mode.
func (m LaunchMode) String() string {
	switch m {
	case LaunchAsync:
		return "async"
	case LaunchSync:
		return "sync"
	default:
		return fmt.Sprintf("LaunchMode(%d)", int(m))
	}
}

// ParseLaunchMode parses the names returned by LaunchMode.String.
func ParseLaunchMode(s string) (LaunchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "async", "":
		return LaunchAsync, nil
	case "sync":
		return LaunchSync, nil
	}
	return LaunchAsync, fmt.Errorf("unknown launch mode %q", s)
}

// Task holds the result of a single background computation.
type Task[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Launch runs fn according to mode and returns a Task that resolves to its
// result. A panic in fn resolves the Task with an error.
func Launch[T any](mode LaunchMode, fn func() (T, error)) *Task[T] {
	t := newTask[T]()
	t.start(mode, fn)
	return t
}

func newTask[T any]() *Task[T] {
	return &Task[T]{done: make(chan struct{})}
}

func (t *Task[T]) start(mode LaunchMode, fn func() (T, error)) {
	if mode == LaunchSync {
		t.run(fn)
	} else {
		go t.run(fn)
	}
}

func (t *Task[T]) run(fn func() (T, error)) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("prefetch: task panicked: %v", r)
		}
	}()
	t.value, t.err = fn()
}

// Done returns a channel that is closed when the task has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task has finished and returns its result.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.value, t.err
}

// WaitTimeout waits up to timeout for the task to finish. It reports whether
// the task finished.
func (t *Task[T]) WaitTimeout(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-t.done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}
