package shim

import (
	"errors"
	"fmt"
)

var (
	// ErrNotImplemented is wrapped by the LogicError returned from the legacy
	// loop entry points that do not name their input streams.
	ErrNotImplemented = errors.New("not implemented")

	// ErrNotStarted is returned when a minibatch is requested before a loop
	// was started successfully.
	ErrNotStarted = errors.New("minibatch loop has not been started")

	// ErrClosed is returned by operations on a closed ReaderShim.
	ErrClosed = errors.New("reader shim is closed")

	// ErrConcurrentGetMinibatch is returned when GetMinibatch is called
	// while another call is still in progress.
	ErrConcurrentGetMinibatch = errors.New("concurrent calls to GetMinibatch are not allowed")

	// ErrShapeMismatch is wrapped by every ShapeError.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// ConfigError is returned when a minibatch loop cannot be configured: an
// unresolved stream, an invalid worker partition, inconsistent devices or
// an output that was never requested.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LogicError is returned when the shim is used in a way it never supports.
type LogicError struct {
	Op  string
	Err error
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("logic error: %s: %v", e.Op, e.Err)
}

func (e *LogicError) Unwrap() error {
	return e.Err
}

// ShapeError is returned when a stream's data cannot be materialized into a
// matrix of the declared storage and shape.
type ShapeError struct {
	Stream string
	Err    error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape error: stream %q: %v", e.Stream, e.Err)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

func shapeErrorf(stream, format string, args ...interface{}) error {
	return &ShapeError{
		Stream: stream,
		Err:    fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, args...)),
	}
}

// ReaderError is returned when the underlying reader fails.
type ReaderError struct {
	Op  string
	Err error
}

func (e *ReaderError) Error() string {
	return fmt.Sprintf("reader error: %s: %v", e.Op, e.Err)
}

func (e *ReaderError) Unwrap() error {
	return e.Err
}
