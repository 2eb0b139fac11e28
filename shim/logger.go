package shim

import (
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/klog/v2"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	// LogLevelDebug is for detailed information, typically of interest only when diagnosing problems.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is for informational messages that highlight the progress of the loop.
	LogLevelInfo
	// LogLevelWarn is for potentially harmful situations that might require attention.
	LogLevelWarn
	// LogLevelError is for error events that terminate the current minibatch loop.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the interface for logging within the reader shim.
// The Logger is optional - if not provided, no logging occurs.
type Logger interface {
	// Log writes a log message at the specified level.
	// The message is formatted using fmt.Sprintf if args are provided.
	Log(level LogLevel, format string, args ...interface{})

	// Debug logs a debug-level message.
	Debug(format string, args ...interface{})

	// Info logs an info-level message.
	Info(format string, args ...interface{})

	// Warn logs a warning-level message.
	Warn(format string, args ...interface{})

	// Error logs an error-level message.
	Error(format string, args ...interface{})
}

// NoOpLogger is a logger that discards all log messages.
// This is the default logger when none is specified.
type NoOpLogger struct{}

// Log implements the Logger interface.
func (n *NoOpLogger) Log(level LogLevel, format string, args ...interface{}) {}

// Debug implements the Logger interface.
func (n *NoOpLogger) Debug(format string, args ...interface{}) {}

// Info implements the Logger interface.
func (n *NoOpLogger) Info(format string, args ...interface{}) {}

// Warn implements the Logger interface.
func (n *NoOpLogger) Warn(format string, args ...interface{}) {}

// Error implements the Logger interface.
func (n *NoOpLogger) Error(format string, args ...interface{}) {}

// KlogLogger writes to klog. Debug messages are logged at verbosity
// DebugVerbosity and only show up when klog runs with -v of at least that.
type KlogLogger struct {
	// MinLevel is the minimum log level to output. Messages below this level are discarded.
	MinLevel LogLevel

	// DebugVerbosity is the klog verbosity used for debug messages.
	DebugVerbosity klog.Level
}

// NewKlogLogger creates a new KlogLogger with the specified minimum log level.
func NewKlogLogger(minLevel LogLevel) *KlogLogger {
	return &KlogLogger{
		MinLevel:       minLevel,
		DebugVerbosity: 4,
	}
}

// Log implements the Logger interface.
func (k *KlogLogger) Log(level LogLevel, format string, args ...interface{}) {
	if level < k.MinLevel {
		return
	}

	switch level {
	case LogLevelDebug:
		klog.V(k.DebugVerbosity).Infof(format, args...)
	case LogLevelInfo:
		klog.Infof(format, args...)
	case LogLevelWarn:
		klog.Warningf(format, args...)
	case LogLevelError:
		klog.Errorf(format, args...)
	}
}

// Debug implements the Logger interface.
func (k *KlogLogger) Debug(format string, args ...interface{}) {
	k.Log(LogLevelDebug, format, args...)
}

// Info implements the Logger interface.
func (k *KlogLogger) Info(format string, args ...interface{}) {
	k.Log(LogLevelInfo, format, args...)
}

// Warn implements the Logger interface.
func (k *KlogLogger) Warn(format string, args ...interface{}) {
	k.Log(LogLevelWarn, format, args...)
}

// Error implements the Logger interface.
func (k *KlogLogger) Error(format string, args ...interface{}) {
	k.Log(LogLevelError, format, args...)
}

// LogrLogger adapts a logr.Logger, for example klog.FromContext(ctx), to
// the Logger interface. Debug messages are logged at V(1).
type LogrLogger struct {
	logger logr.Logger
}

// NewLogrLogger returns a Logger writing to logger.
func NewLogrLogger(logger logr.Logger) *LogrLogger {
	return &LogrLogger{logger: logger}
}

// Log implements the Logger interface.
func (l *LogrLogger) Log(level LogLevel, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case LogLevelDebug:
		l.logger.V(1).Info(msg)
	case LogLevelInfo:
		l.logger.Info(msg)
	case LogLevelWarn:
		l.logger.Info(msg, "severity", "warning")
	case LogLevelError:
		l.logger.Error(nil, msg)
	}
}

// Debug implements the Logger interface.
func (l *LogrLogger) Debug(format string, args ...interface{}) {
	l.Log(LogLevelDebug, format, args...)
}

// Info implements the Logger interface.
func (l *LogrLogger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warn implements the Logger interface.
func (l *LogrLogger) Warn(format string, args ...interface{}) {
	l.Log(LogLevelWarn, format, args...)
}

// Error implements the Logger interface.
func (l *LogrLogger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}
