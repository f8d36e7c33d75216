// logging.go - Structured Logging Interface for the kernel
//
// Package-level configuration for structured logging, so external
// integration with logging frameworks (logiface, zerolog, logrus, ...) is
// possible while a low-overhead built-in implementation covers basic
// usage out of the box.
//
// Usage:
//
//	tinykernel.SetStructuredLogger(tinykernel.NewDefaultLogger(tinykernel.LevelInfo))
//
// Design Decision: Package-level global variable is appropriate here
// because logging is an infrastructure cross-cutting concern and kernel
// instances share logging semantics; a per-Kernel override is still
// available via [WithLogger].
package tinykernel

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

// SetStructuredLogger sets the global structured logger.
func SetStructuredLogger(logger Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

// getGlobalLogger safely retrieves the global logger.
func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}

// LogLevel represents the severity of a log message.
type LogLevel int32

const (
	// LevelDebug for detailed diagnostic information.
	LevelDebug LogLevel = iota
	// LevelInfo for general informational messages (kernel start, task
	// created, task exited: the only events the kernel itself logs).
	LevelInfo
	// LevelWarn for warning conditions.
	LevelWarn
	// LevelError for error conditions.
	LevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Level     LogLevel
	Category  string // "sched", "mutex", "timer", "task"
	KernelID  int64
	TaskID    int64
	MutexID   int64
	Context   map[string]interface{}
	Message   string
	Err       error
	Timestamp time.Time
}

// Logger is the structured logging interface.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// DefaultLogger implements Logger using os.Stdout (or any *os.File).
type DefaultLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	Out   *os.File // public for testing
}

// NewDefaultLogger creates a logger with the specified minimum level.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	l := &DefaultLogger{Out: os.Stdout}
	l.level.Store(int32(level))
	return l
}

// SetLevel dynamically changes the minimum log level.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// IsEnabled checks if the specified level would be logged.
func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

// Log writes a structured log entry.
func (l *DefaultLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return // lazy evaluation
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.Out, "%s %s [%-6s] %s",
		entry.Timestamp.Format("15:04:05.000"),
		entry.Level.String(),
		entry.Category,
		entry.Message,
	)
	if entry.KernelID != 0 {
		fmt.Fprintf(l.Out, " kernel=%d", entry.KernelID)
	}
	if entry.TaskID != 0 {
		fmt.Fprintf(l.Out, " task=%d", entry.TaskID)
	}
	if entry.MutexID != 0 {
		fmt.Fprintf(l.Out, " mutex=%d", entry.MutexID)
	}
	for k, v := range entry.Context {
		fmt.Fprintf(l.Out, " %s=%v", k, v)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.Out, " err=%v\n", entry.Err)
	} else {
		fmt.Fprintln(l.Out)
	}
}

// NoOpLogger discards every entry; it is the default when no logger is set.
type NoOpLogger struct{}

// NewNoOpLogger returns a logger that discards everything.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

// Log implements Logger.
func (l *NoOpLogger) Log(LogEntry) {}

// IsEnabled implements Logger; always false, so callers can skip formatting.
func (l *NoOpLogger) IsEnabled(LogLevel) bool { return false }

// WriterLogger implements Logger writing plain text to any io.Writer; handy
// for tests that want to assert on log output without touching stdout.
type WriterLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	out   io.Writer
}

// NewWriterLogger creates a logger writing to out.
func NewWriterLogger(level LogLevel, out io.Writer) *WriterLogger {
	l := &WriterLogger{out: out}
	l.level.Store(int32(level))
	return l
}

// SetLevel dynamically changes the minimum log level.
func (l *WriterLogger) SetLevel(level LogLevel) { l.level.Store(int32(level)) }

// IsEnabled checks if the specified level would be logged.
func (l *WriterLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

// Log writes a structured log entry as plain text.
func (l *WriterLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.out, "[%s] [%-6s] %s", entry.Level, entry.Category, entry.Message)
	if entry.TaskID != 0 {
		fmt.Fprintf(l.out, " task=%d", entry.TaskID)
	}
	if entry.MutexID != 0 {
		fmt.Fprintf(l.out, " mutex=%d", entry.MutexID)
	}
	for k, v := range entry.Context {
		fmt.Fprintf(l.out, " %s=%v", k, v)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.out, " err=%v\n", entry.Err)
	} else {
		fmt.Fprintln(l.out)
	}
}

// Convenience helpers, mirroring the shape of a typical structured logger.

func logDebug(l Logger, category, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelDebug) {
		return
	}
	l.Log(LogEntry{Level: LevelDebug, Category: category, Message: message, Context: fields, Timestamp: time.Now()})
}

func logInfo(l Logger, category, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelInfo) {
		return
	}
	l.Log(LogEntry{Level: LevelInfo, Category: category, Message: message, Context: fields, Timestamp: time.Now()})
}

func logWarn(l Logger, category, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelWarn) {
		return
	}
	l.Log(LogEntry{Level: LevelWarn, Category: category, Message: message, Context: fields, Timestamp: time.Now()})
}

func logError(l Logger, category, message string, err error, fields map[string]interface{}) {
	if !l.IsEnabled(LevelError) {
		return
	}
	l.Log(LogEntry{Level: LevelError, Category: category, Message: message, Err: err, Context: fields, Timestamp: time.Now()})
}
