// Package logger provides a simple logging interface for gpustat components.
// It allows packages to log debug, info, warn, and error messages without
// being coupled to a specific logging implementation.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DebugEnv is the environment variable that enables debug output.
const DebugEnv = "GPUSTAT_DEBUG"

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

var debugForced atomic.Bool

// SetDebug forces debug output on or off regardless of GPUSTAT_DEBUG.
func SetDebug(enabled bool) {
	debugForced.Store(enabled)
}

// DebugEnabled reports whether debug messages are currently printed.
func DebugEnabled() bool {
	return debugForced.Load() || os.Getenv(DebugEnv) != ""
}

// envLogger implements Logger and logs through the standard logger.
// Debug messages are only printed when debug is enabled.
type envLogger struct {
	prefix string
}

// NewEnvLogger creates a logger that respects the GPUSTAT_DEBUG environment variable.
// The prefix is prepended to all log messages (e.g., "[registry]" or "[server]").
func NewEnvLogger(prefix string) Logger {
	return &envLogger{prefix: prefix}
}

func (l *envLogger) Debug(format string, args ...interface{}) {
	if DebugEnabled() {
		log.Printf(l.prefix+" DEBUG: "+format, args...)
	}
}

func (l *envLogger) Info(format string, args ...interface{}) {
	log.Printf(l.prefix+" "+format, args...)
}

func (l *envLogger) Warn(format string, args ...interface{}) {
	log.Printf(l.prefix+" WARN: "+format, args...)
}

func (l *envLogger) Error(format string, args ...interface{}) {
	log.Printf(l.prefix+" ERROR: "+format, args...)
}

// noopLogger implements Logger but discards all messages.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})  {}
func (l *noopLogger) Warn(format string, args ...interface{})  {}
func (l *noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for testing.
// It is safe for concurrent use since pollers log from many goroutines.
type BufferLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{
		Messages: make([]LogMessage, 0),
	}
}

func (l *BufferLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Debug(format string, args ...interface{}) { l.add("debug", format, args...) }
func (l *BufferLogger) Info(format string, args ...interface{})  { l.add("info", format, args...) }
func (l *BufferLogger) Warn(format string, args ...interface{})  { l.add("warn", format, args...) }
func (l *BufferLogger) Error(format string, args ...interface{}) { l.add("error", format, args...) }

// Snapshot returns a copy of the captured messages.
func (l *BufferLogger) Snapshot() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.Messages))
	copy(out, l.Messages)
	return out
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	for _, m := range l.Snapshot() {
		if m.Level == level {
			return true
		}
	}
	return false
}

// Count returns how many messages at the given level contain substr.
func (l *BufferLogger) Count(level, substr string) int {
	n := 0
	for _, m := range l.Snapshot() {
		if m.Level == level && strings.Contains(m.Message, substr) {
			n++
		}
	}
	return n
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = l.Messages[:0]
}

// FileOptions configures the log file written next to stderr.
type FileOptions struct {
	Path string
	// MaxSizeMB rotates the file once it grows past this size.
	MaxSizeMB int
	// MaxBackups and MaxAgeDays bound how many rotated files are kept.
	MaxBackups int
	MaxAgeDays int
	// Daily also rotates at local midnight.
	Daily bool
}

// FileSink is an open log file. The standard logger writes to both stderr
// and the file until Close.
type FileSink struct {
	w     *lumberjack.Logger
	prev  io.Writer
	daily *cron.Cron
	once  sync.Once
}

// OpenFile tees the standard logger to a rotating file in addition to
// stderr. Rotated files are named after the original with a timestamp and
// pruned by MaxBackups and MaxAgeDays.
func OpenFile(opts FileOptions) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	// lumberjack opens lazily; surface permission errors now
	f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", opts.Path, err)
	}
	_ = f.Close()

	s := &FileSink{
		w: &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			LocalTime:  true,
		},
		prev: log.Writer(),
	}

	if opts.Daily {
		s.daily = cron.New()
		if _, err := s.daily.AddFunc("@midnight", func() { _ = s.Rotate() }); err != nil {
			return nil, fmt.Errorf("schedule log rotation: %w", err)
		}
		s.daily.Start()
	}

	log.SetOutput(io.MultiWriter(os.Stderr, s.w))
	return s, nil
}

// Rotate starts a new log file, keeping the current one as a backup.
func (s *FileSink) Rotate() error {
	return s.w.Rotate()
}

// Close stops rotation, restores the writer that was active before
// OpenFile and closes the file. Calling Close more than once is a no-op.
func (s *FileSink) Close() error {
	var err error
	s.once.Do(func() {
		if s.daily != nil {
			<-s.daily.Stop().Done()
		}
		log.SetOutput(s.prev)
		err = s.w.Close()
	})
	return err
}

// QuietStderr keeps the standard logger off stderr, for full-screen
// terminal UIs. Output goes only to sink when one is open and is discarded
// otherwise. The returned func restores the previous writer.
func QuietStderr(sink *FileSink) (restore func()) {
	prev := log.Writer()
	var w io.Writer = io.Discard
	if sink != nil {
		w = sink.w
	}
	log.SetOutput(w)
	return func() { log.SetOutput(prev) }
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewEnvLogger("")
)

// Default returns the default logger for the package.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger for the package.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}
