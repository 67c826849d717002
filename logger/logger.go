// Package logger provides a zerolog logger that can write to multiple outputs.
// Init must be called early in the application lifecycle before using other logger functions.
// Functions like AddOutput and SetEnabled will return errors if called before Init.
package logger

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotInitialized is returned by the package functions before Init.
var ErrNotInitialized = errors.New("logger not initialized: call logger.Init() first")

// Logger fans zerolog events out to a changing set of writers.
type Logger struct {
	mu      sync.RWMutex
	outputs []io.Writer
	enabled bool
	zl      zerolog.Logger
}

var (
	globalLogger *Logger
	once         sync.Once
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

// GetGlobalLogBuffer returns the global log buffer
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000) // Keep last 1000 log entries
	})
	return globalBuffer
}

// New creates a logger writing JSON lines to outputs. A non-empty peer is
// attached to every event.
func New(peer string, outputs ...io.Writer) *Logger {
	l := &Logger{
		outputs: outputs,
		enabled: true,
	}
	ctx := zerolog.New(fanout{l}).With().Timestamp()
	if peer != "" {
		ctx = ctx.Str("peer", peer)
	}
	l.zl = ctx.Logger().Level(zerolog.InfoLevel)
	return l
}

// Init initializes the global logger. When writeToStdout is set, events
// are rendered for humans on stdout.
func Init(prefix string, writeToStdout bool) {
	once.Do(func() {
		var outputs []io.Writer
		if writeToStdout {
			outputs = append(outputs, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
		}
		globalLogger = New(prefix, outputs...)
	})
}

// L returns the global zerolog logger, or a disabled one before Init.
func L() zerolog.Logger {
	if globalLogger == nil {
		return zerolog.Nop()
	}
	return globalLogger.Zerolog()
}

// With returns a child of the global logger tagged with component.
func With(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}

// AddOutput adds an additional output writer (e.g., for TUI log buffer).
// Returns an error if called before Init.
func AddOutput(w io.Writer) error {
	if globalLogger == nil {
		return ErrNotInitialized
	}
	globalLogger.AddOutput(w)
	return nil
}

// RemoveOutput removes an output writer.
// Returns an error if called before Init.
func RemoveOutput(w io.Writer) error {
	if globalLogger == nil {
		return ErrNotInitialized
	}
	globalLogger.RemoveOutput(w)
	return nil
}

// SetEnabled enables or disables logging.
// Returns an error if called before Init.
func SetEnabled(enabled bool) error {
	if globalLogger == nil {
		return ErrNotInitialized
	}
	globalLogger.SetEnabled(enabled)
	return nil
}

// SetLevel sets the minimum level ("debug", "info", "warn", ...).
// Returns an error if called before Init.
func SetLevel(level string) error {
	if globalLogger == nil {
		return ErrNotInitialized
	}
	return globalLogger.SetLevel(level)
}

// Printf logs a formatted info message
func Printf(format string, v ...interface{}) {
	l := L()
	l.Info().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

// Infof logs an info-level formatted message
func Infof(format string, v ...interface{}) {
	l := L()
	l.Info().Msgf(format, v...)
}

// Errorf logs an error-level formatted message
func Errorf(format string, v ...interface{}) {
	l := L()
	l.Error().Msgf(format, v...)
}

// GetGlobalLogger returns the global logger instance (for testing/debugging)
func GetGlobalLogger() *Logger {
	return globalLogger
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.zl
}

func (l *Logger) AddOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = append(l.outputs, w)
}

func (l *Logger) RemoveOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.outputs[:0]
	for _, output := range l.outputs {
		if output != w {
			kept = append(kept, output)
		}
	}
	l.outputs = kept
}

func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

func (l *Logger) SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl = l.zl.Level(lvl)
	return nil
}

// fanout writes each encoded event to every current output.
type fanout struct {
	l *Logger
}

func (f fanout) Write(p []byte) (int, error) {
	f.l.mu.RLock()
	defer f.l.mu.RUnlock()

	if !f.l.enabled {
		return len(p), nil
	}
	for _, output := range f.l.outputs {
		_, _ = output.Write(p)
	}
	return len(p), nil
}
