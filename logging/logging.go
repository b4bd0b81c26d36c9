// Package logging provides the levelled logger shared by the runtime packages.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"go.uber.org/atomic"
)

// Level orders log severities.
type Level int32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name into a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", name)
	}
}

// Logger is the logging surface used throughout the runtime.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// StdLogger writes through a standard library log.Logger and drops
// entries below its level. The level may be changed concurrently.
type StdLogger struct {
	out   *log.Logger
	level atomic.Int32
}

// New creates a logger writing to w with the given prefix.
func New(w io.Writer, prefix string, level Level) *StdLogger {
	l := &StdLogger{
		out: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds),
	}
	l.level.Store(int32(level))
	return l
}

// Default returns an info level logger on stderr.
func Default() *StdLogger {
	return New(os.Stderr, "gproc ", LevelInfo)
}

// SetLevel changes the minimum level that is written.
func (l *StdLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// Level returns the current minimum level.
func (l *StdLogger) Level() Level {
	return Level(l.level.Load())
}

// Enabled reports whether entries at level are written.
func (l *StdLogger) Enabled(level Level) bool {
	return level >= l.Level()
}

func (l *StdLogger) logf(level Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.out.Output(3, "["+strings.ToUpper(level.String())+"] "+fmt.Sprintf(format, args...))
}

// Debugf logs at debug level.
func (l *StdLogger) Debugf(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

// Infof logs at info level.
func (l *StdLogger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Warnf logs at warn level.
func (l *StdLogger) Warnf(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

// Errorf logs at error level.
func (l *StdLogger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

// Discard is a Logger that drops everything.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debugf(string, ...interface{}) {}
func (discard) Infof(string, ...interface{})  {}
func (discard) Warnf(string, ...interface{})  {}
func (discard) Errorf(string, ...interface{}) {}
