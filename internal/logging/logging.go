// Package logging provides the leveled *log.Logger wrapper used by every
// long-running component, with optional size-based file rotation.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is a logging severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// ParseLevel converts a level name to a Level. It accepts "warning" as an
// alias for "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", s)
	}
}

// Logger drops messages below its level and writes the rest through a
// standard *log.Logger.
type Logger struct {
	std   *log.Logger
	level atomic.Int32
}

// New creates a logger writing to w. The prefix is typically the component
// name in brackets, e.g. "[autoprint] ".
func New(prefix string, w io.Writer, level Level) *Logger {
	l := &Logger{std: log.New(w, prefix, log.LstdFlags)}
	l.level.Store(int32(level))
	return l
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New("", io.Discard, LevelError+1)
}

// Std returns the underlying standard logger, for components that only
// accept a *log.Logger.
func (l *Logger) Std() *log.Logger {
	return l.std
}

// Level returns the current threshold.
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// SetLevel changes the threshold.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// With returns a logger sharing this one's output and level threshold at the
// time of the call, with a different prefix.
func (l *Logger) With(prefix string) *Logger {
	return New(prefix, l.std.Writer(), l.Level())
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if level < l.Level() {
		return
	}
	_ = l.std.Output(3, strings.ToUpper(level.String())+" "+fmt.Sprintf(format, args...))
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// FileOptions configures the rotating log file.
type FileOptions struct {
	// Path is the log file. Empty disables file output.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Writer returns the destination for log output: stderr alone, or stderr and
// a lumberjack-rotated file when opts.Path is set. The returned closer
// releases the file and is never nil.
func Writer(opts FileOptions) (io.Writer, io.Closer) {
	if opts.Path == "" {
		return os.Stderr, nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(os.Stderr, file), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
