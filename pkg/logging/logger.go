package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is a log severity. Messages below a logger's level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel converts a settings value (debug, info, warn, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Options configures a file-backed logger.
type Options struct {
	// Dir is the directory holding run logs. Defaults to DefaultDir.
	Dir   string
	Level Level
}

// DefaultDir is used when Options.Dir is empty.
const DefaultDir = ".kinetic/logs"

// Logger writes component-tagged lines for one harness run.
// All loggers created in a process share the run id, and file-backed
// loggers pointed at the same directory share one file.
type Logger struct {
	runID     string
	component string
	level     Level
	file      *os.File
	logger    *log.Logger
	mu        *sync.Mutex
	logPath   string
	owner     bool
	closeOnce sync.Once
}

var (
	runID     string
	runIDOnce sync.Once
)

// RunID returns the id of the current harness run, creating it on first use.
func RunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// NewLogger creates a logger for a component that appends to
// <dir>/<run-id>-kinetic.log.
//
// If the directory or file cannot be opened, a logger writing to stderr is
// returned together with the error so callers can report the fallback.
func NewLogger(component string, opts Options) (*Logger, error) {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		err = fmt.Errorf("failed to create log directory: %w", err)
		return newFallbackLogger(component, opts.Level, err), err
	}

	logPath := filepath.Join(dir, fmt.Sprintf("%s-kinetic.log", RunID()))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, opts.Level, err), err
	}

	return &Logger{
		runID:     RunID(),
		component: component,
		level:     opts.Level,
		file:      file,
		logger:    log.New(file, "", 0),
		mu:        &sync.Mutex{},
		logPath:   logPath,
		owner:     true,
	}, nil
}

// NewWriterLogger creates a logger that writes to w at debug level.
func NewWriterLogger(component string, w io.Writer) *Logger {
	return &Logger{
		runID:     RunID(),
		component: component,
		level:     LevelDebug,
		logger:    log.New(w, "", 0),
		mu:        &sync.Mutex{},
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriterLogger("discard", io.Discard)
}

func newFallbackLogger(component string, level Level, err error) *Logger {
	l := NewWriterLogger(component, os.Stderr)
	l.level = level
	l.Warnf("failed to initialize file logging: %v", err)
	l.Warnf("falling back to stderr logging")
	return l
}

// With returns a logger for another component sharing this logger's output.
// Closing the returned logger does not close the shared file.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		runID:     l.runID,
		component: component,
		level:     l.level,
		file:      l.file,
		logger:    l.logger,
		mu:        l.mu,
		logPath:   l.logPath,
	}
}

func (l *Logger) logf(level Level, format string, v ...interface{}) {
	if l == nil || level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	message := fmt.Sprintf(format, v...)
	l.logger.Printf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...interface{}) { l.logf(LevelDebug, format, v...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...interface{}) { l.logf(LevelInfo, format, v...) }

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) { l.logf(LevelWarn, format, v...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) { l.logf(LevelError, format, v...) }

// RunID returns the run id this logger tags its file with.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the log file path, or "" for writer-backed loggers.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file if this logger opened it. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.owner && l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
