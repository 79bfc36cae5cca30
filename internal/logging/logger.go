package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// Pipeline components depend on this interface rather than a concrete
// implementation so tests can swap in Nop or a recorder.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Level represents the severity of a log message.
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
	default:
		return "ERROR"
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var (
	rootOnce sync.Once
	rootLog  *fileLogger
)

// fileLogger writes timestamped lines to seedforge-debug.log and mirrors
// WARN/ERROR to stderr.
type fileLogger struct {
	mu        sync.Mutex
	logger    *log.Logger
	file      *os.File
	level     Level
	component string
}

func root() *fileLogger {
	rootOnce.Do(func() {
		l := &fileLogger{level: levelFromEnv()}
		dir, err := os.UserHomeDir()
		if err != nil {
			dir = os.TempDir()
		}
		path := filepath.Join(dir, "seedforge-debug.log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.logger = log.New(os.Stderr, "", 0)
		} else {
			l.file = f
			l.logger = log.New(f, "", 0)
		}
		rootLog = l
	})
	return rootLog
}

func levelFromEnv() Level {
	switch strings.ToLower(os.Getenv("SEEDFORGE_LOG_LEVEL")) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	r := root()
	return &fileLogger{logger: r.logger, file: r.file, level: r.level, component: component}
}

func (l *fileLogger) output(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%s] [%s] %s",
		time.Now().Format("2006-01-02 15:04:05.000"), level, l.component, msg)
	l.mu.Lock()
	l.logger.Println(line)
	l.mu.Unlock()
	if level >= LevelWarn && l.file != nil {
		fmt.Fprintln(os.Stderr, line)
	}
}

func (l *fileLogger) Debug(format string, args ...any) { l.output(LevelDebug, format, args...) }
func (l *fileLogger) Info(format string, args ...any)  { l.output(LevelInfo, format, args...) }
func (l *fileLogger) Warn(format string, args ...any)  { l.output(LevelWarn, format, args...) }
func (l *fileLogger) Error(format string, args ...any) { l.output(LevelError, format, args...) }

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}
