package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel represents the logging level
type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	CRITICAL
)

var levelTags = map[LogLevel]string{
	DEBUG:    "[DEBUG] ",
	INFO:     "[INFO]  ",
	WARNING:  "[WARN]  ",
	ERROR:    "[ERROR] ",
	CRITICAL: "[CRIT]  ",
}

// ParseLevel maps a textual or numeric level to a LogLevel. Unknown values fall back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "0":
		return DEBUG
	case "WARN", "WARNING", "2":
		return WARNING
	case "ERROR", "3":
		return ERROR
	case "CRITICAL", "CRIT", "4":
		return CRITICAL
	default:
		return INFO
	}
}

// LoggerInterface defines the interface for logging methods
type LoggerInterface interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warning(format string, v ...interface{})
	Error(format string, v ...interface{})
	Critical(format string, v ...interface{})
	Fatal(format string, v ...interface{})
	Sync() error
	ChangeLogLevel(level LogLevel)
}

// Options configures file output and rotation.
type Options struct {
	File       string // empty disables file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Level      LogLevel
	Quiet      bool // suppress stdout mirroring
}

// Logger writes leveled printf-style lines to stdout and an hourly rotated file.
type Logger struct {
	logger *log.Logger
	file   *hourlyWriter
	level  atomic.Int32
}

// NewLogger creates a new logger instance with file output and rotation
func NewLogger(opts Options) (*Logger, error) {
	var writers []io.Writer
	var file *hourlyWriter
	if opts.File != "" {
		w, err := newHourlyWriter(opts.File, opts.MaxSizeMB, opts.MaxBackups, opts.MaxAgeDays, opts.Compress)
		if err != nil {
			return nil, err
		}
		file = w
		writers = append(writers, w)
	}
	if !opts.Quiet || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	l := &Logger{
		logger: log.New(io.MultiWriter(writers...), "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile|log.LUTC),
		file:   file,
	}
	l.level.Store(int32(opts.Level))
	return l, nil
}

func (l *Logger) output(level LogLevel, format string, v ...interface{}) {
	if LogLevel(l.level.Load()) > level {
		return
	}
	_ = l.logger.Output(3, levelTags[level]+fmt.Sprintf(format, v...))
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) { l.output(DEBUG, format, v...) }

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) { l.output(INFO, format, v...) }

// Warning logs a warning message
func (l *Logger) Warning(format string, v ...interface{}) { l.output(WARNING, format, v...) }

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) { l.output(ERROR, format, v...) }

// Critical logs conditions that stop trading, regardless of the configured level.
func (l *Logger) Critical(format string, v ...interface{}) {
	_ = l.logger.Output(2, levelTags[CRITICAL]+fmt.Sprintf(format, v...))
}

// Fatal logs an error message and exits
func (l *Logger) Fatal(format string, v ...interface{}) {
	_ = l.logger.Output(2, fmt.Sprintf("[FATAL] "+format, v...))
	_ = l.Close()
	os.Exit(1)
}

// Sync rotates the current file so buffered lines land on disk.
func (l *Logger) Sync() error {
	if l.file == nil {
		return nil
	}
	return l.file.Rotate()
}

// Close releases the underlying file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ChangeLogLevel changes the logging level at runtime
func (l *Logger) ChangeLogLevel(level LogLevel) {
	l.level.Store(int32(level))
}
