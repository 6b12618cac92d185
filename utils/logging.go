// Package utils holds the logger and validation helpers shared by every package.
package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type LogLevel int

const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// LogFormat selects the record encoding: human-readable text or JSON lines
// for log collectors.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	SetLevel(level LogLevel)
}

// DefaultLogger writes through slog. Loggers derived with With share the
// level of their parent.
type DefaultLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	off    *atomic.Bool
}

func NewLogger(level LogLevel) *DefaultLogger {
	return NewServiceLogger(level, LogFormatText, os.Stderr)
}

// NewLoggerWithWriter writes text records to w.
func NewLoggerWithWriter(level LogLevel, w io.Writer) *DefaultLogger {
	return NewServiceLogger(level, LogFormatText, w)
}

// NewServiceLogger writes records in format to w.
func NewServiceLogger(level LogLevel, format LogFormat, w io.Writer) *DefaultLogger {
	l := &DefaultLogger{level: new(slog.LevelVar), off: new(atomic.Bool)}
	opts := &slog.HandlerOptions{Level: l.level}

	var handler slog.Handler
	if format == LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	l.logger = slog.New(handler)
	l.SetLevel(level)
	return l
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.off.Store(level <= LogLevelOff)
	switch level {
	case LogLevelDebug:
		l.level.Set(slog.LevelDebug)
	case LogLevelWarn:
		l.level.Set(slog.LevelWarn)
	case LogLevelError:
		l.level.Set(slog.LevelError)
	default:
		l.level.Set(slog.LevelInfo)
	}
}

// With returns a logger that adds keysAndValues to every record, typically
// a component name.
func (l *DefaultLogger) With(keysAndValues ...any) *DefaultLogger {
	return &DefaultLogger{logger: l.logger.With(keysAndValues...), level: l.level, off: l.off}
}

func (l *DefaultLogger) Debug(msg string, keysAndValues ...any) {
	l.log(slog.LevelDebug, msg, keysAndValues)
}

func (l *DefaultLogger) Info(msg string, keysAndValues ...any) {
	l.log(slog.LevelInfo, msg, keysAndValues)
}

func (l *DefaultLogger) Warn(msg string, keysAndValues ...any) {
	l.log(slog.LevelWarn, msg, keysAndValues)
}

func (l *DefaultLogger) Error(msg string, keysAndValues ...any) {
	l.log(slog.LevelError, msg, keysAndValues)
}

func (l *DefaultLogger) log(level slog.Level, msg string, keysAndValues []any) {
	if l.off.Load() {
		return
	}
	l.logger.Log(context.Background(), level, msg, keysAndValues...)
}

func (l LogLevel) String() string {
	if l < LogLevelOff || l > LogLevelDebug {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return [...]string{"OFF", "ERROR", "WARN", "INFO", "DEBUG"}[l]
}

func (l *LogLevel) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "OFF":
		*l = LogLevelOff
	case "ERROR":
		*l = LogLevelError
	case "WARN", "WARNING":
		*l = LogLevelWarn
	case "INFO":
		*l = LogLevelInfo
	case "DEBUG":
		*l = LogLevelDebug
	default:
		return fmt.Errorf("invalid log level: %s", string(text))
	}
	return nil
}

func (f *LogFormat) UnmarshalText(text []byte) error {
	switch LogFormat(strings.ToLower(strings.TrimSpace(string(text)))) {
	case LogFormatText, "":
		*f = LogFormatText
	case LogFormatJSON:
		*f = LogFormatJSON
	default:
		return fmt.Errorf("invalid log format: %s", string(text))
	}
	return nil
}
