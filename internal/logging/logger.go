package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger writes one JSON object per line with lowercase level, msg and
// component keys.
type Logger struct {
	level  Level
	logger *slog.Logger
}

func NewLogger(levelStr string) *Logger {
	return NewLoggerWithWriter(levelStr, os.Stdout)
}

func NewLoggerWithWriter(levelStr string, w io.Writer) *Logger {
	level := ParseLevel(levelStr)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level.slog(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.LevelKey {
				a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
			}
			return a
		},
	})
	return &Logger{level: level, logger: slog.New(h)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewLoggerWithWriter("error", io.Discard)
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{level: l.level, logger: l.logger.With("component", component)}
}

func (l *Logger) Enabled(level Level) bool { return l.level <= level }

func (l *Logger) Debug(format string, args ...any) { l.logf(LevelDebug, format, args) }
func (l *Logger) Info(format string, args ...any)  { l.logf(LevelInfo, format, args) }
func (l *Logger) Warn(format string, args ...any)  { l.logf(LevelWarn, format, args) }
func (l *Logger) Error(format string, args ...any) { l.logf(LevelError, format, args) }

func (l *Logger) Debugw(msg string, fields map[string]any) { l.logw(LevelDebug, msg, fields) }
func (l *Logger) Infow(msg string, fields map[string]any)  { l.logw(LevelInfo, msg, fields) }
func (l *Logger) Warnw(msg string, fields map[string]any)  { l.logw(LevelWarn, msg, fields) }
func (l *Logger) Errorw(msg string, fields map[string]any) { l.logw(LevelError, msg, fields) }

// Fatal logs at error level and exits. Only main packages call it.
func (l *Logger) Fatal(format string, args ...any) {
	l.logf(LevelError, format, args)
	os.Exit(1)
}

func (l *Logger) logf(level Level, format string, args []any) {
	if !l.Enabled(level) {
		return
	}
	l.logger.Log(context.Background(), level.slog(), fmt.Sprintf(format, args...))
}

func (l *Logger) logw(level Level, msg string, fields map[string]any) {
	if !l.Enabled(level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.LogAttrs(context.Background(), level.slog(), msg, attrs...)
}
