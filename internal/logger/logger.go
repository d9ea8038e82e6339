// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger is the structured logging sink every other package calls
// into. It wraps log/slog with an extra TRACE level below DEBUG, a
// text/json format switch, and rotation (via lumberjack) when logging to a
// file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jokalee/zero/cfg"
)

// Severity levels. LevelOff is higher than any level slog ever logs at, so
// setting a *slog.LevelVar to it silences the logger entirely.
const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelOff   slog.Level = 12
)

func severityToLevel(s cfg.LogSeverity) slog.Level {
	switch s {
	case cfg.TraceLogSeverity:
		return LevelTrace
	case cfg.DebugLogSeverity:
		return LevelDebug
	case cfg.WarningLogSeverity:
		return LevelWarn
	case cfg.ErrorLogSeverity:
		return LevelError
	case cfg.OffLogSeverity:
		return LevelOff
	default:
		return LevelInfo
	}
}

func levelName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

func setLoggingLevel(sev cfg.LogSeverity, programLevel *slog.LevelVar) {
	programLevel.Set(severityToLevel(sev))
}

// loggerFactory remembers enough to rebuild defaultLogger whenever the
// format or output target changes.
type loggerFactory struct {
	out             io.Writer
	closer          io.Closer
	format          string
	level           cfg.LogSeverity
	logRotateConfig cfg.LogRotateConfig
	prefix          string
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, programLevel *slog.LevelVar) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: programLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				level, _ := a.Value.Any().(slog.Level)
				return slog.Attr{Key: "severity", Value: slog.StringValue(levelName(level))}
			case slog.MessageKey:
				return slog.Attr{Key: a.Key, Value: slog.StringValue(f.prefix + a.Value.String())}
			default:
				return a
			}
		},
	}
	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var (
	programLevel         = new(slog.LevelVar)
	defaultLoggerFactory = &loggerFactory{
		out:             os.Stderr,
		format:          "text",
		level:           cfg.InfoLogSeverity,
		logRotateConfig: cfg.DefaultLogRotateConfig(),
	}
	defaultLogger = rebuild(defaultLoggerFactory)
)

func rebuild(f *loggerFactory) *slog.Logger {
	setLoggingLevel(f.level, programLevel)
	return slog.New(f.createJsonOrTextHandler(f.out, programLevel))
}

// SetLogFormat switches the output format ("text" or "json"; anything else
// is treated as "json") and rebuilds the default logger.
func SetLogFormat(format string) {
	if format != "text" {
		format = "json"
	}
	defaultLoggerFactory.format = format
	defaultLogger = rebuild(defaultLoggerFactory)
}

// SetSeverity changes the minimum severity the default logger emits.
func SetSeverity(sev cfg.LogSeverity) {
	defaultLoggerFactory.level = sev
	setLoggingLevel(sev, programLevel)
}

// InitLogFile points the default logger at cfg's file path (rotated via
// lumberjack, written through an AsyncLogger so slow disks don't stall
// filesystem callbacks) instead of stderr. An empty FilePath is a no-op:
// the logger keeps writing to stderr.
func InitLogFile(lc cfg.LoggingConfig) error {
	if lc.FilePath == "" {
		return nil
	}

	lj := &lumberjack.Logger{
		Filename:   string(lc.FilePath),
		MaxSize:    lc.LogRotation.MaxFileSizeMB,
		MaxBackups: lc.LogRotation.BackupFileCount,
		Compress:   lc.LogRotation.Compress,
	}
	async := NewAsyncLogger(lj, 1024)

	if defaultLoggerFactory.closer != nil {
		defaultLoggerFactory.closer.Close()
	}
	defaultLoggerFactory.out = async
	defaultLoggerFactory.closer = async
	defaultLoggerFactory.format = lc.Format
	defaultLoggerFactory.level = lc.Severity
	defaultLoggerFactory.logRotateConfig = lc.LogRotation
	defaultLogger = rebuild(defaultLoggerFactory)
	return nil
}

// Close flushes and closes the file the logger is currently writing to, if
// any. Safe to call even when logging to stderr.
func Close() error {
	if defaultLoggerFactory.closer == nil {
		return nil
	}
	err := defaultLoggerFactory.closer.Close()
	defaultLoggerFactory.closer = nil
	defaultLoggerFactory.out = os.Stderr
	defaultLogger = rebuild(defaultLoggerFactory)
	return err
}

// Logger returns the current default *slog.Logger, for components that
// take a structured logger instead of calling the package-level helpers.
func Logger() *slog.Logger {
	return defaultLogger
}

func Tracef(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelInfo, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, args...))
}
