// Copyright 2023 Google Inc. All Rights Reserved.
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

// Package logger provides leveled, structured logging for the Coordinator
// and its collaborators. It wraps log/slog with two severity-aware handlers
// (json and text) and optional lumberjack-backed file rotation.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/jrz1977/pgdbfs/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom severities, ordered the same way cfg.LogSeverity ranks them.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

const timeLayout = "2006/01/02 15:04:05.000000"

// loggerFactory owns the handler configuration and, when logging to a file,
// the lumberjack-backed writer behind it.
type loggerFactory struct {
	file            *os.File
	sysWriter       io.Writer
	asyncWriter     *AsyncLogger
	level           string
	format          string
	logRotateConfig cfg.LogRotateConfig
}

var defaultLoggerFactory = &loggerFactory{
	level:  string(cfg.InfoLogSeverity),
	format: string(cfg.TextLogFormat),
}

var defaultLogger = slog.New(
	defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, levelVarFor(string(cfg.InfoLogSeverity)), ""),
)

func levelVarFor(level string) *slog.LevelVar {
	v := new(slog.LevelVar)
	setLoggingLevel(level, v)
	return v
}

func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch cfg.LogSeverity(level) {
	case cfg.TraceLogSeverity:
		programLevel.Set(LevelTrace)
	case cfg.DebugLogSeverity:
		programLevel.Set(LevelDebug)
	case cfg.WarningLogSeverity:
		programLevel.Set(LevelWarn)
	case cfg.ErrorLogSeverity:
		programLevel.Set(LevelError)
	case cfg.OffLogSeverity:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

func severityName(level slog.Level) string {
	switch {
	case level < LevelDebug:
		return "TRACE"
	case level < LevelInfo:
		return "DEBUG"
	case level < LevelWarn:
		return "INFO"
	case level < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// severityHandler implements slog.Handler with this project's wire format:
// a flat "time/severity/message" text line, or a JSON object with a
// {seconds,nanos} timestamp. Neither matches slog's built-in handlers, so
// both are written by hand rather than wrapped.
type severityHandler struct {
	out    io.Writer
	level  *slog.LevelVar
	prefix string
	json   bool
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	return &severityHandler{out: w, level: level, prefix: prefix, json: f.format == string(cfg.JSONLogFormat)}
}

func (h *severityHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *severityHandler) Handle(_ context.Context, r slog.Record) error {
	msg := h.prefix + r.Message
	severity := severityName(r.Level)

	var line string
	if h.json {
		line = fmt.Sprintf(
			`{"timestamp":{"seconds":%d,"nanos":%d},"severity":%q,"message":%q}`+"\n",
			r.Time.Unix(), r.Time.Nanosecond(), severity, msg,
		)
	} else {
		line = fmt.Sprintf("time=%q severity=%s message=%q\n", r.Time.Format(timeLayout), severity, msg)
	}

	_, err := io.WriteString(h.out, line)
	return err
}

func (h *severityHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *severityHandler) WithGroup(_ string) slog.Handler      { return h }

// SetLogFormat switches the default logger between "json" and "text" output.
func SetLogFormat(format string) {
	if format != string(cfg.JSONLogFormat) && format != string(cfg.TextLogFormat) {
		format = string(cfg.JSONLogFormat)
	}
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultOutput(), levelVarFor(defaultLoggerFactory.level), ""))
}

func defaultOutput() io.Writer {
	if defaultLoggerFactory.asyncWriter != nil {
		return defaultLoggerFactory.asyncWriter
	}
	if defaultLoggerFactory.sysWriter != nil {
		return defaultLoggerFactory.sysWriter
	}
	if defaultLoggerFactory.file != nil {
		return defaultLoggerFactory.file
	}
	return os.Stderr
}

// InitLogFile points the default logger at a rotated log file, or back at
// stderr if config.FilePath is empty.
func InitLogFile(config cfg.LoggingConfig) error {
	defaultLoggerFactory.level = string(config.Severity)
	defaultLoggerFactory.format = string(config.Format)
	defaultLoggerFactory.logRotateConfig = config.LogRotate

	if config.FilePath == "" {
		if defaultLoggerFactory.asyncWriter != nil {
			defaultLoggerFactory.asyncWriter.Close()
			defaultLoggerFactory.asyncWriter = nil
		}
		defaultLoggerFactory.file = nil
		defaultLoggerFactory.sysWriter = nil
		defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, levelVarFor(defaultLoggerFactory.level), ""))
		return nil
	}

	f, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", config.FilePath, err)
	}
	f.Close()

	lj := &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    config.LogRotate.MaxFileSizeMb,
		MaxBackups: config.LogRotate.BackupFileCount,
		Compress:   config.LogRotate.Compress,
	}

	defaultLoggerFactory.file, err = os.Open(config.FilePath)
	if err != nil {
		return fmt.Errorf("reopening log file %s: %w", config.FilePath, err)
	}
	defaultLoggerFactory.sysWriter = nil

	// Every request/reply in the FC's hot path can log; route file writes
	// through a buffered background goroutine so a slow rotation or a full
	// disk never stalls a kernel op waiting on lumberjack.
	async := NewAsyncLogger(lj, 4096)
	defaultLoggerFactory.asyncWriter = async
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(async, levelVarFor(defaultLoggerFactory.level), ""))
	return nil
}

// Close flushes and stops any background log writer started by InitLogFile.
// It is a no-op when logging to stderr.
func Close() error {
	if defaultLoggerFactory.asyncWriter != nil {
		err := defaultLoggerFactory.asyncWriter.Close()
		defaultLoggerFactory.asyncWriter = nil
		return err
	}
	return nil
}

// NewLegacyLogger bridges this package's slog-based logger to a stdlib
// *log.Logger, for dependencies (jacobsa/fuse's MountConfig.ErrorLogger and
// DebugLogger) that predate slog.
func NewLegacyLogger(level slog.Level, prefix string) *log.Logger {
	v := new(slog.LevelVar)
	v.Set(level)
	handler := defaultLoggerFactory.createJsonOrTextHandler(defaultOutput(), v, prefix)
	return slog.NewLogLogger(handler, level)
}

func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

func logf(level slog.Level, format string, args ...any) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	defaultLogger.Log(context.Background(), level, msg)
}
