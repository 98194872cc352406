// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for williwaw.
//
// It is a thin layer over slog: one handler writes to stderr (text for
// terminals, JSON for pipes), an optional second handler appends JSON
// lines to a per-service file under LogDir. The CLI installs the
// logger's slog.Logger as the process default, so library code that
// logs via the slog package functions shares the same destinations.
//
// This package does not redact anything. Callers keep secrets and PII
// out of log attributes.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity a logger records.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN" or "ERROR".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l Level) slogLevel() slog.Level {
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

// ParseLevel maps a config string to a Level. Unknown or empty input
// falls back to Info rather than failing: a misspelled log level must
// never stop the process from starting.
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

// Config configures a Logger. The zero value logs Info and above to
// stderr in text format.
type Config struct {
	// Level is the minimum severity recorded.
	Level Level

	// LogDir, when set, additionally appends JSON lines to
	// {LogDir}/{Service}_{date}.log. Supports a leading ~.
	LogDir string

	// Service names the emitting component in file names and in the
	// "service" attribute.
	Service string

	// JSON switches the primary output to JSON lines. The file output
	// is always JSON.
	JSON bool

	// Writer overrides the primary output destination. Defaults to
	// stderr; tests point it at a buffer.
	Writer io.Writer
}

// Logger wraps a slog.Logger bound to the configured destinations.
// Safe for concurrent use.
type Logger struct {
	slogger *slog.Logger
	file    *os.File
}

// New builds a logger from the config. Failure to open the log file is
// reported on stderr and the logger continues without it.
func New(cfg Config) *Logger {
	out := cfg.Writer
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}

	var primary slog.Handler
	if cfg.JSON {
		primary = slog.NewJSONHandler(out, opts)
	} else {
		primary = slog.NewTextHandler(out, opts)
	}

	l := &Logger{}
	handlers := []slog.Handler{primary}
	if cfg.LogDir != "" {
		if f, err := openLogFile(cfg.LogDir, cfg.Service); err != nil {
			fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		} else {
			l.file = f
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
		}
	}

	slogger := slog.New(multiHandler(handlers))
	if cfg.Service != "" {
		slogger = slogger.With("service", cfg.Service)
	}
	l.slogger = slogger
	return l
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
)

// Default returns the process-wide logger, created on first use with a
// zero Config. Components that are not handed a logger explicitly log
// through it.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLog = New(Config{})
	})
	return defaultLog
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{slogger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Debug logs at debug level with alternating key/value attrs.
func (l *Logger) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.slogger.Info(msg, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slogger.Warn(msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

// With returns a logger that adds the attrs to every record. The log
// file handle stays with the parent; only the parent's Close closes it.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...)}
}

// Slog exposes the underlying slog.Logger, e.g. for slog.SetDefault or
// for libraries that take one.
func (l *Logger) Slog() *slog.Logger { return l.slogger }

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func openLogFile(dir, service string) (*os.File, error) {
	dir, err := expandPath(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if service == "" {
		service = "williwaw"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// expandPath resolves a leading ~ against the user's home directory.
func expandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// multiHandler fans one record out to every handler. A single handler
// is returned as-is.
func multiHandler(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return fanout(handlers)
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
