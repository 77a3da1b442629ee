// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/fieldedge/iotops/internal/wallclock"
)

type (
	// Logger is a wrapper around an slog.Logger with additional helpers and nil
	// checking.
	Logger struct{ Wrapped *slog.Logger }

	// Attrs represents an object that exposes extra slog attributes to log.
	Attrs interface {
		Attrs() []slog.Attr
	}
)

// Wrap the slog logger. If logger is nil, fallback is used instead; this lets
// callers layer a component-specific logger over an application-wide default.
func Wrap(logger *slog.Logger, fallback ...*slog.Logger) Logger {
	if logger == nil {
		for _, f := range fallback {
			if f != nil {
				return Logger{f}
			}
		}
	}
	return Logger{logger}
}

// Log is designed to build logging wrappers; it should not be called directly.
// See: https://pkg.go.dev/log/slog#hdr-Wrapping_output_methods
func (l Logger) Log(
	ctx context.Context,
	level slog.Level,
	msg string,
	attrs ...slog.Attr,
) {
	if !l.Enabled(ctx, level) {
		return
	}

	now := wallclock.Instance.Now()
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(now, level, msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.Wrapped.Handler().Handle(ctx, r)
}

// Err logs an error with structured logging.
func (l Logger) Err(ctx context.Context, err error, attrs ...slog.Attr) {
	if a, ok := err.(Attrs); ok {
		l.Log(ctx, slog.LevelError, err.Error(), append(a.Attrs(), attrs...)...)
	} else {
		l.Log(ctx, slog.LevelError, err.Error(), attrs...)
	}
}

// Error logs an error with structured logging. It is a synonym for Err,
// kept for packages that spell the call that way.
func (l Logger) Error(ctx context.Context, err error, attrs ...slog.Attr) {
	l.Err(ctx, err, attrs...)
}

// Info logs a message with structured logging.
func (l Logger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.Log(ctx, slog.LevelInfo, msg, attrs...)
}

// Warn logs a message at warning level with structured logging.
func (l Logger) Warn(ctx context.Context, v any, attrs ...slog.Attr) {
	if err, ok := v.(error); ok {
		if a, ok := err.(Attrs); ok {
			attrs = append(a.Attrs(), attrs...)
		}
		l.Log(ctx, slog.LevelWarn, err.Error(), attrs...)
		return
	}
	l.Log(ctx, slog.LevelWarn, fmt.Sprint(v), attrs...)
}

// Debug logs a message at debug level with structured logging.
func (l Logger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.Log(ctx, slog.LevelDebug, msg, attrs...)
}

// Enabled indicates that the logger is enabled for the given logging level.
func (l Logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.Wrapped != nil && l.Wrapped.Enabled(ctx, level)
}
