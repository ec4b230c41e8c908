package nexlog

import (
	"context"
	"sync"
)

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the process-wide logger, creating a console-only INFO
// logger on first use.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l, err := New(DefaultConfig())
		if err != nil {
			// The default config builds a console logger and cannot fail
			// validation; reaching this is a programming error.
			panic(err)
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger and returns the previous one,
// which the caller owns and should close when done.
func SetDefault(l *Logger) *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultLogger
	defaultLogger = l
	return prev
}

// Tracef logs through the process-wide logger at TRACE.
func Tracef(format string, args ...interface{}) error {
	return Default().log(TRACE, nil, format, args...)
}

// Debugf logs through the process-wide logger at DEBUG.
func Debugf(format string, args ...interface{}) error {
	return Default().log(DEBUG, nil, format, args...)
}

// Infof logs through the process-wide logger at INFO.
func Infof(format string, args ...interface{}) error {
	return Default().log(INFO, nil, format, args...)
}

// Warnf logs through the process-wide logger at WARN.
func Warnf(format string, args ...interface{}) error {
	return Default().log(WARN, nil, format, args...)
}

// Errorf logs through the process-wide logger at ERROR.
func Errorf(format string, args ...interface{}) error {
	return Default().log(ERROR, nil, format, args...)
}

// Criticalf logs through the process-wide logger at CRITICAL and flushes.
func Criticalf(format string, args ...interface{}) error {
	l := Default()
	err := l.log(CRITICAL, nil, format, args...)
	if ferr := l.Flush(); err == nil {
		err = ferr
	}
	return err
}

// InfoContextf logs through the process-wide logger at INFO with the
// propagation metadata carried by ctx.
func InfoContextf(ctx context.Context, format string, args ...interface{}) error {
	return logContextDefault(ctx, INFO, format, args...)
}

// ErrorContextf logs through the process-wide logger at ERROR with the
// propagation metadata carried by ctx.
func ErrorContextf(ctx context.Context, format string, args ...interface{}) error {
	return logContextDefault(ctx, ERROR, format, args...)
}

func logContextDefault(ctx context.Context, level Level, format string, args ...interface{}) error {
	l := Default()
	var md *Metadata
	if l.enableMetadata {
		md = CaptureMetadata(2)
	}
	if cm, ok := ContextMetadataFrom(ctx); ok {
		md = cm.attach(md)
	}
	return l.log(level, md, format, args...)
}
