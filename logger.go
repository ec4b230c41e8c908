package nexlog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Logger is the synchronous front end: it gates records by level, captures
// call-site metadata, renders each record once per formatter kind, and fans
// the bytes out to every registered handler. The handler list and formatter
// pair are guarded by mu; the level lives in an atomic so the hot-path gate
// never takes the lock.
type Logger struct {
	mu       sync.Mutex
	handlers []Handler

	consoleFmt *Formatter
	fileFmt    *Formatter

	level          atomic.Int32
	dynamicLevelFn func() Level

	enableMetadata bool
	rateLimiter    *rate.Limiter
	reporter       *errorReporter

	paused atomic.Bool
	closed atomic.Bool
}

// New builds a logger from cfg, wiring up console and file sinks as the
// config enables them.
func New(cfg Config) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	consoleFmt, err := NewFormatter(cfg.formatterConfig())
	if err != nil {
		return nil, err
	}

	fileCfg := cfg.formatterConfig()
	fileCfg.Template = DefaultFileTemplate
	fileCfg.UseColor = false
	fileFmt, err := NewFormatter(fileCfg)
	if err != nil {
		return nil, err
	}

	l := &Logger{
		consoleFmt:     consoleFmt,
		fileFmt:        fileFmt,
		enableMetadata: cfg.EnableMetadata,
		reporter:       newErrorReporter(cfg.ErrorHandler, cfg.MaxRetries, cfg.RetryDelay),
	}
	l.level.Store(int32(cfg.MinLevel))
	if cfg.MaxLogRate > 0 {
		l.rateLimiter = rate.NewLimiter(rate.Limit(cfg.MaxLogRate), cfg.MaxLogRate)
	}

	if cfg.EnableConsole {
		ch, err := NewConsoleHandler(ConsoleHandlerConfig{
			UseStderr: cfg.ConsoleStderr,
			FastMode:  cfg.FastConsole,
			MinLevel:  cfg.MinLevel,
			Formatter: consoleFmt,
		})
		if err != nil {
			return nil, err
		}
		l.handlers = append(l.handlers, ch)
	}

	if cfg.EnableFileLogging {
		fh, err := NewFileHandler(FileHandlerConfig{
			Path:             cfg.FilePath,
			MinLevel:         cfg.MinLevel,
			Formatter:        fileFmt,
			BufferSize:       int(cfg.BufferSize),
			FlushInterval:    cfg.FlushInterval,
			RotationMode:     cfg.RotationMode,
			MaxSize:          int64(cfg.MaxFileSize),
			MaxRotatedFiles:  cfg.MaxRotatedFiles,
			RotationInterval: cfg.RotationInterval,
			Compress:         cfg.CompressBackups,
			ErrorHandler:     cfg.ErrorHandler,
		})
		if err != nil {
			for _, h := range l.handlers {
				h.Close()
			}
			return nil, err
		}
		l.handlers = append(l.handlers, fh)
	}

	return l, nil
}

// effectiveLevel resolves the dynamic level function when one is set,
// otherwise the stored level.
func (l *Logger) effectiveLevel() Level {
	l.mu.Lock()
	fn := l.dynamicLevelFn
	l.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return Level(l.level.Load())
}

// admit runs the cheap front gates shared by every logging entry point.
// It returns false with a nil error when the record is filtered out.
func (l *Logger) admit(level Level) (bool, error) {
	if l.closed.Load() {
		return false, ErrLoggerClosed
	}
	if l.paused.Load() {
		return false, nil
	}
	if level < l.effectiveLevel() {
		return false, nil
	}
	if l.rateLimiter != nil && !l.rateLimiter.Allow() {
		return false, nil
	}
	return true, nil
}

// dispatch renders the record once per formatter kind and writes the bytes
// to every handler at or below the record's level. A failing sink is
// reported through the error handler and does not stop delivery to the
// others.
//
// Caller must hold mu. render is invoked lazily per formatter so a record
// headed only to the console never pays for the file rendering.
func (l *Logger) dispatch(level Level, render func(*Formatter) ([]byte, error)) error {
	var consoleLine, fileLine []byte
	var firstErr error
	for _, h := range l.handlers {
		if level < h.MinLevel() {
			continue
		}
		var line []byte
		var err error
		if h.Variant() == VariantConsole {
			if consoleLine == nil {
				if consoleLine, err = render(l.consoleFmt); err == nil {
					consoleLine = append(consoleLine, '\n')
				}
			}
			line = consoleLine
		} else {
			if fileLine == nil {
				if fileLine, err = render(l.fileFmt); err == nil {
					fileLine = append(fileLine, '\n')
				}
			}
			line = fileLine
		}
		if err == nil {
			sink := h
			err = l.reporter.withRetry(func() error {
				return sink.WritePreformatted(line)
			})
		}
		if err != nil {
			l.reporter.report(ErrKindIO, "sink write failed", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// log is the shared plain-message path behind the leveled methods.
func (l *Logger) log(level Level, md *Metadata, format string, args ...interface{}) error {
	ok, err := l.admit(level)
	if !ok {
		return err
	}

	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}
	if md == nil && l.enableMetadata {
		// Two frames sit between the user call and here: the public
		// wrapper and this method.
		md = CaptureMetadata(2)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dispatch(level, func(f *Formatter) ([]byte, error) {
		return f.Format(level, message, md)
	})
}

// Logf logs a formatted message at the given level. A non-nil md overrides
// call-site capture.
func (l *Logger) Logf(level Level, md *Metadata, format string, args ...interface{}) error {
	return l.log(level, md, format, args...)
}

// LogStructured logs a message with named fields, rendered in each
// handler's structured format.
func (l *Logger) LogStructured(level Level, message string, fields []Field, md *Metadata) error {
	ok, err := l.admit(level)
	if !ok {
		return err
	}
	if md == nil && l.enableMetadata {
		md = CaptureMetadata(1)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dispatch(level, func(f *Formatter) ([]byte, error) {
		return f.FormatStructured(level, message, fields, md)
	})
}

// LogContext logs a formatted message, attaching any propagation metadata
// carried by ctx to the record.
func (l *Logger) LogContext(ctx context.Context, level Level, format string, args ...interface{}) error {
	var md *Metadata
	if l.enableMetadata {
		md = CaptureMetadata(1)
	}
	if cm, ok := ContextMetadataFrom(ctx); ok {
		md = cm.attach(md)
	}
	return l.log(level, md, format, args...)
}

// Tracef logs a formatted message at TRACE.
func (l *Logger) Tracef(format string, args ...interface{}) error {
	return l.log(TRACE, nil, format, args...)
}

// Debugf logs a formatted message at DEBUG.
func (l *Logger) Debugf(format string, args ...interface{}) error {
	return l.log(DEBUG, nil, format, args...)
}

// Infof logs a formatted message at INFO.
func (l *Logger) Infof(format string, args ...interface{}) error {
	return l.log(INFO, nil, format, args...)
}

// Warnf logs a formatted message at WARN.
func (l *Logger) Warnf(format string, args ...interface{}) error {
	return l.log(WARN, nil, format, args...)
}

// Errorf logs a formatted message at ERROR.
func (l *Logger) Errorf(format string, args ...interface{}) error {
	return l.log(ERROR, nil, format, args...)
}

// Criticalf logs a formatted message at CRITICAL and flushes every handler.
func (l *Logger) Criticalf(format string, args ...interface{}) error {
	err := l.log(CRITICAL, nil, format, args...)
	if ferr := l.Flush(); err == nil {
		err = ferr
	}
	return err
}

// Trace logs its operands at TRACE, best effort.
func (l *Logger) Trace(v ...interface{}) { _ = l.log(TRACE, nil, "%s", fmt.Sprint(v...)) }

// Debug logs its operands at DEBUG, best effort.
func (l *Logger) Debug(v ...interface{}) { _ = l.log(DEBUG, nil, "%s", fmt.Sprint(v...)) }

// Info logs its operands at INFO, best effort.
func (l *Logger) Info(v ...interface{}) { _ = l.log(INFO, nil, "%s", fmt.Sprint(v...)) }

// Warn logs its operands at WARN, best effort.
func (l *Logger) Warn(v ...interface{}) { _ = l.log(WARN, nil, "%s", fmt.Sprint(v...)) }

// Error logs its operands at ERROR, best effort.
func (l *Logger) Error(v ...interface{}) { _ = l.log(ERROR, nil, "%s", fmt.Sprint(v...)) }

// Critical logs its operands at CRITICAL and flushes, best effort.
func (l *Logger) Critical(v ...interface{}) {
	_ = l.log(CRITICAL, nil, "%s", fmt.Sprint(v...))
	_ = l.Flush()
}

// AddHandler registers an additional sink.
func (l *Logger) AddHandler(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// RemoveHandler unregisters a sink without closing it. It reports whether
// the handler was registered.
func (l *Logger) RemoveHandler(h Handler) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.handlers {
		if existing == h {
			l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Handlers returns a snapshot of the registered sinks.
func (l *Logger) Handlers() []Handler {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Handler, len(l.handlers))
	copy(out, l.handlers)
	return out
}

// Flush durably commits buffered bytes in every handler.
func (l *Logger) Flush() error {
	if l.closed.Load() {
		return ErrLoggerClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, h := range l.handlers {
		if err := h.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes and closes every handler in reverse registration order. It
// is idempotent; logging after Close fails with ErrLoggerClosed.
func (l *Logger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for i := len(l.handlers) - 1; i >= 0; i-- {
		if err := l.handlers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetLevel changes the minimum level for subsequent records.
func (l *Logger) SetLevel(level Level) { l.level.Store(int32(level)) }

// GetLevel returns the stored minimum level. A dynamic level function,
// when set, takes precedence at log time.
func (l *Logger) GetLevel() Level { return Level(l.level.Load()) }

// SetDynamicLevelFunc installs fn as the level source consulted on every
// record. A nil fn restores the stored level.
func (l *Logger) SetDynamicLevelFunc(fn func() Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dynamicLevelFn = fn
}

// Pause drops records silently until Resume.
func (l *Logger) Pause() { l.paused.Store(true) }

// Resume re-enables logging after Pause.
func (l *Logger) Resume() { l.paused.Store(false) }

// IsPaused reports whether the logger is discarding records.
func (l *Logger) IsPaused() bool { return l.paused.Load() }

// IsClosed reports whether Close has been called.
func (l *Logger) IsClosed() bool { return l.closed.Load() }
