package nexlog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessorStats is a snapshot of the async worker's counters combined with
// the queue's.
type ProcessorStats struct {
	Queue     QueueStats
	Processed uint64
	Flushes   uint64
	Errors    uint64
}

// Processor owns the background worker that drains an entry queue into a
// set of handlers. The handler list is guarded by mu; handlers added after
// Start receive only entries popped from then on.
type Processor struct {
	mu       sync.Mutex
	queue    *EntryQueue
	handlers []Handler
	reporter *errorReporter

	started  bool
	stopping bool
	done     chan struct{}

	processed atomic.Uint64
	flushes   atomic.Uint64
	errors    atomic.Uint64
}

// NewProcessor wires a queue to its consuming handlers. A nil errorHandler
// falls back to stderr reporting.
func NewProcessor(queue *EntryQueue, handlers []Handler, errorHandler ErrorHandler) (*Processor, error) {
	if queue == nil {
		return nil, fmt.Errorf("processor requires a queue")
	}
	p := &Processor{
		queue:    queue,
		handlers: make([]Handler, len(handlers)),
		reporter: newErrorReporter(errorHandler, 0, 0),
	}
	copy(p.handlers, handlers)
	return p, nil
}

// Start launches the worker goroutine. Starting a running processor fails
// with ErrAlreadyStarted.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.stopping = false
	p.done = make(chan struct{})
	go p.run(p.done)
	return nil
}

// run is the worker loop: pop, deliver, repeat until the queue closes.
func (p *Processor) run(done chan struct{}) {
	defer close(done)
	for {
		entry, err := p.queue.Pop()
		if err != nil {
			return
		}
		p.deliver(entry)
	}
}

// deliver fans one entry out to every handler. Flush sentinels forward to
// Flush instead of being emitted. Handler failures are counted and reported
// but never stop the loop.
func (p *Processor) deliver(entry LogEntry) {
	p.mu.Lock()
	handlers := p.handlers
	p.mu.Unlock()

	if string(entry.Message) == flushSentinel {
		p.flushes.Add(1)
		for _, h := range handlers {
			if err := h.Flush(); err != nil {
				p.errors.Add(1)
				p.reporter.report(ErrKindIO, "async flush failed", err)
			}
		}
		return
	}

	p.processed.Add(1)
	for _, h := range handlers {
		if entry.Level < h.MinLevel() {
			continue
		}
		if err := h.WriteStructured(entry.Level, string(entry.Message), entry.Metadata); err != nil {
			p.errors.Add(1)
			p.reporter.report(ErrKindIO, "async sink write failed", err)
		}
	}
}

// Stop closes the queue, joins the worker, then drains residual entries so
// no accepted record is silently discarded. Stopping an idle processor
// fails with ErrNotStarted.
func (p *Processor) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stopping {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	done := p.done
	p.mu.Unlock()

	p.queue.Close()
	<-done

	for {
		entry, ok := p.queue.TryPop()
		if !ok {
			break
		}
		p.deliver(entry)
	}

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	return nil
}

// AddHandler registers an additional sink. Entries popped before the call
// are not retroactively delivered.
func (p *Processor) AddHandler(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	handlers := make([]Handler, len(p.handlers), len(p.handlers)+1)
	copy(handlers, p.handlers)
	p.handlers = append(handlers, h)
}

// Stats snapshots the worker and queue counters.
func (p *Processor) Stats() ProcessorStats {
	return ProcessorStats{
		Queue:     p.queue.Stats(),
		Processed: p.processed.Load(),
		Flushes:   p.flushes.Load(),
		Errors:    p.errors.Load(),
	}
}

// AsyncLogger accepts records on the caller's goroutine and delivers them
// from a single background worker. Under sustained overload the queue drops
// its oldest undelivered entries rather than blocking producers.
type AsyncLogger struct {
	queue     *EntryQueue
	processor *Processor
	handlers  []Handler

	level          atomic.Int32
	enableMetadata bool
	closed         atomic.Bool
}

// NewAsyncLogger builds the queue, worker, and sinks from cfg and starts
// the worker.
func NewAsyncLogger(cfg Config) (*AsyncLogger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	capacity := cfg.QueueCapacity
	if capacity == 0 {
		capacity = 10000
	}
	queue, err := NewEntryQueue(capacity)
	if err != nil {
		return nil, err
	}

	var handlers []Handler
	if cfg.EnableConsole {
		consoleFmt, err := NewFormatter(cfg.formatterConfig())
		if err != nil {
			return nil, err
		}
		ch, err := NewConsoleHandler(ConsoleHandlerConfig{
			UseStderr: cfg.ConsoleStderr,
			FastMode:  cfg.FastConsole,
			MinLevel:  cfg.MinLevel,
			Formatter: consoleFmt,
		})
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, ch)
	}
	if cfg.EnableFileLogging {
		fileCfg := cfg.formatterConfig()
		fileCfg.Template = DefaultFileTemplate
		fileCfg.UseColor = false
		fileFmt, err := NewFormatter(fileCfg)
		if err != nil {
			return nil, err
		}
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
			for _, h := range handlers {
				h.Close()
			}
			return nil, err
		}
		handlers = append(handlers, fh)
	}

	processor, err := NewProcessor(queue, handlers, cfg.ErrorHandler)
	if err != nil {
		return nil, err
	}
	l := &AsyncLogger{
		queue:          queue,
		processor:      processor,
		handlers:       handlers,
		enableMetadata: cfg.EnableMetadata,
	}
	l.level.Store(int32(cfg.MinLevel))
	if err := processor.Start(); err != nil {
		return nil, err
	}
	return l, nil
}

// log stages one record on the queue.
func (l *AsyncLogger) log(level Level, format string, args ...interface{}) error {
	if l.closed.Load() {
		return ErrLoggerClosed
	}
	if level < Level(l.level.Load()) {
		return nil
	}
	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}
	var md *Metadata
	if l.enableMetadata {
		md = CaptureMetadata(2)
	}
	return l.queue.Push(level, []byte(message), md)
}

// Logf enqueues a formatted record at the given level.
func (l *AsyncLogger) Logf(level Level, format string, args ...interface{}) error {
	return l.log(level, format, args...)
}

// Tracef enqueues a formatted record at TRACE.
func (l *AsyncLogger) Tracef(format string, args ...interface{}) error {
	return l.log(TRACE, format, args...)
}

// Debugf enqueues a formatted record at DEBUG.
func (l *AsyncLogger) Debugf(format string, args ...interface{}) error {
	return l.log(DEBUG, format, args...)
}

// Infof enqueues a formatted record at INFO.
func (l *AsyncLogger) Infof(format string, args ...interface{}) error {
	return l.log(INFO, format, args...)
}

// Warnf enqueues a formatted record at WARN.
func (l *AsyncLogger) Warnf(format string, args ...interface{}) error {
	return l.log(WARN, format, args...)
}

// Errorf enqueues a formatted record at ERROR.
func (l *AsyncLogger) Errorf(format string, args ...interface{}) error {
	return l.log(ERROR, format, args...)
}

// Criticalf enqueues a formatted record at CRITICAL followed by a flush
// request.
func (l *AsyncLogger) Criticalf(format string, args ...interface{}) error {
	if err := l.log(CRITICAL, format, args...); err != nil {
		return err
	}
	return l.Flush()
}

// Flush enqueues a flush request for the worker; it does not wait for the
// flush to happen. Use Drain to wait.
func (l *AsyncLogger) Flush() error {
	if l.closed.Load() {
		return ErrLoggerClosed
	}
	return l.queue.Push(CRITICAL, []byte(flushSentinel), nil)
}

// Drain waits until the queue empties or the timeout elapses.
func (l *AsyncLogger) Drain(timeout time.Duration) error {
	return l.queue.Drain(timeout)
}

// SetLevel changes the minimum level for subsequently enqueued records.
func (l *AsyncLogger) SetLevel(level Level) { l.level.Store(int32(level)) }

// GetLevel returns the minimum level.
func (l *AsyncLogger) GetLevel() Level { return Level(l.level.Load()) }

// AddHandler registers an additional sink with the worker.
func (l *AsyncLogger) AddHandler(h Handler) { l.processor.AddHandler(h) }

// Stats snapshots the pipeline counters.
func (l *AsyncLogger) Stats() ProcessorStats { return l.processor.Stats() }

// Close stops the worker, delivers residual entries, and closes every sink
// in reverse registration order. It is idempotent.
func (l *AsyncLogger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	err := l.processor.Stop()
	l.processor.mu.Lock()
	handlers := l.processor.handlers
	l.processor.mu.Unlock()
	for i := len(handlers) - 1; i >= 0; i-- {
		if cerr := handlers[i].Close(); err == nil {
			err = cerr
		}
	}
	return err
}
