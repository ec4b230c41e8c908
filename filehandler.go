package nexlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileHandlerConfig configures a rotating file sink.
type FileHandlerConfig struct {
	Path     string
	MinLevel Level
	// Formatter overrides the default file formatter. Color is the caller's
	// responsibility to disable; NewFileHandler's default has it off.
	Formatter *Formatter

	// BufferSize is the staging ring capacity in bytes (default 4096).
	BufferSize int
	// FlushThreshold is the buffered byte count that forces a flush
	// (default: half the ring).
	FlushThreshold int
	// FlushInterval forces a flush when this much wall-clock time has
	// passed since the last one (default 5s).
	FlushInterval time.Duration

	RotationMode     RotationMode
	MaxSize          int64 // rotation size threshold (default 10 MiB)
	MaxRotatedFiles  int   // numbered backups to keep (default 5)
	RotationInterval time.Duration
	Compress         bool

	ErrorHandler ErrorHandler
}

// FileHandler stages formatted records in a ring buffer and drains them to
// an append-only file, rotating by size, time, or both. All file and ring
// state is guarded by one mutex; writers blocked during rotation resume once
// the fresh file is open.
type FileHandler struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	ring      *RingBuffer
	minLevel  Level
	formatter *Formatter

	flushThreshold int
	flushInterval  time.Duration
	lastFlush      time.Time

	mode         RotationMode
	maxSize      int64
	maxRotated   int
	interval     time.Duration
	compress     bool
	bytesWritten int64
	lastRotation time.Time

	reporter *errorReporter
	scratch  []byte
	closed   bool
}

// NewFileHandler opens (creating if needed) the active log file and its
// staging buffer.
func NewFileHandler(cfg FileHandlerConfig) (*FileHandler, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file handler requires a path")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = cfg.BufferSize / 2
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10 * 1024 * 1024
	}
	if cfg.MaxRotatedFiles <= 0 {
		cfg.MaxRotatedFiles = 5
	}

	formatter := cfg.Formatter
	if formatter == nil {
		fcfg := DefaultFormatterConfig()
		fcfg.Template = DefaultFileTemplate
		fcfg.UseColor = false
		var err error
		formatter, err = NewFormatter(fcfg)
		if err != nil {
			return nil, err
		}
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	size := int64(0)
	if fi, err := file.Stat(); err == nil {
		size = fi.Size()
	}

	ring, err := NewRingBuffer(cfg.BufferSize)
	if err != nil {
		file.Close()
		return nil, err
	}

	now := time.Now()
	return &FileHandler{
		path:           cfg.Path,
		file:           file,
		ring:           ring,
		minLevel:       cfg.MinLevel,
		formatter:      formatter,
		flushThreshold: cfg.FlushThreshold,
		flushInterval:  cfg.FlushInterval,
		lastFlush:      now,
		mode:           cfg.RotationMode,
		maxSize:        cfg.MaxSize,
		maxRotated:     cfg.MaxRotatedFiles,
		interval:       cfg.RotationInterval,
		compress:       cfg.Compress,
		bytesWritten:   size,
		lastRotation:   now,
		reporter:       newErrorReporter(cfg.ErrorHandler, 0, 0),
		scratch:        make([]byte, cfg.BufferSize),
	}, nil
}

func (h *FileHandler) WriteStructured(level Level, message string, md *Metadata) error {
	if level < h.minLevel {
		return nil
	}
	line, err := h.formatter.Format(level, message, md)
	if err != nil {
		return err
	}
	return h.WritePreformatted(append(line, '\n'))
}

// WritePreformatted stages the record and drains the ring when either the
// size threshold or the flush interval fires. A record that would push the
// active file past its size cap first flushes and rotates, so rotation
// boundaries fall between records.
func (h *FileHandler) WritePreformatted(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrLoggerClosed
	}

	if h.rotationDueLocked(time.Now(), int64(len(p))) {
		if err := h.flushLocked(); err != nil {
			return err
		}
		if err := h.rotateLocked(time.Now()); err != nil {
			h.reporter.report(ErrKindIO, "log rotation failed", err)
			return err
		}
	}

	if _, err := h.ring.Write(p); err != nil {
		// Make room and retry once; records larger than the whole ring go
		// straight to the file.
		if flushErr := h.flushLocked(); flushErr != nil {
			return flushErr
		}
		if _, err = h.ring.Write(p); err != nil {
			if err = h.writeFileLocked(p); err != nil {
				return fmt.Errorf("staging buffer bypass: %w", err)
			}
			return nil
		}
	}

	if h.ring.Len() >= h.flushThreshold || time.Since(h.lastFlush) >= h.flushInterval {
		return h.flushLocked()
	}
	return nil
}

// Flush drains the staging buffer and syncs the file.
func (h *FileHandler) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrLoggerClosed
	}
	return h.flushLocked()
}

// flushLocked drains every staged byte into the file and syncs.
func (h *FileHandler) flushLocked() error {
	for !h.ring.IsEmpty() {
		n, err := h.ring.Read(h.scratch)
		if err != nil {
			if err == ErrBufferUnderflow {
				break
			}
			return err
		}
		if err := h.writeFileLocked(h.scratch[:n]); err != nil {
			return err
		}
	}
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("log sync: %w", err)
	}
	h.lastFlush = time.Now()
	return nil
}

func (h *FileHandler) writeFileLocked(p []byte) error {
	if h.file == nil {
		return fmt.Errorf("log file not open")
	}
	n, err := h.file.Write(p)
	h.bytesWritten += int64(n)
	if err != nil {
		return fmt.Errorf("log write: %w", err)
	}
	return nil
}

func (h *FileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	err := h.flushLocked()
	h.closed = true
	if h.file != nil {
		if cerr := h.file.Close(); err == nil {
			err = cerr
		}
		h.file = nil
	}
	return err
}

func (h *FileHandler) MinLevel() Level         { return h.minLevel }
func (h *FileHandler) Variant() HandlerVariant { return VariantFile }

// BufferHealth reports the staging ring's health.
func (h *FileHandler) BufferHealth(now time.Time) HealthReport {
	return h.ring.Health(now)
}

// BufferStats snapshots the staging ring's counters.
func (h *FileHandler) BufferStats() RingBufferStats {
	return h.ring.Stats()
}
