package nexlog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageFormatter(t *testing.T) *Formatter {
	t.Helper()
	cfg := DefaultFormatterConfig()
	cfg.Template = "{message}"
	cfg.UseColor = false
	f, err := NewFormatter(cfg)
	require.NoError(t, err)
	return f
}

func newBufferSink(t *testing.T, minLevel Level) (*WriterHandler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h, err := NewWriterHandler(&buf, minLevel, messageFormatter(t))
	require.NoError(t, err)
	return h, &buf
}

// flushCounter records flush and write calls so sentinel routing can be
// observed.
type flushCounter struct {
	writes  atomic.Uint64
	flushes atomic.Uint64
}

func (f *flushCounter) WriteStructured(Level, string, *Metadata) error {
	f.writes.Add(1)
	return nil
}
func (f *flushCounter) WritePreformatted([]byte) error { return nil }
func (f *flushCounter) Flush() error                   { f.flushes.Add(1); return nil }
func (f *flushCounter) Close() error                   { return nil }
func (f *flushCounter) MinLevel() Level                { return TRACE }
func (f *flushCounter) Variant() HandlerVariant        { return VariantUser }

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("sink unavailable") }

func newTestProcessor(t *testing.T, capacity int, handlers ...Handler) (*Processor, *EntryQueue) {
	t.Helper()
	q, err := NewEntryQueue(capacity)
	require.NoError(t, err)
	p, err := NewProcessor(q, handlers, func(ErrorContext) {})
	require.NoError(t, err)
	return p, q
}

func TestProcessorStartStopErrors(t *testing.T) {
	t.Parallel()

	p, _ := newTestProcessor(t, 4)
	assert.ErrorIs(t, p.Stop(), ErrNotStarted)

	require.NoError(t, p.Start())
	assert.ErrorIs(t, p.Start(), ErrAlreadyStarted)
	require.NoError(t, p.Stop())
}

func TestProcessorDeliversInOrder(t *testing.T) {
	t.Parallel()

	sink, buf := newBufferSink(t, TRACE)
	p, q := newTestProcessor(t, 16, sink)

	for _, msg := range []string{"first", "second", "third"} {
		require.NoError(t, q.Push(INFO, []byte(msg), nil))
	}
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())

	assert.Equal(t, "first\nsecond\nthird\n", buf.String())
}

func TestProcessorFlushSentinelNotEmitted(t *testing.T) {
	t.Parallel()

	counter := &flushCounter{}
	p, q := newTestProcessor(t, 8, counter)

	require.NoError(t, q.Push(INFO, []byte("record"), nil))
	require.NoError(t, q.Push(CRITICAL, []byte(flushSentinel), nil))
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())

	assert.Equal(t, uint64(1), counter.writes.Load())
	assert.Equal(t, uint64(1), counter.flushes.Load())

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(1), stats.Flushes)
}

func TestProcessorLevelGate(t *testing.T) {
	t.Parallel()

	sink, buf := newBufferSink(t, WARN)
	p, q := newTestProcessor(t, 8, sink)

	require.NoError(t, q.Push(INFO, []byte("quiet"), nil))
	require.NoError(t, q.Push(ERROR, []byte("loud"), nil))
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())

	assert.Equal(t, "loud\n", buf.String())
}

func TestProcessorSinkFailureIsolated(t *testing.T) {
	t.Parallel()

	bad, err := NewWriterHandler(failWriter{}, TRACE, messageFormatter(t))
	require.NoError(t, err)
	good, buf := newBufferSink(t, TRACE)
	p, q := newTestProcessor(t, 8, bad, good)

	require.NoError(t, q.Push(INFO, []byte("survives"), nil))
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())

	assert.Equal(t, "survives\n", buf.String())
	assert.Equal(t, uint64(1), p.Stats().Errors)
}

func TestProcessorStopDeliversEverything(t *testing.T) {
	t.Parallel()

	sink, buf := newBufferSink(t, TRACE)
	p, q := newTestProcessor(t, 64, sink)

	for i := 0; i < 32; i++ {
		require.NoError(t, q.Push(INFO, []byte(fmt.Sprintf("entry-%02d", i)), nil))
	}
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 32)
	for i, line := range lines {
		assert.Equal(t, fmt.Sprintf("entry-%02d", i), line)
	}

	stats := p.Stats()
	assert.Equal(t, uint64(32), stats.Processed)
	assert.Equal(t, 0, stats.Queue.Depth)
	assert.Equal(t, stats.Queue.Pushed, stats.Processed+stats.Flushes+stats.Queue.Dropped)
}

func TestProcessorStopIdempotent(t *testing.T) {
	t.Parallel()

	p, _ := newTestProcessor(t, 4)
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())
	assert.ErrorIs(t, p.Stop(), ErrNotStarted)
}

func TestAsyncLoggerEndToEnd(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "async.log")
	cfg := DefaultConfig()
	cfg.EnableConsole = false
	cfg.EnableFileLogging = true
	cfg.FilePath = path

	l, err := NewAsyncLogger(cfg)
	require.NoError(t, err)

	require.NoError(t, l.Infof("request %d accepted", 7))
	require.NoError(t, l.Errorf("request %d failed", 8))
	require.NoError(t, l.Drain(time.Second))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "request 7 accepted")
	assert.Contains(t, string(data), "request 8 failed")
}

func TestAsyncLoggerLevelGate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "async.log")
	cfg := DefaultConfig()
	cfg.EnableConsole = false
	cfg.EnableFileLogging = true
	cfg.FilePath = path

	l, err := NewAsyncLogger(cfg)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Debugf("invisible"))
	assert.Equal(t, uint64(0), l.Stats().Queue.Pushed)

	l.SetLevel(DEBUG)
	assert.Equal(t, DEBUG, l.GetLevel())
	require.NoError(t, l.Debugf("visible"))
	assert.Equal(t, uint64(1), l.Stats().Queue.Pushed)
}

func TestAsyncLoggerClosed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "async.log")
	cfg := DefaultConfig()
	cfg.EnableConsole = false
	cfg.EnableFileLogging = true
	cfg.FilePath = path

	l, err := NewAsyncLogger(cfg)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close())

	assert.ErrorIs(t, l.Infof("late"), ErrLoggerClosed)
	assert.ErrorIs(t, l.Flush(), ErrLoggerClosed)
}

func TestAsyncLoggerCriticalTriggersFlush(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "async.log")
	cfg := DefaultConfig()
	cfg.EnableConsole = false
	cfg.EnableFileLogging = true
	cfg.FilePath = path

	l, err := NewAsyncLogger(cfg)
	require.NoError(t, err)

	require.NoError(t, l.Criticalf("shutting down"))
	require.NoError(t, l.Drain(time.Second))
	require.NoError(t, l.Close())

	stats := l.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(1), stats.Flushes)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shutting down")
}

func TestAsyncLoggerAddHandler(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "async.log")
	cfg := DefaultConfig()
	cfg.EnableConsole = false
	cfg.EnableFileLogging = true
	cfg.FilePath = path

	l, err := NewAsyncLogger(cfg)
	require.NoError(t, err)

	sink, buf := newBufferSink(t, TRACE)
	l.AddHandler(sink)

	require.NoError(t, l.Warnf("fanned out"))
	require.NoError(t, l.Drain(time.Second))
	require.NoError(t, l.Close())

	assert.Contains(t, buf.String(), "fanned out")
}
