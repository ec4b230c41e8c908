package nexlog

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSinkLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.EnableConsole = false
	l, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	var buf bytes.Buffer
	sink, err := NewWriterHandler(&buf, TRACE, nil)
	require.NoError(t, err)
	l.AddHandler(sink)
	return l, &buf
}

func TestLoggerFanOut(t *testing.T) {
	t.Parallel()

	l, first := newSinkLogger(t)
	var second bytes.Buffer
	sink, err := NewWriterHandler(&second, TRACE, nil)
	require.NoError(t, err)
	l.AddHandler(sink)

	require.NoError(t, l.Infof("user %s signed in", "ada"))

	for _, buf := range []*bytes.Buffer{first, &second} {
		assert.Contains(t, buf.String(), "[INFO] user ada signed in")
	}
}

func TestLoggerLevelGate(t *testing.T) {
	t.Parallel()

	l, buf := newSinkLogger(t)
	l.SetLevel(WARN)
	assert.Equal(t, WARN, l.GetLevel())

	require.NoError(t, l.Infof("quiet"))
	require.NoError(t, l.Errorf("loud"))

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestLoggerDynamicLevel(t *testing.T) {
	t.Parallel()

	l, buf := newSinkLogger(t)
	l.SetDynamicLevelFunc(func() Level { return ERROR })

	require.NoError(t, l.Warnf("suppressed"))
	assert.Empty(t, buf.String())

	l.SetDynamicLevelFunc(nil)
	require.NoError(t, l.Warnf("restored"))
	assert.Contains(t, buf.String(), "restored")
}

func TestLoggerPauseResume(t *testing.T) {
	t.Parallel()

	l, buf := newSinkLogger(t)
	l.Pause()
	assert.True(t, l.IsPaused())
	require.NoError(t, l.Infof("dropped"))
	assert.Empty(t, buf.String())

	l.Resume()
	assert.False(t, l.IsPaused())
	require.NoError(t, l.Infof("delivered"))
	assert.Contains(t, buf.String(), "delivered")
}

func TestLoggerClose(t *testing.T) {
	t.Parallel()

	l, _ := newSinkLogger(t)
	require.NoError(t, l.Close())
	assert.True(t, l.IsClosed())
	assert.NoError(t, l.Close())

	assert.ErrorIs(t, l.Infof("late"), ErrLoggerClosed)
	assert.ErrorIs(t, l.Flush(), ErrLoggerClosed)
}

func TestLoggerRemoveHandler(t *testing.T) {
	t.Parallel()

	l, buf := newSinkLogger(t)
	handlers := l.Handlers()
	require.Len(t, handlers, 1)

	assert.True(t, l.RemoveHandler(handlers[0]))
	assert.False(t, l.RemoveHandler(handlers[0]))

	require.NoError(t, l.Infof("nowhere to go"))
	assert.Empty(t, buf.String())
}

func TestLoggerSinkFailureIsolated(t *testing.T) {
	t.Parallel()

	var reported []ErrorContext
	cfg := DefaultConfig()
	cfg.EnableConsole = false
	cfg.ErrorHandler = func(ec ErrorContext) { reported = append(reported, ec) }
	l, err := New(cfg)
	require.NoError(t, err)
	defer l.Close()

	bad, err := NewWriterHandler(failWriter{}, TRACE, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	good, err := NewWriterHandler(&buf, TRACE, nil)
	require.NoError(t, err)
	l.AddHandler(bad)
	l.AddHandler(good)

	assert.Error(t, l.Infof("partial delivery"))
	assert.Contains(t, buf.String(), "partial delivery")
	require.NotEmpty(t, reported)
	assert.Equal(t, ErrKindIO, reported[0].Kind)
}

func TestLoggerRateLimit(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.EnableConsole = false
	cfg.MaxLogRate = 1
	l, err := New(cfg)
	require.NoError(t, err)
	defer l.Close()

	var buf bytes.Buffer
	sink, err := NewWriterHandler(&buf, TRACE, nil)
	require.NoError(t, err)
	l.AddHandler(sink)

	require.NoError(t, l.Infof("admitted"))
	require.NoError(t, l.Infof("shed"))

	lines := strings.Count(buf.String(), "\n")
	assert.Equal(t, 1, lines)
	assert.Contains(t, buf.String(), "admitted")
}

func TestLoggerStructuredToSink(t *testing.T) {
	t.Parallel()

	l, buf := newSinkLogger(t)
	err := l.LogStructured(INFO, "conn", []Field{F("db", "primary"), F("port", 5432)}, &Metadata{Timestamp: 1})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"conn"`)
	assert.Contains(t, out, `"db":"primary"`)
	assert.Contains(t, out, `"port":5432`)
}

func TestLoggerLogContext(t *testing.T) {
	t.Parallel()

	l, buf := newSinkLogger(t)
	ctx := WithContextMetadata(context.Background(), ContextMetadata{
		RequestID: "r-9",
		Operation: "checkout",
	})
	require.NoError(t, l.LogContext(ctx, INFO, "served %s", "cart"))
	assert.Contains(t, buf.String(), "served cart")
}

func TestLoggerBestEffortVariants(t *testing.T) {
	t.Parallel()

	l, buf := newSinkLogger(t)
	l.Info("joined", " ", "parts")
	assert.Contains(t, buf.String(), "joined parts")
}

func TestLoggerCriticalfFlushes(t *testing.T) {
	t.Parallel()

	l, _ := newSinkLogger(t)
	counter := &flushCounter{}
	l.AddHandler(counter)

	require.NoError(t, l.Criticalf("going down"))
	assert.GreaterOrEqual(t, counter.flushes.Load(), uint64(1))
}

func TestLoggerFileSink(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	cfg := DefaultConfig()
	cfg.EnableConsole = false
	cfg.EnableFileLogging = true
	cfg.FilePath = path
	l, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, l.Infof("persisted"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] persisted")
}
