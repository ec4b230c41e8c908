package nexlog

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileHandler(t *testing.T, cfg FileHandlerConfig) (*FileHandler, string) {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "app.log")
	}
	h, err := NewFileHandler(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h, cfg.Path
}

func TestFileHandlerWriteAndFlush(t *testing.T) {
	t.Parallel()

	h, path := newTestFileHandler(t, FileHandlerConfig{})
	require.NoError(t, h.WritePreformatted([]byte("first line\n")))
	require.NoError(t, h.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first line\n", string(data))
}

func TestFileHandlerRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewFileHandler(FileHandlerConfig{})
	assert.Error(t, err)
}

func TestFileHandlerCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "deep", "app.log")
	h, err := NewFileHandler(FileHandlerConfig{Path: path})
	require.NoError(t, err)
	defer h.Close()

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestFileHandlerLevelGate(t *testing.T) {
	t.Parallel()

	h, path := newTestFileHandler(t, FileHandlerConfig{MinLevel: WARN})
	require.NoError(t, h.WriteStructured(INFO, "filtered", &Metadata{Timestamp: 1}))
	require.NoError(t, h.WriteStructured(ERROR, "kept", &Metadata{Timestamp: 2}))
	require.NoError(t, h.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "filtered")
	assert.Contains(t, string(data), "kept")
}

func TestFileHandlerSizeRotation(t *testing.T) {
	t.Parallel()

	h, path := newTestFileHandler(t, FileHandlerConfig{
		MaxSize:         1024,
		MaxRotatedFiles: 3,
		BufferSize:      256,
	})

	record := []byte(strings.Repeat("x", 63) + "\n")
	for i := 0; i < 64; i++ {
		require.NoError(t, h.WritePreformatted(record))
	}
	require.NoError(t, h.Close())

	var total int64
	for _, name := range []string{path, path + ".0", path + ".1", path + ".2"} {
		fi, err := os.Stat(name)
		require.NoError(t, err, "expected %s to exist", name)
		assert.LessOrEqual(t, fi.Size(), int64(1024), "%s exceeds the rotation cap", name)
		total += fi.Size()
	}
	assert.GreaterOrEqual(t, total, int64(3*1024))
}

func TestFileHandlerRotationRetention(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	h, _ := newTestFileHandler(t, FileHandlerConfig{
		Path:            path,
		MaxSize:         256,
		MaxRotatedFiles: 2,
		BufferSize:      128,
	})

	record := []byte(strings.Repeat("y", 31) + "\n")
	for i := 0; i < 128; i++ {
		require.NoError(t, h.WritePreformatted(record))
	}
	require.NoError(t, h.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 3, "retention must cap files at max_rotated_files+1")

	_, err = os.Stat(path + ".2")
	assert.True(t, os.IsNotExist(err))
}

func TestFileHandlerCompressedRotation(t *testing.T) {
	t.Parallel()

	h, path := newTestFileHandler(t, FileHandlerConfig{
		MaxSize:         256,
		MaxRotatedFiles: 2,
		BufferSize:      128,
		Compress:        true,
	})

	record := []byte(strings.Repeat("z", 31) + "\n")
	for i := 0; i < 16; i++ {
		require.NoError(t, h.WritePreformatted(record))
	}
	require.NoError(t, h.Close())

	f, err := os.Open(path + ".0.gz")
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat(record, 8), content)

	_, err = os.Stat(path + ".0")
	assert.True(t, os.IsNotExist(err), "uncompressed backup should be removed")
}

func TestFileHandlerTimeRotation(t *testing.T) {
	t.Parallel()

	h, path := newTestFileHandler(t, FileHandlerConfig{
		RotationMode:     RotateTime,
		RotationInterval: 10 * time.Millisecond,
		MaxRotatedFiles:  2,
	})

	require.NoError(t, h.WritePreformatted([]byte("before\n")))
	require.NoError(t, h.Flush())
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.WritePreformatted([]byte("after\n")))
	require.NoError(t, h.Close())

	rotated, err := os.ReadFile(path + ".0")
	require.NoError(t, err)
	assert.Equal(t, "before\n", string(rotated))

	active, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after\n", string(active))
}

func TestFileHandlerOversizedRecordBypassesBuffer(t *testing.T) {
	t.Parallel()

	h, path := newTestFileHandler(t, FileHandlerConfig{BufferSize: 64})

	big := strings.Repeat("b", 200) + "\n"
	require.NoError(t, h.WritePreformatted([]byte(big)))
	require.NoError(t, h.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, big, string(data))
}

func TestFileHandlerClosed(t *testing.T) {
	t.Parallel()

	h, _ := newTestFileHandler(t, FileHandlerConfig{})
	require.NoError(t, h.Close())
	assert.NoError(t, h.Close())

	err := h.WritePreformatted([]byte("late\n"))
	assert.ErrorIs(t, err, ErrLoggerClosed)
	assert.ErrorIs(t, h.Flush(), ErrLoggerClosed)
}

func TestFileHandlerCloseFlushesBufferedBytes(t *testing.T) {
	t.Parallel()

	h, path := newTestFileHandler(t, FileHandlerConfig{BufferSize: 4096})
	require.NoError(t, h.WritePreformatted([]byte("buffered\n")))
	require.NoError(t, h.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "buffered\n", string(data))
}

func TestFileHandlerBufferTelemetry(t *testing.T) {
	t.Parallel()

	h, _ := newTestFileHandler(t, FileHandlerConfig{})
	require.NoError(t, h.WritePreformatted([]byte("counted\n")))

	stats := h.BufferStats()
	assert.Equal(t, uint64(8), stats.TotalWritten)

	report := h.BufferHealth(time.Now())
	assert.Equal(t, HealthHealthy, report.Status)
}
