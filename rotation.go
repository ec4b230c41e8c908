package nexlog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// RotationMode selects which thresholds trigger rotation of the active file.
type RotationMode int

const (
	RotateSize RotationMode = iota
	RotateTime
	RotateBoth
)

// rotationDueLocked checks the configured thresholds before a record of
// incoming bytes is staged. The size check projects the file size the
// record would reach, so a rotation always lands between records and no
// file grows past the cap (a single record larger than the cap still goes
// through whole).
//
// Caller must hold lock.
func (h *FileHandler) rotationDueLocked(now time.Time, incoming int64) bool {
	staged := h.bytesWritten + int64(h.ring.Len())
	bySize := staged > 0 && staged+incoming > h.maxSize
	byTime := h.interval > 0 && now.Sub(h.lastRotation) >= h.interval
	switch h.mode {
	case RotateTime:
		return byTime
	case RotateBoth:
		return bySize || byTime
	default:
		return bySize
	}
}

// rotateLocked archives the active file into the numbered backup chain and
// opens a fresh one. The caller drains the staging buffer first, so no
// accepted record crosses the boundary unflushed.
//
// Caller must hold lock.
func (h *FileHandler) rotateLocked(now time.Time) error {
	if h.file == nil {
		return fmt.Errorf("log file not open")
	}
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("pre-rotation sync: %w", err)
	}
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	h.file = nil

	h.shiftBackups()

	// Stage the previous active file into index 0 through a sidecar so a
	// crash mid-rotation leaves either the live path or the sidecar, never
	// a half-renamed chain.
	tmp := h.path + ".tmp"
	if err := os.Rename(h.path, tmp); err == nil {
		if err := os.Rename(tmp, h.backupName(0)); err != nil {
			return fmt.Errorf("failed to stage rotated file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		// Fall back to renaming the live path directly.
		if err := os.Rename(h.path, h.backupName(0)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to rename log file: %w", err)
		}
	}

	if h.compress {
		if err := h.compressBackup(h.backupName(0)); err != nil {
			// Keep the uncompressed backup; compression failures never
			// abort a rotation.
			h.reporter.report(ErrKindIO, "backup compression failed", err)
		}
	}

	file, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create new log file: %w", err)
	}
	h.file = file
	h.bytesWritten = 0
	h.lastRotation = now
	return nil
}

func (h *FileHandler) backupName(index int) string {
	return fmt.Sprintf("%s.%d", h.path, index)
}

// shiftBackups ages the numbered chain: the highest index is deleted, every
// other backup moves up one slot. Missing files are ignored so gaps from
// earlier failures heal on their own.
func (h *FileHandler) shiftBackups() {
	highest := h.backupName(h.maxRotated - 1)
	removeIfExists(highest)
	removeIfExists(highest + ".gz")

	for i := h.maxRotated - 1; i >= 1; i-- {
		renameIfExists(h.backupName(i-1), h.backupName(i))
		renameIfExists(h.backupName(i-1)+".gz", h.backupName(i)+".gz")
	}
}

func removeIfExists(path string) {
	_ = os.Remove(path)
}

func renameIfExists(oldPath, newPath string) {
	if _, err := os.Stat(oldPath); err != nil {
		return
	}
	_ = os.Rename(oldPath, newPath)
}

// compressBackup gzips src into src.gz via an atomic sidecar rename and
// removes the uncompressed file on success.
func (h *FileHandler) compressBackup(src string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer in.Close()

	tmp := src + ".gz.tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	if _, err = io.Copy(gz, in); err == nil {
		err = gz.Close()
	} else {
		gz.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, src+".gz"); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Remove(src)
}
