package nexlog

import (
	"bytes"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Metadata is the fixed-shape record attached to a log call: wall-clock
// seconds, goroutine id, and call-site information. All strings are copied
// by value when the record crosses the async queue; the logger never retains
// caller-owned memory past the call.
type Metadata struct {
	Timestamp int64
	ThreadID  uint64
	File      string
	Line      int
	Function  string
	Context   *ContextMetadata
}

// clone deep-copies the record so queued entries do not alias caller memory.
func (m *Metadata) clone() *Metadata {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Context != nil {
		ctxCopy := *m.Context
		cp.Context = &ctxCopy
	}
	return &cp
}

// CaptureMetadata fills a Metadata record from the current call site.
// skip counts stack frames above the caller, as in runtime.Caller.
func CaptureMetadata(skip int) *Metadata {
	md := &Metadata{
		Timestamp: time.Now().Unix(),
		ThreadID:  goroutineID(),
	}

	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		md.File = "unknown"
		return md
	}
	md.File = filepath.Base(file)
	md.Line = line

	if fn := runtime.FuncForPC(pc); fn != nil {
		name := fn.Name()
		if lastSlash := strings.LastIndexByte(name, '/'); lastSlash >= 0 {
			name = name[lastSlash+1:]
		}
		if lastDot := strings.LastIndexByte(name, '.'); lastDot >= 0 {
			name = name[lastDot+1:]
		}
		md.Function = name
	}
	return md
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the current goroutine id out of the runtime stack
// header. Used only when metadata capture is enabled.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	frame := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(frame, ' '); i > 0 {
		id, err := strconv.ParseUint(string(frame[:i]), 10, 64)
		if err == nil {
			return id
		}
	}
	return 0
}
