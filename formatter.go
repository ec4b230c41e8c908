package nexlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultConsoleTemplate is the record layout used by console sinks when no
// template is configured.
const DefaultConsoleTemplate = "[{timestamp}] [{color}{level}{reset}] [{file}:{line}] {message}"

// DefaultFileTemplate is the record layout used by file sinks when no
// template is configured. File output never carries color.
const DefaultFileTemplate = "[{timestamp}] [{level}] {message}"

// CustomPlaceholderFunc produces the bytes for a registered custom
// placeholder. The returned slice is appended and not retained.
type CustomPlaceholderFunc func(level Level, message string, md *Metadata) ([]byte, error)

type placeholderKind int

const (
	phTimestamp placeholderKind = iota
	phLevel
	phMessage
	phThread
	phFile
	phLine
	phFunction
	phColor
	phReset
	phRequestID
	phCorrelationID
	phTraceID
	phSpanID
	phUserID
	phSessionID
	phOperation
	phComponent
	phCustom
)

var placeholderKinds = map[string]placeholderKind{
	"timestamp":      phTimestamp,
	"level":          phLevel,
	"message":        phMessage,
	"thread":         phThread,
	"file":           phFile,
	"line":           phLine,
	"function":       phFunction,
	"color":          phColor,
	"reset":          phReset,
	"request_id":     phRequestID,
	"correlation_id": phCorrelationID,
	"trace_id":       phTraceID,
	"span_id":        phSpanID,
	"user_id":        phUserID,
	"session_id":     phSessionID,
	"operation":      phOperation,
	"component":      phComponent,
}

// placeholder is one compiled slot of the template. start and end delimit
// the placeholder (braces included) in the original template string, so the
// literal spans between slots fall out implicitly.
type placeholder struct {
	kind  placeholderKind
	name  string
	spec  string
	start int
	end   int
}

// StructuredFormat selects the machine-readable rendering of field records.
type StructuredFormat int

const (
	StructuredJSON StructuredFormat = iota
	StructuredLogfmt
	StructuredCustom
)

// FormatterConfig controls template compilation and rendering.
type FormatterConfig struct {
	Template              string
	TimestampFormat       TimestampFormat
	CustomTimestampLayout string
	LevelFormat           LevelFormat
	UseColor              bool
	Component             string

	StructuredFormat  StructuredFormat
	FieldSeparator    string
	KeyValueSeparator string
	IncludeTimestamp  bool
	IncludeLevel      bool
	IncludeMessage    bool

	StackBufferSize int

	CustomPlaceholders map[string]CustomPlaceholderFunc
}

// DefaultFormatterConfig returns the formatter defaults used by console
// sinks: the default template, unix timestamps, long uppercase levels, and
// color enabled.
func DefaultFormatterConfig() FormatterConfig {
	return FormatterConfig{
		Template:          DefaultConsoleTemplate,
		TimestampFormat:   TimestampUnix,
		LevelFormat:       LevelUpper,
		UseColor:          true,
		StructuredFormat:  StructuredJSON,
		FieldSeparator:    " | ",
		KeyValueSeparator: "=",
		IncludeTimestamp:  true,
		IncludeLevel:      true,
		IncludeMessage:    true,
		StackBufferSize:   512,
	}
}

// Formatter renders records from a template compiled once at construction.
// A Formatter is immutable after NewFormatter and safe for concurrent use.
type Formatter struct {
	template     string
	placeholders []placeholder
	cfg          FormatterConfig
	custom       map[string]CustomPlaceholderFunc
}

// NewFormatter compiles the template in cfg. Construction fails with
// ErrInvalidPlaceholder on an unbalanced brace, an unknown placeholder name
// that has no registered custom handler, or a malformed format spec.
func NewFormatter(cfg FormatterConfig) (*Formatter, error) {
	if cfg.Template == "" {
		cfg.Template = DefaultConsoleTemplate
	}
	if cfg.StackBufferSize <= 0 {
		cfg.StackBufferSize = 512
	}
	if cfg.FieldSeparator == "" {
		cfg.FieldSeparator = " | "
	}
	if cfg.KeyValueSeparator == "" {
		cfg.KeyValueSeparator = "="
	}

	f := &Formatter{
		template: cfg.Template,
		cfg:      cfg,
		custom:   cfg.CustomPlaceholders,
	}
	if err := f.compile(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Formatter) compile() error {
	tpl := f.template
	for i := 0; i < len(tpl); i++ {
		if tpl[i] != '{' {
			continue
		}
		close := strings.IndexByte(tpl[i+1:], '}')
		if close < 0 {
			return fmt.Errorf("%w: unbalanced '{' at offset %d", ErrInvalidPlaceholder, i)
		}
		end := i + 1 + close
		body := tpl[i+1 : end]
		if strings.ContainsRune(body, '{') {
			return fmt.Errorf("%w: unbalanced '{' at offset %d", ErrInvalidPlaceholder, i)
		}

		name, spec := body, ""
		if colon := strings.IndexByte(body, ':'); colon >= 0 {
			name, spec = body[:colon], body[colon+1:]
			if spec == "" {
				return fmt.Errorf("%w: empty format spec in {%s}", ErrInvalidPlaceholder, body)
			}
		}
		if name == "" {
			return fmt.Errorf("%w: empty placeholder at offset %d", ErrInvalidPlaceholder, i)
		}

		ph := placeholder{name: name, spec: spec, start: i, end: end + 1}
		if kind, ok := placeholderKinds[name]; ok {
			ph.kind = kind
		} else if _, ok := f.custom[name]; ok {
			ph.kind = phCustom
		} else {
			return fmt.Errorf("%w: unknown placeholder {%s}", ErrInvalidPlaceholder, name)
		}

		f.placeholders = append(f.placeholders, ph)
		i = end
	}
	return nil
}

// Format renders a plain record. The returned slice is a fresh allocation
// owned by the caller. Rendering starts in a buffer sized by
// StackBufferSize and grows on demand.
func (f *Formatter) Format(level Level, message string, md *Metadata) ([]byte, error) {
	buf := make([]byte, 0, f.cfg.StackBufferSize)
	return f.appendFormat(buf, level, message, md)
}

func (f *Formatter) appendFormat(buf []byte, level Level, message string, md *Metadata) ([]byte, error) {
	prev := 0
	for _, ph := range f.placeholders {
		buf = append(buf, f.template[prev:ph.start]...)
		var err error
		buf, err = f.appendPlaceholder(buf, ph, level, message, md)
		if err != nil {
			return nil, err
		}
		prev = ph.end
	}
	buf = append(buf, f.template[prev:]...)
	return buf, nil
}

func (f *Formatter) appendPlaceholder(buf []byte, ph placeholder, level Level, message string, md *Metadata) ([]byte, error) {
	switch ph.kind {
	case phTimestamp:
		secs := time.Now().Unix()
		if md != nil {
			secs = md.Timestamp
		}
		return appendTimestamp(buf, secs, f.cfg.TimestampFormat, f.cfg.CustomTimestampLayout), nil
	case phLevel:
		return append(buf, f.cfg.LevelFormat.render(level)...), nil
	case phMessage:
		return append(buf, message...), nil
	case phThread:
		if md != nil {
			return strconv.AppendUint(buf, md.ThreadID, 10), nil
		}
		return buf, nil
	case phFile:
		if md != nil {
			return append(buf, md.File...), nil
		}
		return buf, nil
	case phLine:
		if md != nil {
			return strconv.AppendInt(buf, int64(md.Line), 10), nil
		}
		return buf, nil
	case phFunction:
		if md != nil {
			return append(buf, md.Function...), nil
		}
		return buf, nil
	case phColor:
		if f.cfg.UseColor {
			return append(buf, level.Color()...), nil
		}
		return buf, nil
	case phReset:
		if f.cfg.UseColor {
			return append(buf, ansiReset...), nil
		}
		return buf, nil
	case phComponent:
		if f.cfg.Component != "" {
			return append(buf, f.cfg.Component...), nil
		}
		return append(buf, '-'), nil
	case phCustom:
		fn := f.custom[ph.name]
		out, err := fn(level, message, md)
		if err != nil {
			return nil, fmt.Errorf("custom placeholder {%s}: %w", ph.name, err)
		}
		return append(buf, out...), nil
	default:
		return append(buf, f.contextField(ph.kind, md)...), nil
	}
}

// contextField resolves a context placeholder, with "-" standing in for an
// absent context or empty field.
func (f *Formatter) contextField(kind placeholderKind, md *Metadata) string {
	if md == nil || md.Context == nil {
		return "-"
	}
	ctx := md.Context
	var v string
	switch kind {
	case phRequestID:
		v = ctx.RequestID
	case phCorrelationID:
		v = ctx.CorrelationID
	case phTraceID:
		v = ctx.TraceID
	case phSpanID:
		v = ctx.SpanID
	case phUserID:
		v = ctx.UserID
	case phSessionID:
		v = ctx.SessionID
	case phOperation:
		v = ctx.Operation
	}
	if v == "" {
		return "-"
	}
	return v
}
