package nexlog

import (
	"strings"
	"time"
)

// FormatStructured renders a record with named fields in the configured
// machine-readable format. The returned slice is a fresh allocation owned
// by the caller.
func (f *Formatter) FormatStructured(level Level, message string, fields []Field, md *Metadata) ([]byte, error) {
	buf := make([]byte, 0, f.cfg.StackBufferSize)
	switch f.cfg.StructuredFormat {
	case StructuredLogfmt:
		return f.appendKeyValues(buf, level, message, fields, md, " ", "="), nil
	case StructuredCustom:
		return f.appendKeyValues(buf, level, message, fields, md, f.cfg.FieldSeparator, f.cfg.KeyValueSeparator), nil
	default:
		return f.appendJSONRecord(buf, level, message, fields, md), nil
	}
}

func (f *Formatter) recordTimestamp(md *Metadata) int64 {
	if md != nil {
		return md.Timestamp
	}
	return time.Now().Unix()
}

// appendJSONRecord emits {"timestamp":..,"level":..,"msg":..,fields...} with
// attributes as "<field>_<key>" siblings directly after their parent.
func (f *Formatter) appendJSONRecord(buf []byte, level Level, message string, fields []Field, md *Metadata) []byte {
	buf = append(buf, '{')
	first := true

	appendKey := func(key string) {
		if !first {
			buf = append(buf, ',')
		}
		first = false
		buf = appendJSONString(buf, key)
		buf = append(buf, ':')
	}

	if f.cfg.IncludeTimestamp {
		appendKey("timestamp")
		buf = append(buf, '"')
		buf = appendTimestamp(buf, f.recordTimestamp(md), f.cfg.TimestampFormat, f.cfg.CustomTimestampLayout)
		buf = append(buf, '"')
	}
	if f.cfg.IncludeLevel {
		appendKey("level")
		buf = appendJSONString(buf, f.cfg.LevelFormat.render(level))
	}
	if f.cfg.IncludeMessage {
		appendKey("msg")
		buf = appendJSONString(buf, message)
	}

	for _, field := range fields {
		appendKey(field.Name)
		buf = field.Value.appendJSON(buf)
		for _, attrKey := range field.sortedAttributeKeys() {
			appendKey(field.Name + "_" + attrKey)
			buf = appendJSONString(buf, field.Attributes[attrKey])
		}
	}

	return append(buf, '}')
}

// appendKeyValues emits the logfmt-shaped rendering shared by the logfmt and
// custom formats; only the separators differ.
func (f *Formatter) appendKeyValues(buf []byte, level Level, message string, fields []Field, md *Metadata, sep, kvSep string) []byte {
	first := true

	appendPair := func(key, value string) {
		if !first {
			buf = append(buf, sep...)
		}
		first = false
		buf = append(buf, key...)
		buf = append(buf, kvSep...)
		buf = appendLogfmtValue(buf, value)
	}

	if f.cfg.IncludeTimestamp {
		ts := appendTimestamp(nil, f.recordTimestamp(md), f.cfg.TimestampFormat, f.cfg.CustomTimestampLayout)
		appendPair("timestamp", string(ts))
	}
	if f.cfg.IncludeLevel {
		appendPair("level", f.cfg.LevelFormat.render(level))
	}
	if f.cfg.IncludeMessage {
		appendPair("msg", message)
	}

	for _, field := range fields {
		appendPair(field.Name, field.Value.text())
		for _, attrKey := range field.sortedAttributeKeys() {
			appendPair(field.Name+"_"+attrKey, field.Attributes[attrKey])
		}
	}

	return buf
}

// appendLogfmtValue quotes values containing a space, quote, equals sign, or
// newline, escaping backslashes and interior quotes.
func appendLogfmtValue(buf []byte, value string) []byte {
	if !strings.ContainsAny(value, " \"=\n") {
		return append(buf, value...)
	}
	buf = append(buf, '"')
	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '"', '\\':
			buf = append(buf, '\\', c)
		case '\n':
			buf = append(buf, '\\', 'n')
		default:
			buf = append(buf, c)
		}
	}
	return append(buf, '"')
}
