package nexlog

import (
	"strconv"
	"time"
)

// TimestampFormat selects how the {timestamp} placeholder is rendered.
type TimestampFormat int

const (
	TimestampUnix TimestampFormat = iota
	TimestampISO8601
	TimestampCustom
)

const iso8601Layout = "2006-01-02T15:04:05Z"

// appendTimestamp renders secs according to the configured format. The
// ISO-8601 and custom-layout formats clamp negative timestamps to the epoch
// so the output is always a valid instant; the unix format prints secs as
// given.
func appendTimestamp(dst []byte, secs int64, format TimestampFormat, customLayout string) []byte {
	switch format {
	case TimestampISO8601:
		if secs < 0 {
			secs = 0
		}
		return time.Unix(secs, 0).UTC().AppendFormat(dst, iso8601Layout)
	case TimestampCustom:
		layout := customLayout
		if layout == "" {
			layout = iso8601Layout
		}
		if secs < 0 {
			secs = 0
		}
		return time.Unix(secs, 0).UTC().AppendFormat(dst, layout)
	default:
		return strconv.AppendInt(dst, secs, 10)
	}
}

// FormatISO8601 renders a unix timestamp as YYYY-MM-DDTHH:MM:SSZ.
func FormatISO8601(secs int64) string {
	return string(appendTimestamp(nil, secs, TimestampISO8601, ""))
}
