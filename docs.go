// Package nexlog is an embeddable logging library built around a template
// formatter, pluggable sinks, and an optional asynchronous pipeline.
//
// A Logger gates records by level, renders them through a placeholder
// template compiled once at construction, and fans the bytes out to every
// registered handler. Console sinks color by level; file sinks stage bytes
// in a circular buffer and rotate the active file by size, time, or both,
// optionally gzip-compressing rotated backups. Records may carry named
// fields rendered as JSON, logfmt, or custom-delimited text, plus
// request-scoped identifiers propagated through context.Context.
//
// Basic usage:
//
//	logger, err := nexlog.New(nexlog.DefaultConfig())
//	if err != nil {
//		panic(err)
//	}
//	defer logger.Close()
//
//	logger.Infof("service started on port %d", 8080)
//	logger.LogStructured(nexlog.INFO, "request served", []nexlog.Field{
//		nexlog.F("status", 200),
//		nexlog.F("path", "/healthz"),
//	}, nil)
//
// NewAsyncLogger moves delivery onto a single background worker fed by a
// bounded queue; under sustained overload the queue drops its oldest
// undelivered entries rather than blocking producers. Configuration can be
// loaded from defaults, a YAML file, and NEXLOG_* environment variables via
// Load.
package nexlog
