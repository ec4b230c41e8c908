package nexlog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable holding the path of an
// optional YAML config file.
const ConfigPathEnvVar = "NEXLOG_CONFIG"

// Config collects every tunable of a logger. The zero value is not usable;
// start from DefaultConfig or Load.
type Config struct {
	MinLevel       Level
	EnableMetadata bool

	// Template overrides the console template; empty selects the default.
	Template        string
	TimestampFormat TimestampFormat
	// CustomTimestampLayout is the time layout used when TimestampFormat
	// is TimestampCustom.
	CustomTimestampLayout string
	LevelFormat           LevelFormat
	EnableColors          bool
	Component             string
	StructuredFormat      StructuredFormat
	FieldSeparator        string
	KeyValueSeparator     string

	EnableConsole bool
	ConsoleStderr bool
	// FastConsole makes the console sink bypass its formatter and emit
	// "[unix] message" lines for records it formats itself, as the async
	// logger's worker does. The synchronous Logger hands console sinks
	// lines already rendered by its console formatter, so there it has no
	// effect.
	FastConsole bool

	EnableFileLogging bool
	FilePath          string
	BufferSize        datasize.ByteSize
	FlushInterval     time.Duration
	RotationMode      RotationMode
	MaxFileSize       datasize.ByteSize
	MaxRotatedFiles   int
	RotationInterval  time.Duration
	CompressBackups   bool

	// QueueCapacity bounds the async queue when the logger is wrapped by
	// NewAsyncLogger.
	QueueCapacity int

	// MaxLogRate caps records admitted per second; zero disables the cap.
	MaxLogRate int

	MaxRetries int
	RetryDelay time.Duration

	ErrorHandler ErrorHandler
}

// DefaultConfig returns the configuration used when nothing is overridden:
// console-only INFO logging with colors and call-site metadata.
func DefaultConfig() Config {
	return Config{
		MinLevel:          INFO,
		EnableMetadata:    true,
		TimestampFormat:   TimestampUnix,
		LevelFormat:       LevelUpper,
		EnableColors:      true,
		StructuredFormat:  StructuredJSON,
		FieldSeparator:    " | ",
		KeyValueSeparator: "=",
		EnableConsole:     true,
		FilePath:          "app.log",
		BufferSize:        4 * datasize.KB,
		FlushInterval:     5 * time.Second,
		RotationMode:      RotateSize,
		MaxFileSize:       10 * datasize.MB,
		MaxRotatedFiles:   5,
		QueueCapacity:     10000,
		MaxRetries:        0,
		RetryDelay:        100 * time.Millisecond,
	}
}

// Validate rejects configurations the constructors cannot honor.
func (c Config) Validate() error {
	if c.MinLevel < TRACE || c.MinLevel > CRITICAL {
		return fmt.Errorf("invalid minimum level %d", c.MinLevel)
	}
	if c.EnableFileLogging && c.FilePath == "" {
		return fmt.Errorf("file logging enabled without a file path")
	}
	if c.EnableFileLogging && c.MaxRotatedFiles < 0 {
		return fmt.Errorf("negative rotated file count %d", c.MaxRotatedFiles)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("negative queue capacity %d", c.QueueCapacity)
	}
	if c.MaxLogRate < 0 {
		return fmt.Errorf("negative log rate %d", c.MaxLogRate)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("negative retry count %d", c.MaxRetries)
	}
	if c.TimestampFormat == TimestampCustom && c.CustomTimestampLayout == "" {
		return fmt.Errorf("custom timestamp format without a layout")
	}
	return nil
}

// formatterConfig projects the formatter-facing settings.
func (c Config) formatterConfig() FormatterConfig {
	fc := DefaultFormatterConfig()
	if c.Template != "" {
		fc.Template = c.Template
	}
	fc.TimestampFormat = c.TimestampFormat
	fc.CustomTimestampLayout = c.CustomTimestampLayout
	fc.LevelFormat = c.LevelFormat
	fc.UseColor = c.EnableColors
	fc.Component = c.Component
	fc.StructuredFormat = c.StructuredFormat
	if c.FieldSeparator != "" {
		fc.FieldSeparator = c.FieldSeparator
	}
	if c.KeyValueSeparator != "" {
		fc.KeyValueSeparator = c.KeyValueSeparator
	}
	return fc
}

// fileConfig is the koanf-facing shape of Config. Levels, formats, and byte
// sizes arrive as strings and are converted after unmarshaling.
type fileConfig struct {
	Level          string `koanf:"level"`
	Metadata       bool   `koanf:"metadata"`
	Template       string `koanf:"template"`
	Timestamps     string `koanf:"timestamps"`
	TimestampStyle string `koanf:"timestamp_layout"`
	Colors         bool   `koanf:"colors"`
	Component      string `koanf:"component"`
	Format         string `koanf:"format"`

	Console       bool `koanf:"console"`
	ConsoleStderr bool `koanf:"console_stderr"`
	FastConsole   bool `koanf:"fast_console"`

	File             bool   `koanf:"file"`
	FilePath         string `koanf:"file_path"`
	BufferSize       string `koanf:"buffer_size"`
	FlushInterval    string `koanf:"flush_interval"`
	Rotation         string `koanf:"rotation"`
	MaxFileSize      string `koanf:"max_file_size"`
	MaxRotatedFiles  int    `koanf:"max_rotated_files"`
	RotationInterval string `koanf:"rotation_interval"`
	Compress         bool   `koanf:"compress"`

	QueueCapacity int `koanf:"queue_capacity"`
	MaxLogRate    int `koanf:"max_log_rate"`
	MaxRetries    int `koanf:"max_retries"`
	RetryDelay    string `koanf:"retry_delay"`
}

func defaultFileConfig() fileConfig {
	d := DefaultConfig()
	return fileConfig{
		Level:           strings.ToLower(d.MinLevel.String()),
		Metadata:        d.EnableMetadata,
		Timestamps:      "unix",
		Colors:          d.EnableColors,
		Format:          "json",
		Console:         d.EnableConsole,
		File:            d.EnableFileLogging,
		FilePath:        d.FilePath,
		BufferSize:      d.BufferSize.String(),
		FlushInterval:   d.FlushInterval.String(),
		Rotation:        "size",
		MaxFileSize:     d.MaxFileSize.String(),
		MaxRotatedFiles: d.MaxRotatedFiles,
		QueueCapacity:   d.QueueCapacity,
		MaxRetries:      d.MaxRetries,
		RetryDelay:      d.RetryDelay.String(),
	}
}

// envKeyMap routes the supported NEXLOG_* environment variables to their
// config paths. Unlisted variables are ignored rather than merged.
var envKeyMap = map[string]string{
	"nexlog_level":             "level",
	"nexlog_metadata":          "metadata",
	"nexlog_template":          "template",
	"nexlog_timestamps":        "timestamps",
	"nexlog_timestamp_layout":  "timestamp_layout",
	"nexlog_color":             "colors",
	"nexlog_component":         "component",
	"nexlog_format":            "format",
	"nexlog_console":           "console",
	"nexlog_console_stderr":    "console_stderr",
	"nexlog_fast_console":      "fast_console",
	"nexlog_file_enabled":      "file",
	"nexlog_file":              "file_path",
	"nexlog_buffer_size":       "buffer_size",
	"nexlog_flush_interval":    "flush_interval",
	"nexlog_rotation":          "rotation",
	"nexlog_max_file_size":     "max_file_size",
	"nexlog_max_rotated_files": "max_rotated_files",
	"nexlog_rotation_interval": "rotation_interval",
	"nexlog_compress":          "compress",
	"nexlog_queue_capacity":    "queue_capacity",
	"nexlog_max_log_rate":      "max_log_rate",
}

// Load builds a Config from layered sources: built-in defaults, then the
// optional YAML file named by NEXLOG_CONFIG, then NEXLOG_* environment
// variables, highest last.
func Load() (Config, error) {
	k := koanf.New(".")

	defaults := defaultFileConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("NEXLOG_", ".", func(key string) string {
		if mapped, ok := envKeyMap[strings.ToLower(key)]; ok {
			return mapped
		}
		return ""
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	var fc fileConfig
	if err := k.Unmarshal("", &fc); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return fc.toConfig()
}

// toConfig converts the loaded string fields into their typed forms.
func (fc fileConfig) toConfig() (Config, error) {
	cfg := DefaultConfig()

	level, err := ParseLevel(fc.Level)
	if err != nil {
		return Config{}, err
	}
	cfg.MinLevel = level
	cfg.EnableMetadata = fc.Metadata
	cfg.Template = fc.Template
	cfg.CustomTimestampLayout = fc.TimestampStyle
	cfg.EnableColors = fc.Colors
	cfg.Component = fc.Component
	cfg.EnableConsole = fc.Console
	cfg.ConsoleStderr = fc.ConsoleStderr
	cfg.FastConsole = fc.FastConsole
	cfg.EnableFileLogging = fc.File
	cfg.FilePath = fc.FilePath
	cfg.MaxRotatedFiles = fc.MaxRotatedFiles
	cfg.CompressBackups = fc.Compress
	cfg.QueueCapacity = fc.QueueCapacity
	cfg.MaxLogRate = fc.MaxLogRate
	cfg.MaxRetries = fc.MaxRetries

	switch strings.ToLower(fc.Timestamps) {
	case "", "unix":
		cfg.TimestampFormat = TimestampUnix
	case "iso8601", "iso":
		cfg.TimestampFormat = TimestampISO8601
	case "custom":
		cfg.TimestampFormat = TimestampCustom
	default:
		return Config{}, fmt.Errorf("unknown timestamp format %q", fc.Timestamps)
	}

	switch strings.ToLower(fc.Format) {
	case "", "json":
		cfg.StructuredFormat = StructuredJSON
	case "logfmt":
		cfg.StructuredFormat = StructuredLogfmt
	case "custom":
		cfg.StructuredFormat = StructuredCustom
	default:
		return Config{}, fmt.Errorf("unknown structured format %q", fc.Format)
	}

	switch strings.ToLower(fc.Rotation) {
	case "", "size":
		cfg.RotationMode = RotateSize
	case "time":
		cfg.RotationMode = RotateTime
	case "both":
		cfg.RotationMode = RotateBoth
	default:
		return Config{}, fmt.Errorf("unknown rotation mode %q", fc.Rotation)
	}

	if fc.BufferSize != "" {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(fc.BufferSize)); err != nil {
			return Config{}, fmt.Errorf("invalid buffer size %q: %w", fc.BufferSize, err)
		}
		cfg.BufferSize = size
	}
	if fc.MaxFileSize != "" {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(fc.MaxFileSize)); err != nil {
			return Config{}, fmt.Errorf("invalid max file size %q: %w", fc.MaxFileSize, err)
		}
		cfg.MaxFileSize = size
	}
	for _, d := range []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{fc.FlushInterval, &cfg.FlushInterval, "flush interval"},
		{fc.RotationInterval, &cfg.RotationInterval, "rotation interval"},
		{fc.RetryDelay, &cfg.RetryDelay, "retry delay"},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = parsed
	}

	return cfg, cfg.Validate()
}
