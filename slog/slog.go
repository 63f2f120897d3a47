// Package slog provides structured logging for the VelesDB client and its tools.
// It wraps Go's [log/slog] adding configuration from the environment, output formats
// and loggers carried on contexts.
package slog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
)

type (
	// Handler is the [log/slog] handler type.
	Handler = slog.Handler

	// HandlerOptions configure the handlers built by [NewHandler].
	HandlerOptions = slog.HandlerOptions

	// Level is the severity of a record.
	Level = slog.Level

	// Logger is a [log/slog] logger whose derived loggers keep this package's type.
	Logger struct {
		*slog.Logger
	}

	// Format selects how records are written.
	Format string

	// Config is the logging setup of a program, see [LoadConfig] and [Configure].
	Config struct {
		Level  Level
		Format Format
		// Output defaults to [os.Stderr].
		Output io.Writer
	}
)

// Levels.
const (
	LevelDebug   Level = slog.LevelDebug
	LevelInfo    Level = slog.LevelInfo
	LevelWarn    Level = slog.LevelWarn
	LevelError   Level = slog.LevelError
	LevelDisable Level = math.MaxInt
)

// Formats. [FormatGcloud] is JSON using the field names of Google Cloud Logging.
const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatGcloud Format = "gcloud"
)

// Defaults used when the environment sets nothing.
const (
	DefaultLevel  = LevelInfo
	DefaultFormat = FormatText
)

var levels = map[string]Level{
	"":        LevelInfo,
	"info":    LevelInfo,
	"debug":   LevelDebug,
	"warn":    LevelWarn,
	"error":   LevelError,
	"disable": LevelDisable,
}

// Cloud Logging names, see https://cloud.google.com/logging/docs/reference/v2/rest/v2/LogEntry#HttpRequest
var (
	gcloudKeys = map[string]string{
		slog.LevelKey:   "severity",
		slog.MessageKey: "message",
	}
	gcloudHTTPRequestKeys = map[string]string{
		"method":      "requestMethod",
		"url":         "requestUrl",
		"status_code": "status",
		"user_agent":  "userAgent",
		"elapsed":     "latency",
	}
)

// With returns a Logger that includes args in every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// LoadConfig reads <prefix>_LOG_LEVEL and <prefix>_LOG_FMT.
// Levels are debug, info, warn, error and disable; formats are text, json and gcloud.
// Unset variables get the defaults, invalid ones are all reported in the returned error.
func LoadConfig(prefix string) (Config, error) {
	level, levelErr := ParseLevel(os.Getenv(prefix + "_LOG_LEVEL"))
	format, fmtErr := ParseFormat(os.Getenv(prefix + "_LOG_FMT"))
	if err := errors.Join(levelErr, fmtErr); err != nil {
		return Config{}, fmt.Errorf("slog: loading %s config: %w", prefix, err)
	}
	return Config{Level: level, Format: format}, nil
}

// New creates a Logger writing to h, which must not be nil.
func New(h Handler) *Logger {
	return &Logger{slog.New(h)}
}

// NewHandler creates a [Handler] writing records in the given format to w.
func NewHandler(w io.Writer, format Format, opts *HandlerOptions) (Handler, error) {
	switch format {
	case FormatText:
		return slog.NewTextHandler(w, opts), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), nil
	case FormatGcloud:
		return NewGoogleCloudHandler(w, opts), nil
	}
	return nil, fmt.Errorf("slog: unknown format %q", format)
}

// NewGoogleCloudHandler creates a JSON handler using the structured payload names of Google
// Cloud Logging. An "http_request" attribute holding a map becomes Cloud Logging's httpRequest.
func NewGoogleCloudHandler(w io.Writer, opts *HandlerOptions) *slog.JSONHandler {
	var gopts HandlerOptions
	if opts != nil {
		gopts = *opts
	}
	gopts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		if key, ok := gcloudKeys[a.Key]; ok {
			a.Key = key
			return a
		}
		if a.Key == "http_request" {
			return gcloudHTTPRequest(a)
		}
		return a
	}
	return slog.NewJSONHandler(w, &gopts)
}

func gcloudHTTPRequest(a slog.Attr) slog.Attr {
	fields, ok := a.Value.Any().(map[string]any)
	if !ok {
		return a
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		if renamed, ok := gcloudHTTPRequestKeys[k]; ok {
			k = renamed
		}
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.Attr{Key: "httpRequest", Value: slog.GroupValue(attrs...)}
}

// Configure replaces the default logger. Call it early in main.
func Configure(cfg Config) error {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	h, err := NewHandler(out, cfg.Format, &HandlerOptions{Level: cfg.Level})
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// Debug logs at [LevelDebug] on the default logger.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs at [LevelInfo] on the default logger.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Fatal logs at [LevelError] on the default logger and exits with status 1.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// Default returns the default [Logger].
func Default() *Logger {
	return &Logger{slog.Default()}
}

type ctxKey struct{}

// FromCtx returns the [Logger] stored by [NewContext], or the default one.
func FromCtx(ctx context.Context) *Logger {
	if log, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return log
	}
	return Default()
}

// NewContext returns a copy of ctx carrying log.
func NewContext(ctx context.Context, log *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// ParseLevel parses a level name, case insensitive. Empty means [LevelInfo].
func ParseLevel(level string) (Level, error) {
	l, ok := levels[strings.ToLower(level)]
	if !ok {
		return 0, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

// ParseFormat parses a format name, case insensitive. Empty means [DefaultFormat].
func ParseFormat(format string) (Format, error) {
	switch f := Format(strings.ToLower(format)); f {
	case "":
		return DefaultFormat, nil
	case FormatText, FormatJSON, FormatGcloud:
		return f, nil
	}
	return "", fmt.Errorf("invalid log format %q", format)
}
