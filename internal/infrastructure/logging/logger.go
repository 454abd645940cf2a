package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/museum-robotics/tourguide-core/internal/infrastructure/config"
)

// ServiceName is attached to every log entry as the "service" field.
const ServiceName = "tourguide"

// Logger is a slog.Logger carrying the service and version fields.
//
// It satisfies the narrow Logger interfaces declared by the robot bridge,
// the rosbridge transport and the MQTT client. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing to stdout or stderr as cfg.Output selects.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, outputFor(cfg.Output))
}

// NewWithWriter is New with an explicit destination. cfg.Output is ignored.
// The CLI uses it to keep stdout free for command output.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	handler := handlerFor(cfg.Format, output, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// handlerFor returns a text handler for "text" and JSON for anything else.
func handlerFor(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel accepts slog's level names plus "warning". Unknown values
// fall back to info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if level == "" || l.UnmarshalText([]byte(level)) != nil {
		return slog.LevelInfo
	}
	return l
}

// With returns a child Logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags every entry with the emitting component.
//
//	log.Component("reconnect").Warn("attempt failed", "attempt", n)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}
