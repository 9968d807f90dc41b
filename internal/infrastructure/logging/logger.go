package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/unify-home/unify-core/internal/infrastructure/config"
)

// serviceName rides on every log line so aggregated logs from a whole
// smart-home stack can be split by origin.
const serviceName = "unify"

// Logger is the process-wide structured logger, a thin wrapper over
// slog. Core packages accept it through their own small Logger
// interfaces; this type satisfies all of them.
type Logger struct {
	*slog.Logger
}

// New builds the logger described by the config section: level
// filtering, JSON or text lines, stdout or stderr.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWriter(cfg, version, destination(cfg.Output))
}

// NewWriter is New with an explicit destination. Tests capture output
// through it; production callers normally go through New.
func NewWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	l := slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)
	return &Logger{Logger: l}
}

// Default returns a stdout JSON logger at info level, for the window
// between process start and config load.
func Default() *Logger {
	return New(config.LoggingConfig{}, "dev")
}

// With returns a child logger carrying extra default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component scopes a child logger to one subsystem, so a registry line
// and an adapter line are distinguishable at a glance:
//
//	zigbee := log.Component("zigbee")
//	zigbee.Info("bridge online") // component=zigbee
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// destination resolves the configured output name. Unknown names fall
// back to stdout rather than failing startup over a typo.
func destination(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}

// parseLevel maps the configured level name onto slog's scale,
// defaulting to info for anything unrecognised.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
