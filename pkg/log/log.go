package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default slog logger. Format is "text" or "json".
func Setup(logLevel string, format ...string) {
	slog.SetDefault(New(os.Stderr, logLevel, format...))
}

func New(w io.Writer, logLevel string, format ...string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(logLevel)}

	if len(format) > 0 && strings.EqualFold(format[0], "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
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

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
