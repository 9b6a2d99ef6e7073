package logging

import (
	"io"
	"log/slog"
)

// SetupJSON sets slog's default logger to write JSON to w at the given level
// and returns it.
func SetupJSON(w io.Writer, level slog.Level, attrs ...any) *slog.Logger {
	logger := slog.New(
		slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}),
	).With(attrs...)
	slog.SetDefault(logger)

	return logger
}
