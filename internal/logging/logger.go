package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	slog.SetDefault(New(os.Stdout, os.Getenv("ENVIRONMENT")))
}

// New builds a logger for the given environment name
func New(w io.Writer, environment string) *slog.Logger {
	var handler slog.Handler
	if strings.ToLower(environment) == "production" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// WithSession returns a logger with reading session fields attached.
// Use this for all logging within a collector's lifetime.
func WithSession(trackingID, sessionID string) *slog.Logger {
	return slog.With(
		"tracking_id", trackingID,
		"session_id", sessionID,
	)
}
