// Package logging configures the daemon's structured JSON output. One call
// to Setup fixes the process-wide default logger; the returned logger is the
// root every component derives from.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configured level name onto a slog level. Unknown or
// empty names fall back to info so a typo in the config never silences the
// daemon.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

// Setup builds the JSON root logger for the daemon, tags every line with the
// service name and environment, and installs it as both the slog default and
// the destination of the standard library logger.
func Setup(service, env, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: renameCoreKeys,
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	root := slog.New(handler).With(args...)
	slog.SetDefault(root)

	// Anything still writing through the standard logger lands in the same
	// JSON stream at info level.
	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return root
}

// renameCoreKeys aligns slog's built-in keys with the field names the
// daemon's log pipeline indexes on.
func renameCoreKeys(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}
