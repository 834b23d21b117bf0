package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// levelEnv selects the minimum level emitted by the daemon and tools.
// Recognised values: debug, info, warn, error.
const levelEnv = "GIG_LOG_LEVEL"

// Setup installs a JSON handler as the process-wide default logger and
// returns it. Every line carries the service name, plus the deployment
// environment when one is configured, so the marketplace's log pipeline can
// split gigd output from the CLI tools.
func Setup(service, env string) *slog.Logger {
	return setupWithWriter(os.Stdout, service, env, levelFromEnv())
}

func setupWithWriter(w io.Writer, service, env string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "timestamp"
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	base := slog.New(handler.WithAttrs(attrs))
	slog.SetDefault(base)

	// Route the standard library logger through the same handler so stray
	// log.Printf output from dependencies stays machine-parseable.
	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(levelEnv))) {
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
