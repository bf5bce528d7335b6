package observe

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	loggerOnce sync.Once
	logLevel   slog.LevelVar
)

// InitLogger installs a text slog handler writing to w (stderr when nil) at
// the given level as the process default. Only the first call has any effect;
// later calls return without touching the installed logger. It reports whether
// this call performed the installation.
func InitLogger(w io.Writer, level string) bool {
	installed := false
	loggerOnce.Do(func() {
		if w == nil {
			w = os.Stderr
		}
		logLevel.Set(ParseLevel(level))
		slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &logLevel})))
		installed = true
	})
	return installed
}

// SetLogLevel changes the level of the logger installed by [InitLogger]. It
// may be called at any time, including before InitLogger.
func SetLogLevel(level string) {
	logLevel.Set(ParseLevel(level))
}

// ParseLevel maps "debug", "info", "warn" and "error" (case-insensitive) to
// slog levels. Anything else yields info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
