package observe

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// InitLogger is process-wide, so every assertion about it and SetLogLevel
// lives in this one test.
func TestInitLogger_OnlyFirstCallInstalls(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var first, second bytes.Buffer
	if !InitLogger(&first, "warn") {
		t.Fatal("first InitLogger call did not install")
	}
	if InitLogger(&second, "debug") {
		t.Error("second InitLogger call reported an installation")
	}

	slog.Info("dropped")
	slog.Warn("kept")

	if second.Len() != 0 {
		t.Errorf("second writer received output: %q", second.String())
	}
	out := first.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info record logged at warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn record missing: %q", out)
	}

	SetLogLevel("debug")
	t.Cleanup(func() { SetLogLevel("info") })
	slog.Debug("now visible")
	if !strings.Contains(first.String(), "now visible") {
		t.Errorf("debug record missing after SetLogLevel: %q", first.String())
	}
}
