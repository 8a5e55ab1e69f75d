package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"  Error  ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.input); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestSetupInstallsDefault(t *testing.T) {
	logger := Setup("escrowd-test", "test", "warn")
	if logger == nil {
		t.Fatalf("Setup returned nil logger")
	}
	if slog.Default() != logger {
		t.Fatalf("Setup must install the returned logger as the default")
	}
	if logger.Enabled(nil, slog.LevelInfo) {
		t.Fatalf("info must be disabled at warn level")
	}
	if !logger.Enabled(nil, slog.LevelWarn) {
		t.Fatalf("warn must be enabled at warn level")
	}
}
