package slogutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("chunk stored", "project", "/tmp/demo", "count", 7)

	out := buf.String()
	for _, want := range []string{"[info]", "chunk stored", "project=/tmp/demo", "count=7", " | "} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestHandlerLevels(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(*slog.Logger)
		want    string
	}{
		{"debug", func(l *slog.Logger) { l.Debug("d") }, "[debug]"},
		{"info", func(l *slog.Logger) { l.Info("i") }, "[info]"},
		{"warn", func(l *slog.Logger) { l.Warn("w") }, "[warn]"},
		{"error", func(l *slog.Logger) { l.Error("e") }, "[error]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, slog.LevelDebug)
			tt.logFunc(logger)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %s in output, got: %s", tt.want, buf.String())
			}
		})
	}
}

func TestHandlerMinLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be suppressed at warn level: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn message should be emitted: %s", out)
	}
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).With("component", "storage")

	logger.Info("opened")

	if !strings.Contains(buf.String(), "component=storage") {
		t.Errorf("expected pre-applied attr in output, got: %s", buf.String())
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
