package main

import (
	"log/slog"
	"testing"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"WARN", slog.LevelWarn, true},
		{"loud", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := initLogger(tt.level, false)
			if (err == nil) != tt.ok {
				t.Fatalf("initLogger(%q) error = %v", tt.level, err)
			}
			if tt.ok && !logger.Enabled(t.Context(), tt.want) {
				t.Errorf("level %v not enabled", tt.want)
			}
		})
	}
}

func TestParseUint(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want int
		ok   bool
	}{
		{"69", 255, 69, true},
		{"0", 4095, 0, true},
		{"4096", 4095, 0, false},
		{"-1", 255, 0, false},
		{"abc", 255, 0, false},
	}

	for _, tt := range tests {
		got, err := parseUint(tt.in, tt.max)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseUint(%q, %d) = %d, %v", tt.in, tt.max, got, err)
		}
	}
}
