package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/james-see/coilmidi/pkg/tone"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	p := Default()
	if err := p.Validate(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}
	if p.ManualTable() != tone.DefaultManualTable() {
		t.Error("manual table differs from the mapper default")
	}
	if p.PollInterval() != 10*time.Millisecond {
		t.Errorf("poll interval = %v", p.PollInterval())
	}
	lo, hi := p.ServiceBounds()
	if lo != time.Millisecond || hi != 50*time.Millisecond {
		t.Errorf("service bounds = %v-%v", lo, hi)
	}
}

func TestLoad(t *testing.T) {
	path := writeProfile(t, `
clock_hz: 133000000
limits:
  highest_note: 72
  max_duty_percent: 4
poll_interval_ms: 5
serial:
  port: /dev/ttyACM0
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.ClockHz != 133000000 || p.PollIntervalMs != 5 {
		t.Errorf("overrides not applied: %+v", p)
	}
	if p.Limits.HighestNote != 72 || p.Limits.MaxDutyPercent != 4 {
		t.Errorf("limits = %+v", p.Limits)
	}
	if p.Limits.LowestNote != 24 || p.Limits.MinPulseMicros != 5 {
		t.Errorf("unset limits should keep defaults: %+v", p.Limits)
	}
	if p.Serial.Port != "/dev/ttyACM0" || p.Serial.Baud != 115200 {
		t.Errorf("serial = %+v", p.Serial)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	p, err := Load("")
	if err != nil || p.ClockHz != Default().ClockHz {
		t.Errorf("Load(\"\") = %+v, %v", p, err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "clock_hz: [", "parse"},
		{"zero clock", "clock_hz: 0", "clock_hz"},
		{"inverted band", "limits:\n  lowest_note: 90", "note band"},
		{"short manual table", "manual:\n  min_duty: [0.1]", "18 entries"},
		{"inverted service", "service:\n  min_interval_ms: 80", "service interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeProfile(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
