// Package config loads the hardware profile
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/james-see/coilmidi/pkg/midifile"
	"github.com/james-see/coilmidi/pkg/pwm"
	"github.com/james-see/coilmidi/pkg/tone"
)

// Profile describes the board the interrupter runs on
type Profile struct {
	ClockHz           uint32      `yaml:"clock_hz" json:"clock_hz"`
	Limits            tone.Limits `yaml:"limits" json:"limits"`
	Manual            Manual      `yaml:"manual" json:"manual"`
	MaxTrackBytes     int         `yaml:"max_track_bytes" json:"max_track_bytes"`
	MemoryBudgetBytes int64       `yaml:"memory_budget_bytes" json:"memory_budget_bytes"`
	PollIntervalMs    int         `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	Service           Service     `yaml:"service" json:"service"`
	Serial            Serial      `yaml:"serial" json:"serial"`
}

// Manual holds the per frequency index duty bounds
type Manual struct {
	MinDuty []float64 `yaml:"min_duty" json:"min_duty"`
	MaxDuty []float64 `yaml:"max_duty" json:"max_duty"`
}

// Service bounds how often the actuator services the mailbox
type Service struct {
	MinIntervalMs int `yaml:"min_interval_ms" json:"min_interval_ms"`
	MaxIntervalMs int `yaml:"max_interval_ms" json:"max_interval_ms"`
}

// Serial is the optional link to the board
type Serial struct {
	Port string `yaml:"port" json:"port"`
	Baud int    `yaml:"baud" json:"baud"`
}

// Default returns the profile of the reference board
func Default() *Profile {
	t := tone.DefaultManualTable()
	return &Profile{
		ClockHz: pwm.DefaultClockHz,
		Limits:  tone.DefaultLimits(),
		Manual: Manual{
			MinDuty: append([]float64(nil), t.MinDuty[:]...),
			MaxDuty: append([]float64(nil), t.MaxDuty[:]...),
		},
		MaxTrackBytes:     midifile.DefaultMaxTrackBytes,
		MemoryBudgetBytes: 256 << 10,
		PollIntervalMs:    10,
		Service:           Service{MinIntervalMs: 1, MaxIntervalMs: 50},
		Serial:            Serial{Baud: 115200},
	}
}

// Load reads the profile at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks every field
func (p *Profile) Validate() error {
	var errs []error
	if p.ClockHz == 0 {
		errs = append(errs, errors.New("clock_hz must be positive"))
	}
	if err := p.Limits.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("limits: %w", err))
	}
	if _, err := p.Manual.Table(); err != nil {
		errs = append(errs, err)
	}
	if p.MaxTrackBytes <= 0 {
		errs = append(errs, errors.New("max_track_bytes must be positive"))
	}
	if p.MemoryBudgetBytes < 0 {
		errs = append(errs, errors.New("memory_budget_bytes must not be negative"))
	}
	if p.PollIntervalMs <= 0 {
		errs = append(errs, errors.New("poll_interval_ms must be positive"))
	}
	if p.Service.MinIntervalMs <= 0 || p.Service.MinIntervalMs > p.Service.MaxIntervalMs {
		errs = append(errs, fmt.Errorf("service interval %d-%dms is invalid", p.Service.MinIntervalMs, p.Service.MaxIntervalMs))
	}
	if p.Serial.Port != "" && p.Serial.Baud <= 0 {
		errs = append(errs, errors.New("serial.baud must be positive"))
	}
	return errors.Join(errs...)
}

// Table converts the duty bounds to the mapper's table
func (m Manual) Table() (tone.ManualTable, error) {
	var t tone.ManualTable
	if len(m.MinDuty) != len(t.MinDuty) || len(m.MaxDuty) != len(t.MaxDuty) {
		return t, fmt.Errorf("manual duty tables need %d entries, got %d and %d", len(t.MinDuty), len(m.MinDuty), len(m.MaxDuty))
	}
	copy(t.MinDuty[:], m.MinDuty)
	copy(t.MaxDuty[:], m.MaxDuty)
	for i := range t.MinDuty {
		if t.MinDuty[i] > t.MaxDuty[i] {
			return t, fmt.Errorf("manual duty bounds at %dHz are inverted", tone.FrequencyTable[i])
		}
	}
	return t, nil
}

// PollInterval is PollIntervalMs as a duration
func (p *Profile) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// ServiceBounds returns the actuator's min and max service interval
func (p *Profile) ServiceBounds() (time.Duration, time.Duration) {
	return time.Duration(p.Service.MinIntervalMs) * time.Millisecond, time.Duration(p.Service.MaxIntervalMs) * time.Millisecond
}

// ManualTable is Manual.Table for a validated profile
func (p *Profile) ManualTable() tone.ManualTable {
	t, err := p.Manual.Table()
	if err != nil {
		return tone.DefaultManualTable()
	}
	return t
}
