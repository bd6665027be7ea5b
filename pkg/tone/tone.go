// Package tone maps notes and manual control readings to a safe output
// frequency and duty cycle
package tone

import (
	"fmt"
	"math"
)

// ADCMax is the largest raw analog reading
const ADCMax = 4095

// FrequencyTable holds the manual-mode frequencies in ascending order
var FrequencyTable = [18]uint32{
	15, 20, 25, 30, 35, 40, 45, 50, 100, 200, 300, 400, 500, 600, 700, 800, 900, 1000,
}

// Limits bounds the mapper to what the coil tolerates
type Limits struct {
	LowestNote     uint8   `yaml:"lowest_note" json:"lowest_note"`
	HighestNote    uint8   `yaml:"highest_note" json:"highest_note"`
	MinPulseMicros float64 `yaml:"min_pulse_us" json:"min_pulse_us"`
	MaxPulseMicros float64 `yaml:"max_pulse_us" json:"max_pulse_us"`
	MinDutyPercent float64 `yaml:"min_duty_percent" json:"min_duty_percent"`
	MaxDutyPercent float64 `yaml:"max_duty_percent" json:"max_duty_percent"`
	MinFrequency   float64 `yaml:"min_frequency_hz" json:"min_frequency_hz"`
	MaxFrequency   float64 `yaml:"max_frequency_hz" json:"max_frequency_hz"`
}

// DefaultLimits keeps notes within C1-B5 (32.7 Hz to 987.8 Hz)
func DefaultLimits() Limits {
	return Limits{
		LowestNote:     24,
		HighestNote:    83,
		MinPulseMicros: 5,
		MaxPulseMicros: 50,
		MinDutyPercent: 0.05,
		MaxDutyPercent: 5,
		MinFrequency:   15,
		MaxFrequency:   1000,
	}
}

// Validate checks that the limits are ordered and positive
func (l Limits) Validate() error {
	switch {
	case l.LowestNote > l.HighestNote || l.HighestNote > 127:
		return fmt.Errorf("note band %d-%d is invalid", l.LowestNote, l.HighestNote)
	case l.MinPulseMicros <= 0 || l.MinPulseMicros > l.MaxPulseMicros:
		return fmt.Errorf("pulse width %.2f-%.2fus is invalid", l.MinPulseMicros, l.MaxPulseMicros)
	case l.MinDutyPercent <= 0 || l.MinDutyPercent > l.MaxDutyPercent || l.MaxDutyPercent > 100:
		return fmt.Errorf("duty range %.2f-%.2f%% is invalid", l.MinDutyPercent, l.MaxDutyPercent)
	case l.MinFrequency <= 0 || l.MinFrequency > l.MaxFrequency:
		return fmt.Errorf("frequency range %.1f-%.1fHz is invalid", l.MinFrequency, l.MaxFrequency)
	}
	return nil
}

// Output is a mapped (frequency, duty) pair
type Output struct {
	Frequency   float64 `json:"frequency_hz"`
	DutyPercent float64 `json:"duty_percent"`
	PulseMicros float64 `json:"pulse_us"`
	// Clamped is set when DutyPercent was pulled into the safe range
	Clamped bool `json:"clamped"`
	// OK is false when the output must be silenced instead
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func (o Output) String() string {
	if !o.OK {
		return "silent (" + o.Reason + ")"
	}
	s := fmt.Sprintf("%.2fHz %.3f%%", o.Frequency, o.DutyPercent)
	if o.Clamped {
		s += " (clamped)"
	}
	return s
}

// NoteFrequency returns the equal-tempered frequency of note with A4 = 440 Hz
func NoteFrequency(note uint8) float64 {
	return 440 * math.Pow(2, (float64(note)-69)/12)
}

// DutyPercent converts a pulse width at frequency into a duty cycle percentage
func DutyPercent(pulseMicros, frequency float64) float64 {
	return (pulseMicros / 1e6) / (1 / frequency) * 100
}

// FromNote maps a note and velocity
func (l Limits) FromNote(note, velocity uint8) Output {
	if note < l.LowestNote || note > l.HighestNote {
		return Output{Reason: fmt.Sprintf("note %d outside %d-%d", note, l.LowestNote, l.HighestNote)}
	}
	if velocity > 127 {
		return Output{Reason: fmt.Sprintf("velocity %d", velocity)}
	}

	pulse := l.MinPulseMicros + (l.MaxPulseMicros-l.MinPulseMicros)*float64(velocity)/127
	return l.finish(NoteFrequency(note), pulse, l.MinDutyPercent, l.MaxDutyPercent)
}

// ManualTable compensates the offset the fiber link adds, per frequency index
type ManualTable struct {
	MinDuty [18]float64 `yaml:"min_duty" json:"min_duty"`
	MaxDuty [18]float64 `yaml:"max_duty" json:"max_duty"`
}

// DefaultManualTable holds the duty bounds measured across the fiber link
func DefaultManualTable() ManualTable {
	return ManualTable{
		MinDuty: [18]float64{0.05, 0.05, 0.15, 0.15, 0.15, 0.15, 0.15, 0.2, 0.2, 0.45, 0.8, 0.8, 0.8, 0.8, 0.8, 0.8, 0.8, 0.8},
		MaxDuty: [18]float64{5, 5, 5, 5, 5, 5, 5, 5, 4.94, 4.83, 4.71, 4.58, 4.44, 4.28, 4.12, 3.94, 3.76, 3.76},
	}
}

// Scale maps v linearly from [inLo, inHi] to [outLo, outHi] with integer math
func Scale(v, inLo, inHi, outLo, outHi int) int {
	return outLo + (v-inLo)*(outHi-outLo)/(inHi-inLo)
}

// FrequencyIndex maps a raw reading to an index into FrequencyTable
func FrequencyIndex(raw uint16) int {
	if raw > ADCMax {
		raw = ADCMax
	}
	return Scale(int(raw), 0, ADCMax, 0, len(FrequencyTable)-1)
}

// FromManual maps the frequency and duty potentiometer readings
func (l Limits) FromManual(t ManualTable, rawFrequency, rawDuty uint16) Output {
	if rawDuty > ADCMax {
		rawDuty = ADCMax
	}
	idx := FrequencyIndex(rawFrequency)
	pulse := l.MinPulseMicros + (l.MaxPulseMicros-l.MinPulseMicros)*float64(rawDuty)/ADCMax

	lo := math.Max(l.MinDutyPercent, t.MinDuty[idx])
	hi := math.Min(l.MaxDutyPercent, t.MaxDuty[idx])
	if hi < lo {
		hi = lo
	}
	return l.finish(float64(FrequencyTable[idx]), pulse, lo, hi)
}

func (l Limits) finish(freq, pulse, lo, hi float64) Output {
	out := Output{Frequency: freq, PulseMicros: pulse}
	if freq < l.MinFrequency || freq > l.MaxFrequency {
		out.Reason = fmt.Sprintf("frequency %.2fHz outside %.0f-%.0fHz", freq, l.MinFrequency, l.MaxFrequency)
		return out
	}

	duty := DutyPercent(pulse, freq)
	switch {
	case duty < lo:
		duty, out.Clamped = lo, true
	case duty > hi:
		duty, out.Clamped = hi, true
	}
	out.DutyPercent = duty
	out.OK = true
	return out
}
