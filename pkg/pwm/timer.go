// Package pwm programs the interrupter output from transmitter requests
package pwm

import (
	"errors"
	"fmt"
	"math"
)

// DefaultClockHz is the system clock feeding the PWM slices
const DefaultClockHz = 125_000_000

const (
	maxDiv16 = 0xFFF // 8.4 fixed point divider, 255 + 15/16
	maxWrap  = 0xFFFF
)

// ErrFrequencyOutOfRange is returned when no divider/wrap pair can produce the frequency
var ErrFrequencyOutOfRange = errors.New("frequency out of range")

// TimerParams are the register values for one PWM slice
type TimerParams struct {
	ClockHz uint32 `json:"clock_hz"`
	Div16   uint32 `json:"div16"` // clock divider in 1/16 steps
	Wrap    uint32 `json:"wrap"`  // counter top, period is Wrap+1 ticks
	Level   uint32 `json:"level"` // compare level, output high while counter < Level
}

// DividerInt is the integer part of the clock divider
func (p TimerParams) DividerInt() uint32 { return p.Div16 / 16 }

// DividerFrac is the 4-bit fractional part of the clock divider
func (p TimerParams) DividerFrac() uint32 { return p.Div16 & 0xF }

// Frequency is the output frequency the registers actually produce
func (p TimerParams) Frequency() float64 {
	if p.Div16 == 0 {
		return 0
	}
	return float64(p.ClockHz) * 16 / float64(p.Div16) / float64(p.Wrap+1)
}

// DutyPercent is the duty cycle the registers actually produce
func (p TimerParams) DutyPercent() float64 {
	return float64(p.Level) / float64(p.Wrap+1) * 100
}

func (p TimerParams) String() string {
	return fmt.Sprintf("div=%d.%d wrap=%d level=%d (%.2fHz %.3f%%)",
		p.DividerInt(), p.DividerFrac(), p.Wrap, p.Level, p.Frequency(), p.DutyPercent())
}

// Derive picks the smallest divider that keeps the period within the 16-bit
// counter and computes the compare level for duty. The frequency is rounded
// to whole hertz.
func Derive(clockHz uint32, frequency, duty float64) (TimerParams, error) {
	if math.IsNaN(frequency) || math.IsNaN(duty) || duty < 0 || duty > 100 {
		return TimerParams{}, fmt.Errorf("%w: %.2fHz at %.3f%%", ErrFrequencyOutOfRange, frequency, duty)
	}
	f := uint64(math.Round(frequency))
	clock := uint64(clockHz)
	if f == 0 || clock == 0 || f > clock {
		return TimerParams{}, fmt.Errorf("%w: %.2fHz with %dHz clock", ErrFrequencyOutOfRange, frequency, clockHz)
	}

	div16 := clock / f / 4096
	if clock%(f*4096) != 0 {
		div16++
	}
	if div16/16 == 0 {
		div16 = 16
	}
	if div16 > maxDiv16 {
		return TimerParams{}, fmt.Errorf("%w: %dHz needs divider %d/16", ErrFrequencyOutOfRange, f, div16)
	}

	wrap := clock*16/div16/f - 1
	if wrap > maxWrap {
		return TimerParams{}, fmt.Errorf("%w: %dHz needs wrap %d", ErrFrequencyOutOfRange, f, wrap)
	}

	return TimerParams{
		ClockHz: clockHz,
		Div16:   uint32(div16),
		Wrap:    uint32(wrap),
		Level:   uint32(float64(wrap) * duty / 100),
	}, nil
}
