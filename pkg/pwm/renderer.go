package pwm

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

const monitorAmplitude = 0.25

// wave is the waveform the renderer follows
type wave struct {
	frequency float64
	duty      float64 // 0..1
}

// Renderer turns the latched PWM state into float32 little-endian samples.
// Pulses shorter than one sample are stretched to one sample so narrow duty
// cycles stay audible.
type Renderer struct {
	sampleRate float64
	current    atomic.Pointer[wave]
	phase      float64 // only touched by Read
}

// NewRenderer creates a silent renderer
func NewRenderer(sampleRate int) *Renderer {
	return &Renderer{sampleRate: float64(sampleRate)}
}

// Configure follows the frequency and duty the registers produce
func (r *Renderer) Configure(p TimerParams) error {
	r.current.Store(&wave{frequency: p.Frequency(), duty: p.DutyPercent() / 100})
	return nil
}

// Silence mutes the output
func (r *Renderer) Silence() error {
	r.current.Store(nil)
	return nil
}

// Read fills p with samples; it never fails
func (r *Renderer) Read(p []byte) (int, error) {
	n := len(p) / 4
	w := r.current.Load()
	if w == nil || w.frequency <= 0 {
		clear(p)
		r.phase = 0
		return len(p), nil
	}

	step := w.frequency / r.sampleRate
	width := max(w.duty, step)
	for i := range n {
		v := float32(0)
		if r.phase < width {
			v = monitorAmplitude
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
		r.phase += step
		if r.phase >= 1 {
			r.phase -= math.Floor(r.phase)
		}
	}
	clear(p[n*4:])
	return len(p), nil
}
