package pwm

import (
	"sync"
	"sync/atomic"
)

// Recorder is a simulated PWM slice. It keeps the latched registers and a
// bounded history of writes.
type Recorder struct {
	last       atomic.Pointer[TimerParams] // nil when silent
	configures atomic.Uint64
	silences   atomic.Uint64

	mu      sync.Mutex
	history []Write
	limit   int
}

// Write is one recorded register update; Silence writes have a nil Params
type Write struct {
	Params *TimerParams
}

// NewRecorder keeps up to limit writes of history, 0 for none
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Configure latches p
func (r *Recorder) Configure(p TimerParams) error {
	r.last.Store(&p)
	r.configures.Add(1)
	r.record(Write{Params: &p})
	return nil
}

// Silence sets the output level to zero
func (r *Recorder) Silence() error {
	r.last.Store(nil)
	r.silences.Add(1)
	r.record(Write{})
	return nil
}

func (r *Recorder) record(w Write) {
	if r.limit <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == r.limit {
		r.history = append(r.history[:0], r.history[1:]...)
	}
	r.history = append(r.history, w)
}

// Last returns the latched registers and whether the output is active
func (r *Recorder) Last() (TimerParams, bool) {
	p := r.last.Load()
	if p == nil {
		return TimerParams{}, false
	}
	return *p, true
}

// Configures counts Configure calls
func (r *Recorder) Configures() uint64 { return r.configures.Load() }

// Silences counts Silence calls
func (r *Recorder) Silences() uint64 { return r.silences.Load() }

// History returns a copy of the recorded writes, oldest first
func (r *Recorder) History() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Write(nil), r.history...)
}

// Tee fans writes out to several channels; the first error is returned after
// every channel has been written
func Tee(chs ...Channel) Channel {
	return tee(chs)
}

type tee []Channel

func (t tee) Configure(p TimerParams) error {
	var first error
	for _, c := range t {
		if err := c.Configure(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t tee) Silence() error {
	var first error
	for _, c := range t {
		if err := c.Silence(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
