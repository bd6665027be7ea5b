package pwm

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/james-see/coilmidi/pkg/coord"
	"github.com/james-see/coilmidi/pkg/tone"
)

// Channel is one PWM output
type Channel interface {
	Configure(p TimerParams) error
	Silence() error
}

// Config holds the actuator's fixed parameters
type Config struct {
	ClockHz uint32
	Limits  tone.Limits
	Manual  tone.ManualTable
	Logger  *slog.Logger
}

// Snapshot is what the output is currently doing
type Snapshot struct {
	Active  bool
	Source  coord.RequestKind
	Output  tone.Output
	Params  TimerParams
	Applied time.Time
}

// Stats counts actuator activity
type Stats struct {
	Services   uint64 // wraps serviced
	Requests   uint64 // requests consumed
	Programmed uint64 // timer updates written
	Silenced   uint64
	Skipped    uint64 // manual readings unchanged
	Rejected   uint64 // mapped or derived out of range
	Failed     uint64 // channel writes that errored
}

// Actuator consumes transmitter requests and programs the transmit and
// status channels identically. Service must only be called from one
// goroutine at a time.
type Actuator struct {
	mb     *coord.Mailbox
	tx     Channel
	status Channel
	cfg    Config
	logger *slog.Logger

	// manual dedup, private to the servicing goroutine
	haveManual bool
	lastFreq   uint16
	lastDuty   uint16

	current atomic.Pointer[Snapshot]
	period  atomic.Int64 // last programmed PWM period, 0 before the first

	services, requests, programmed, silenced, skipped, rejected, failed atomic.Uint64
}

// NewActuator creates an actuator. status may be nil.
func NewActuator(mb *coord.Mailbox, tx, status Channel, cfg Config) *Actuator {
	if cfg.ClockHz == 0 {
		cfg.ClockHz = DefaultClockHz
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Limits == (tone.Limits{}) {
		cfg.Limits = tone.DefaultLimits()
	}
	if cfg.Manual == (tone.ManualTable{}) {
		cfg.Manual = tone.DefaultManualTable()
	}
	a := &Actuator{mb: mb, tx: tx, status: status, cfg: cfg, logger: cfg.Logger}
	a.current.Store(&Snapshot{})
	return a
}

// Service is the wrap handler: it consumes at most one request and reports
// whether there was one
func (a *Actuator) Service() bool {
	a.services.Add(1)
	req, ok := a.mb.Take()
	if !ok {
		return false
	}
	a.requests.Add(1)

	switch req.Kind {
	case coord.RequestPlayNote:
		a.haveManual = false
		a.apply(req.Kind, a.cfg.Limits.FromNote(req.Note, req.Velocity))
	case coord.RequestManualSet:
		if a.haveManual && req.RawFrequency == a.lastFreq && req.RawDuty == a.lastDuty {
			a.skipped.Add(1)
			return true
		}
		a.haveManual, a.lastFreq, a.lastDuty = true, req.RawFrequency, req.RawDuty
		a.apply(req.Kind, a.cfg.Limits.FromManual(a.cfg.Manual, req.RawFrequency, req.RawDuty))
	default:
		a.haveManual = false
		a.silence(coord.RequestSilence, tone.Output{Reason: "silence"})
	}
	return true
}

func (a *Actuator) apply(kind coord.RequestKind, out tone.Output) {
	if !out.OK {
		a.rejected.Add(1)
		a.logger.Debug("request silenced", "kind", kind, "reason", out.Reason)
		a.silence(kind, out)
		return
	}

	p, err := Derive(a.cfg.ClockHz, out.Frequency, out.DutyPercent)
	if err != nil {
		a.rejected.Add(1)
		a.logger.Debug("request silenced", "kind", kind, "err", err)
		out.OK, out.Reason = false, err.Error()
		a.silence(kind, out)
		return
	}

	ok := a.write(func(c Channel) error { return c.Configure(p) })
	if ok {
		a.programmed.Add(1)
		if f := p.Frequency(); f > 0 {
			a.period.Store(int64(float64(time.Second) / f))
		}
	}
	a.current.Store(&Snapshot{Active: ok, Source: kind, Output: out, Params: p, Applied: time.Now()})
}

func (a *Actuator) silence(kind coord.RequestKind, out tone.Output) {
	a.write(func(c Channel) error { return c.Silence() })
	a.silenced.Add(1)
	a.current.Store(&Snapshot{Source: kind, Output: out, Applied: time.Now()})
}

func (a *Actuator) write(fn func(Channel) error) bool {
	ok := true
	for _, c := range []Channel{a.tx, a.status} {
		if c == nil {
			continue
		}
		if err := fn(c); err != nil {
			a.failed.Add(1)
			a.logger.Error("pwm channel write failed", "err", err)
			ok = false
		}
	}
	return ok
}

// Current returns the output state after the last serviced request
func (a *Actuator) Current() Snapshot {
	return *a.current.Load()
}

// Stats returns the counters
func (a *Actuator) Stats() Stats {
	return Stats{
		Services:   a.services.Load(),
		Requests:   a.requests.Load(),
		Programmed: a.programmed.Load(),
		Silenced:   a.silenced.Load(),
		Skipped:    a.skipped.Load(),
		Rejected:   a.rejected.Load(),
		Failed:     a.failed.Load(),
	}
}

// Period returns one PWM period of the current output clamped to
// [minInterval, maxInterval]. A silenced timer keeps wrapping at the last
// programmed period; before anything is programmed it is minInterval.
func (a *Actuator) Period(minInterval, maxInterval time.Duration) time.Duration {
	d := time.Duration(a.period.Load())
	if s := a.current.Load(); s.Active {
		if f := s.Params.Frequency(); f > 0 {
			d = time.Duration(float64(time.Second) / f)
		}
	}
	if d <= 0 {
		return minInterval
	}
	return min(max(d, minInterval), maxInterval)
}

// Run services the mailbox once per period until ctx is done, then silences
// the output
func (a *Actuator) Run(ctx context.Context, minInterval, maxInterval time.Duration) error {
	t := time.NewTimer(0)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			a.write(func(c Channel) error { return c.Silence() })
			a.current.Store(&Snapshot{Applied: time.Now()})
			return ctx.Err()
		case <-t.C:
		}
		a.Service()
		t.Reset(a.Period(minInterval, maxInterval))
	}
}
