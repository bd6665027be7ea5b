// Package sequencer plays one MIDI track in real time through the transmitter
package sequencer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/james-see/coilmidi/pkg/midifile"
)

// DefaultPollInterval is how often pause and stop are re-checked while waiting
const DefaultPollInterval = 10 * time.Millisecond

// State of the sequencer
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateFinished
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Transmitter receives note requests
type Transmitter interface {
	Silence() error
	PlayNote(note, velocity uint8) error
}

// Controls are the intents polled by the sequencer
type Controls interface {
	Paused() bool
	Cancelled() bool
}

// Config holds the optional collaborators of a Sequencer
type Config struct {
	Logger       *slog.Logger
	Clock        Clock
	PollInterval time.Duration
	// OnNote is called with every note that starts sounding
	OnNote func(note, velocity uint8)
	// OnState is called on every state transition
	OnState func(State)
}

// Result summarizes one playback
type Result struct {
	State   State
	Events  int
	Notes   int
	Offset  int
	Length  int
	Tempo   uint32
	Elapsed time.Duration // sum of the scheduled waits
}

// Sequencer walks one track. It is not safe for concurrent use; its state is
// private to the sequencing goroutine except for State, which may be read
// from anywhere.
type Sequencer struct {
	tx     Transmitter
	ctl    Controls
	cfg    Config
	logger *slog.Logger

	state atomic.Int32

	tempo    uint32
	sounding bool
	note     uint8
	velocity uint8
}

// New creates a sequencer. A nil ctl never pauses or cancels.
func New(tx Transmitter, ctl Controls, cfg Config) *Sequencer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if ctl == nil {
		ctl = freeRunning{}
	}
	return &Sequencer{tx: tx, ctl: ctl, cfg: cfg, logger: cfg.Logger, tempo: midifile.DefaultTempo}
}

// State returns the current state
func (s *Sequencer) State() State {
	return State(s.state.Load())
}

func (s *Sequencer) setState(st State) {
	s.state.Store(int32(st))
	if s.cfg.OnState != nil {
		s.cfg.OnState(st)
	}
}

// WaitMillis converts delta ticks to milliseconds at tempo (microseconds per
// quarter note) and division (ticks per quarter note)
func WaitMillis(delta, tempo uint32, division uint16) uint64 {
	if division == 0 {
		return 0
	}
	return uint64(delta) * uint64(tempo) / (uint64(division) * 1000)
}

// WaitDuration is WaitMillis as a time.Duration
func WaitDuration(delta, tempo uint32, division uint16) time.Duration {
	return time.Duration(WaitMillis(delta, tempo, division)) * time.Millisecond
}

var errCancelled = errors.New("cancelled")

// Play takes ownership of track and plays it to the end, until cancelled, or
// until the data turns out malformed. The track is released and the
// transmitter silenced on every return path. Cancellation is not an error:
// it yields StateAborted with a nil error.
func (s *Sequencer) Play(track *midifile.Track, division uint16) (Result, error) {
	defer track.Release()

	res := Result{State: StateIdle, Tempo: s.tempo}
	if track == nil || track.Len() == 0 {
		return res, fmt.Errorf("%w: empty track", midifile.ErrInvalidTrackLength)
	}
	if division == 0 || division&0x8000 != 0 {
		return res, fmt.Errorf("%w: division 0x%04X", midifile.ErrUnsupportedDivision, division)
	}

	data := track.Bytes()
	res.Length = len(data)
	s.tempo = midifile.DefaultTempo
	s.sounding = false
	s.setState(StateRunning)
	s.logger.Info("playback started", "track", track.Index, "length", len(data), "division", division)

	dec := midifile.NewDecoder(data)
	err := s.run(dec, division, &res)
	res.Offset = dec.Offset()
	res.Tempo = s.tempo

	if serr := s.tx.Silence(); serr != nil && err == nil {
		s.logger.Warn("final silence rejected", "err", serr)
	}
	s.sounding = false

	switch {
	case err == nil:
		res.State = StateFinished
		s.setState(StateFinished)
		s.logger.Info("playback finished", "events", res.Events, "notes", res.Notes, "elapsed", res.Elapsed)
		return res, nil
	case errors.Is(err, errCancelled):
		res.State = StateAborted
		s.setState(StateAborted)
		s.logger.Info("playback stopped", "offset", res.Offset, "length", res.Length)
		return res, nil
	default:
		res.State = StateAborted
		s.setState(StateAborted)
		s.logger.Warn("playback aborted", "offset", res.Offset, "err", err)
		return res, err
	}
}

func (s *Sequencer) run(dec *midifile.Decoder, division uint16, res *Result) error {
	for !dec.Done() {
		if s.ctl.Cancelled() {
			return errCancelled
		}

		ev, err := dec.Next()
		if err != nil {
			return err
		}
		res.Events++

		// The wait uses the tempo in force when the event is read
		wait := WaitDuration(ev.Delta, s.tempo, division)
		s.logger.Debug("event", "offset", ev.Offset, "delta", ev.Delta, "wait", wait, "status", fmt.Sprintf("0x%02X", ev.Status), "event", ev.String())

		switch ev.Kind {
		case midifile.KindNoteOn, midifile.KindNoteOff:
			if ev.Sounds() {
				res.Notes++
			}
			if err := s.holdWhilePaused(); err != nil {
				return err
			}
			if err := s.emit(ev); err != nil {
				return err
			}
			res.Elapsed += wait
			if err := s.sleep(wait); err != nil {
				return err
			}
		case midifile.KindTempo:
			s.tempo = ev.Tempo
			s.logger.Debug("tempo changed", "us_per_beat", ev.Tempo)
		}
	}
	return nil
}

// emit turns a note event into a transmitter request
func (s *Sequencer) emit(ev midifile.Event) error {
	if ev.Sounds() {
		s.sounding, s.note, s.velocity = true, ev.Note, ev.Velocity
		if s.cfg.OnNote != nil {
			s.cfg.OnNote(ev.Note, ev.Velocity)
		}
		return s.tx.PlayNote(ev.Note, ev.Velocity)
	}
	if s.sounding && s.note == ev.Note {
		s.sounding = false
		return s.tx.Silence()
	}
	return nil
}

func (s *Sequencer) holdWhilePaused() error {
	if !s.ctl.Paused() {
		return nil
	}

	s.setState(StatePaused)
	s.logger.Info("playback paused")
	for s.ctl.Paused() {
		if s.ctl.Cancelled() {
			return errCancelled
		}
		if err := s.tx.Silence(); err != nil {
			return err
		}
		s.cfg.Clock.Sleep(s.cfg.PollInterval)
	}
	s.setState(StateRunning)
	s.logger.Info("playback resumed")

	if s.sounding {
		return s.tx.PlayNote(s.note, s.velocity)
	}
	return nil
}

// sleep waits d in poll-sized slices so pause and stop are seen within one
// interval. Time spent paused does not count against d.
func (s *Sequencer) sleep(d time.Duration) error {
	for d > 0 {
		if s.ctl.Cancelled() {
			return errCancelled
		}
		if err := s.holdWhilePaused(); err != nil {
			return err
		}
		step := min(d, s.cfg.PollInterval)
		s.cfg.Clock.Sleep(step)
		d -= step
	}
	return nil
}

type freeRunning struct{}

func (freeRunning) Paused() bool    { return false }
func (freeRunning) Cancelled() bool { return false }

type discard struct{}

func (discard) Silence() error            { return nil }
func (discard) PlayNote(_, _ uint8) error { return nil }

// DryRun plays track against a virtual clock with no output and returns the
// summary. The track is released.
func DryRun(track *midifile.Track, division uint16, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := &VirtualClock{}
	// One slice per wait keeps the virtual clock cheap for long files
	seq := New(discard{}, nil, Config{Logger: logger, Clock: clock, PollInterval: time.Hour})
	return seq.Play(track, division)
}
