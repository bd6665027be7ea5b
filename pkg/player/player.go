// Package player is the control context: it owns the mailbox and intents and
// runs the sequencing and actuation goroutines behind a small set of commands
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"golang.org/x/sync/errgroup"

	"github.com/james-see/coilmidi/pkg/coord"
	"github.com/james-see/coilmidi/pkg/midifile"
	"github.com/james-see/coilmidi/pkg/pwm"
	"github.com/james-see/coilmidi/pkg/sequencer"
	"github.com/james-see/coilmidi/pkg/storage"
	"github.com/james-see/coilmidi/pkg/tone"
)

var (
	// ErrNoFileSelected is returned by StartPlayback before SelectFile
	ErrNoFileSelected = errors.New("no file selected")
	// ErrNotManual is returned by SetManualOutput outside manual mode
	ErrNotManual = errors.New("not in manual mode")
)

// Mode is what the control context is doing
type Mode int32

const (
	ModeIdle Mode = iota
	ModeManual
	ModePlayback
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModePlayback:
		return "playback"
	default:
		return "idle"
	}
}

// Options configure a Player
type Options struct {
	Volume storage.Volume
	// Tx and Status are the transmit and status-indicator outputs
	Tx     pwm.Channel
	Status pwm.Channel

	ClockHz uint32
	Limits  tone.Limits
	Manual  tone.ManualTable

	Pool          midifile.Pool
	MaxTrackBytes uint32

	Clock              sequencer.Clock
	PollInterval       time.Duration
	ServiceMinInterval time.Duration
	ServiceMaxInterval time.Duration

	Logger *slog.Logger
}

// Status is a snapshot for display
type Status struct {
	Mode      Mode            `json:"mode"`
	File      string          `json:"file"`
	Session   uint64          `json:"session"`
	Playing   bool            `json:"playing"`
	Paused    bool            `json:"paused"`
	State     sequencer.State `json:"state"`
	Sounding  bool            `json:"sounding"`
	Note      uint8           `json:"note"`
	NoteName  string          `json:"note_name"`
	Velocity  uint8           `json:"velocity"`
	Output    pwm.Snapshot    `json:"-"`
	LastError string          `json:"last_error,omitempty"`
}

// Failure is a playback session that ended in error
type Failure struct {
	Session uint64
	File    string
	Err     error
}

func (f Failure) Error() string {
	return fmt.Sprintf("session %d (%s): %v", f.Session, f.File, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Player drives one interrupter
type Player struct {
	opts   Options
	logger *slog.Logger

	vol     storage.Volume
	reader  *midifile.Reader
	mb      *coord.Mailbox
	intents coord.Intents
	act     *pwm.Actuator
	control *coord.Port

	mode     atomic.Int32
	state    atomic.Int32
	selected atomic.Pointer[string]
	lastNote atomic.Uint32 // note<<8 | velocity of the latest note
	lastErr  atomic.Pointer[Failure]

	starts   chan uint64
	failures chan Failure
	ended    chan sequencer.Result

	mu      sync.Mutex
	running bool
}

// New creates a player. Nothing runs until Run is called.
func New(opts Options) *Player {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tx == nil {
		opts.Tx = pwm.NewRecorder(0)
	}
	if opts.Clock == nil {
		opts.Clock = sequencer.RealClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = sequencer.DefaultPollInterval
	}
	if opts.ServiceMinInterval <= 0 {
		opts.ServiceMinInterval = time.Millisecond
	}
	if opts.ServiceMaxInterval < opts.ServiceMinInterval {
		opts.ServiceMaxInterval = 50 * time.Millisecond
	}

	readerOpts := []midifile.ReaderOption{midifile.WithLogger(opts.Logger)}
	if opts.Pool != nil {
		readerOpts = append(readerOpts, midifile.WithPool(opts.Pool))
	}
	if opts.MaxTrackBytes > 0 {
		readerOpts = append(readerOpts, midifile.WithMaxTrackBytes(opts.MaxTrackBytes))
	}

	mb := coord.NewMailbox()
	p := &Player{
		opts:     opts,
		logger:   opts.Logger,
		vol:      opts.Volume,
		reader:   midifile.NewReader(opts.Volume, readerOpts...),
		mb:       mb,
		control:  mb.Port(coord.ProducerControl),
		starts:   make(chan uint64, 1),
		failures: make(chan Failure, 1),
		ended:    make(chan sequencer.Result, 1),
	}
	p.act = pwm.NewActuator(mb, opts.Tx, opts.Status, pwm.Config{
		ClockHz: opts.ClockHz,
		Limits:  opts.Limits,
		Manual:  opts.Manual,
		Logger:  opts.Logger,
	})
	return p
}

// Actuator exposes the actuator for stats and output snapshots
func (p *Player) Actuator() *pwm.Actuator { return p.act }

// Run services the output and plays sessions until ctx is done
func (p *Player) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("player already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := p.act.Run(gctx, p.opts.ServiceMinInterval, p.opts.ServiceMaxInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		p.sequence(gctx)
		return nil
	})

	p.logger.Info("player running")
	err := g.Wait()
	p.logger.Info("player stopped")
	return err
}

func (p *Player) sequence(ctx context.Context) {
	stop := context.AfterFunc(ctx, p.intents.Stop)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.starts:
			p.session(id)
		}
	}
}

func (p *Player) session(id uint64) {
	sess := p.intents.Bind(id)
	if sess.Cancelled() {
		p.finish(id)
		return
	}

	name := p.SelectedFile()
	p.mb.Claim(coord.ProducerSequencer)
	if sess.Cancelled() {
		// manual mode may have claimed the output just before us
		if p.mb.Release(coord.ProducerSequencer) && Mode(p.mode.Load()) == ModeManual {
			p.mb.Claim(coord.ProducerControl)
		}
		p.finish(id)
		return
	}
	p.logger.Info("session started", "session", id, "file", name)

	res, err := p.play(sess, name)
	if errors.Is(err, coord.ErrNotOwner) && sess.Cancelled() {
		err = nil
	}
	if err != nil {
		f := Failure{Session: id, File: name, Err: err}
		p.lastErr.Store(&f)
		offer(p.failures, f)
		p.logger.Warn("session failed", "session", id, "file", name, "err", err)
	}

	// A restart or manual mode may have taken over in the meantime
	p.mb.Release(coord.ProducerSequencer)
	p.finish(id)
	p.logger.Info("session ended", "session", id, "state", res.State, "events", res.Events)

	offer(p.ended, res)
}

// finish resets the playback observables and returns to idle unless a newer
// session or manual mode took over
func (p *Player) finish(id uint64) {
	if p.intents.Finish(id) {
		p.lastNote.Store(0)
		p.mode.CompareAndSwap(int32(ModePlayback), int32(ModeIdle))
	}
}

func (p *Player) play(sess *coord.Session, name string) (sequencer.Result, error) {
	h, err := p.reader.ReadHeader(name)
	if err != nil {
		return sequencer.Result{}, err
	}
	track, err := p.reader.FindPlayableTrack(name, h)
	if err != nil {
		return sequencer.Result{}, err
	}

	seq := sequencer.New(p.mb.Port(coord.ProducerSequencer), sess, sequencer.Config{
		Logger:       p.logger.With("session", sess.ID()),
		Clock:        p.opts.Clock,
		PollInterval: p.opts.PollInterval,
		OnNote: func(note, velocity uint8) {
			p.lastNote.Store(uint32(note)<<8 | uint32(velocity))
		},
		OnState: func(s sequencer.State) { p.state.Store(int32(s)) },
	})
	return seq.Play(track, h.Division)
}

// offer sends v on a one-slot channel, replacing an unread value
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Failures delivers playback failures; only the latest unread one is kept
func (p *Player) Failures() <-chan Failure { return p.failures }

// Ended delivers the result of the latest finished session
func (p *Player) Ended() <-chan sequencer.Result { return p.ended }

// Files lists the volume, Back first
func (p *Player) Files() ([]string, error) {
	if p.vol == nil {
		return nil, fault.Wrap(storage.ErrNoStorage, ftag.With(ftag.NotFound))
	}
	return p.vol.List()
}

// SelectFile picks the file the next playback will use
func (p *Player) SelectFile(name string) error {
	if name == "" || name == storage.BackEntry {
		return fault.Wrap(fmt.Errorf("invalid selection %q", name),
			fmsg.WithDesc("select file", "Choose a MIDI file from the list."),
			ftag.With(ftag.InvalidArgument))
	}
	p.selected.Store(&name)
	p.logger.Info("file selected", "file", name)
	return nil
}

// SelectedFile returns the current selection
func (p *Player) SelectedFile() string {
	if s := p.selected.Load(); s != nil {
		return *s
	}
	return ""
}

// StartPlayback begins a session on the selected file, cancelling any
// running one, and returns the session id
func (p *Player) StartPlayback() (uint64, error) {
	if p.SelectedFile() == "" {
		return 0, fault.Wrap(ErrNoFileSelected, ftag.With(ftag.InvalidArgument))
	}

	p.mode.Store(int32(ModePlayback))
	id := p.intents.Start()
	offer(p.starts, id)
	p.logger.Info("playback requested", "session", id, "file", p.SelectedFile())
	return id, nil
}

// TogglePause flips pause and returns the new value
func (p *Player) TogglePause() bool {
	paused := p.intents.TogglePause()
	p.logger.Info("pause toggled", "paused", paused)
	return paused
}

// StopPlayback asks the running session to end
func (p *Player) StopPlayback() {
	p.intents.Stop()
	p.logger.Info("stop requested")
}

// EnterManualMode stops playback and gives the output to manual control
func (p *Player) EnterManualMode() {
	p.intents.Stop()
	p.mb.Claim(coord.ProducerControl)
	p.mode.Store(int32(ModeManual))
	p.logger.Info("manual mode")
}

// LeaveManualMode silences the output and returns to idle
func (p *Player) LeaveManualMode() {
	if p.mb.Release(coord.ProducerControl) {
		p.mode.CompareAndSwap(int32(ModeManual), int32(ModeIdle))
	}
}

// SetManualOutput submits raw frequency and duty readings
func (p *Player) SetManualOutput(rawFrequency, rawDuty uint16) error {
	if Mode(p.mode.Load()) != ModeManual {
		return fault.Wrap(ErrNotManual, ftag.With(ftag.InvalidArgument))
	}
	return p.control.ManualSet(rawFrequency, rawDuty)
}

// Status returns a snapshot of the player
func (p *Player) Status() Status {
	st := Status{
		Mode:    Mode(p.mode.Load()),
		File:    p.SelectedFile(),
		Session: p.intents.Session(),
		Playing: p.intents.Playing(),
		Paused:  p.intents.Paused(),
		State:   sequencer.State(p.state.Load()),
		Output:  p.act.Current(),
	}
	st.Sounding = st.Output.Active && st.Output.Source == coord.RequestPlayNote
	if last := p.lastNote.Load(); last != 0 {
		st.Note, st.Velocity = uint8(last>>8), uint8(last)
		st.NoteName = tone.NoteName(st.Note)
	}
	if f := p.lastErr.Load(); f != nil {
		st.LastError = f.Error()
	}
	return st
}
