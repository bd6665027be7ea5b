package coord

import "sync/atomic"

// Intents are the level-triggered playback flags written by the control
// context and polled by the sequencing context
type Intents struct {
	state  atomic.Uint64 // session<<1 | play
	paused atomic.Bool
	stop   atomic.Bool
}

// Start begins a new playback session and returns its id. A running session
// observes the id change as a cancellation.
func (in *Intents) Start() uint64 {
	in.stop.Store(false)
	in.paused.Store(false)
	for {
		st := in.state.Load()
		id := st>>1 + 1
		if in.state.CompareAndSwap(st, id<<1|1) {
			return id
		}
	}
}

// Stop requests the running session to end
func (in *Intents) Stop() {
	in.stop.Store(true)
	for {
		st := in.state.Load()
		if in.state.CompareAndSwap(st, st&^1) {
			return
		}
	}
}

// TogglePause flips the paused flag and returns the new value
func (in *Intents) TogglePause() bool {
	for {
		p := in.paused.Load()
		if in.paused.CompareAndSwap(p, !p) {
			return !p
		}
	}
}

// Finish clears the flags if id is still the current session
func (in *Intents) Finish(id uint64) bool {
	st := in.state.Load()
	if st>>1 != id {
		return false
	}
	if !in.state.CompareAndSwap(st, id<<1) {
		return false
	}
	in.paused.Store(false)
	in.stop.Store(false)
	return true
}

// Playing reports the play intent
func (in *Intents) Playing() bool { return in.state.Load()&1 == 1 }

// Paused reports the pause intent
func (in *Intents) Paused() bool { return in.paused.Load() }

// StopRequested reports the stop intent
func (in *Intents) StopRequested() bool { return in.stop.Load() }

// Session returns the id of the latest session
func (in *Intents) Session() uint64 { return in.state.Load() >> 1 }

// Bind returns the view a sequencer polls for session id
func (in *Intents) Bind(id uint64) *Session {
	return &Session{in: in, id: id}
}

// Session is the intents as seen by one playback session
type Session struct {
	in *Intents
	id uint64
}

// ID returns the session id
func (s *Session) ID() uint64 { return s.id }

// Paused reports whether playback should hold
func (s *Session) Paused() bool { return s.in.Paused() }

// Cancelled reports whether this session must stop
func (s *Session) Cancelled() bool {
	st := s.in.state.Load()
	return s.in.stop.Load() || st&1 == 0 || st>>1 != s.id
}
