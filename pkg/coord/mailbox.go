// Package coord holds the state shared between the control, sequencing and
// actuation contexts. Nothing here blocks: every exchange is a single atomic
// load, store or swap.
package coord

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrNotOwner is returned when a producer submits while another owns the mailbox
var ErrNotOwner = errors.New("producer does not own the transmitter")

// Producer identifies who may write transmitter requests
type Producer uint8

const (
	ProducerNone Producer = iota
	ProducerControl
	ProducerSequencer
)

func (p Producer) String() string {
	switch p {
	case ProducerControl:
		return "control"
	case ProducerSequencer:
		return "sequencer"
	default:
		return "none"
	}
}

// RequestKind discriminates transmitter requests
type RequestKind uint8

const (
	RequestSilence RequestKind = iota
	RequestPlayNote
	RequestManualSet
)

func (k RequestKind) String() string {
	switch k {
	case RequestPlayNote:
		return "play-note"
	case RequestManualSet:
		return "manual-set"
	default:
		return "silence"
	}
}

// Request is one transmitter command
type Request struct {
	Kind         RequestKind
	Note         uint8
	Velocity     uint8
	RawFrequency uint16
	RawDuty      uint16

	epoch uint64
}

func (r Request) String() string {
	switch r.Kind {
	case RequestPlayNote:
		return fmt.Sprintf("play-note %d/%d", r.Note, r.Velocity)
	case RequestManualSet:
		return fmt.Sprintf("manual-set %d/%d", r.RawFrequency, r.RawDuty)
	default:
		return "silence"
	}
}

// Mailbox is a single-slot, last-write-wins transmitter request cell.
//
// Ownership is packed with an epoch into one word. Claim bumps the epoch, so a
// request stored by a producer that lost ownership between its check and its
// store carries a stale epoch and is turned into Silence when taken.
type Mailbox struct {
	slot  atomic.Pointer[Request]
	state atomic.Uint64 // epoch<<8 | owner
}

// NewMailbox returns a mailbox owned by nobody
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

func unpack(st uint64) (uint64, Producer) {
	return st >> 8, Producer(st & 0xFF)
}

// Owner returns the producer currently allowed to submit
func (m *Mailbox) Owner() Producer {
	_, p := unpack(m.state.Load())
	return p
}

// Claim hands ownership to p and posts Silence. It returns the previous owner.
func (m *Mailbox) Claim(p Producer) Producer {
	for {
		st := m.state.Load()
		epoch, prev := unpack(st)
		next := (epoch+1)<<8 | uint64(p)
		if m.state.CompareAndSwap(st, next) {
			m.slot.Store(&Request{Kind: RequestSilence, epoch: epoch + 1})
			return prev
		}
	}
}

// Release gives up ownership if p still holds it, posting Silence. It
// reports whether p was the owner.
func (m *Mailbox) Release(p Producer) bool {
	for {
		st := m.state.Load()
		epoch, owner := unpack(st)
		if owner != p {
			return false
		}
		next := (epoch + 1) << 8
		if m.state.CompareAndSwap(st, next) {
			m.slot.Store(&Request{Kind: RequestSilence, epoch: epoch + 1})
			return true
		}
	}
}

// Submit stores r if p owns the mailbox, replacing any unconsumed request
func (m *Mailbox) Submit(p Producer, r Request) error {
	epoch, owner := unpack(m.state.Load())
	if owner != p {
		return fmt.Errorf("%w: %s submitted %s while %s owns it", ErrNotOwner, p, r.Kind, owner)
	}
	r.epoch = epoch
	m.slot.Store(&r)
	return nil
}

// Take consumes the pending request, if any
func (m *Mailbox) Take() (Request, bool) {
	r := m.slot.Swap(nil)
	if r == nil {
		return Request{}, false
	}
	if epoch, _ := unpack(m.state.Load()); r.epoch != epoch {
		return Request{Kind: RequestSilence}, true
	}
	return *r, true
}

// Pending reports whether a request is waiting
func (m *Mailbox) Pending() bool {
	return m.slot.Load() != nil
}

// Port returns a transmitter handle bound to p
func (m *Mailbox) Port(p Producer) *Port {
	return &Port{mb: m, producer: p}
}

// Port submits requests on behalf of one producer
type Port struct {
	mb       *Mailbox
	producer Producer
}

// Silence requests zero output
func (p *Port) Silence() error {
	return p.mb.Submit(p.producer, Request{Kind: RequestSilence})
}

// PlayNote requests the coil to sound note at velocity
func (p *Port) PlayNote(note, velocity uint8) error {
	return p.mb.Submit(p.producer, Request{Kind: RequestPlayNote, Note: note, Velocity: velocity})
}

// ManualSet requests output from raw potentiometer readings
func (p *Port) ManualSet(rawFrequency, rawDuty uint16) error {
	return p.mb.Submit(p.producer, Request{Kind: RequestManualSet, RawFrequency: rawFrequency, RawDuty: rawDuty})
}

// Producer returns the producer the port submits as
func (p *Port) Producer() Producer {
	return p.producer
}
