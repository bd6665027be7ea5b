package midifile

import "fmt"

// Kind discriminates decoded events
type Kind uint8

const (
	KindNoteOff Kind = iota
	KindNoteOn
	KindTempo
	KindMeta
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNoteOff:
		return "note-off"
	case KindNoteOn:
		return "note-on"
	case KindTempo:
		return "tempo"
	case KindMeta:
		return "meta"
	default:
		return "other"
	}
}

// Event is one decoded (delta-time, event) pair
type Event struct {
	Delta    uint32
	Kind     Kind
	Status   byte
	Channel  uint8
	Note     uint8
	Velocity uint8
	MetaType uint8
	Length   uint32 // meta or sysex payload length
	Tempo    uint32 // microseconds per quarter note, KindTempo only
	Offset   int    // offset of the delta time in the track
}

// Sounds reports whether the event should start a note
func (e Event) Sounds() bool {
	return e.Kind == KindNoteOn && e.Velocity > 0
}

// IsNote reports whether the event is a note-on or note-off
func (e Event) IsNote() bool {
	return e.Kind == KindNoteOn || e.Kind == KindNoteOff
}

func (e Event) String() string {
	switch e.Kind {
	case KindNoteOn, KindNoteOff:
		return fmt.Sprintf("%s ch=%d note=%d vel=%d", e.Kind, e.Channel, e.Note, e.Velocity)
	case KindTempo:
		return fmt.Sprintf("tempo %dus/beat", e.Tempo)
	case KindMeta:
		return fmt.Sprintf("meta type=0x%02X len=%d", e.MetaType, e.Length)
	default:
		return fmt.Sprintf("other status=0x%02X", e.Status)
	}
}

// Decoder walks the event stream of a track. Every read is bounds checked.
type Decoder struct {
	data    []byte
	offset  int
	running byte
}

// NewDecoder creates a decoder positioned at the start of data
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Offset returns the cursor position
func (d *Decoder) Offset() int { return d.offset }

// RunningStatus returns the status reused by running-status events, 0 if none
func (d *Decoder) RunningStatus() byte { return d.running }

// Done reports whether every byte has been consumed
func (d *Decoder) Done() bool { return d.offset >= len(d.data) }

// Next decodes the next event. A decoder that returned an error must not be
// used again.
func (d *Decoder) Next() (Event, error) {
	ev := Event{Offset: d.offset}

	delta, n, err := DecodeVLQ(d.data[d.offset:])
	if err != nil {
		return ev, fmt.Errorf("delta at offset %d: %w", d.offset, err)
	}
	ev.Delta = delta
	d.offset += n

	if d.offset >= len(d.data) {
		return ev, malformed(ErrUnexpectedEndOfTrack, "status byte at offset %d", d.offset)
	}

	status := d.data[d.offset]
	if status&0x80 == 0 {
		if d.running == 0 {
			return ev, malformed(ErrNoRunningStatus, "data byte 0x%02X at offset %d", status, d.offset)
		}
		status = d.running
	} else {
		d.offset++
		d.running = status
		if status == StatusMeta || status == StatusSysEx || status == StatusSysExEsc {
			d.running = 0
		}
	}
	ev.Status = status

	switch {
	case status&0xF0 == StatusNoteOn || status&0xF0 == StatusNoteOff:
		b, err := d.take(2)
		if err != nil {
			return ev, err
		}
		ev.Kind = KindNoteOff
		if status&0xF0 == StatusNoteOn {
			ev.Kind = KindNoteOn
		}
		ev.Channel = status & 0x0F
		ev.Note = b[0]
		ev.Velocity = b[1]

	case status == StatusMeta:
		// subtype and a single length byte
		b, err := d.take(2)
		if err != nil {
			return ev, err
		}
		ev.MetaType = b[0]
		length := uint32(b[1])
		ev.Length = length
		payload, err := d.take(int(length))
		if err != nil {
			return ev, err
		}
		ev.Kind = KindMeta
		if ev.MetaType == MetaTempo && length == 3 {
			tempo := uint32(payload[0])<<16 | uint32(payload[1])<<8 | uint32(payload[2])
			if tempo == 0 {
				return ev, malformed(ErrInvalidTempo, "zero tempo at offset %d", ev.Offset)
			}
			ev.Kind = KindTempo
			ev.Tempo = tempo
		}

	case status == StatusSysEx || status == StatusSysExEsc:
		length, err := d.length()
		if err != nil {
			return ev, err
		}
		ev.Length = length
		if _, err := d.take(int(length)); err != nil {
			return ev, err
		}
		ev.Kind = KindOther

	default:
		if _, err := d.take(dataBytes(status)); err != nil {
			return ev, err
		}
		ev.Kind = KindOther
		if status < 0xF0 {
			ev.Channel = status & 0x0F
		}
	}

	return ev, nil
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.offset+n > len(d.data) {
		return nil, malformed(ErrUnexpectedEndOfTrack, "need %d bytes at offset %d, have %d", n, d.offset, len(d.data)-d.offset)
	}
	b := d.data[d.offset : d.offset+n]
	d.offset += n
	return b, nil
}

func (d *Decoder) length() (uint32, error) {
	v, n, err := DecodeVLQ(d.data[d.offset:])
	if err != nil {
		return 0, malformed(ErrUnexpectedEndOfTrack, "payload length at offset %d", d.offset)
	}
	d.offset += n
	return v, nil
}

// dataBytes is the fixed payload size of a channel or system-common status
func dataBytes(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	case 0xF0:
		switch status {
		case 0xF2:
			return 2
		case 0xF1, 0xF3:
			return 1
		default:
			return 0
		}
	default:
		return 2
	}
}

// HasNoteEvents decodes data without timing and reports whether a note event
// appears before the stream ends or turns malformed
func HasNoteEvents(data []byte) bool {
	d := NewDecoder(data)
	for !d.Done() {
		ev, err := d.Next()
		if err != nil {
			return false
		}
		if ev.IsNote() {
			return true
		}
	}
	return false
}
