package midifile

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Step is one note (or rest) of a Melody
type Step struct {
	Note     uint8
	Velocity uint8
	Beats    float64 // duration in quarter notes
	Rest     bool
}

// Melody is a monophonic line rendered to a single-track file
type Melody struct {
	Name       string
	Tempo      float64 // BPM
	Resolution uint16  // ticks per quarter note
	Steps      []Step
}

// DemoScale returns a C major scale from C3 up to C5 with rising velocity
func DemoScale() *Melody {
	notes := []uint8{48, 50, 52, 53, 55, 57, 59, 60, 62, 64, 65, 67, 69, 71, 72}
	m := &Melody{Name: "Demo Scale", Tempo: 120, Resolution: 480}
	for i, n := range notes {
		m.Steps = append(m.Steps, Step{
			Note:     n,
			Velocity: uint8(40 + i*(127-40)/(len(notes)-1)),
			Beats:    0.5,
		})
	}
	return m
}

// Generate creates a format 0 file from a Melody
func Generate(m *Melody) ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil melody")
	}

	tempo := m.Tempo
	if tempo <= 0 {
		tempo = 120.0
	}
	resolution := m.Resolution
	if resolution == 0 {
		resolution = 480
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(resolution)

	var track smf.Track

	if m.Name != "" {
		name := []byte(m.Name)
		track.Add(0, smf.Message(append([]byte{0xFF, 0x03, byte(len(name))}, name...)))
	}

	microsecondsPerBeat := uint32(60000000.0 / tempo)
	track.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	}))

	// Time signature (4/4)
	track.Add(0, smf.Message([]byte{0xFF, 0x58, 0x04, 0x04, 0x02, 0x18, 0x08}))

	channel := uint8(0)
	var pending uint32
	for _, step := range m.Steps {
		ticks := uint32(step.Beats * float64(resolution))
		if step.Rest || step.Velocity == 0 {
			pending += ticks
			continue
		}
		// 90% gate so consecutive notes are separated by a short silence
		gate := ticks * 9 / 10
		if gate == 0 {
			gate = 1
		}
		track.Add(pending, midi.NoteOn(channel, step.Note, step.Velocity))
		track.Add(gate, midi.NoteOff(channel, step.Note))
		pending = ticks - gate
	}

	track.Close(pending)

	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders m to filename
func WriteFile(m *Melody, filename string) error {
	data, err := Generate(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
