package midifile

import (
	"bytes"
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"
)

// CrossCheckResult is an independent reading of a whole file
type CrossCheckResult struct {
	Tracks     int   `json:"tracks"`
	Resolution int   `json:"resolution"`
	NoteEvents []int `json:"note_events"` // per track
}

// CrossCheck parses data with the gomidi SMF reader. It is used to confirm
// that the firmware reader agrees with a reference implementation.
func CrossCheck(data []byte) (*CrossCheckResult, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	res := &CrossCheckResult{Tracks: len(s.Tracks)}
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		res.Resolution = int(mt.Resolution())
	}

	for _, track := range s.Tracks {
		notes := 0
		for _, ev := range track {
			msg := ev.Message
			if len(msg) >= 3 {
				switch msg[0] & 0xF0 {
				case StatusNoteOn, StatusNoteOff:
					notes++
				}
			}
		}
		res.NoteEvents = append(res.NoteEvents, notes)
	}
	return res, nil
}
