package api

import (
	"errors"
	"log/slog"

	"github.com/james-see/coilmidi/pkg/config"
	"github.com/james-see/coilmidi/pkg/midifile"
	"github.com/james-see/coilmidi/pkg/sequencer"
	"github.com/james-see/coilmidi/pkg/storage"
)

// Analysis is what the player would make of an uploaded file
type Analysis struct {
	File          string                     `json:"file"`
	Format        midifile.Format            `json:"format"`
	Header        midifile.Header            `json:"header"`
	Chunks        []midifile.ChunkInfo       `json:"chunks"`
	PlayableTrack int                        `json:"playable_track"`
	Events        int                        `json:"events"`
	Notes         int                        `json:"notes"`
	DurationMs    int64                      `json:"duration_ms"`
	FinalTempo    uint32                     `json:"final_tempo_us"`
	Outcome       string                     `json:"outcome"`
	StoppedAt     int                        `json:"stopped_at"`
	PlaybackError string                     `json:"playback_error,omitempty"`
	CrossCheck    *midifile.CrossCheckResult `json:"cross_check,omitempty"`
	CrossError    string                     `json:"cross_check_error,omitempty"`
}

// Analyze runs the chunk reader and a dry-run playback over data. Errors
// before a track is found are returned; playback errors are reported in the
// analysis.
func Analyze(name string, data []byte, profile *config.Profile, logger *slog.Logger) (*Analysis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	vol := storage.NewMemoryVolume(map[string][]byte{name: data})
	reader := midifile.NewReader(vol,
		midifile.WithPool(midifile.NewBudgetPool(profile.MemoryBudgetBytes)),
		midifile.WithMaxTrackBytes(uint32(profile.MaxTrackBytes)),
		midifile.WithLogger(logger),
	)

	a := &Analysis{File: name, Format: midifile.DetectFormatFromContent(data), PlayableTrack: -1}

	h, chunks, err := reader.Chunks(name)
	if err != nil {
		return nil, err
	}
	a.Header, a.Chunks = h, chunks

	if cc, err := midifile.CrossCheck(data); err != nil {
		a.CrossError = err.Error()
	} else {
		a.CrossCheck = cc
	}

	track, err := reader.FindPlayableTrack(name, h)
	if err != nil {
		if errors.Is(err, midifile.ErrNoPlayableTrack) {
			a.Outcome = "no playable track"
			return a, nil
		}
		return nil, err
	}
	a.PlayableTrack = track.Index

	res, err := sequencer.DryRun(track, h.Division, logger)
	a.Events, a.Notes = res.Events, res.Notes
	a.DurationMs = res.Elapsed.Milliseconds()
	a.FinalTempo = res.Tempo
	a.Outcome = res.State.String()
	a.StoppedAt = res.Offset
	if err != nil {
		a.PlaybackError = err.Error()
	}
	return a, nil
}
