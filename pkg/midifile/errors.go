package midifile

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Playback failure kinds
var (
	ErrMalformedHeader      = errors.New("malformed header")
	ErrTrackNotFound        = errors.New("track not found")
	ErrInvalidTrackLength   = errors.New("invalid track length")
	ErrAllocationFailure    = errors.New("allocation failure")
	ErrTruncatedDeltaTime   = errors.New("truncated delta time")
	ErrNoRunningStatus      = errors.New("data byte without running status")
	ErrUnexpectedEndOfTrack = errors.New("unexpected end of track")
	ErrInvalidTempo         = errors.New("invalid tempo")
	ErrNoPlayableTrack      = errors.New("no playable track")
	ErrUnsupportedDivision  = errors.New("unsupported SMPTE division")
	ErrStorageIO            = errors.New("storage i/o error")
)

func malformed(kind error, format string, args ...any) error {
	return fault.Wrap(kind, fmsg.With(fmt.Sprintf(format, args...)), ftag.With(ftag.InvalidArgument))
}

func notFound(kind error, format string, args ...any) error {
	return fault.Wrap(kind, fmsg.With(fmt.Sprintf(format, args...)), ftag.With(ftag.NotFound))
}

// storageErr keeps both the kind and the collaborator's cause in the chain
func storageErr(err error, op string) error {
	return fault.Wrap(fmt.Errorf("%w: %w", ErrStorageIO, err), fmsg.With(op), ftag.With(ftag.Internal))
}

func openErr(err error, name string) error {
	kind := ftag.Internal
	if errors.Is(err, fs.ErrNotExist) {
		kind = ftag.NotFound
	}
	return fault.Wrap(fmt.Errorf("%w: %w", ErrStorageIO, err), fmsg.With("open "+name), ftag.With(kind))
}
