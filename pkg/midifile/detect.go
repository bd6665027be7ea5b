package midifile

import (
	"path/filepath"
	"strings"
)

// Format represents a file format
type Format string

const (
	FormatMIDI    Format = "midi"
	FormatRIFF    Format = "rmid"
	FormatUnknown Format = "unknown"
)

// DetectFormat detects the format of a file based on extension
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mid", ".midi", ".smf":
		return FormatMIDI
	case ".rmi":
		return FormatRIFF
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}

	if string(data[:4]) == HeaderTag {
		return FormatMIDI
	}

	// RIFF-wrapped MIDI carries the SMF inside a "data" chunk
	if string(data[:4]) == "RIFF" && len(data) >= 12 && string(data[8:12]) == "RMID" {
		return FormatRIFF
	}

	return FormatUnknown
}

// IsPlayableName reports whether a listing entry looks like a MIDI file
func IsPlayableName(name string) bool {
	return DetectFormat(name) == FormatMIDI
}
