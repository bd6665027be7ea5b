// Package midifile reads Standard MIDI File containers from a storage volume
package midifile

import "log/slog"

// Chunk tags and limits
const (
	HeaderTag = "MThd"
	TrackTag  = "MTrk"

	// DefaultMaxTrackBytes bounds a single track allocation
	DefaultMaxTrackBytes = 1 << 20

	headerPayloadSize = 6
	chunkPreambleSize = 8
	smpteDivisionBit  = 0x8000
)

// Status bytes
const (
	StatusNoteOff  = 0x80
	StatusNoteOn   = 0x90
	StatusSysEx    = 0xF0
	StatusSysExEsc = 0xF7
	StatusMeta     = 0xFF

	MetaEndOfTrack = 0x2F
	MetaTempo      = 0x51

	// DefaultTempo is 120 BPM in microseconds per quarter note
	DefaultTempo = 500000
)

// Header holds the fields of the MThd chunk
type Header struct {
	Format     uint16 `json:"format"`
	TrackCount uint16 `json:"track_count"`
	Division   uint16 `json:"division"`   // ticks per quarter note
	ChunkSize  uint32 `json:"chunk_size"` // declared MThd payload size
}

// ChunkInfo describes a chunk found while scanning a file
type ChunkInfo struct {
	Tag    string `json:"tag"`
	Offset int64  `json:"offset"`
	Size   uint32 `json:"size"`
	Track  int    `json:"track"` // index among MTrk chunks, -1 for other chunks
}

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithPool sets the buffer pool track data is allocated from
func WithPool(p Pool) ReaderOption {
	return func(r *Reader) { r.pool = p }
}

// WithMaxTrackBytes sets the largest accepted track chunk
func WithMaxTrackBytes(n uint32) ReaderOption {
	return func(r *Reader) { r.maxTrack = n }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) { r.logger = l }
}
