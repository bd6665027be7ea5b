package midifile

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"

	"github.com/james-see/coilmidi/pkg/storage"
)

// Reader locates the header and track chunks of files on a volume. Every
// method opens the file, and closes it again before returning.
type Reader struct {
	vol      storage.Volume
	pool     Pool
	maxTrack uint32
	logger   *slog.Logger
}

// NewReader creates a reader over vol
func NewReader(vol storage.Volume, opts ...ReaderOption) *Reader {
	r := &Reader{
		vol:      vol,
		pool:     NewBudgetPool(0),
		maxTrack: DefaultMaxTrackBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadHeader reads and validates the MThd chunk of name
func (r *Reader) ReadHeader(name string) (Header, error) {
	f, err := r.vol.Open(name)
	if err != nil {
		return Header{}, openErr(err, name)
	}
	defer func() { _ = f.Close() }()

	return readHeader(f)
}

func readHeader(f storage.File) (Header, error) {
	var pre [chunkPreambleSize]byte
	if err := readExact(f, pre[:]); err != nil {
		return Header{}, headerReadErr(err, "chunk preamble")
	}
	if string(pre[:4]) != HeaderTag {
		return Header{}, malformed(ErrMalformedHeader, "tag %q", pre[:4])
	}

	h := Header{ChunkSize: binary.BigEndian.Uint32(pre[4:])}
	if h.ChunkSize < headerPayloadSize {
		return Header{}, malformed(ErrMalformedHeader, "header chunk size %d", h.ChunkSize)
	}

	var payload [headerPayloadSize]byte
	if err := readExact(f, payload[:]); err != nil {
		return Header{}, headerReadErr(err, "header payload")
	}
	h.Format = binary.BigEndian.Uint16(payload[0:])
	h.TrackCount = binary.BigEndian.Uint16(payload[2:])
	h.Division = binary.BigEndian.Uint16(payload[4:])

	if h.Format > 2 {
		return Header{}, malformed(ErrMalformedHeader, "format %d", h.Format)
	}
	if h.Division&smpteDivisionBit != 0 {
		return Header{}, malformed(ErrUnsupportedDivision, "division 0x%04X", h.Division)
	}
	if h.Division == 0 {
		return Header{}, malformed(ErrMalformedHeader, "zero division")
	}
	return h, nil
}

func headerReadErr(err error, what string) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return malformed(ErrMalformedHeader, "short read of %s", what)
	}
	return storageErr(err, "read "+what)
}

// ReadTrack returns the index-th MTrk chunk of name (zero based). Chunks with
// other tags are skipped. The caller owns the returned track.
func (r *Reader) ReadTrack(name string, h Header, index int) (*Track, error) {
	f, err := r.vol.Open(name)
	if err != nil {
		return nil, openErr(err, name)
	}
	defer func() { _ = f.Close() }()

	if err := f.SeekTo(chunkPreambleSize + int64(h.ChunkSize)); err != nil {
		return nil, storageErr(err, "seek past header")
	}

	found := 0
	for {
		start := f.Tell()
		tag, size, err := readChunkPreamble(f)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, notFound(ErrTrackNotFound, "track %d of %s: only %d track chunks", index, name, found)
			}
			return nil, storageErr(err, "read chunk preamble")
		}
		r.logger.Debug("chunk", "file", name, "offset", start, "tag", tag, "size", size)

		if tag == TrackTag {
			if found == index {
				return r.readTrackData(f, name, index, size)
			}
			found++
		}

		if err := f.SeekTo(start + chunkPreambleSize + int64(size)); err != nil {
			return nil, storageErr(err, "skip chunk")
		}
		if f.AtEnd() {
			return nil, notFound(ErrTrackNotFound, "track %d of %s: only %d track chunks", index, name, found)
		}
	}
}

func (r *Reader) readTrackData(f storage.File, name string, index int, size uint32) (*Track, error) {
	if size == 0 || size > r.maxTrack {
		return nil, malformed(ErrInvalidTrackLength, "track %d of %s declares %d bytes", index, name, size)
	}

	buf, err := r.pool.Get(int(size))
	if err != nil {
		return nil, err
	}
	if err := readExact(f, buf); err != nil {
		r.pool.Put(buf)
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, malformed(ErrUnexpectedEndOfTrack, "track %d of %s truncated", index, name)
		}
		return nil, storageErr(err, "read track data")
	}

	r.logger.Debug("track loaded", "file", name, "track", index, "length", size)
	return NewTrack(index, buf, r.pool), nil
}

// FindPlayableTrack returns the first track of name that contains a note
// event. Tracks without notes are released before moving on.
func (r *Reader) FindPlayableTrack(name string, h Header) (*Track, error) {
	for i := 0; i < int(h.TrackCount); i++ {
		track, err := r.ReadTrack(name, h, i)
		if err != nil {
			if errors.Is(err, ErrTrackNotFound) {
				break
			}
			if errors.Is(err, ErrInvalidTrackLength) {
				r.logger.Debug("skipping track with unusable length", "file", name, "track", i, "err", err)
				continue
			}
			return nil, err
		}
		if HasNoteEvents(track.Bytes()) {
			return track, nil
		}
		r.logger.Debug("skipping track without notes", "file", name, "track", i)
		track.Release()
	}
	return nil, notFound(ErrNoPlayableTrack, "%s", name)
}

// Chunks lists every chunk after the header
func (r *Reader) Chunks(name string) (Header, []ChunkInfo, error) {
	f, err := r.vol.Open(name)
	if err != nil {
		return Header{}, nil, openErr(err, name)
	}
	defer func() { _ = f.Close() }()

	h, err := readHeader(f)
	if err != nil {
		return Header{}, nil, err
	}
	if err := f.SeekTo(chunkPreambleSize + int64(h.ChunkSize)); err != nil {
		return h, nil, storageErr(err, "seek past header")
	}

	var chunks []ChunkInfo
	tracks := 0
	for !f.AtEnd() {
		start := f.Tell()
		tag, size, err := readChunkPreamble(f)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return h, chunks, storageErr(err, "read chunk preamble")
		}
		info := ChunkInfo{Tag: tag, Offset: start, Size: size, Track: -1}
		if tag == TrackTag {
			info.Track = tracks
			tracks++
		}
		chunks = append(chunks, info)
		if err := f.SeekTo(start + chunkPreambleSize + int64(size)); err != nil {
			return h, chunks, storageErr(err, "skip chunk")
		}
	}
	return h, chunks, nil
}

func readChunkPreamble(f storage.File) (string, uint32, error) {
	var pre [chunkPreambleSize]byte
	if err := readExact(f, pre[:]); err != nil {
		return "", 0, err
	}
	return string(pre[:4]), binary.BigEndian.Uint32(pre[4:]), nil
}

func readExact(f storage.File, buf []byte) error {
	_, err := io.ReadFull(f, buf)
	return err
}
