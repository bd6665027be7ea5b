package midifile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/james-see/coilmidi/pkg/storage"
)

type chunk struct {
	tag  string
	data []byte
}

func buildFile(format, tracks, division uint16, chunks ...chunk) []byte {
	var buf bytes.Buffer
	buf.WriteString(HeaderTag)
	_ = binary.Write(&buf, binary.BigEndian, uint32(6))
	_ = binary.Write(&buf, binary.BigEndian, format)
	_ = binary.Write(&buf, binary.BigEndian, tracks)
	_ = binary.Write(&buf, binary.BigEndian, division)
	for _, c := range chunks {
		buf.WriteString(c.tag)
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(c.data)))
		buf.Write(c.data)
	}
	return buf.Bytes()
}

// trackingVolume counts handles that are open
type trackingVolume struct {
	*storage.MemoryVolume
	open int
}

type trackingFile struct {
	storage.File
	v *trackingVolume
}

func (v *trackingVolume) Open(name string) (storage.File, error) {
	f, err := v.MemoryVolume.Open(name)
	if err != nil {
		return nil, err
	}
	v.open++
	return &trackingFile{File: f, v: v}, nil
}

func (f *trackingFile) Close() error {
	f.v.open--
	return f.File.Close()
}

func newVolume(files map[string][]byte) *trackingVolume {
	return &trackingVolume{MemoryVolume: storage.NewMemoryVolume(files)}
}

var noteTrack = []byte{0x00, 0x90, 0x40, 0x40, 0x60, 0x80, 0x40, 0x00, 0x00, 0xFF, 0x2F, 0x00}

func TestDecodeVLQ(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		value uint32
		n     int
	}{
		{"zero", []byte{0x00}, 0, 1},
		{"one byte max", []byte{0x7F}, 127, 1},
		{"128", []byte{0x81, 0x00}, 128, 2},
		{"16383", []byte{0xFF, 0x7F}, 16383, 2},
		{"four bytes", []byte{0xFF, 0xFF, 0xFF, 0x7F}, 0x0FFFFFFF, 4},
		{"trailing data ignored", []byte{0x40, 0x90}, 0x40, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, n, err := DecodeVLQ(tt.data)
			if err != nil {
				t.Fatalf("DecodeVLQ() error = %v", err)
			}
			if v != tt.value || n != tt.n {
				t.Errorf("DecodeVLQ() = (%d, %d), want (%d, %d)", v, n, tt.value, tt.n)
			}
		})
	}
}

func TestDecodeVLQErrors(t *testing.T) {
	for _, data := range [][]byte{nil, {0x81}, {0x80, 0x80, 0x80, 0x80, 0x00}} {
		if _, _, err := DecodeVLQ(data); !errors.Is(err, ErrTruncatedDeltaTime) {
			t.Errorf("DecodeVLQ(% X) error = %v, want ErrTruncatedDeltaTime", data, err)
		}
	}
}

func decodeAll(t *testing.T, data []byte) ([]Event, error) {
	t.Helper()
	d := NewDecoder(data)
	var events []Event
	for !d.Done() {
		ev, err := d.Next()
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestDecoderRunningStatus(t *testing.T) {
	events, err := decodeAll(t, []byte{0x00, 0x90, 0x40, 0x40, 0x00, 0x41, 0x40})
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("decoded %d events, want 2", len(events))
	}
	for i, want := range []uint8{0x40, 0x41} {
		if events[i].Kind != KindNoteOn || events[i].Note != want || events[i].Velocity != 0x40 {
			t.Errorf("event %d = %v", i, events[i])
		}
	}
}

func TestDecoderTempo(t *testing.T) {
	events, err := decodeAll(t, []byte{0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20})
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindTempo || events[0].Tempo != 500000 {
		t.Fatalf("events = %v, want one tempo event of 500000", events)
	}
}

func TestDecoderMetaClearsRunningStatus(t *testing.T) {
	d := NewDecoder([]byte{0x00, 0x90, 0x40, 0x40, 0x00, 0xFF, 0x01, 0x00, 0x00, 0x41, 0x40})
	for i := 0; i < 2; i++ {
		if _, err := d.Next(); err != nil {
			t.Fatalf("Next() error = %v", err)
		}
	}
	if d.RunningStatus() != 0 {
		t.Errorf("RunningStatus() = 0x%02X after meta, want 0", d.RunningStatus())
	}
	if _, err := d.Next(); !errors.Is(err, ErrNoRunningStatus) {
		t.Errorf("Next() error = %v, want ErrNoRunningStatus", err)
	}
}

func TestDecoderMetaLengthIsOneByte(t *testing.T) {
	data := []byte{0x00, StatusMeta, 0x01, 0x81}
	data = append(data, bytes.Repeat([]byte{'a'}, 0x81)...)
	data = append(data, 0x00, 0x90, 0x40, 0x40)

	events, err := decodeAll(t, data)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if len(events) != 2 || events[0].Kind != KindMeta || events[0].Length != 0x81 {
		t.Fatalf("events = %+v", events)
	}
	if events[1].Kind != KindNoteOn || events[1].Note != 0x40 {
		t.Errorf("note after long meta = %+v", events[1])
	}
}

func TestDecoderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"data byte first", []byte{0x00, 0x40, 0x40}, ErrNoRunningStatus},
		{"truncated delta", []byte{0x81}, ErrTruncatedDeltaTime},
		{"missing status", []byte{0x00}, ErrUnexpectedEndOfTrack},
		{"short note", []byte{0x00, 0x90, 0x40}, ErrUnexpectedEndOfTrack},
		{"short meta payload", []byte{0x00, 0xFF, 0x01, 0x05, 'a'}, ErrUnexpectedEndOfTrack},
		{"zero tempo", []byte{0x00, 0xFF, 0x51, 0x03, 0x00, 0x00, 0x00}, ErrInvalidTempo},
		{"short program change", []byte{0x00, 0xC0}, ErrUnexpectedEndOfTrack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeAll(t, tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecoderOtherEvents(t *testing.T) {
	data := []byte{
		0x00, 0xC0, 0x05, // program change, 1 data byte
		0x00, 0xB0, 0x07, 0x64, // control change, 2 data bytes
		0x00, 0xF0, 0x03, 0x7E, 0x7F, 0xF7, // sysex
		0x00, 0xD0, 0x10, // channel pressure
	}
	events, err := decodeAll(t, data)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("decoded %d events, want 4", len(events))
	}
	for _, ev := range events {
		if ev.Kind != KindOther {
			t.Errorf("event %v kind = %v, want other", ev, ev.Kind)
		}
	}
}

func TestHasNoteEvents(t *testing.T) {
	if !HasNoteEvents(noteTrack) {
		t.Error("HasNoteEvents(noteTrack) = false")
	}
	if HasNoteEvents([]byte{0x00, 0xFF, 0x03, 0x01, 'x', 0x00, 0xFF, 0x2F, 0x00}) {
		t.Error("HasNoteEvents(meta only) = true")
	}
}

func TestReadHeader(t *testing.T) {
	vol := newVolume(map[string][]byte{
		"ok.mid":    buildFile(1, 2, 96),
		"bad.mid":   append([]byte("RIFF"), buildFile(0, 1, 96)[4:]...),
		"short.mid": buildFile(0, 1, 96)[:10],
		"smpte.mid": buildFile(0, 1, 0xE728),
		"zero.mid":  buildFile(0, 1, 0),
		"fmt.mid":   buildFile(3, 1, 96),
	})
	r := NewReader(vol)

	h, err := r.ReadHeader("ok.mid")
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if h.Format != 1 || h.TrackCount != 2 || h.Division != 96 || h.ChunkSize != 6 {
		t.Errorf("ReadHeader() = %+v", h)
	}

	tests := []struct {
		file string
		want error
	}{
		{"bad.mid", ErrMalformedHeader},
		{"short.mid", ErrMalformedHeader},
		{"smpte.mid", ErrUnsupportedDivision},
		{"zero.mid", ErrMalformedHeader},
		{"fmt.mid", ErrMalformedHeader},
		{"missing.mid", ErrStorageIO},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			if _, err := r.ReadHeader(tt.file); !errors.Is(err, tt.want) {
				t.Errorf("ReadHeader(%s) error = %v, want %v", tt.file, err, tt.want)
			}
		})
	}

	if vol.open != 0 {
		t.Errorf("%d handles left open", vol.open)
	}
}

func TestReadTrackRoundTrip(t *testing.T) {
	tracks := [][]byte{
		{0x00, 0xFF, 0x2F, 0x00},
		bytes.Repeat([]byte{0x00, 0x90, 0x40, 0x40}, 300),
		noteTrack,
	}
	file := buildFile(1, 3, 96,
		chunk{"XFIH", nil},
		chunk{TrackTag, tracks[0]},
		chunk{"JUNK", []byte{1, 2, 3, 4, 5}},
		chunk{TrackTag, tracks[1]},
		chunk{"XFKM", nil},
		chunk{TrackTag, tracks[2]},
	)
	vol := newVolume(map[string][]byte{"song.mid": file})
	pool := NewBudgetPool(0)
	r := NewReader(vol, WithPool(pool))

	h, err := r.ReadHeader("song.mid")
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}

	for k, want := range tracks {
		track, err := r.ReadTrack("song.mid", h, k)
		if err != nil {
			t.Fatalf("ReadTrack(%d) error = %v", k, err)
		}
		if !bytes.Equal(track.Bytes(), want) {
			t.Errorf("ReadTrack(%d) returned %d bytes, want %d", k, track.Len(), len(want))
		}
		if !track.Release() {
			t.Errorf("track %d: first Release() = false", k)
		}
		if track.Release() {
			t.Errorf("track %d: second Release() = true", k)
		}
	}

	if pool.InUse() != 0 {
		t.Errorf("pool has %d bytes in use", pool.InUse())
	}
	if vol.open != 0 {
		t.Errorf("%d handles left open", vol.open)
	}
}

func TestReadTrackFailures(t *testing.T) {
	file := buildFile(1, 2, 96,
		chunk{TrackTag, nil},
		chunk{TrackTag, noteTrack},
	)
	vol := newVolume(map[string][]byte{"song.mid": file})
	pool := NewBudgetPool(0)
	r := NewReader(vol, WithPool(pool))
	h, _ := r.ReadHeader("song.mid")

	if _, err := r.ReadTrack("song.mid", h, 0); !errors.Is(err, ErrInvalidTrackLength) {
		t.Errorf("ReadTrack(0) error = %v, want ErrInvalidTrackLength", err)
	}
	if pool.InUse() != 0 {
		t.Errorf("zero-length track allocated %d bytes", pool.InUse())
	}

	for _, k := range []int{2, 5} {
		if _, err := r.ReadTrack("song.mid", h, k); !errors.Is(err, ErrTrackNotFound) {
			t.Errorf("ReadTrack(%d) error = %v, want ErrTrackNotFound", k, err)
		}
	}
	if vol.open != 0 {
		t.Errorf("%d handles left open", vol.open)
	}
}

func TestReadTrackLimits(t *testing.T) {
	big := bytes.Repeat([]byte{0x00}, 64)
	truncated := buildFile(0, 1, 96, chunk{TrackTag, big})
	truncated = truncated[:len(truncated)-10]

	vol := newVolume(map[string][]byte{
		"big.mid":       buildFile(0, 1, 96, chunk{TrackTag, big}),
		"truncated.mid": truncated,
	})

	r := NewReader(vol, WithMaxTrackBytes(32))
	h, _ := r.ReadHeader("big.mid")
	if _, err := r.ReadTrack("big.mid", h, 0); !errors.Is(err, ErrInvalidTrackLength) {
		t.Errorf("oversized track error = %v, want ErrInvalidTrackLength", err)
	}

	pool := NewBudgetPool(16)
	r = NewReader(vol, WithPool(pool))
	if _, err := r.ReadTrack("big.mid", h, 0); !errors.Is(err, ErrAllocationFailure) {
		t.Errorf("over-budget track error = %v, want ErrAllocationFailure", err)
	}

	pool = NewBudgetPool(0)
	r = NewReader(vol, WithPool(pool))
	if _, err := r.ReadTrack("truncated.mid", h, 0); !errors.Is(err, ErrUnexpectedEndOfTrack) {
		t.Errorf("truncated track error = %v, want ErrUnexpectedEndOfTrack", err)
	}
	if pool.InUse() != 0 {
		t.Errorf("partial allocation not released: %d bytes", pool.InUse())
	}
	if vol.open != 0 {
		t.Errorf("%d handles left open", vol.open)
	}
}

func TestFindPlayableTrack(t *testing.T) {
	conductor := []byte{0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20, 0x00, 0xFF, 0x2F, 0x00}
	vol := newVolume(map[string][]byte{
		"song.mid":   buildFile(1, 2, 96, chunk{TrackTag, conductor}, chunk{TrackTag, noteTrack}),
		"silent.mid": buildFile(1, 3, 96, chunk{TrackTag, conductor}),
		"empty.mid":  buildFile(1, 3, 96, chunk{TrackTag, nil}, chunk{TrackTag, conductor}, chunk{TrackTag, noteTrack}),
	})
	pool := NewBudgetPool(0)
	r := NewReader(vol, WithPool(pool))

	h, _ := r.ReadHeader("song.mid")
	track, err := r.FindPlayableTrack("song.mid", h)
	if err != nil {
		t.Fatalf("FindPlayableTrack() error = %v", err)
	}
	if track.Index != 1 {
		t.Errorf("FindPlayableTrack() index = %d, want 1", track.Index)
	}
	track.Release()

	h, _ = r.ReadHeader("empty.mid")
	track, err = r.FindPlayableTrack("empty.mid", h)
	if err != nil {
		t.Fatalf("FindPlayableTrack(empty first track) error = %v", err)
	}
	if track.Index != 2 {
		t.Errorf("FindPlayableTrack(empty first track) index = %d, want 2", track.Index)
	}
	track.Release()

	h, _ = r.ReadHeader("silent.mid")
	if _, err := r.FindPlayableTrack("silent.mid", h); !errors.Is(err, ErrNoPlayableTrack) {
		t.Errorf("FindPlayableTrack(silent) error = %v, want ErrNoPlayableTrack", err)
	}
	if pool.InUse() != 0 {
		t.Errorf("skipped tracks not released: %d bytes", pool.InUse())
	}
}

func TestChunks(t *testing.T) {
	vol := newVolume(map[string][]byte{
		"song.mid": buildFile(1, 2, 96, chunk{TrackTag, noteTrack}, chunk{"JUNK", []byte{1}}, chunk{TrackTag, noteTrack}),
	})
	_, chunks, err := NewReader(vol).Chunks("song.mid")
	if err != nil {
		t.Fatalf("Chunks() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("Chunks() = %d chunks, want 3", len(chunks))
	}
	if chunks[0].Track != 0 || chunks[1].Track != -1 || chunks[2].Track != 1 {
		t.Errorf("track indices = %d %d %d", chunks[0].Track, chunks[1].Track, chunks[2].Track)
	}
	if chunks[0].Offset != 14 {
		t.Errorf("first chunk offset = %d, want 14", chunks[0].Offset)
	}
}

func TestGenerateAndRead(t *testing.T) {
	data, err := Generate(DemoScale())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if DetectFormatFromContent(data) != FormatMIDI {
		t.Fatal("generated data is not detected as MIDI")
	}

	vol := newVolume(map[string][]byte{"demo.mid": data})
	r := NewReader(vol)
	h, err := r.ReadHeader("demo.mid")
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if h.Division != 480 || h.TrackCount != 1 {
		t.Errorf("header = %+v", h)
	}

	track, err := r.FindPlayableTrack("demo.mid", h)
	if err != nil {
		t.Fatalf("FindPlayableTrack() error = %v", err)
	}
	defer track.Release()

	events, err := decodeAll(t, track.Bytes())
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	notes, tempo := 0, uint32(0)
	for _, ev := range events {
		if ev.Sounds() {
			notes++
		}
		if ev.Kind == KindTempo {
			tempo = ev.Tempo
		}
	}
	if notes != len(DemoScale().Steps) {
		t.Errorf("sounding notes = %d, want %d", notes, len(DemoScale().Steps))
	}
	if tempo != 500000 {
		t.Errorf("tempo = %d, want 500000", tempo)
	}

	check, err := CrossCheck(data)
	if err != nil {
		t.Fatalf("CrossCheck() error = %v", err)
	}
	if check.Tracks != 1 || check.Resolution != 480 || check.NoteEvents[0] != 2*len(DemoScale().Steps) {
		t.Errorf("CrossCheck() = %+v", check)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		expected Format
	}{
		{"test.mid", FormatMIDI},
		{"TEST.MIDI", FormatMIDI},
		{"test.rmi", FormatRIFF},
		{"test.txt", FormatUnknown},
		{"test", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if result := DetectFormat(tt.filename); result != tt.expected {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, result, tt.expected)
			}
		})
	}
}
