package midifile

import "sync/atomic"

// Track owns the raw bytes of one MTrk chunk. The owner must call Release on
// every exit path; extra calls are no-ops.
type Track struct {
	Index int

	data     []byte
	pool     Pool
	released atomic.Bool
}

// NewTrack wraps data allocated from pool. A nil pool means data is not pooled.
func NewTrack(index int, data []byte, pool Pool) *Track {
	return &Track{Index: index, data: data, pool: pool}
}

// Bytes returns the track data, nil once released
func (t *Track) Bytes() []byte {
	if t.released.Load() {
		return nil
	}
	return t.data
}

// Len returns the declared chunk length
func (t *Track) Len() int {
	return len(t.data)
}

// Release hands the buffer back and reports whether this call released it
func (t *Track) Release() bool {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return false
	}
	if t.pool != nil {
		t.pool.Put(t.data)
	}
	t.data = nil
	return true
}

// Released reports whether Release has been called
func (t *Track) Released() bool {
	return t.released.Load()
}
