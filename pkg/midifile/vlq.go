package midifile

const maxVLQBytes = 4

// DecodeVLQ decodes a variable-length quantity from the start of data. It
// returns the value and the number of bytes consumed.
func DecodeVLQ(data []byte) (uint32, int, error) {
	var value uint32
	for i := 0; i < maxVLQBytes; i++ {
		if i >= len(data) {
			return 0, i, malformed(ErrTruncatedDeltaTime, "ran out of data after %d bytes", i)
		}
		b := data[i]
		value = value<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, maxVLQBytes, malformed(ErrTruncatedDeltaTime, "quantity longer than %d bytes", maxVLQBytes)
}
