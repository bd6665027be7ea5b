package tone

import "strconv"

var pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the scientific pitch name of note, C-1 for 0. Values
// above 127 return "NA".
func NoteName(note uint8) string {
	if note > 127 {
		return "NA"
	}
	return pitchClasses[note%12] + strconv.Itoa(int(note)/12-1)
}
