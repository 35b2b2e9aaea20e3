package note

import "strconv"

var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Name returns the scientific pitch name of a note, e.g. 60 -> "C4".
func Name(id ID) string {
	return pitchNames[int(id)%12] + strconv.Itoa(int(id)/12-1)
}

// IsBlackKey reports whether the note sits on a black key of a keyboard.
func IsBlackKey(id ID) bool {
	switch id % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}
