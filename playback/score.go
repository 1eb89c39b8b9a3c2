package playback

import "sort"

// Tick is the musical time unit. TicksPerQuarter of them make one
// quarter note.
type Tick = int64

// VoicesPerChord is the structural voice count (bass, tenor, alto,
// soprano). Regions with any other voice count are rejected.
const VoicesPerChord = 4

// ChordRegion is one span of the harmonic timeline holding a fixed
// four-voice chord. Voices are ordered low to high. Regions are
// read-only during playback; timing is always derived from the
// absolute tick position, never from neighbouring regions.
type ChordRegion struct {
	StartTick     Tick
	DurationTicks Tick
	Voices        []uint8
	Label         string
}

// EndTick returns the absolute tick at which the region ends.
func (r ChordRegion) EndTick() Tick {
	return r.StartTick + r.DurationTicks
}

// Playable reports whether the region is temporally well-formed and
// fully voiced. Unplayable regions are skipped by the harmony lane but
// still occupy their nominal tick span.
func (r ChordRegion) Playable() bool {
	return r.DurationTicks > 0 && len(r.Voices) == VoicesPerChord
}

// MelodyNote is one pitched event of the melodic timeline. Notes may
// overlap in tick space; the melody lane's sustain logic decides what
// is audible.
type MelodyNote struct {
	StartTick     Tick
	DurationTicks Tick
	Pitch         uint8
}

// EndTick returns the absolute tick at which the note's window ends.
func (n MelodyNote) EndTick() Tick {
	return n.StartTick + n.DurationTicks
}

// Playable reports whether the note is temporally well-formed.
func (n MelodyNote) Playable() bool {
	return n.DurationTicks > 0
}

// SortMelody orders notes by (startTick, pitch) so ties break
// deterministically.
func SortMelody(notes []MelodyNote) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].StartTick != notes[j].StartTick {
			return notes[i].StartTick < notes[j].StartTick
		}
		return notes[i].Pitch < notes[j].Pitch
	})
}
