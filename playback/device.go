package playback

import "time"

// Device is the sounding backend consumed by the lanes. Trigger
// returns an opaque handle id for the new note; the nominal duration
// is advisory (software synths use it to size release tails, MIDI
// outputs ignore it). Implementations live in the midi and synth
// packages.
type Device interface {
	Trigger(pitch, velocity uint8, nominal time.Duration) (string, error)
	Release(id string) error
	ReleaseAll() error
}

// NoteEvent is an observation of an actual trigger or release at the
// device, used by the auditor. Onset is true for triggers.
type NoteEvent struct {
	Pitch    uint8
	HandleID string
	Onset    bool
	At       time.Time
}

// Observable is implemented by devices that can report their actual
// note activity. Observation never influences scheduling.
type Observable interface {
	Observe(func(NoteEvent))
}

// Run identifies one playback attempt. A new run gets a higher ID and
// generation; deferred work captured under an older Gen is discarded
// when it fires. Runs are explicit values handed to both lanes, never
// ambient globals.
type Run struct {
	ID    uint64
	Epoch time.Time
	Gen   uint64
}
