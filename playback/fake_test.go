package playback

import (
	"fmt"
	"sync"
	"time"
)

// fakeCall records one device interaction for assertions.
type fakeCall struct {
	kind  string // "trigger" or "release"
	pitch uint8
	id    string
	at    time.Time
}

// fakeDevice is an in-memory Device that records every call and can be
// told to fail specific pitches or collide handle ids.
type fakeDevice struct {
	mu        sync.Mutex
	seq       int
	calls     []fakeCall
	active    map[string]uint8
	fail      map[uint8]bool
	collideID string
	observers []func(NoteEvent)
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		active: make(map[string]uint8),
		fail:   make(map[uint8]bool),
	}
}

func (d *fakeDevice) Trigger(pitch, velocity uint8, nominal time.Duration) (string, error) {
	d.mu.Lock()
	if d.fail[pitch] {
		d.mu.Unlock()
		return "", fmt.Errorf("no voice available for pitch %d", pitch)
	}
	id := d.collideID
	if id == "" {
		d.seq++
		id = fmt.Sprintf("n%03d", d.seq)
	}
	d.active[id] = pitch
	ev := fakeCall{kind: "trigger", pitch: pitch, id: id, at: time.Now()}
	d.calls = append(d.calls, ev)
	obs := append(([]func(NoteEvent))(nil), d.observers...)
	d.mu.Unlock()

	for _, fn := range obs {
		fn(NoteEvent{Pitch: pitch, HandleID: id, Onset: true, At: ev.at})
	}
	return id, nil
}

func (d *fakeDevice) Release(id string) error {
	d.mu.Lock()
	pitch, ok := d.active[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("unknown handle %s", id)
	}
	delete(d.active, id)
	ev := fakeCall{kind: "release", pitch: pitch, id: id, at: time.Now()}
	d.calls = append(d.calls, ev)
	obs := append(([]func(NoteEvent))(nil), d.observers...)
	d.mu.Unlock()

	for _, fn := range obs {
		fn(NoteEvent{Pitch: pitch, HandleID: id, Onset: false, At: ev.at})
	}
	return nil
}

func (d *fakeDevice) ReleaseAll() error {
	d.mu.Lock()
	ids := make([]string, 0, len(d.active))
	for id := range d.active {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		d.Release(id)
	}
	return nil
}

func (d *fakeDevice) Observe(fn func(NoteEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

func (d *fakeDevice) snapshot() []fakeCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]fakeCall(nil), d.calls...)
}

func (d *fakeDevice) callsOf(kind string) []fakeCall {
	var out []fakeCall
	for _, c := range d.snapshot() {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (d *fakeDevice) callsFor(pitch uint8, kind string) []fakeCall {
	var out []fakeCall
	for _, c := range d.snapshot() {
		if c.pitch == pitch && c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (d *fakeDevice) activeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// drive runs a lane to completion by advancing it at each of its own
// deadlines. No real time passes; every step sees exactly its target
// instant, which keeps lane tests deterministic.
func drive(l lane) {
	for {
		at, ok := l.nextDeadline()
		if !ok {
			return
		}
		l.advance(at)
	}
}

// driveUntil advances a lane through every deadline not after the
// given instant.
func driveUntil(l lane, until time.Time) {
	for {
		at, ok := l.nextDeadline()
		if !ok || at.After(until) {
			return
		}
		l.advance(at)
	}
}
