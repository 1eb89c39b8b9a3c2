package playback

import (
	"time"

	"go-chorale/debug"
)

// pendingRelease is a deferred note-off owned by the melody lane. It
// fires through the lane's own deadline queue, so cancellation of the
// run (which drops the lane) can never leak a stale release into a
// later run; the generation guard covers the remaining window between
// a Stop and the pump noticing it.
type pendingRelease struct {
	at    time.Time
	id    string
	pitch uint8
}

// melodyLane plays the melody events in (start, pitch) order,
// independently of the harmony lane. For each event it decides between
// sustain (same pitch still inside its tracked window: extend, no new
// trigger) and retrigger (release any stale handle, trigger fresh).
// Tracked end-times are per pitch and deliberately separate from the
// registry: a sustained note keeps its original handle.
type melodyLane struct {
	clock    Clock
	dev      Device
	reg      *Registry
	run      Run
	notes    []MelodyNote
	velocity uint8
	stale    func() bool

	j           int
	pitchEnd    map[uint8]time.Time
	pitchHandle map[uint8]string
	pending     []pendingRelease
	maxLate     time.Duration
}

func newMelodyLane(clock Clock, dev Device, reg *Registry, run Run, notes []MelodyNote, velocity uint8, stale func() bool) *melodyLane {
	if stale == nil {
		stale = func() bool { return false }
	}
	return &melodyLane{
		clock:       clock,
		dev:         dev,
		reg:         reg,
		run:         run,
		notes:       notes,
		velocity:    velocity,
		stale:       stale,
		pitchEnd:    make(map[uint8]time.Time),
		pitchHandle: make(map[uint8]string),
	}
}

func (m *melodyLane) nextDeadline() (time.Time, bool) {
	var at time.Time
	ok := false
	if m.j < len(m.notes) {
		at = m.clock.TimeFromTicks(m.run.Epoch, m.notes[m.j].StartTick)
		ok = true
	}
	if i := m.earliestPending(); i >= 0 {
		if !ok || m.pending[i].at.Before(at) {
			at = m.pending[i].at
			ok = true
		}
	}
	return at, ok
}

func (m *melodyLane) earliestPending() int {
	best := -1
	for i := range m.pending {
		if best < 0 || m.pending[i].at.Before(m.pending[best].at) {
			best = i
		}
	}
	return best
}

func (m *melodyLane) advance(now time.Time) {
	// A release due at the same instant as the next onset fires first,
	// so a retrigger of the same pitch observes release-then-trigger.
	p := m.earliestPending()
	if p >= 0 {
		eventDue := m.j < len(m.notes) &&
			m.clock.TimeFromTicks(m.run.Epoch, m.notes[m.j].StartTick).Before(m.pending[p].at)
		if !eventDue {
			m.firePending(p)
			return
		}
	}
	if m.j < len(m.notes) {
		m.handleEvent(now)
	}
}

func (m *melodyLane) firePending(i int) {
	p := m.pending[i]
	m.pending[i] = m.pending[len(m.pending)-1]
	m.pending = m.pending[:len(m.pending)-1]

	if m.stale() {
		debug.Log("melody", "stale release for pitch %d dropped (run %d superseded)", p.pitch, m.run.ID)
		return
	}

	// A later sustain may have pushed this pitch's window out; keep the
	// note sounding and re-arm at the extended end.
	if end, ok := m.pitchEnd[p.pitch]; ok && end.After(p.at) {
		m.pending = append(m.pending, pendingRelease{at: end, id: p.id, pitch: p.pitch})
		return
	}

	if _, ok := m.reg.Release(p.id); !ok {
		debug.Log("melody", "release for unknown handle %s (pitch %d)", p.id, p.pitch)
	} else if err := m.dev.Release(p.id); err != nil {
		debug.Log("melody", "release %s failed: %v", p.id, err)
	}
	if m.pitchHandle[p.pitch] == p.id {
		delete(m.pitchHandle, p.pitch)
		delete(m.pitchEnd, p.pitch)
	}
}

func (m *melodyLane) handleEvent(now time.Time) {
	j := m.j
	m.j++
	note := m.notes[j]
	target := m.clock.TimeFromTicks(m.run.Epoch, note.StartTick)
	if late := now.Sub(target); late > m.maxLate {
		m.maxLate = late
	}

	if !note.Playable() {
		debug.Log("melody", "event %d pitch %d skipped: duration=%d", j, note.Pitch, note.DurationTicks)
		return
	}

	end := m.clock.TimeFromTicks(m.run.Epoch, note.EndTick())

	// Sustain: the pitch is still inside its tracked window, so the
	// note that is already sounding keeps sounding. Retriggering the
	// identical pitch would produce an audible restart.
	if prev, ok := m.pitchEnd[note.Pitch]; ok && target.Before(prev) {
		if end.After(prev) {
			m.pitchEnd[note.Pitch] = end
		}
		debug.Log("melody", "event %d pitch %d sustained until %s", j, note.Pitch, m.pitchEnd[note.Pitch].Format("15:04:05.000"))
		return
	}

	// Retrigger: defensively release any handle the lane still tracks
	// for this pitch. Normally its timed release already fired.
	if id, ok := m.pitchHandle[note.Pitch]; ok {
		if _, found := m.reg.Release(id); found {
			if err := m.dev.Release(id); err != nil {
				debug.Log("melody", "stale release %s failed: %v", id, err)
			}
		} else {
			debug.Log("melody", "stale handle %s for pitch %d missing from registry", id, note.Pitch)
		}
		delete(m.pitchHandle, note.Pitch)
		delete(m.pitchEnd, note.Pitch)
	}

	id, err := m.dev.Trigger(note.Pitch, m.velocity, m.clock.DurationFromTicks(note.DurationTicks))
	if err != nil {
		debug.Log("melody", "event %d pitch %d trigger failed: %v", j, note.Pitch, err)
		return
	}
	handle := Handle{
		ID:             id,
		Pitch:          note.Pitch,
		Role:           RoleMelody,
		Region:         -1,
		MelodyIndex:    j,
		ScheduledOnset: target,
		Run:            m.run.ID,
	}
	if err := m.reg.Register(handle); err != nil {
		debug.Log("melody", "event %d register failed: %v", j, err)
		if err := m.dev.Release(id); err != nil {
			debug.Log("melody", "orphan release %s failed: %v", id, err)
		}
		return
	}
	m.pitchHandle[note.Pitch] = id
	m.pitchEnd[note.Pitch] = end
	m.pending = append(m.pending, pendingRelease{at: end, id: id, pitch: note.Pitch})
}
