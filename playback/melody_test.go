package playback

import (
	"testing"
	"time"
)

func newMelodyFixture(notes []MelodyNote, stale func() bool) (*melodyLane, *fakeDevice, *Registry) {
	dev := newFakeDevice()
	reg := NewRegistry()
	run := Run{ID: 1, Epoch: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Gen: 1}
	SortMelody(notes)
	return newMelodyLane(testClock(), dev, reg, run, notes, 96, stale), dev, reg
}

func TestMelodySustainSuppressesRetrigger(t *testing.T) {
	// Second event starts inside the first one's window on the same
	// pitch: exactly one trigger at tick 0 and one release at tick 8.
	notes := []MelodyNote{
		{StartTick: 0, DurationTicks: 8, Pitch: 60},
		{StartTick: 4, DurationTicks: 4, Pitch: 60},
	}
	m, dev, _ := newMelodyFixture(notes, nil)
	drive(m)

	if got := len(dev.callsFor(60, "trigger")); got != 1 {
		t.Fatalf("pitch 60 triggered %d times, want 1", got)
	}
	rel := dev.callsFor(60, "release")
	if len(rel) != 1 {
		t.Fatalf("pitch 60 released %d times, want 1", len(rel))
	}
	if dev.activeCount() != 0 {
		t.Fatalf("%d notes still active", dev.activeCount())
	}
}

func TestMelodySustainExtendsWindow(t *testing.T) {
	// The second event outlives the first: the single release fires at
	// the extended end (tick 10), not the original end (tick 6).
	notes := []MelodyNote{
		{StartTick: 0, DurationTicks: 6, Pitch: 60},
		{StartTick: 4, DurationTicks: 6, Pitch: 60},
	}
	m, dev, _ := newMelodyFixture(notes, nil)

	var last time.Time
	for {
		at, ok := m.nextDeadline()
		if !ok {
			break
		}
		last = at
		m.advance(at)
	}
	if got := len(dev.callsFor(60, "trigger")); got != 1 {
		t.Fatalf("pitch 60 triggered %d times, want 1", got)
	}
	if got := len(dev.callsFor(60, "release")); got != 1 {
		t.Fatalf("pitch 60 released %d times, want 1", got)
	}
	want := m.run.Epoch.Add(2500 * time.Millisecond) // tick 10 at 250ms/tick
	if !last.Equal(want) {
		t.Fatalf("final release deadline %v, want %v", last, want)
	}
}

func TestMelodyRetriggerAfterWindow(t *testing.T) {
	// Back-to-back events on the same pitch: two triggers and two
	// releases, release of the first not after the second trigger.
	notes := []MelodyNote{
		{StartTick: 0, DurationTicks: 4, Pitch: 60},
		{StartTick: 4, DurationTicks: 4, Pitch: 60},
	}
	m, dev, _ := newMelodyFixture(notes, nil)
	drive(m)

	if got := len(dev.callsFor(60, "trigger")); got != 2 {
		t.Fatalf("pitch 60 triggered %d times, want 2", got)
	}
	if got := len(dev.callsFor(60, "release")); got != 2 {
		t.Fatalf("pitch 60 released %d times, want 2", got)
	}
	// Strict order for the boundary: first release precedes second
	// trigger in the call sequence.
	calls := dev.snapshot()
	wantKinds := []string{"trigger", "release", "trigger", "release"}
	if len(calls) != len(wantKinds) {
		t.Fatalf("%d device calls, want %d", len(calls), len(wantKinds))
	}
	for i, k := range wantKinds {
		if calls[i].kind != k {
			t.Errorf("call %d = %s, want %s", i, calls[i].kind, k)
		}
	}
}

func TestMelodyIndependentPitchesOverlap(t *testing.T) {
	notes := []MelodyNote{
		{StartTick: 0, DurationTicks: 8, Pitch: 60},
		{StartTick: 2, DurationTicks: 8, Pitch: 64},
	}
	m, dev, reg := newMelodyFixture(notes, nil)

	// Advance through both onsets only.
	driveUntil(m, m.run.Epoch.Add(600*time.Millisecond))
	if got := reg.MelodyCount(); got != 2 {
		t.Fatalf("MelodyCount = %d, want 2 overlapping notes", got)
	}
	drive(m)
	if dev.activeCount() != 0 {
		t.Fatalf("%d notes leaked", dev.activeCount())
	}
}

func TestMelodySkipsMalformedEvent(t *testing.T) {
	notes := []MelodyNote{
		{StartTick: 0, DurationTicks: 0, Pitch: 60},
		{StartTick: 4, DurationTicks: 4, Pitch: 62},
	}
	m, dev, _ := newMelodyFixture(notes, nil)
	drive(m)

	if got := len(dev.callsFor(60, "trigger")); got != 0 {
		t.Fatalf("zero-duration event triggered %d times, want 0", got)
	}
	if got := len(dev.callsFor(62, "trigger")); got != 1 {
		t.Fatalf("valid event triggered %d times, want 1", got)
	}
}

func TestMelodyStaleGenerationDropsDeferredRelease(t *testing.T) {
	notes := []MelodyNote{{StartTick: 0, DurationTicks: 4, Pitch: 60}}
	stale := false
	m, dev, reg := newMelodyFixture(notes, func() bool { return stale })

	at, _ := m.nextDeadline()
	m.advance(at) // trigger
	if reg.MelodyCount() != 1 {
		t.Fatal("note not registered")
	}

	// A new run supersedes this one before the deferred release fires.
	stale = true
	drive(m)

	// The stale deferred release must be a no-op: the cancellation
	// sweep owns the actual silencing.
	if got := len(dev.callsFor(60, "release")); got != 0 {
		t.Fatalf("stale deferred release fired %d times, want 0", got)
	}
	if reg.MelodyCount() != 1 {
		t.Fatal("stale release removed the handle from the registry")
	}
}

func TestMelodyDeadlineOrderReleaseBeforeNextEvent(t *testing.T) {
	// A pending release due at the same instant as the next onset of
	// the same pitch fires first, giving release-then-trigger.
	notes := []MelodyNote{
		{StartTick: 0, DurationTicks: 4, Pitch: 60},
		{StartTick: 4, DurationTicks: 2, Pitch: 60},
	}
	m, _, _ := newMelodyFixture(notes, nil)

	at0, _ := m.nextDeadline()
	m.advance(at0)

	// Next deadline is tick 4, shared by the release and the onset.
	at1, ok := m.nextDeadline()
	if !ok || !at1.Equal(m.run.Epoch.Add(time.Second)) {
		t.Fatalf("deadline = %v, want epoch+1s", at1)
	}
	m.advance(at1) // must fire the release
	if m.j != 1 {
		t.Fatalf("event cursor advanced to %d during the release step, want 1", m.j)
	}
	m.advance(at1) // now the onset
	if m.j != 2 {
		t.Fatalf("event cursor = %d after onset step, want 2", m.j)
	}
}

func TestMelodyChordPitchDoesNotSuppressTrigger(t *testing.T) {
	// Policy: sustain tracking is melody-local. A chord voice already
	// sounding on the same MIDI number never suppresses a melody
	// trigger.
	dev := newFakeDevice()
	reg := NewRegistry()
	run := Run{ID: 1, Epoch: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Gen: 1}

	// A chord voice on pitch 60 is already registered.
	id, _ := dev.Trigger(60, 96, time.Second)
	reg.Register(Handle{ID: id, Pitch: 60, Role: RoleAlto, Region: 0, MelodyIndex: -1, Run: 1})

	notes := []MelodyNote{{StartTick: 0, DurationTicks: 4, Pitch: 60}}
	m := newMelodyLane(testClock(), dev, reg, run, notes, 96, nil)
	drive(m)

	if got := len(dev.callsFor(60, "trigger")); got != 2 {
		t.Fatalf("pitch 60 triggered %d times, want 2 (chord voice + melody)", got)
	}
}
