package playback

import (
	"testing"
	"time"
)

func testClock() Clock {
	// 4 ticks per quarter, one second per quarter: tick = 250ms.
	return NewClock(4, 1.0)
}

func twoRegions() []ChordRegion {
	return []ChordRegion{
		{StartTick: 0, DurationTicks: 4, Voices: []uint8{48, 55, 60, 64}, Label: "C"},
		{StartTick: 4, DurationTicks: 4, Voices: []uint8{45, 57, 60, 65}, Label: "F/A"},
	}
}

func newHarmonyFixture(regions []ChordRegion, emphasizeBass bool) (*harmonyLane, *fakeDevice, *Registry) {
	dev := newFakeDevice()
	reg := NewRegistry()
	run := Run{ID: 1, Epoch: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Gen: 1}
	return newHarmonyLane(testClock(), dev, reg, run, regions, 96, emphasizeBass), dev, reg
}

func TestHarmonyRegionHandoff(t *testing.T) {
	h, dev, reg := newHarmonyFixture(twoRegions(), false)

	// First deadline: region 0 onset.
	at, ok := h.nextDeadline()
	if !ok {
		t.Fatal("no first deadline")
	}
	if want := h.run.Epoch; !at.Equal(want) {
		t.Fatalf("first deadline %v, want epoch %v", at, want)
	}
	h.advance(at)
	if got := reg.StructuralCount(0); got != 4 {
		t.Fatalf("after region 0 trigger: StructuralCount(0) = %d, want 4", got)
	}

	// Second deadline: region 1 onset, one quarter later. Releasing
	// region 0 and triggering region 1 happen in that single step.
	at2, ok := h.nextDeadline()
	if !ok {
		t.Fatal("no second deadline")
	}
	if want := h.run.Epoch.Add(time.Second); !at2.Equal(want) {
		t.Fatalf("second deadline %v, want %v", at2, want)
	}
	h.advance(at2)
	if got := reg.StructuralCount(0); got != 0 {
		t.Fatalf("after handoff: StructuralCount(0) = %d, want 0", got)
	}
	if got := reg.StructuralCount(1); got != 4 {
		t.Fatalf("after handoff: StructuralCount(1) = %d, want 4", got)
	}

	// The handoff's four releases precede its four triggers.
	calls := dev.snapshot()
	if len(calls) != 12 {
		t.Fatalf("got %d device calls, want 12", len(calls))
	}
	for i := 4; i < 8; i++ {
		if calls[i].kind != "release" {
			t.Errorf("call %d = %s, want release", i, calls[i].kind)
		}
	}
	for i := 8; i < 12; i++ {
		if calls[i].kind != "trigger" {
			t.Errorf("call %d = %s, want trigger", i, calls[i].kind)
		}
	}

	// Final deadline: end of last region.
	at3, ok := h.nextDeadline()
	if !ok {
		t.Fatal("no final deadline")
	}
	if want := h.run.Epoch.Add(2 * time.Second); !at3.Equal(want) {
		t.Fatalf("final deadline %v, want %v", at3, want)
	}
	h.advance(at3)
	if got := reg.StructuralCount(1); got != 0 {
		t.Fatalf("after drain: StructuralCount(1) = %d, want 0", got)
	}
	if _, ok := h.nextDeadline(); ok {
		t.Fatal("drained lane still offers a deadline")
	}
	if dev.activeCount() != 0 {
		t.Fatalf("%d notes still active at device after drain", dev.activeCount())
	}
}

func TestHarmonySkipsMalformedRegionKeepsTiming(t *testing.T) {
	regions := []ChordRegion{
		{StartTick: 0, DurationTicks: 4, Voices: []uint8{48, 55, 60, 64}, Label: "C"},
		{StartTick: 4, DurationTicks: 0, Voices: []uint8{50, 57, 62, 65}, Label: "bad"},
		{StartTick: 8, DurationTicks: 4, Voices: []uint8{45, 57, 60, 65}, Label: "F/A"},
	}
	h, dev, reg := newHarmonyFixture(regions, false)
	drive(h)

	// The malformed region produced no notes of its own pitches.
	if got := len(dev.callsFor(50, "trigger")); got != 0 {
		t.Fatalf("malformed region triggered %d notes", got)
	}
	// The region after it keeps its absolute onset: region 2 starts at
	// tick 8 = 2s after epoch regardless of the skip.
	trig := dev.callsFor(45, "trigger")
	if len(trig) != 1 {
		t.Fatalf("region 2 bass triggered %d times, want 1", len(trig))
	}
	if got := reg.StructuralCount(2); got != 0 {
		t.Fatalf("StructuralCount(2) after drain = %d, want 0", got)
	}
	if dev.activeCount() != 0 {
		t.Fatalf("%d notes leaked", dev.activeCount())
	}
}

func TestHarmonySkipTimingDeadlines(t *testing.T) {
	regions := []ChordRegion{
		{StartTick: 0, DurationTicks: 4, Voices: []uint8{48, 55, 60, 64}},
		{StartTick: 4, DurationTicks: 0, Voices: []uint8{50, 57, 62, 65}},
		{StartTick: 8, DurationTicks: 4, Voices: []uint8{45, 57, 60, 65}},
	}
	h, _, _ := newHarmonyFixture(regions, false)

	var deadlines []time.Duration
	for {
		at, ok := h.nextDeadline()
		if !ok {
			break
		}
		deadlines = append(deadlines, at.Sub(h.run.Epoch))
		h.advance(at)
	}
	want := []time.Duration{0, time.Second, 2 * time.Second, 3 * time.Second}
	if len(deadlines) != len(want) {
		t.Fatalf("deadlines %v, want %v", deadlines, want)
	}
	for i := range want {
		if deadlines[i] != want[i] {
			t.Errorf("deadline %d = %v, want %v", i, deadlines[i], want[i])
		}
	}
}

func TestHarmonyWrongVoiceCountSkipped(t *testing.T) {
	regions := []ChordRegion{
		{StartTick: 0, DurationTicks: 4, Voices: []uint8{48, 55, 60}, Label: "threevoices"},
		{StartTick: 4, DurationTicks: 4, Voices: []uint8{45, 57, 60, 65}, Label: "F/A"},
	}
	h, dev, _ := newHarmonyFixture(regions, false)
	drive(h)

	if got := len(dev.callsOf("trigger")); got != 4 {
		t.Fatalf("%d triggers, want 4 (only the valid region)", got)
	}
	if dev.activeCount() != 0 {
		t.Fatalf("%d notes leaked", dev.activeCount())
	}
}

func TestHarmonyPartialVoicingOnBackendFailure(t *testing.T) {
	h, dev, reg := newHarmonyFixture(twoRegions(), false)
	dev.fail[55] = true // tenor of region 0 has no free voice

	at, _ := h.nextDeadline()
	h.advance(at)

	if got := reg.StructuralCount(0); got != 3 {
		t.Fatalf("StructuralCount(0) = %d, want 3 (partial voicing)", got)
	}
	drive(h)
	if dev.activeCount() != 0 {
		t.Fatalf("%d notes leaked after drain", dev.activeCount())
	}
}

func TestHarmonyBassEmphasis(t *testing.T) {
	h, dev, reg := newHarmonyFixture(twoRegions(), true)

	at, _ := h.nextDeadline()
	h.advance(at)

	// One embellishment an octave under the bass, not counted as
	// structural.
	if got := len(dev.callsFor(36, "trigger")); got != 1 {
		t.Fatalf("embellishment (pitch 36) triggered %d times, want 1", got)
	}
	if got := reg.StructuralCount(0); got != 4 {
		t.Fatalf("StructuralCount(0) = %d, want 4 with embellishment active", got)
	}
	if got := reg.ActiveCount(); got != 5 {
		t.Fatalf("ActiveCount = %d, want 5", got)
	}

	// The embellishment is swept together with its region.
	at2, _ := h.nextDeadline()
	h.advance(at2)
	if got := len(dev.callsFor(36, "release")); got != 1 {
		t.Fatalf("embellishment released %d times, want 1", got)
	}
	drive(h)
	if dev.activeCount() != 0 {
		t.Fatalf("%d notes leaked", dev.activeCount())
	}
}

func TestBassEmphasisPitch(t *testing.T) {
	tests := []struct {
		name   string
		voices []uint8
		want   uint8
		ok     bool
	}{
		{"normal", []uint8{48, 55, 60, 64}, 36, true},
		{"too low", []uint8{11, 55, 60, 64}, 0, false},
		{"duplicates a voice", []uint8{48, 36, 60, 64}, 0, false},
		{"empty", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := bassEmphasisPitch(tt.voices)
			if got != tt.want || ok != tt.ok {
				t.Errorf("bassEmphasisPitch(%v) = (%d,%v), want (%d,%v)", tt.voices, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestHarmonyHandleCollisionLeavesOwnerIntact(t *testing.T) {
	h, dev, reg := newHarmonyFixture(twoRegions(), false)
	dev.collideID = "same" // backend hands out the same id every time

	at, _ := h.nextDeadline()
	h.advance(at)

	// Only the first voice could be registered; collisions are refused
	// and their orphan notes released, never silently overwritten.
	if got := reg.StructuralCount(0); got != 1 {
		t.Fatalf("StructuralCount(0) = %d, want 1", got)
	}
}
