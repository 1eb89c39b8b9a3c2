package playback

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go-chorale/debug"
)

// Auditor is read-only instrumentation. It subscribes to the device's
// note notifications (when the device is Observable), compares what
// actually sounded against what the timelines scheduled, and reports
// discrepancies. It never mutates scheduling state.
type Auditor struct {
	mu      sync.Mutex
	clock   Clock
	run     Run
	regions []ChordRegion
	melody  []MelodyNote

	triggers int
	releases int
	open     map[string]NoteEvent
	orphans  []string
	doubles  []string
	maxDelta time.Duration
	attached bool
}

// NewAuditor creates an auditor with no run attached yet.
func NewAuditor() *Auditor {
	return &Auditor{open: make(map[string]NoteEvent)}
}

// Attach subscribes to a device's note notifications if it supports
// observation; otherwise the auditor only reports expectations.
func (a *Auditor) Attach(dev Device) {
	if obs, ok := dev.(Observable); ok {
		obs.Observe(a.note)
		a.mu.Lock()
		a.attached = true
		a.mu.Unlock()
	}
}

// BeginRun resets counters for a new run and records its expectations.
func (a *Auditor) BeginRun(run Run, regions []ChordRegion, melody []MelodyNote, clock Clock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.run = run
	a.regions = regions
	a.melody = melody
	a.clock = clock
	a.triggers = 0
	a.releases = 0
	a.open = make(map[string]NoteEvent)
	a.orphans = nil
	a.doubles = nil
	a.maxDelta = 0
}

func (a *Auditor) note(ev NoteEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ev.Onset {
		a.triggers++
		if _, already := a.open[ev.HandleID]; already {
			// Two triggers without an intervening release.
			a.doubles = append(a.doubles, ev.HandleID)
			debug.Log("audit", "double trigger for handle %s pitch %d", ev.HandleID, ev.Pitch)
		}
		a.open[ev.HandleID] = ev
		if d, ok := a.scheduleDelta(ev); ok && d > a.maxDelta {
			a.maxDelta = d
		}
		return
	}

	a.releases++
	if _, seen := a.open[ev.HandleID]; !seen {
		// Release for a handle never seen in a trigger.
		a.orphans = append(a.orphans, ev.HandleID)
		debug.Log("audit", "release for unseen handle %s pitch %d", ev.HandleID, ev.Pitch)
		return
	}
	delete(a.open, ev.HandleID)
}

// scheduleDelta finds the scheduled onset nearest the observed trigger
// among every expected onset of the event's pitch, across both
// timelines.
func (a *Auditor) scheduleDelta(ev NoteEvent) (time.Duration, bool) {
	best := time.Duration(math.MaxInt64)
	found := false
	consider := func(t Tick) {
		at := a.clock.TimeFromTicks(a.run.Epoch, t)
		d := ev.At.Sub(at)
		if d < 0 {
			d = -d
		}
		if d < best {
			best = d
			found = true
		}
	}
	for _, r := range a.regions {
		if !r.Playable() {
			continue
		}
		for _, v := range r.Voices {
			if v == ev.Pitch || v == ev.Pitch+12 {
				consider(r.StartTick)
			}
		}
	}
	for _, n := range a.melody {
		if n.Playable() && n.Pitch == ev.Pitch {
			consider(n.StartTick)
		}
	}
	return best, found
}

// Report summarizes a run: expected vs actual counts plus integrity
// findings. Suitable for logging or test assertions.
type Report struct {
	RunID           uint64   `json:"runId"`
	Observed        bool     `json:"observed"`
	ExpectedRegions int      `json:"expectedRegions"`
	ExpectedMelody  int      `json:"expectedMelody"`
	Triggers        int      `json:"triggers"`
	Releases        int      `json:"releases"`
	StillOpen       int      `json:"stillOpen"`
	OrphanReleases  []string `json:"orphanReleases,omitempty"`
	DoubleTriggers  []string `json:"doubleTriggers,omitempty"`
	MaxDeltaSeconds float64  `json:"maxDeltaSeconds"`
}

// Report returns the current run's findings.
func (a *Auditor) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	expectedRegions := 0
	for _, r := range a.regions {
		if r.Playable() {
			expectedRegions++
		}
	}
	expectedMelody := 0
	for _, n := range a.melody {
		if n.Playable() {
			expectedMelody++
		}
	}
	return Report{
		RunID:           a.run.ID,
		Observed:        a.attached,
		ExpectedRegions: expectedRegions,
		ExpectedMelody:  expectedMelody,
		Triggers:        a.triggers,
		Releases:        a.releases,
		StillOpen:       len(a.open),
		OrphanReleases:  append([]string(nil), a.orphans...),
		DoubleTriggers:  append([]string(nil), a.doubles...),
		MaxDeltaSeconds: a.maxDelta.Seconds(),
	}
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %d: expected %d regions / %d melody events, observed %d triggers / %d releases",
		r.RunID, r.ExpectedRegions, r.ExpectedMelody, r.Triggers, r.Releases)
	if r.StillOpen > 0 {
		fmt.Fprintf(&b, ", %d still open", r.StillOpen)
	}
	if len(r.OrphanReleases) > 0 {
		fmt.Fprintf(&b, ", %d orphan releases", len(r.OrphanReleases))
	}
	if len(r.DoubleTriggers) > 0 {
		fmt.Fprintf(&b, ", %d double triggers", len(r.DoubleTriggers))
	}
	fmt.Fprintf(&b, ", max timing delta %.1fms", r.MaxDeltaSeconds*1000)
	return b.String()
}
