package playback

import (
	"time"

	"go-chorale/debug"
)

// harmonyLane plays the chord regions in order. Each region's voices
// sound from its onset until the next region's onset; the release of
// region i-1 and the trigger of region i happen in the same step, in
// that order, so there is neither an audible gap nor an overlap at the
// boundary. After the last region the lane waits for its computed end
// and sweeps it, since no later region will do the handoff.
type harmonyLane struct {
	clock         Clock
	dev           Device
	reg           *Registry
	run           Run
	regions       []ChordRegion
	velocity      uint8
	emphasizeBass bool

	next     int // index of the next region deadline
	sounding int // region whose voices are registered, -1 if none
	finished bool
	maxLate  time.Duration
}

func newHarmonyLane(clock Clock, dev Device, reg *Registry, run Run, regions []ChordRegion, velocity uint8, emphasizeBass bool) *harmonyLane {
	return &harmonyLane{
		clock:         clock,
		dev:           dev,
		reg:           reg,
		run:           run,
		regions:       regions,
		velocity:      velocity,
		emphasizeBass: emphasizeBass,
		sounding:      -1,
	}
}

func (h *harmonyLane) nextDeadline() (time.Time, bool) {
	if h.finished || len(h.regions) == 0 {
		return time.Time{}, false
	}
	if h.next < len(h.regions) {
		return h.clock.TimeFromTicks(h.run.Epoch, h.regions[h.next].StartTick), true
	}
	last := h.regions[len(h.regions)-1]
	return h.clock.TimeFromTicks(h.run.Epoch, last.EndTick()), true
}

func (h *harmonyLane) advance(now time.Time) {
	if h.finished {
		return
	}
	if h.next >= len(h.regions) {
		// End of run: no successor region exists to stop the last chord.
		h.stopSounding()
		h.finished = true
		debug.Log("harmony", "run %d drained, %d regions", h.run.ID, len(h.regions))
		return
	}

	i := h.next
	h.next++
	region := h.regions[i]
	target := h.clock.TimeFromTicks(h.run.Epoch, region.StartTick)
	if late := now.Sub(target); late > h.maxLate {
		h.maxLate = late
	}

	// Region handoff: the previous chord is held for its full nominal
	// span and dropped at the instant the new one begins.
	h.stopSounding()

	if !region.Playable() {
		debug.Log("harmony", "region %d %q skipped: duration=%d voices=%d",
			i, region.Label, region.DurationTicks, len(region.Voices))
		return
	}

	h.triggerRegion(i, region, target)
	h.sounding = i
}

// stopSounding releases every handle of the currently sounding region.
func (h *harmonyLane) stopSounding() {
	if h.sounding < 0 {
		return
	}
	for _, held := range h.reg.ReleaseRegion(h.sounding) {
		if err := h.dev.Release(held.ID); err != nil {
			debug.Log("harmony", "release %s (%v %d) failed: %v", held.ID, held.Role, held.Pitch, err)
		}
	}
	h.sounding = -1
}

func (h *harmonyLane) triggerRegion(i int, region ChordRegion, target time.Time) {
	nominal := h.clock.DurationFromTicks(region.DurationTicks)

	for v, pitch := range region.Voices {
		h.triggerVoice(i, pitch, RoleBass+Role(v), nominal, target)
	}

	if h.emphasizeBass {
		if pitch, ok := bassEmphasisPitch(region.Voices); ok {
			h.triggerVoice(i, pitch, RoleEmbellishment, nominal, target)
		}
	}
}

// triggerVoice starts one note and registers it. A backend failure
// drops that single voice; partial voicing beats aborting playback.
func (h *harmonyLane) triggerVoice(i int, pitch uint8, role Role, nominal time.Duration, target time.Time) {
	id, err := h.dev.Trigger(pitch, h.velocity, nominal)
	if err != nil {
		debug.Log("harmony", "region %d %v pitch %d trigger failed: %v", i, role, pitch, err)
		return
	}
	handle := Handle{
		ID:             id,
		Pitch:          pitch,
		Role:           role,
		Region:         i,
		MelodyIndex:    -1,
		ScheduledOnset: target,
		Run:            h.run.ID,
	}
	if err := h.reg.Register(handle); err != nil {
		// Handle collision: refuse ownership and silence the orphan.
		debug.Log("harmony", "region %d register failed: %v", i, err)
		if err := h.dev.Release(id); err != nil {
			debug.Log("harmony", "orphan release %s failed: %v", id, err)
		}
	}
}

// bassEmphasisPitch returns the bass doubled one octave down, or false
// when it would leave the MIDI range or collide with a chord voice.
func bassEmphasisPitch(voices []uint8) (uint8, bool) {
	if len(voices) == 0 || voices[0] < 12 {
		return 0, false
	}
	p := voices[0] - 12
	for _, v := range voices {
		if v == p {
			return 0, false
		}
	}
	return p, true
}
