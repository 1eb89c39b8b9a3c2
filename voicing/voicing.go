// Package voicing is the collaborator surface the playback core
// consumes opaquely: something that turns a chord description into
// exactly four MIDI pitches, low to high. The stock LeadVoicer keeps
// each voice close to where it sat in the previous chord.
package voicing

import (
	"fmt"
	"sort"
)

// Chord is one chord to voice: its label (opaque to the engine) and
// its tones as pitch classes 0-11, root first.
type Chord struct {
	Label        string
	PitchClasses []uint8
}

// Voicer produces a four-voice spread for a chord, given the previous
// chord's voicing (nil for the first chord).
type Voicer interface {
	Voice(prev []uint8, chord Chord) ([]uint8, error)
}

// LeadVoicer places the root in the bass register and the remaining
// three voices in the upper register, each as near as possible to its
// predecessor.
type LeadVoicer struct {
	BassLow, BassHigh   uint8
	UpperLow, UpperHigh uint8
}

// NewLeadVoicer returns a voicer with conventional SATB-ish ranges.
func NewLeadVoicer() *LeadVoicer {
	return &LeadVoicer{BassLow: 36, BassHigh: 55, UpperLow: 55, UpperHigh: 81}
}

// Voice returns exactly four pitches, low to high.
func (l *LeadVoicer) Voice(prev []uint8, chord Chord) ([]uint8, error) {
	if len(chord.PitchClasses) < 3 {
		return nil, fmt.Errorf("chord %q has %d pitch classes, need at least 3", chord.Label, len(chord.PitchClasses))
	}
	for _, pc := range chord.PitchClasses {
		if pc > 11 {
			return nil, fmt.Errorf("chord %q has pitch class %d out of range", chord.Label, pc)
		}
	}

	var prevBass uint8 = 45
	prevUpper := []uint8{60, 64, 67}
	if len(prev) == 4 {
		prevBass = prev[0]
		prevUpper = prev[1:]
	}

	bass := nearestInRange(chord.PitchClasses[0], prevBass, l.BassLow, l.BassHigh)

	// Upper voices take the chord tones after the root; triads reuse
	// the root as the fourth tone.
	tones := append([]uint8(nil), chord.PitchClasses[1:]...)
	for len(tones) < 3 {
		tones = append(tones, chord.PitchClasses[0])
	}
	tones = tones[:3]

	upper := make([]uint8, 3)
	for i, pc := range tones {
		upper[i] = nearestInRange(pc, prevUpper[i], l.UpperLow, l.UpperHigh)
	}
	sort.Slice(upper, func(i, j int) bool { return upper[i] < upper[j] })

	// Keep the texture open: no upper voice under the bass.
	for i := range upper {
		for upper[i] < bass && upper[i]+12 <= l.UpperHigh {
			upper[i] += 12
		}
	}
	sort.Slice(upper, func(i, j int) bool { return upper[i] < upper[j] })

	return []uint8{bass, upper[0], upper[1], upper[2]}, nil
}

// nearestInRange returns the instance of a pitch class closest to the
// anchor, clamped into [low, high].
func nearestInRange(pc, anchor, low, high uint8) uint8 {
	base := int(anchor) - int(anchor)%12 + int(pc)
	best := -1
	for _, cand := range []int{base - 12, base, base + 12} {
		if cand < int(low) || cand > int(high) {
			continue
		}
		if best < 0 || abs(cand-int(anchor)) < abs(best-int(anchor)) {
			best = cand
		}
	}
	if best < 0 {
		// Anchor sits outside the range; take the lowest legal octave.
		best = int(low) + (int(pc)-int(low)%12+12)%12
		if best > int(high) {
			best = int(high)
		}
	}
	return uint8(best)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
