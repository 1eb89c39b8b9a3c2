package synth

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

const (
	attackSamples  = 220  // ~5ms at 44.1kHz, avoids onset clicks
	releaseSamples = 1764 // ~40ms fade-out
)

// voice streams one sine tone. All fields are touched only under the
// speaker lock once the voice is in the mixer.
type voice struct {
	pitch     uint8
	step      float64 // phase increment per sample
	phase     float64
	gain      float64
	age       int
	maxAge    int // lifetime cap from the nominal duration, 0 = none
	releasing bool
	fade      int
	done      bool
}

var _ beep.Streamer = (*voice)(nil)

func newVoice(pitch uint8, gain float64, nominal time.Duration) *voice {
	v := &voice{
		pitch: pitch,
		step:  pitchToFreq(pitch) / float64(sampleRate),
		gain:  gain * 0.2, // headroom for chords
	}
	if nominal > 0 {
		// Grace period past the nominal end before the cap kicks in.
		v.maxAge = sampleRate.N(nominal + 2*time.Second)
	}
	return v
}

// release starts the fade-out. Call under the speaker lock.
func (v *voice) release() {
	if !v.releasing {
		v.releasing = true
		v.fade = releaseSamples
	}
}

func (v *voice) Stream(samples [][2]float64) (int, bool) {
	if v.done {
		return 0, false
	}
	for i := range samples {
		if v.maxAge > 0 && v.age >= v.maxAge {
			v.release()
		}
		env := v.gain
		if v.age < attackSamples {
			env *= float64(v.age) / attackSamples
		}
		if v.releasing {
			if v.fade <= 0 {
				v.done = true
				return i, i > 0
			}
			env *= float64(v.fade) / releaseSamples
			v.fade--
		}
		s := math.Sin(2 * math.Pi * v.phase) * env
		samples[i][0] = s
		samples[i][1] = s
		v.phase += v.step
		if v.phase >= 1 {
			v.phase -= 1
		}
		v.age++
	}
	return len(samples), true
}

func (v *voice) Err() error { return nil }
