// Package synth is a software playback device: one sine voice per
// sounding note, mixed through the speaker. It exists so go-chorale
// makes sound on machines without a MIDI synth attached.
package synth

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"go-chorale/debug"
	"go-chorale/playback"
)

const (
	sampleRate = beep.SampleRate(44100)
	maxVoices  = 32
)

// Device mixes sine voices through the beep speaker.
type Device struct {
	mu        sync.Mutex
	mixer     *beep.Mixer
	active    map[string]*voice
	observers []func(playback.NoteEvent)
	started   bool
}

var _ playback.Device = (*Device)(nil)
var _ playback.Observable = (*Device)(nil)

// New initializes the speaker and returns a ready device.
func New() (*Device, error) {
	d := &Device{
		mixer:  &beep.Mixer{},
		active: make(map[string]*voice),
	}
	if err := speaker.Init(sampleRate, sampleRate.N(time.Millisecond*50)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(d.mixer)
	d.started = true
	debug.Log("synth", "speaker started at %d Hz", sampleRate)
	return d, nil
}

// Trigger starts a voice for the pitch and returns its handle id. The
// nominal duration caps the voice's lifetime as a safety net in case
// its release is lost.
func (d *Device) Trigger(pitch, velocity uint8, nominal time.Duration) (string, error) {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return "", fmt.Errorf("synth not started")
	}
	if len(d.active) >= maxVoices {
		d.mu.Unlock()
		return "", fmt.Errorf("all %d voices busy", maxVoices)
	}
	v := newVoice(pitch, float64(velocity)/127.0, nominal)
	id := uuid.NewString()
	d.active[id] = v
	d.mu.Unlock()

	speaker.Lock()
	d.mixer.Add(v)
	speaker.Unlock()

	d.notify(playback.NoteEvent{Pitch: pitch, HandleID: id, Onset: true, At: time.Now()})
	return id, nil
}

// Release fades out the voice behind a handle.
func (d *Device) Release(id string) error {
	d.mu.Lock()
	v, ok := d.active[id]
	if ok {
		delete(d.active, id)
	}
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown handle %s", id)
	}
	speaker.Lock()
	v.release()
	speaker.Unlock()

	d.notify(playback.NoteEvent{Pitch: v.pitch, HandleID: id, Onset: false, At: time.Now()})
	return nil
}

// ReleaseAll fades out every sounding voice.
func (d *Device) ReleaseAll() error {
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

// Observe registers a callback for actual note activity.
func (d *Device) Observe(fn func(playback.NoteEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

func (d *Device) notify(ev playback.NoteEvent) {
	d.mu.Lock()
	obs := append([]func(playback.NoteEvent)(nil), d.observers...)
	d.mu.Unlock()
	for _, fn := range obs {
		fn(ev)
	}
}

// Close fades everything out and clears the mixer. beep has no
// speaker teardown; an empty mixer is silent.
func (d *Device) Close() error {
	d.ReleaseAll()
	speaker.Lock()
	d.mixer.Clear()
	speaker.Unlock()
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
	return nil
}

func pitchToFreq(pitch uint8) float64 {
	return 440.0 * math.Pow(2, (float64(pitch)-69.0)/12.0)
}
