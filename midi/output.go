package midi

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-chorale/debug"
	"go-chorale/playback"
)

// Output is a playback device backed by one MIDI output port. Handle
// ids are minted locally (the wire protocol has none); the map from id
// to sounding pitch lives here so the core never needs to know MIDI
// details.
type Output struct {
	mu        sync.Mutex
	portName  string
	channel   uint8
	send      func(gomidi.Message) error
	active    map[string]uint8
	observers []func(playback.NoteEvent)
}

var _ playback.Device = (*Output)(nil)
var _ playback.Observable = (*Output)(nil)

// OpenOutput opens the named MIDI output port. An empty name picks the
// first available port. Channel is 1-16.
func OpenOutput(portName string, channel uint8) (*Output, error) {
	port, err := findOutPort(portName)
	if err != nil {
		return nil, err
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port.String(), err)
	}
	if channel < 1 || channel > 16 {
		channel = 1
	}
	debug.Log("midi", "opened output %s channel %d", port.String(), channel)
	return &Output{
		portName: port.String(),
		channel:  channel - 1,
		send:     send,
		active:   make(map[string]uint8),
	}, nil
}

// PortName returns the resolved port name.
func (o *Output) PortName() string {
	return o.portName
}

// Trigger sends a note-on and returns a fresh handle id. The nominal
// duration is ignored: releases are always explicit on MIDI.
func (o *Output) Trigger(pitch, velocity uint8, nominal time.Duration) (string, error) {
	o.mu.Lock()
	send := o.send
	ch := o.channel
	o.mu.Unlock()
	if send == nil {
		return "", fmt.Errorf("output %s is closed", o.portName)
	}

	if err := send(gomidi.NoteOn(ch, pitch, velocity)); err != nil {
		return "", fmt.Errorf("note on %d: %w", pitch, err)
	}
	id := uuid.NewString()

	o.mu.Lock()
	o.active[id] = pitch
	o.mu.Unlock()

	o.notify(playback.NoteEvent{Pitch: pitch, HandleID: id, Onset: true, At: time.Now()})
	return id, nil
}

// Release sends the note-off matching a handle returned by Trigger.
func (o *Output) Release(id string) error {
	o.mu.Lock()
	pitch, ok := o.active[id]
	if ok {
		delete(o.active, id)
	}
	send := o.send
	ch := o.channel
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown handle %s", id)
	}
	if send == nil {
		return fmt.Errorf("output %s is closed", o.portName)
	}
	if err := send(gomidi.NoteOff(ch, pitch)); err != nil {
		return fmt.Errorf("note off %d: %w", pitch, err)
	}
	o.notify(playback.NoteEvent{Pitch: pitch, HandleID: id, Onset: false, At: time.Now()})
	return nil
}

// ReleaseAll silences every note this output still holds.
func (o *Output) ReleaseAll() error {
	o.mu.Lock()
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := o.Release(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Observe registers a callback for actual note activity.
func (o *Output) Observe(fn func(playback.NoteEvent)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, fn)
}

func (o *Output) notify(ev playback.NoteEvent) {
	o.mu.Lock()
	obs := append([]func(playback.NoteEvent)(nil), o.observers...)
	o.mu.Unlock()
	for _, fn := range obs {
		fn(ev)
	}
}

// Close silences held notes and detaches from the port. The gomidi
// driver itself is closed once by the caller (gomidi.CloseDriver).
func (o *Output) Close() error {
	err := o.ReleaseAll()
	o.mu.Lock()
	o.send = nil
	o.mu.Unlock()
	return err
}
