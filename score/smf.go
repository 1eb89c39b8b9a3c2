package score

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"go-chorale/playback"
)

// ImportMelody reads a standard MIDI file and returns its notes as
// melody events at the given tick resolution. All tracks are merged;
// note-on/note-off pairing is per pitch, first-on-first-off.
func ImportMelody(path string, ticksPerQuarter int) (notes []playback.MelodyNote, err error) {
	// The SMF reader can panic on corrupt files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse midi file %s: %v", path, r)
		}
	}()

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("read midi file: %w", readErr)
	}
	rd, parseErr := smf.ReadFrom(bytes.NewReader(data))
	if parseErr != nil {
		return nil, fmt.Errorf("parse midi file %s: %w", path, parseErr)
	}

	metric, ok := rd.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, errors.New("midi file does not use metric time")
	}
	fileRes := int64(metric.Resolution())
	if ticksPerQuarter <= 0 {
		ticksPerQuarter = playback.DefaultTicksPerQuarter
	}

	type onset struct {
		tick  int64
		pitch uint8
	}
	var opens []onset

	for _, events := range rd.Tracks {
		var absTicks int64
		for _, event := range events {
			absTicks += int64(event.Delta)
			var channel, key, velocity uint8
			switch {
			case event.Message.GetNoteOn(&channel, &key, &velocity) && velocity > 0:
				opens = append(opens, onset{tick: absTicks, pitch: key})
			case event.Message.GetNoteOff(&channel, &key, &velocity),
				event.Message.GetNoteOn(&channel, &key, &velocity): // velocity 0 note-on
				for i, o := range opens {
					if o.pitch != key {
						continue
					}
					notes = append(notes, playback.MelodyNote{
						StartTick:     o.tick * int64(ticksPerQuarter) / fileRes,
						DurationTicks: (absTicks - o.tick) * int64(ticksPerQuarter) / fileRes,
						Pitch:         key,
					})
					opens = append(opens[:i], opens[i+1:]...)
					break
				}
			}
		}
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("no notes found in %s", path)
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].StartTick != notes[j].StartTick {
			return notes[i].StartTick < notes[j].StartTick
		}
		return notes[i].Pitch < notes[j].Pitch
	})
	return notes, nil
}
