// Package score holds the upstream builders: score files on disk and
// their conversion into the playback timelines. Musical correctness is
// the file author's business; only temporal well-formedness is checked
// downstream.
package score

import (
	"encoding/json"
	"fmt"
	"os"

	"go-chorale/playback"
	"go-chorale/voicing"
)

// Region is one chord region as written in a score file. Either
// Voices gives the four pitches explicitly (low to high) or
// PitchClasses hands the chord to the voicing engine.
type Region struct {
	StartTick     int64   `json:"startTick"`
	DurationTicks int64   `json:"durationTicks"`
	Label         string  `json:"label,omitempty"`
	Voices        []uint8 `json:"voices,omitempty"`
	PitchClasses  []uint8 `json:"pitchClasses,omitempty"`
}

// Note is one melody event as written in a score file.
type Note struct {
	StartTick     int64 `json:"startTick"`
	DurationTicks int64 `json:"durationTicks"`
	Pitch         uint8 `json:"pitch"`
}

// File is a complete score document.
type File struct {
	Title           string   `json:"title,omitempty"`
	Tempo           float64  `json:"tempo,omitempty"`           // BPM
	TicksPerQuarter int      `json:"ticksPerQuarter,omitempty"` // default 480
	Regions         []Region `json:"regions"`
	Melody          []Note   `json:"melody,omitempty"`
}

// Load reads a score file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read score: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse score %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the score file to disk.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clock returns the playback clock the score asks for, with defaults
// applied.
func (f *File) Clock() playback.Clock {
	tpq := f.TicksPerQuarter
	if tpq == 0 {
		tpq = playback.DefaultTicksPerQuarter
	}
	bpm := f.Tempo
	if bpm == 0 {
		bpm = 120
	}
	return playback.ClockForTempo(tpq, bpm)
}

// Build converts the score into playback timelines. Regions without
// explicit voices go through the voicer, each seeing the previous
// region's voicing. A region that can be voiced neither way is a build
// error: the caller gets it before anything is scheduled.
func (f *File) Build(v voicing.Voicer) ([]playback.ChordRegion, []playback.MelodyNote, error) {
	regions := make([]playback.ChordRegion, 0, len(f.Regions))
	var prev []uint8
	for i, r := range f.Regions {
		voices := r.Voices
		if len(voices) == 0 {
			if len(r.PitchClasses) == 0 {
				return nil, nil, fmt.Errorf("region %d %q: no voices and no pitch classes", i, r.Label)
			}
			if v == nil {
				return nil, nil, fmt.Errorf("region %d %q: pitch classes given but no voicer", i, r.Label)
			}
			var err error
			voices, err = v.Voice(prev, voicing.Chord{Label: r.Label, PitchClasses: r.PitchClasses})
			if err != nil {
				return nil, nil, fmt.Errorf("region %d: %w", i, err)
			}
		}
		prev = voices
		regions = append(regions, playback.ChordRegion{
			StartTick:     r.StartTick,
			DurationTicks: r.DurationTicks,
			Voices:        voices,
			Label:         r.Label,
		})
	}

	melody := make([]playback.MelodyNote, 0, len(f.Melody))
	for _, n := range f.Melody {
		melody = append(melody, playback.MelodyNote{
			StartTick:     n.StartTick,
			DurationTicks: n.DurationTicks,
			Pitch:         n.Pitch,
		})
	}
	return regions, melody, nil
}

// Demo returns a small built-in progression so `chorale play` with no
// score still makes sound.
func Demo() *File {
	return &File{
		Title:           "demo",
		Tempo:           84,
		TicksPerQuarter: 4,
		Regions: []Region{
			{StartTick: 0, DurationTicks: 8, Label: "C", PitchClasses: []uint8{0, 4, 7}},
			{StartTick: 8, DurationTicks: 8, Label: "Am", PitchClasses: []uint8{9, 0, 4}},
			{StartTick: 16, DurationTicks: 8, Label: "F", PitchClasses: []uint8{5, 9, 0}},
			{StartTick: 24, DurationTicks: 8, Label: "G7", PitchClasses: []uint8{7, 11, 2, 5}},
			{StartTick: 32, DurationTicks: 16, Label: "C", PitchClasses: []uint8{0, 4, 7}},
		},
		Melody: []Note{
			{StartTick: 0, DurationTicks: 4, Pitch: 76},
			{StartTick: 4, DurationTicks: 4, Pitch: 72},
			{StartTick: 8, DurationTicks: 8, Pitch: 72},
			{StartTick: 16, DurationTicks: 2, Pitch: 69},
			{StartTick: 18, DurationTicks: 2, Pitch: 72},
			{StartTick: 20, DurationTicks: 4, Pitch: 77},
			{StartTick: 24, DurationTicks: 8, Pitch: 74},
			{StartTick: 32, DurationTicks: 16, Pitch: 72},
		},
	}
}
