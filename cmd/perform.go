package cmd

import (
	"fmt"

	"go-chorale/config"
	"go-chorale/midi"
	"go-chorale/playback"
	"go-chorale/score"
	"go-chorale/synth"
	"go-chorale/voicing"
)

// performance bundles everything one playback session needs.
type performance struct {
	file    *score.File
	clock   playback.Clock
	regions []playback.ChordRegion
	melody  []playback.MelodyNote
	auditor *playback.Auditor
	cond    *playback.Conductor
	closer  func() error
}

// buildPerformance loads the score (or the demo when path is empty),
// opens the configured output and wires up a conductor.
func buildPerformance(cfg *config.Config, scorePath, melodyPath string) (*performance, error) {
	var f *score.File
	if scorePath == "" {
		f = score.Demo()
	} else {
		var err error
		f, err = score.Load(scorePath)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Playback.TicksPerQuarter > 0 {
		f.TicksPerQuarter = cfg.Playback.TicksPerQuarter
	}
	if cfg.Playback.Tempo > 0 {
		f.Tempo = cfg.Playback.Tempo
	}
	clock := f.Clock()

	regions, melody, err := f.Build(voicing.NewLeadVoicer())
	if err != nil {
		return nil, err
	}
	if melodyPath != "" {
		melody, err = score.ImportMelody(melodyPath, clock.TicksPerQuarter())
		if err != nil {
			return nil, err
		}
	}

	var dev playback.Device
	var closer func() error
	switch cfg.Output.Backend {
	case config.BackendMIDI:
		out, err := midi.OpenOutput(cfg.Output.PortName, cfg.Output.Channel)
		if err != nil {
			return nil, err
		}
		dev = out
		closer = out.Close
	case config.BackendSynth, "":
		sy, err := synth.New()
		if err != nil {
			return nil, err
		}
		dev = sy
		closer = sy.Close
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Output.Backend)
	}

	auditor := playback.NewAuditor()
	cond := playback.NewConductor(dev, clock,
		playback.WithVelocity(cfg.Playback.Velocity),
		playback.WithBassEmphasis(cfg.Playback.EmphasizeBass),
		playback.WithAuditor(auditor),
	)

	return &performance{
		file:    f,
		clock:   clock,
		regions: regions,
		melody:  melody,
		auditor: auditor,
		cond:    cond,
		closer:  closer,
	}, nil
}

func (p *performance) play() error {
	return p.cond.Play(p.regions, p.melody)
}

func (p *performance) close() {
	p.cond.Stop()
	if p.closer != nil {
		p.closer()
	}
}

func (p *performance) title() string {
	if p.file.Title != "" {
		return p.file.Title
	}
	return "untitled"
}
