package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-chorale/config"
	"go-chorale/theme"
	"go-chorale/tui"
)

var playFlags struct {
	port       string
	channel    uint8
	useMIDI    bool
	velocity   uint8
	tempo      float64
	bassBoost  bool
	melodyPath string
	noTUI      bool
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().StringVar(&playFlags.port, "port", "", "MIDI output port (name or substring)")
	playCmd.Flags().Uint8Var(&playFlags.channel, "channel", 0, "MIDI channel 1-16")
	playCmd.Flags().BoolVar(&playFlags.useMIDI, "midi", false, "play over MIDI instead of the built-in synth")
	playCmd.Flags().Uint8Var(&playFlags.velocity, "velocity", 0, "note velocity 1-127")
	playCmd.Flags().Float64Var(&playFlags.tempo, "tempo", 0, "tempo in BPM, overrides the score")
	playCmd.Flags().BoolVar(&playFlags.bassBoost, "bass-emphasis", false, "double the bass an octave down")
	playCmd.Flags().StringVar(&playFlags.melodyPath, "midi-melody", "", "replace the score melody with one from a standard MIDI file")
	playCmd.Flags().BoolVar(&playFlags.noTUI, "no-tui", false, "play headless and print the audit report")
}

var playCmd = &cobra.Command{
	Use:   "play [score.json]",
	Short: "Play a score",
	Long: `Plays a score file, or the built-in demo progression when no file is
given. Chord regions without explicit voices are voiced automatically.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer gomidi.CloseDriver()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyPlayFlags(cmd, cfg)

		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		perf, err := buildPerformance(cfg, path, playFlags.melodyPath)
		if err != nil {
			return err
		}
		defer perf.close()

		if err := perf.play(); err != nil {
			return err
		}

		if playFlags.noTUI {
			for perf.cond.Playing() {
				time.Sleep(100 * time.Millisecond)
			}
			if report, ok := perf.cond.Report(); ok {
				fmt.Println(report.String())
			}
			return nil
		}

		th := theme.New(theme.Plasma())
		m := tui.NewModel(perf.cond, th, perf.title(), perf.play)
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return err
		}
		if report, ok := perf.cond.Report(); ok {
			fmt.Println(report.String())
		}
		return nil
	},
}

func applyPlayFlags(cmd *cobra.Command, cfg *config.Config) {
	if playFlags.useMIDI || cmd.Flags().Changed("port") {
		cfg.Output.Backend = config.BackendMIDI
	}
	if cmd.Flags().Changed("port") {
		cfg.Output.PortName = playFlags.port
	}
	if cmd.Flags().Changed("channel") {
		cfg.Output.Channel = playFlags.channel
	}
	if cmd.Flags().Changed("velocity") {
		cfg.Playback.Velocity = playFlags.velocity
	}
	if cmd.Flags().Changed("tempo") {
		cfg.Playback.Tempo = playFlags.tempo
	}
	if cmd.Flags().Changed("bass-emphasis") {
		cfg.Playback.EmphasizeBass = playFlags.bassBoost
	}
}
