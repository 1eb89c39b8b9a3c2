package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-chorale/debug"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "chorale",
	Short: "Four-voice chorale playback",
	Long: `Plays scores as a four-voice harmonic timeline plus an independent
melody, over a MIDI port or the built-in software synth.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugFlag {
			if err := debug.Enable(); err != nil {
				fmt.Printf("debug log: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "write a debug log under ~/.config/go-chorale")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
