package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-chorale/midi"
)

func init() {
	rootCmd.AddCommand(portsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports",
	Long:  `Lists the MIDI output and input ports the driver can see.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer gomidi.CloseDriver()

		outs, err := midi.ListOutputs()
		if err != nil {
			return err
		}
		fmt.Println("MIDI outputs:")
		if len(outs) == 0 {
			fmt.Println("  (none)")
		}
		for i, name := range outs {
			fmt.Printf("  %d: %s\n", i, name)
		}

		ins, err := midi.ListInputs()
		if err != nil {
			return err
		}
		fmt.Println("MIDI inputs:")
		if len(ins) == 0 {
			fmt.Println("  (none)")
		}
		for i, name := range ins {
			fmt.Printf("  %d: %s\n", i, name)
		}
		return nil
	},
}
