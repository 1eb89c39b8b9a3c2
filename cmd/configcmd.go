package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"go-chorale/config"
)

var configInit bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configInit, "init", false, "write the current config to disk")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if configInit {
			if err := cfg.Save(); err != nil {
				return err
			}
		}
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		fmt.Printf("config: %s\n", path)
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}
