package main

import (
	"github.com/spf13/cobra"

	"cronex/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and print its schedules",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return err
	}
	src := cfgPath
	if src == "" {
		src = "built-in defaults"
	}
	cmd.Printf("config OK (%s)\n", src)
	if !cfg.Fetch.Enabled {
		cmd.Println("fetch: disabled")
		return nil
	}
	for _, s := range cfg.Fetch.Schedules {
		cmd.Printf("  %-20s %s\n", s.Label, s.Rule)
	}
	return nil
}
