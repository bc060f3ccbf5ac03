package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "cronex",
	Short: "Run recurring fetch jobs and user registration triggers",
	Long: `cronex fires a fetch-and-persist task on cron and interval rules and
registers users from synthetic or in-process signup events.

Without --config the built-in schedules are used.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("cronex version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (json, yaml or toml)")
	rootCmd.AddCommand(versionCmd)
}
