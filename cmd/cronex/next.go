package main

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cronex/internal/task/scheduler"
)

var (
	nextCount int
	nextTZ    string
)

var nextCmd = &cobra.Command{
	Use:   "next [rule]",
	Short: "Print the next fire times of a recurrence rule",
	Long: `Prints the next fire times of a rule. Accepted forms:
  cron with seconds   "*/5 * * * * *"
  cron                "*/2 * * * *", "@hourly"
  interval            "55m", "02:30"`,
	Example: `  cronex next "0 * * * *" -n 3
  cronex next "*/5 * * * * *" --tz UTC`,
	Args: cobra.ExactArgs(1),
	RunE: runNext,
}

func init() {
	nextCmd.Flags().IntVarP(&nextCount, "count", "n", 5, "number of fire times")
	nextCmd.Flags().StringVar(&nextTZ, "tz", "", "IANA timezone (default local)")
	rootCmd.AddCommand(nextCmd)
}

func runNext(cmd *cobra.Command, args []string) error {
	if nextCount <= 0 {
		return errors.New("count must be > 0")
	}
	loc := time.Local
	if tz := strings.TrimSpace(nextTZ); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return err
		}
		loc = l
	}
	ps, err := scheduler.ParseSchedule(args[0])
	if err != nil {
		return err
	}
	runs, err := scheduler.NextRuns(args[0], time.Now(), loc, nextCount)
	if err != nil {
		return err
	}
	cmd.Printf("%s (%s)\n", ps.Spec(), ps.Kind)
	for _, t := range runs {
		cmd.Println(t.Format(time.RFC3339))
	}
	return nil
}
