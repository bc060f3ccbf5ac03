package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"cronex/internal/app"
	logx "cronex/pkg/logx"
)

var shutdownTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler and trigger runner until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func init() {
	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "upper bound for graceful shutdown")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}
	notify(a.Logger(), daemon.SdNotifyReady)

	reason := app.StopAppStop
	select {
	case sig := <-sigCh:
		reason = app.StopReasonFromSignal(sig)
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}
	notify(a.Logger(), daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	return a.Err()
}

// notify is a no-op outside systemd (NOTIFY_SOCKET unset).
func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
