package app

import (
	"os"
	"syscall"
)

// StopReason is logged when the app shuts down.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

// StopReasonFromSignal maps an OS signal to a StopReason.
func StopReasonFromSignal(sig os.Signal) StopReason {
	switch sig {
	case os.Interrupt:
		return StopSIGINT
	case syscall.SIGTERM:
		return StopSIGTERM
	default:
		return StopUnknown
	}
}
