// Package logx wraps zerolog for cronex.
//
// Console lines are human-readable with a short timestamp and file:line
// caller; the optional file sink gets JSON lines. Service.Apply swaps level
// and sinks while the process runs, and Logger.Named tags the component.
package logx
