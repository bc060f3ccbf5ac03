// Package scheduler registers recurring schedules and turns their firings into
// engine tasks.
//
// The scheduler is responsible only for:
//   - parsing recurrence rules (cron with optional seconds, descriptors, intervals)
//   - computing next trigger times
//   - enqueueing tasks into the task engine, which owns execution, overlap
//     policy, timeouts and panic recovery
package scheduler
