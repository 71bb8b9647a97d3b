// Package schedule enqueues announcement text on cron or interval
// schedules. It only triggers; delivery pacing stays with the dispatcher.
package schedule
