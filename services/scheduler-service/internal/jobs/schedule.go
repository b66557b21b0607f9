package jobs

import "time"

// ReminderTime places the reminder lead before the booking start. A
// booking made inside the lead window gets an immediate reminder; a
// booking already started gets none.
func ReminderTime(start time.Time, lead time.Duration, now time.Time) (time.Time, bool) {
	if !start.After(now) {
		return time.Time{}, false
	}
	remindAt := start.Add(-lead)
	if remindAt.Before(now) {
		remindAt = now
	}
	return remindAt, true
}
