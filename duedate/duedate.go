// Package duedate computes step due dates and overdue status. Business days
// are Monday through Friday; there is no holiday calendar.
package duedate

import "time"

// DueDate returns start plus limitDays. A zero limit returns start unchanged
// and means the step has no enforced limit; see Display.
func DueDate(start time.Time, limitDays int, calendar bool) time.Time {
	if limitDays <= 0 {
		return start
	}
	if calendar {
		return start.AddDate(0, 0, limitDays)
	}
	return addBusinessDays(start, limitDays)
}

func addBusinessDays(start time.Time, n int) time.Time {
	d := start
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if isBusinessDay(d) {
			n--
		}
	}
	return d
}

func isBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// Overdue compares calendar dates only. today is converted to due's
// location first so both sides name the same calendar.
func Overdue(due, today time.Time) bool {
	return calendarDate(due, due.Location()).Before(calendarDate(today, due.Location()))
}

// Display is Overdue for the presentation layer. A step created with a zero
// limit is never shown as overdue. A nil limit (legacy rows) behaves like a
// real deadline.
func Display(due, today time.Time, limitDays *int) bool {
	if limitDays != nil && *limitDays == 0 {
		return false
	}
	return Overdue(due, today)
}

func calendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
