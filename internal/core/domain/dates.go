package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Today returns the calendar date of now in loc. A nil loc means UTC.
func Today(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc))
}

// DaysIn returns the number of days in the given month of year.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsLeapYear reports whether year has a Feb 29.
func IsLeapYear(year int) bool {
	return DaysIn(year, time.February) == 29
}

// clampedDate builds year-month-day, pulling day back to the month's last day when it overflows.
func clampedDate(year int, month time.Month, day int) civil.Date {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// addMonths moves (year, month) forward by n months.
func addMonths(year int, month time.Month, n int) (int, time.Month) {
	idx := year*12 + int(month-1) + n
	return idx / 12, time.Month(idx%12 + 1)
}

// monthsBetween counts whole calendar months from a's month to b's month.
func monthsBetween(a, b civil.Date) int {
	return (b.Year-a.Year)*12 + int(b.Month-a.Month)
}

func weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

func maxDate(a, b civil.Date) civil.Date {
	if a.After(b) {
		return a
	}
	return b
}

func isZeroDate(d civil.Date) bool {
	return d == civil.Date{}
}

// DatePtr returns a pointer to a copy of d.
func DatePtr(d civil.Date) *civil.Date {
	return &d
}

func monthOf(m int) time.Month {
	return time.Month(m)
}

// nextPeriodStart is the first date of the recurrence period following the one d
// falls in. Weekly periods are seven days from d, biweekly fourteen.
func nextPeriodStart(f Frequency, d civil.Date) civil.Date {
	switch f {
	case Weekly:
		return d.AddDays(7)
	case Biweekly:
		return d.AddDays(biweeklyPeriod)
	case Monthly:
		y, m := addMonths(d.Year, d.Month, 1)
		return civil.Date{Year: y, Month: m, Day: 1}
	case Quarterly:
		y, m := addMonths(d.Year, d.Month, 3)
		return civil.Date{Year: y, Month: m, Day: 1}
	case Yearly:
		return civil.Date{Year: d.Year + 1, Month: time.January, Day: 1}
	default:
		return d.AddDays(1)
	}
}
