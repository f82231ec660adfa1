package domain

import (
	"cloud.google.com/go/civil"
)

// biweeklyPeriod is the length of a biweekly anchor window in days.
const biweeklyPeriod = 14

// FirstOccurrence returns the earliest date on or after the rule's start date that
// satisfies its anchor. ok is false when that date is past the end date.
func FirstOccurrence(r RecurrenceRule) (civil.Date, bool) {
	return onOrAfter(r, r.StartDate)
}

// NextOccurrence returns the earliest matching date strictly after after.
// ok is false when no occurrence remains before the end date.
func NextOccurrence(r RecurrenceRule, after civil.Date) (civil.Date, bool) {
	return onOrAfter(r, after.AddDays(1))
}

// NextOnOrAfter returns the earliest matching date that is not before d.
func NextOnOrAfter(r RecurrenceRule, d civil.Date) (civil.Date, bool) {
	return onOrAfter(r, d)
}

// Occurrences lists up to limit matching dates on or after from.
func Occurrences(r RecurrenceRule, from civil.Date, limit int) []civil.Date {
	out := make([]civil.Date, 0, limit)
	d, ok := onOrAfter(r, from)
	for ok && len(out) < limit {
		out = append(out, d)
		d, ok = NextOccurrence(r, d)
	}
	return out
}

func onOrAfter(r RecurrenceRule, lower civil.Date) (civil.Date, bool) {
	if !anchorsPresent(r) {
		return civil.Date{}, false
	}
	lower = maxDate(lower, r.StartDate)

	var d civil.Date
	switch r.Frequency {
	case Daily:
		d = lower
	case Weekly:
		d = nextWeekday(lower, *r.DayOfWeek)
	case Biweekly:
		d = nextBiweekly(r, lower)
	case Monthly:
		d = nextInPeriod(r, lower, 1)
	case Quarterly:
		d = nextInPeriod(r, lower, 3)
	case Yearly:
		d = nextYearly(r, lower)
	default:
		return civil.Date{}, false
	}

	if r.Exceeds(d) {
		return civil.Date{}, false
	}
	return d, true
}

func anchorsPresent(r RecurrenceRule) bool {
	if isZeroDate(r.StartDate) {
		return false
	}
	if r.Frequency.UsesDayOfWeek() && r.DayOfWeek == nil {
		return false
	}
	if r.Frequency.UsesDayOfMonth() && r.DayOfMonth == nil {
		return false
	}
	if r.Frequency.UsesMonth() && r.Month == nil {
		return false
	}
	return true
}

func nextWeekday(d civil.Date, dow int) civil.Date {
	delta := (dow - int(weekday(d)) + 7) % 7
	return d.AddDays(delta)
}

// nextBiweekly walks the 14-day grid that starts at the first matching weekday
// on or after the start date.
func nextBiweekly(r RecurrenceRule, lower civil.Date) civil.Date {
	anchor := biweeklyAnchor(r)
	gap := lower.DaysSince(anchor)
	if gap <= 0 {
		return anchor
	}
	periods := (gap + biweeklyPeriod - 1) / biweeklyPeriod
	return anchor.AddDays(periods * biweeklyPeriod)
}

func biweeklyAnchor(r RecurrenceRule) civil.Date {
	return nextWeekday(r.StartDate, *r.DayOfWeek)
}

// nextInPeriod handles monthly (step 1) and quarterly (step 3) rules. Periods are
// counted from the start date's month, and each period's candidate day is clamped
// to the month's length.
func nextInPeriod(r RecurrenceRule, lower civil.Date, step int) civil.Date {
	day := *r.DayOfMonth
	k := monthsBetween(r.StartDate, lower) / step
	// The candidate of period k+1 is in a later month than lower, so two periods suffice.
	y, m := addMonths(r.StartDate.Year, r.StartDate.Month, k*step)
	if c := clampedDate(y, m, day); !c.Before(lower) {
		return c
	}
	y, m = addMonths(r.StartDate.Year, r.StartDate.Month, (k+1)*step)
	return clampedDate(y, m, day)
}

func nextYearly(r RecurrenceRule, lower civil.Date) civil.Date {
	month := monthOf(*r.Month)
	if c := clampedDate(lower.Year, month, *r.DayOfMonth); !c.Before(lower) {
		return c
	}
	return clampedDate(lower.Year+1, month, *r.DayOfMonth)
}
