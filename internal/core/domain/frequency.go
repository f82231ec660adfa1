package domain

import (
	"fmt"
	"strings"
)

// Frequency is how often a schedule recurs.
type Frequency string

const (
	Daily     Frequency = "DAILY"
	Weekly    Frequency = "WEEKLY"
	Biweekly  Frequency = "BIWEEKLY"
	Monthly   Frequency = "MONTHLY"
	Quarterly Frequency = "QUARTERLY"
	Yearly    Frequency = "YEARLY"
)

// Frequencies lists every supported frequency in display order.
var Frequencies = []Frequency{Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly}

// ParseFrequency accepts any casing of a known frequency name.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("unknown frequency %q, expected one of %v", s, Frequencies)
	}
	return f, nil
}

// IsValid reports whether f is one of the declared frequencies.
func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// UsesDayOfWeek reports whether the rule is anchored to a weekday.
func (f Frequency) UsesDayOfWeek() bool {
	return f == Weekly || f == Biweekly
}

// UsesDayOfMonth reports whether the rule is anchored to a day of the month.
func (f Frequency) UsesDayOfMonth() bool {
	return f == Monthly || f == Quarterly || f == Yearly
}

// UsesMonth reports whether the rule is anchored to a month of the year.
func (f Frequency) UsesMonth() bool {
	return f == Yearly
}

// Label is the human readable name shown next to a schedule.
func (f Frequency) Label() string {
	switch f {
	case Daily:
		return "Daily"
	case Weekly:
		return "Weekly"
	case Biweekly:
		return "Every 2 weeks"
	case Monthly:
		return "Monthly"
	case Quarterly:
		return "Quarterly"
	case Yearly:
		return "Yearly"
	}
	return string(f)
}
