package domain

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
)

// RecurrenceRule is the declarative "every X" part of a schedule.
// Only the anchors relevant to Frequency are meaningful; Normalize drops the rest.
type RecurrenceRule struct {
	Frequency  Frequency   `json:"frequency"`
	DayOfWeek  *int        `json:"dayOfWeek,omitempty"`  // 0 (Sunday) - 6, weekly and biweekly
	DayOfMonth *int        `json:"dayOfMonth,omitempty"` // 1 - 31, monthly, quarterly and yearly
	Month      *int        `json:"month,omitempty"`      // 1 - 12, yearly
	StartDate  civil.Date  `json:"startDate"`            // inclusive
	EndDate    *civil.Date `json:"endDate,omitempty"`    // inclusive, nil means unbounded
}

// Validate checks that the anchors required by Frequency are present and in range.
func (r RecurrenceRule) Validate() error {
	if !r.Frequency.IsValid() {
		return apperrors.NewValidationError("frequency", "unknown frequency %q, expected one of %v", string(r.Frequency), Frequencies)
	}
	if isZeroDate(r.StartDate) || !r.StartDate.IsValid() {
		return apperrors.NewValidationError("startDate", "start date is required")
	}
	if r.EndDate != nil {
		if !r.EndDate.IsValid() {
			return apperrors.NewValidationError("endDate", "end date %s is not a valid date", r.EndDate.String())
		}
		if r.EndDate.Before(r.StartDate) {
			return apperrors.NewValidationError("endDate", "end date %s is before start date %s", r.EndDate.String(), r.StartDate.String())
		}
	}

	if r.Frequency.UsesDayOfWeek() {
		if r.DayOfWeek == nil {
			return apperrors.NewValidationError("dayOfWeek", "required for %s schedules", r.Frequency.Label())
		}
		if *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return apperrors.NewValidationError("dayOfWeek", "must be between 0 and 6, got %d", *r.DayOfWeek)
		}
	}
	if r.Frequency.UsesDayOfMonth() {
		if r.DayOfMonth == nil {
			return apperrors.NewValidationError("dayOfMonth", "required for %s schedules", r.Frequency.Label())
		}
		if *r.DayOfMonth < 1 || *r.DayOfMonth > 31 {
			return apperrors.NewValidationError("dayOfMonth", "must be between 1 and 31, got %d", *r.DayOfMonth)
		}
	}
	if r.Frequency.UsesMonth() {
		if r.Month == nil {
			return apperrors.NewValidationError("month", "required for %s schedules", r.Frequency.Label())
		}
		if *r.Month < 1 || *r.Month > 12 {
			return apperrors.NewValidationError("month", "must be between 1 and 12, got %d", *r.Month)
		}
		// Feb 30/31 can never occur; Feb 29 clamps to Feb 28 in common years.
		if time.Month(*r.Month) == time.February && *r.DayOfMonth > 29 {
			return apperrors.NewValidationError("dayOfMonth", "February has no day %d", *r.DayOfMonth)
		}
	}
	return nil
}

// Normalize returns a copy with every anchor the frequency does not use cleared.
func (r RecurrenceRule) Normalize() RecurrenceRule {
	out := RecurrenceRule{
		Frequency: r.Frequency,
		StartDate: r.StartDate,
		EndDate:   copyDate(r.EndDate),
	}
	if r.Frequency.UsesDayOfWeek() {
		out.DayOfWeek = copyInt(r.DayOfWeek)
	}
	if r.Frequency.UsesDayOfMonth() {
		out.DayOfMonth = copyInt(r.DayOfMonth)
	}
	if r.Frequency.UsesMonth() {
		out.Month = copyInt(r.Month)
	}
	return out
}

// Equal reports whether two rules describe the same recurrence after normalization.
func (r RecurrenceRule) Equal(o RecurrenceRule) bool {
	a, b := r.Normalize(), o.Normalize()
	return a.Frequency == b.Frequency &&
		a.StartDate == b.StartDate &&
		equalDate(a.EndDate, b.EndDate) &&
		equalInt(a.DayOfWeek, b.DayOfWeek) &&
		equalInt(a.DayOfMonth, b.DayOfMonth) &&
		equalInt(a.Month, b.Month)
}

// SameCadence is Equal ignoring EndDate.
func (r RecurrenceRule) SameCadence(o RecurrenceRule) bool {
	r.EndDate, o.EndDate = nil, nil
	return r.Equal(o)
}

// Exceeds reports whether d falls after the rule's end date.
func (r RecurrenceRule) Exceeds(d civil.Date) bool {
	return r.EndDate != nil && d.After(*r.EndDate)
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyDate(p *civil.Date) *civil.Date {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalDate(a, b *civil.Date) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
