package domain

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
)

// ScheduleStatus is the lifecycle state of a schedule.
type ScheduleStatus string

const (
	StatusActive    ScheduleStatus = "ACTIVE"
	StatusPaused    ScheduleStatus = "PAUSED"
	StatusCompleted ScheduleStatus = "COMPLETED"
)

// Schedule is a persisted recurring transaction.
type Schedule struct {
	ScheduleID      string              `json:"scheduleID"`
	HouseholdID     string              `json:"householdID"`
	AccountID       string              `json:"accountID"`
	Template        TransactionTemplate `json:"template"`
	Rule            RecurrenceRule      `json:"rule"`
	NextOccurrence  *civil.Date         `json:"nextOccurrence"`
	IsActive        bool                `json:"isActive"`
	AutoCreate      bool                `json:"autoCreate"`
	OccurrenceCount int64               `json:"occurrenceCount"`
	LastOccurrence  *civil.Date         `json:"lastOccurrence"`
	SkippedThrough  *civil.Date         `json:"skippedThrough"` // latest occurrence passed over unposted
	Status          ScheduleStatus      `json:"status"`
	Version         int64               `json:"version"` // bumped on every write
	AuditFields
}

// NewSchedule validates the inputs and positions the schedule on its first occurrence.
func NewSchedule(id, householdID, accountID string, tmpl TransactionTemplate, rule RecurrenceRule, autoCreate bool, userID string, now time.Time) (*Schedule, error) {
	if accountID == "" {
		return nil, apperrors.NewValidationError("accountID", "account is required")
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if err := tmpl.Validate(accountID); err != nil {
		return nil, err
	}
	rule = rule.Normalize()

	first, ok := FirstOccurrence(rule)
	if !ok {
		return nil, apperrors.NewValidationError("endDate", "no occurrence falls between %s and %s", rule.StartDate.String(), rule.EndDate.String())
	}

	return &Schedule{
		ScheduleID:     id,
		HouseholdID:    householdID,
		AccountID:      accountID,
		Template:       tmpl,
		Rule:           rule,
		NextOccurrence: &first,
		IsActive:       true,
		AutoCreate:     autoCreate,
		Status:         StatusActive,
		Version:        1,
		AuditFields: AuditFields{
			CreatedAt:     now,
			CreatedBy:     userID,
			LastUpdatedAt: now,
			LastUpdatedBy: userID,
		},
	}, nil
}

// IsDue reports whether the automatic runner may post the schedule on today.
func (s *Schedule) IsDue(today civil.Date) bool {
	return s.IsActive &&
		s.Status == StatusActive &&
		s.NextOccurrence != nil &&
		!s.NextOccurrence.After(today)
}

// IsCompleted reports whether the schedule has no occurrences left.
func (s *Schedule) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// Pause stops the runner from advancing the schedule. NextOccurrence is kept as is.
func (s *Schedule) Pause(userID string, now time.Time) error {
	if s.IsCompleted() {
		return apperrors.ErrInvalidTransition
	}
	s.IsActive = false
	s.Status = StatusPaused
	s.touch(userID, now)
	return nil
}

// Resume reactivates a paused schedule from its unchanged NextOccurrence.
func (s *Schedule) Resume(userID string, now time.Time) error {
	if s.IsCompleted() {
		return apperrors.ErrInvalidTransition
	}
	s.IsActive = true
	s.Status = StatusActive
	s.touch(userID, now)
	return nil
}

// Advance records that occurred was posted and moves to the following occurrence,
// completing the schedule when the end date is passed.
func (s *Schedule) Advance(occurred civil.Date, userID string, now time.Time) {
	s.OccurrenceCount++
	s.LastOccurrence = DatePtr(occurred)
	s.moveAfter(occurred)
	s.touch(userID, now)
}

// Skip moves past the pending occurrence without posting it.
func (s *Schedule) Skip(userID string, now time.Time) error {
	if s.NextOccurrence == nil || s.IsCompleted() {
		return apperrors.ErrInvalidTransition
	}
	skipped := *s.NextOccurrence
	s.SkippedThrough = DatePtr(skipped)
	s.moveAfter(skipped)
	s.touch(userID, now)
	return nil
}

func (s *Schedule) moveAfter(d civil.Date) {
	next, ok := NextOccurrence(s.Rule, d)
	if !ok {
		s.NextOccurrence = nil
		s.Status = StatusCompleted
		return
	}
	s.NextOccurrence = &next
}

// ApplyRuleChange swaps in a new recurrence. When only the end date moves the pending
// occurrence is kept and merely re-checked against the new end. Any other change
// re-derives NextOccurrence past the last posted period and past every skipped
// occurrence. A completed schedule that gains occurrences again returns to Active.
func (s *Schedule) ApplyRuleChange(rule RecurrenceRule, userID string, now time.Time) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule = rule.Normalize()
	if rule.Equal(s.Rule) {
		return nil
	}

	if rule.SameCadence(s.Rule) && !s.IsCompleted() && s.NextOccurrence != nil {
		s.Rule = rule
		if rule.Exceeds(*s.NextOccurrence) {
			s.NextOccurrence = nil
			s.Status = StatusCompleted
		}
		s.touch(userID, now)
		return nil
	}

	s.Rule = rule
	next, ok := NextOnOrAfter(rule, s.resumeBound())
	switch {
	case !ok:
		s.NextOccurrence = nil
		s.Status = StatusCompleted
	case s.IsCompleted():
		s.NextOccurrence = &next
		s.IsActive = true
		s.Status = StatusActive
	default:
		s.NextOccurrence = &next
	}
	s.touch(userID, now)
	return nil
}

// resumeBound is the earliest date a re-derived occurrence may fall on: not inside the
// period of the last posting and not on or before a skipped occurrence.
func (s *Schedule) resumeBound() civil.Date {
	lower := s.Rule.StartDate
	if s.LastOccurrence != nil {
		lower = maxDate(lower, nextPeriodStart(s.Rule.Frequency, *s.LastOccurrence))
	}
	if s.SkippedThrough != nil {
		lower = maxDate(lower, s.SkippedThrough.AddDays(1))
	}
	return lower
}

// BuildTransactionRequest snapshots the template for the pending occurrence.
func (s *Schedule) BuildTransactionRequest(date civil.Date) TransactionRequest {
	return TransactionRequest{
		ScheduleID:        s.ScheduleID,
		HouseholdID:       s.HouseholdID,
		AccountID:         s.AccountID,
		Type:              s.Template.Type,
		Amount:            s.Template.Amount,
		CurrencyCode:      s.Template.CurrencyCode,
		Date:              date,
		Description:       s.Template.Description,
		Merchant:          s.Template.Merchant,
		CategoryID:        s.Template.CategoryID,
		TransferAccountID: s.Template.TransferAccountID,
	}
}

func (s *Schedule) touch(userID string, now time.Time) {
	s.LastUpdatedAt = now
	if userID != "" {
		s.LastUpdatedBy = userID
	}
}
