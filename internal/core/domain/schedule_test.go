package domain_test

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

var testNow = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func expenseTemplate() domain.TransactionTemplate {
	return domain.TransactionTemplate{
		Type:         domain.Expense,
		Amount:       decimal.NewFromInt(50),
		CurrencyCode: "USD",
		Description:  "Gym",
	}
}

func newTestSchedule(t *testing.T, rule domain.RecurrenceRule) *domain.Schedule {
	t.Helper()
	s, err := domain.NewSchedule("sched-1", "house-1", "acc-1", expenseTemplate(), rule, true, "user-1", testNow)
	require.NoError(t, err)
	return s
}

func TestNewSchedule_PositionsOnFirstOccurrence(t *testing.T) {
	s := newTestSchedule(t, monthlyRule(31, date(2024, 1, 15)))

	require.NotNil(t, s.NextOccurrence)
	assert.Equal(t, date(2024, 1, 31), *s.NextOccurrence)
	assert.Equal(t, domain.StatusActive, s.Status)
	assert.True(t, s.IsActive)
	assert.Zero(t, s.OccurrenceCount)
	assert.Nil(t, s.LastOccurrence)
	assert.Equal(t, "user-1", s.CreatedBy)
}

func TestNewSchedule_Validation(t *testing.T) {
	rule := monthlyRule(1, date(2024, 1, 1))

	tests := []struct {
		name      string
		accountID string
		tmpl      func(domain.TransactionTemplate) domain.TransactionTemplate
		rule      domain.RecurrenceRule
		wantField string
	}{
		{name: "missing account", accountID: "", rule: rule, wantField: "accountID"},
		{name: "zero amount", accountID: "acc-1", rule: rule, wantField: "amount", tmpl: func(t domain.TransactionTemplate) domain.TransactionTemplate {
			t.Amount = decimal.Zero
			return t
		}},
		{name: "bad currency", accountID: "acc-1", rule: rule, wantField: "currencyCode", tmpl: func(t domain.TransactionTemplate) domain.TransactionTemplate {
			t.CurrencyCode = "US"
			return t
		}},
		{name: "transfer without destination", accountID: "acc-1", rule: rule, wantField: "transferAccountID", tmpl: func(t domain.TransactionTemplate) domain.TransactionTemplate {
			t.Type = domain.Transfer
			return t
		}},
		{name: "transfer to itself", accountID: "acc-1", rule: rule, wantField: "transferAccountID", tmpl: func(t domain.TransactionTemplate) domain.TransactionTemplate {
			t.Type = domain.Transfer
			t.TransferAccountID = strPtr("acc-1")
			return t
		}},
		{name: "expense with destination", accountID: "acc-1", rule: rule, wantField: "transferAccountID", tmpl: func(t domain.TransactionTemplate) domain.TransactionTemplate {
			t.TransferAccountID = strPtr("acc-2")
			return t
		}},
		{name: "rule without anchor", accountID: "acc-1", rule: domain.RecurrenceRule{Frequency: domain.Weekly, StartDate: date(2024, 1, 1)}, wantField: "dayOfWeek"},
		{name: "window without occurrences", accountID: "acc-1", wantField: "endDate", rule: func() domain.RecurrenceRule {
			r := weeklyRule(domain.Weekly, time.Wednesday, date(2024, 1, 4))
			end := date(2024, 1, 6)
			r.EndDate = &end
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := expenseTemplate()
			if tt.tmpl != nil {
				tmpl = tt.tmpl(tmpl)
			}
			_, err := domain.NewSchedule("s", "h", tt.accountID, tmpl, tt.rule, true, "u", testNow)
			require.Error(t, err)
			var vErr *apperrors.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestSchedule_AdvanceCompletesAfterEndDate(t *testing.T) {
	rule := monthlyRule(31, date(2024, 1, 1))
	end := date(2024, 2, 29)
	rule.EndDate = &end
	s := newTestSchedule(t, rule)

	s.Advance(date(2024, 1, 31), domain.SystemUserID, testNow)
	require.NotNil(t, s.NextOccurrence)
	assert.Equal(t, date(2024, 2, 29), *s.NextOccurrence)
	assert.Equal(t, domain.StatusActive, s.Status)

	s.Advance(date(2024, 2, 29), domain.SystemUserID, testNow)
	assert.Nil(t, s.NextOccurrence)
	assert.Equal(t, domain.StatusCompleted, s.Status)
	assert.Equal(t, int64(2), s.OccurrenceCount)
	assert.Equal(t, date(2024, 2, 29), *s.LastOccurrence)
	assert.False(t, s.IsDue(date(2030, 1, 1)))
}

func TestSchedule_PauseAndResumeKeepNextOccurrence(t *testing.T) {
	s := newTestSchedule(t, monthlyRule(5, date(2024, 1, 1)))
	next := *s.NextOccurrence

	require.NoError(t, s.Pause("user-2", testNow))
	assert.Equal(t, domain.StatusPaused, s.Status)
	assert.False(t, s.IsActive)
	assert.False(t, s.IsDue(date(2025, 1, 1)))
	assert.Equal(t, next, *s.NextOccurrence)
	assert.Equal(t, "user-2", s.LastUpdatedBy)

	require.NoError(t, s.Resume("user-2", testNow))
	assert.Equal(t, domain.StatusActive, s.Status)
	assert.Equal(t, next, *s.NextOccurrence)
	assert.True(t, s.IsDue(next))
}

func TestSchedule_CompletedCannotBeToggled(t *testing.T) {
	rule := domain.RecurrenceRule{Frequency: domain.Daily, StartDate: date(2024, 1, 1), EndDate: domain.DatePtr(date(2024, 1, 1))}
	s := newTestSchedule(t, rule)
	s.Advance(date(2024, 1, 1), domain.SystemUserID, testNow)
	require.True(t, s.IsCompleted())

	assert.ErrorIs(t, s.Pause("u", testNow), apperrors.ErrInvalidTransition)
	assert.ErrorIs(t, s.Resume("u", testNow), apperrors.ErrInvalidTransition)
	assert.ErrorIs(t, s.Skip("u", testNow), apperrors.ErrInvalidTransition)
}

func TestSchedule_ExtendingEndDateReactivatesCompleted(t *testing.T) {
	rule := monthlyRule(15, date(2024, 1, 1))
	rule.EndDate = domain.DatePtr(date(2024, 1, 31))
	s := newTestSchedule(t, rule)
	s.Advance(date(2024, 1, 15), domain.SystemUserID, testNow)
	require.True(t, s.IsCompleted())

	extended := rule
	extended.EndDate = domain.DatePtr(date(2024, 6, 30))
	require.NoError(t, s.ApplyRuleChange(extended, "user-1", testNow))

	assert.Equal(t, domain.StatusActive, s.Status)
	assert.True(t, s.IsActive)
	require.NotNil(t, s.NextOccurrence)
	assert.Equal(t, date(2024, 2, 15), *s.NextOccurrence)
	assert.Equal(t, int64(1), s.OccurrenceCount)
}

func TestSchedule_RuleChangeNeverRepeatsLastOccurrence(t *testing.T) {
	s := newTestSchedule(t, monthlyRule(10, date(2024, 1, 1)))
	s.Advance(date(2024, 1, 10), domain.SystemUserID, testNow)

	// Moving the anchor earlier in the month must not re-post January.
	require.NoError(t, s.ApplyRuleChange(monthlyRule(5, date(2024, 1, 1)), "user-1", testNow))
	assert.Equal(t, date(2024, 2, 5), *s.NextOccurrence)

	// Moving it later still waits for the next month: January was already posted.
	require.NoError(t, s.ApplyRuleChange(monthlyRule(20, date(2024, 1, 1)), "user-1", testNow))
	assert.Equal(t, date(2024, 2, 20), *s.NextOccurrence)
}

func TestSchedule_RuleChangeKeepsOnePostingPerPeriod(t *testing.T) {
	tests := []struct {
		name     string
		initial  domain.RecurrenceRule
		posted   civil.Date
		changed  domain.RecurrenceRule
		expected civil.Date
	}{
		{
			name:     "weekly moved later in the week",
			initial:  weeklyRule(domain.Weekly, time.Wednesday, date(2024, 1, 1)),
			posted:   date(2024, 1, 3),
			changed:  weeklyRule(domain.Weekly, time.Friday, date(2024, 1, 1)),
			expected: date(2024, 1, 12),
		},
		{
			name:     "quarterly moved later in the month",
			initial:  domain.RecurrenceRule{Frequency: domain.Quarterly, DayOfMonth: domain.IntPtr(5), StartDate: date(2024, 1, 1)},
			posted:   date(2024, 1, 5),
			changed:  domain.RecurrenceRule{Frequency: domain.Quarterly, DayOfMonth: domain.IntPtr(25), StartDate: date(2024, 1, 1)},
			expected: date(2024, 4, 25),
		},
		{
			name:     "yearly moved to a later month",
			initial:  domain.RecurrenceRule{Frequency: domain.Yearly, Month: domain.IntPtr(3), DayOfMonth: domain.IntPtr(1), StartDate: date(2024, 1, 1)},
			posted:   date(2024, 3, 1),
			changed:  domain.RecurrenceRule{Frequency: domain.Yearly, Month: domain.IntPtr(12), DayOfMonth: domain.IntPtr(1), StartDate: date(2024, 1, 1)},
			expected: date(2025, 12, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSchedule(t, tt.initial)
			s.Advance(tt.posted, domain.SystemUserID, testNow)

			require.NoError(t, s.ApplyRuleChange(tt.changed, "user-1", testNow))
			require.NotNil(t, s.NextOccurrence)
			assert.Equal(t, tt.expected, *s.NextOccurrence)
		})
	}
}

func TestSchedule_EndDateEditKeepsSkippedOccurrenceSkipped(t *testing.T) {
	s := newTestSchedule(t, monthlyRule(10, date(2024, 1, 1)))
	s.Advance(date(2024, 1, 10), domain.SystemUserID, testNow)
	require.NoError(t, s.Skip("user-1", testNow))
	require.Equal(t, date(2024, 3, 10), *s.NextOccurrence)
	require.Equal(t, date(2024, 2, 10), *s.SkippedThrough)

	bounded := monthlyRule(10, date(2024, 1, 1))
	bounded.EndDate = domain.DatePtr(date(2024, 12, 31))
	require.NoError(t, s.ApplyRuleChange(bounded, "user-1", testNow))

	assert.Equal(t, date(2024, 3, 10), *s.NextOccurrence)
	assert.Equal(t, domain.StatusActive, s.Status)
	assert.Equal(t, date(2024, 12, 31), *s.Rule.EndDate)
}

func TestSchedule_EndDateBeforePendingCompletes(t *testing.T) {
	s := newTestSchedule(t, monthlyRule(10, date(2024, 1, 1)))
	s.Advance(date(2024, 1, 10), domain.SystemUserID, testNow)

	bounded := monthlyRule(10, date(2024, 1, 1))
	bounded.EndDate = domain.DatePtr(date(2024, 2, 1))
	require.NoError(t, s.ApplyRuleChange(bounded, "user-1", testNow))

	assert.Nil(t, s.NextOccurrence)
	assert.Equal(t, domain.StatusCompleted, s.Status)
}

func TestSchedule_CadenceEditNeverReturnsToSkippedOccurrence(t *testing.T) {
	s := newTestSchedule(t, monthlyRule(10, date(2024, 1, 1)))
	require.NoError(t, s.Skip("user-1", testNow))
	require.NoError(t, s.Skip("user-1", testNow))
	require.Equal(t, date(2024, 3, 10), *s.NextOccurrence)

	// Re-deriving from the start date alone would land on Jan 5, before both skips.
	require.NoError(t, s.ApplyRuleChange(monthlyRule(5, date(2024, 1, 1)), "user-1", testNow))
	assert.Equal(t, date(2024, 3, 5), *s.NextOccurrence)
	assert.True(t, s.NextOccurrence.After(*s.SkippedThrough))
}

func TestSchedule_BiweeklyEditKeepsAFullWindow(t *testing.T) {
	s := newTestSchedule(t, weeklyRule(domain.Biweekly, time.Monday, date(2024, 1, 1)))
	s.Advance(date(2024, 1, 1), domain.SystemUserID, testNow)
	require.Equal(t, date(2024, 1, 15), *s.NextOccurrence)

	// Switching to Wednesday would otherwise yield Jan 3, two days after the last posting.
	require.NoError(t, s.ApplyRuleChange(weeklyRule(domain.Biweekly, time.Wednesday, date(2024, 1, 1)), "user-1", testNow))

	require.NotNil(t, s.NextOccurrence)
	assert.GreaterOrEqual(t, s.NextOccurrence.DaysSince(*s.LastOccurrence), 14)
	assert.Equal(t, time.Wednesday, s.NextOccurrence.In(time.UTC).Weekday())
	assert.Equal(t, date(2024, 1, 17), *s.NextOccurrence)
}

func TestSchedule_RuleChangeOnPausedKeepsPaused(t *testing.T) {
	s := newTestSchedule(t, monthlyRule(10, date(2024, 1, 1)))
	require.NoError(t, s.Pause("u", testNow))

	require.NoError(t, s.ApplyRuleChange(monthlyRule(12, date(2024, 1, 1)), "u", testNow))
	assert.Equal(t, domain.StatusPaused, s.Status)
	assert.Equal(t, date(2024, 1, 12), *s.NextOccurrence)
}

func TestSchedule_SkipDoesNotCount(t *testing.T) {
	s := newTestSchedule(t, weeklyRule(domain.Weekly, time.Friday, date(2024, 1, 1)))

	require.NoError(t, s.Skip("u", testNow))
	assert.Equal(t, date(2024, 1, 12), *s.NextOccurrence)
	assert.Zero(t, s.OccurrenceCount)
	assert.Nil(t, s.LastOccurrence)
}

func TestSchedule_BuildTransactionRequest(t *testing.T) {
	s := newTestSchedule(t, monthlyRule(31, date(2024, 1, 15)))
	s.Template.CategoryID = strPtr("cat-1")

	req := s.BuildTransactionRequest(date(2024, 1, 31))
	assert.Equal(t, "sched-1", req.ScheduleID)
	assert.Equal(t, "acc-1", req.AccountID)
	assert.Equal(t, domain.Expense, req.Type)
	assert.True(t, decimal.NewFromInt(50).Equal(req.Amount))
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 31}, req.Date)
	assert.Equal(t, "sched-1:2024-01-31", req.IdempotencyKey())
	assert.Equal(t, "cat-1", *req.CategoryID)
}

func strPtr(s string) *string {
	return &s
}
