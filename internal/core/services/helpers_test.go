package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

const household = "hh-1"

var testNow = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

var assertAnError = errors.New("ledger unavailable")

func fixedClock() time.Time { return testNow }

// MockLedger is a mock type for the LedgerWriter interface
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockNotifier is a mock type for the Notifier interface
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type scheduleOpt func(*domain.TransactionTemplate, *domain.RecurrenceRule)

func withCategory(id string) scheduleOpt {
	return func(t *domain.TransactionTemplate, _ *domain.RecurrenceRule) {
		t.CategoryID = &id
	}
}

func withEndDate(d civil.Date) scheduleOpt {
	return func(_ *domain.TransactionTemplate, r *domain.RecurrenceRule) {
		r.EndDate = &d
	}
}

func withFrequency(f domain.Frequency) scheduleOpt {
	return func(_ *domain.TransactionTemplate, r *domain.RecurrenceRule) {
		r.Frequency = f
		if !f.UsesDayOfMonth() {
			r.DayOfMonth = nil
		}
	}
}

// monthlySchedule builds a schedule on the day of month of start.
func monthlySchedule(t *testing.T, id string, start civil.Date, autoCreate bool, opts ...scheduleOpt) domain.Schedule {
	t.Helper()
	tmpl := domain.TransactionTemplate{
		Type:         domain.Expense,
		Amount:       decimal.RequireFromString("1200.00"),
		CurrencyCode: "USD",
		Description:  "Rent",
		Merchant:     "Landlord",
	}
	rule := domain.RecurrenceRule{
		Frequency:  domain.Monthly,
		DayOfMonth: domain.IntPtr(start.Day),
		StartDate:  start,
	}
	for _, opt := range opts {
		opt(&tmpl, &rule)
	}
	s, err := domain.NewSchedule(id, household, "acc-1", tmpl, rule, autoCreate, "user-1", testNow)
	require.NoError(t, err)
	return *s
}
