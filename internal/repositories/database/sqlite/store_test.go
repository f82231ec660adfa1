package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/core/services"
	"github.com/SscSPs/mma_recurring/internal/repositories/database/sqlite"
)

const household = "hh-1"

var created = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "schedules.db"), time.Second,
		sqlite.WithClock(func() time.Time { return created }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.UpsertAccount(context.Background(), household, "acc-1", "Checking", true))
	return store
}

func newSchedule(t *testing.T, id string, start civil.Date, autoCreate bool, at time.Time) domain.Schedule {
	t.Helper()
	cat := "cat-1"
	s, err := domain.NewSchedule(id, household, "acc-1", domain.TransactionTemplate{
		Type:         domain.Expense,
		Amount:       decimal.RequireFromString("12.50"),
		CurrencyCode: "EUR",
		Description:  "Gym",
		CategoryID:   &cat,
	}, domain.RecurrenceRule{
		Frequency:  domain.Monthly,
		DayOfMonth: domain.IntPtr(start.Day),
		StartDate:  start,
	}, autoCreate, "user-1", at)
	require.NoError(t, err)
	return *s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.db")
	first, err := sqlite.Open(context.Background(), path, 0)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := sqlite.Open(context.Background(), path, 0)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestScheduleRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	start := civil.Date{Year: 2024, Month: time.January, Day: 31}
	want := newSchedule(t, "s1", start, true, created)

	require.NoError(t, store.SaveSchedule(ctx, want))
	assert.ErrorIs(t, store.SaveSchedule(ctx, want), apperrors.ErrDuplicate)

	got, err := store.FindScheduleByID(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, want.Template.Amount.Equal(got.Template.Amount))
	got.Template.Amount = want.Template.Amount
	assert.Equal(t, want, *got)

	_, err = store.FindScheduleByID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListSchedulesPaginates(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	start := civil.Date{Year: 2024, Month: time.January, Day: 10}
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveSchedule(ctx, newSchedule(t, id, start, true, created.Add(time.Duration(i)*time.Millisecond))))
	}

	page, next, err := store.ListSchedulesByHousehold(ctx, household, portsrepo.ScheduleListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Equal(t, "a", page[0].ScheduleID)
	assert.Equal(t, "b", page[1].ScheduleID)

	page, next, err = store.ListSchedulesByHousehold(ctx, household, portsrepo.ScheduleListFilter{Limit: 2, NextToken: next})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].ScheduleID)
	assert.Nil(t, next)

	bad := "%%%"
	_, _, err = store.ListSchedulesByHousehold(ctx, household, portsrepo.ScheduleListFilter{NextToken: &bad})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestLedgerIsIdempotentPerOccurrence(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	start := civil.Date{Year: 2024, Month: time.March, Day: 1}
	s := newSchedule(t, "s1", start, true, created)
	req := s.BuildTransactionRequest(start)

	id, err := store.CreateTransaction(ctx, req)
	require.NoError(t, err)

	again, err := store.CreateTransaction(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)
	assert.Equal(t, id, again)

	got, err := store.FindTransactionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, start, got.Date)
	assert.True(t, decimal.RequireFromString("12.5").Equal(got.Amount))

	req.Date = civil.Date{Year: 2024, Month: time.April, Day: 1}
	req.AccountID = "closed"
	_, err = store.CreateTransaction(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUnitOfWorkRollsBack(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	start := civil.Date{Year: 2024, Month: time.January, Day: 15}
	require.NoError(t, store.SaveSchedule(ctx, newSchedule(t, "s1", start, true, created)))

	err := store.WithScheduleLock(ctx, "s1", func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork) error {
		s := uow.Schedule()
		txID, err := store.CreateTransaction(ctx, s.BuildTransactionRequest(start))
		require.NoError(t, err)
		require.NoError(t, uow.ClaimOccurrence(ctx, domain.Occurrence{ScheduleID: "s1", OccurrenceDate: start, TransactionID: txID, CreatedAt: created}))
		assert.ErrorIs(t, uow.ClaimOccurrence(ctx, domain.Occurrence{ScheduleID: "s1", OccurrenceDate: start, CreatedAt: created}), apperrors.ErrDuplicate)
		return apperrors.ErrDependency
	})
	assert.ErrorIs(t, err, apperrors.ErrDependency)

	occ, err := store.ListOccurrences(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, occ)
	fresh := newSchedule(t, "s1", start, true, created)
	_, err = store.CreateTransaction(ctx, fresh.BuildTransactionRequest(start))
	assert.NoError(t, err, "rolled back ledger row must not block a fresh post")
}

func TestMaterializerOnSQLite(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.UpsertCategory(ctx, household, "cat-1", "Health"))
	start := civil.Date{Year: 2024, Month: time.January, Day: 31}
	require.NoError(t, store.SaveSchedule(ctx, newSchedule(t, "s1", start, true, created)))

	m := services.NewMaterializer(store, store, services.WithReferenceChecker(store),
		services.WithMaterializerClock(func() time.Time { return created }))

	today := civil.Date{Year: 2024, Month: time.March, Day: 31}
	var wg sync.WaitGroup
	outcomes := make(chan portssvc.MaterializeOutcome, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Materialize(ctx, "s1", today, portssvc.MaterializeOptions{ExpectedDue: &start})
			if assert.NoError(t, err) {
				outcomes <- res.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	materialized := 0
	for o := range outcomes {
		if o == portssvc.OutcomeMaterialized {
			materialized++
		}
	}
	assert.Equal(t, 1, materialized)

	got, err := store.FindScheduleByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 29}, *got.NextOccurrence)
	assert.Equal(t, int64(1), got.OccurrenceCount)

	// The category disappearing turns the next post into a dependency failure.
	require.NoError(t, store.DeleteCategory(ctx, household, "cat-1"))
	_, err = m.Materialize(ctx, "s1", today, portssvc.MaterializeOptions{})
	assert.ErrorIs(t, err, apperrors.ErrDependency)

	due, err := store.ListDueSchedules(ctx, today, true)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 29}, *due[0].NextOccurrence)
}

func TestDeleteScheduleKeepsLedger(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	start := civil.Date{Year: 2024, Month: time.January, Day: 15}
	s := newSchedule(t, "s1", start, true, created)
	require.NoError(t, store.SaveSchedule(ctx, s))
	id, err := store.CreateTransaction(ctx, s.BuildTransactionRequest(start))
	require.NoError(t, err)

	require.NoError(t, store.DeleteSchedule(ctx, "s1"))
	assert.ErrorIs(t, store.DeleteSchedule(ctx, "s1"), apperrors.ErrNotFound)

	_, err = store.FindTransactionByID(ctx, id)
	assert.NoError(t, err)
}
