package memory

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
)

type uowCtxKey struct{}

// unitOfWork stages every write made while a schedule is locked.
type unitOfWork struct {
	store    *Store
	schedule domain.Schedule
	updated  *domain.Schedule
	claims   map[civil.Date]domain.Occurrence
	txs      map[occurrenceKey]domain.MaterializedTransaction
}

func unitOfWorkFrom(ctx context.Context, s *Store) *unitOfWork {
	uow, ok := ctx.Value(uowCtxKey{}).(*unitOfWork)
	if !ok || uow.store != s {
		return nil
	}
	return uow
}

// WithScheduleLock implements portsrepo.ScheduleLocker.
func (s *Store) WithScheduleLock(ctx context.Context, scheduleID string, fn func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.scheduleLock(scheduleID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	schedule, ok := s.schedules[scheduleID]
	s.mu.RUnlock()
	if !ok {
		return apperrors.NewNotFoundError("schedule " + scheduleID + " not found")
	}

	uow := &unitOfWork{
		store:    s,
		schedule: schedule,
		claims:   make(map[civil.Date]domain.Occurrence),
		txs:      make(map[occurrenceKey]domain.MaterializedTransaction),
	}
	if err := fn(context.WithValue(ctx, uowCtxKey{}, uow), uow); err != nil {
		return err
	}
	return uow.commit()
}

func (u *unitOfWork) Schedule() domain.Schedule {
	if u.updated != nil {
		return *u.updated
	}
	return u.schedule
}

func (u *unitOfWork) HasOccurrence(_ context.Context, date civil.Date) (bool, error) {
	if _, ok := u.claims[date]; ok {
		return true, nil
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	_, ok := u.store.occurrences[occurrenceKey{scheduleID: u.schedule.ScheduleID, date: date}]
	return ok, nil
}

func (u *unitOfWork) ClaimOccurrence(ctx context.Context, occ domain.Occurrence) error {
	posted, err := u.HasOccurrence(ctx, occ.OccurrenceDate)
	if err != nil {
		return err
	}
	if posted {
		return fmt.Errorf("occurrence %s of schedule %s: %w", occ.OccurrenceDate, occ.ScheduleID, apperrors.ErrDuplicate)
	}
	u.claims[occ.OccurrenceDate] = occ
	return nil
}

func (u *unitOfWork) UpdateSchedule(_ context.Context, schedule domain.Schedule) error {
	if schedule.ScheduleID != u.schedule.ScheduleID {
		return fmt.Errorf("unit of work for %s cannot write schedule %s", u.schedule.ScheduleID, schedule.ScheduleID)
	}
	schedule.Version = u.schedule.Version + 1
	u.updated = &schedule
	return nil
}

func (u *unitOfWork) commit() error {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[u.schedule.ScheduleID]; !ok {
		return apperrors.NewNotFoundError("schedule " + u.schedule.ScheduleID + " not found")
	}
	for key, tx := range u.txs {
		s.transactions[tx.TransactionID] = tx
		s.txByKey[key] = tx.TransactionID
	}
	for date, occ := range u.claims {
		s.occurrences[occurrenceKey{scheduleID: u.schedule.ScheduleID, date: date}] = occ
	}
	if u.updated != nil {
		s.schedules[u.schedule.ScheduleID] = *u.updated
	}
	return nil
}
