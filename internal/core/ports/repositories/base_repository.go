package repositories

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

// ScheduleUnitOfWork is the view of one schedule held under an exclusive lock.
// Everything written through it commits or rolls back together.
type ScheduleUnitOfWork interface {
	// Schedule returns the locked schedule as currently persisted.
	Schedule() domain.Schedule

	// HasOccurrence reports whether the schedule was already posted for date.
	HasOccurrence(ctx context.Context, date civil.Date) (bool, error)

	// ClaimOccurrence records the (schedule, date) pair. It returns apperrors.ErrDuplicate
	// when the pair is already claimed.
	ClaimOccurrence(ctx context.Context, occ domain.Occurrence) error

	// UpdateSchedule writes the new schedule state.
	UpdateSchedule(ctx context.Context, schedule domain.Schedule) error
}

// ScheduleLocker serializes work on a single schedule.
type ScheduleLocker interface {
	// WithScheduleLock runs fn while holding an exclusive lock on scheduleID. If fn
	// returns an error nothing written through the unit of work is kept.
	// It returns apperrors.ErrNotFound when the schedule does not exist.
	WithScheduleLock(ctx context.Context, scheduleID string, fn func(ctx context.Context, uow ScheduleUnitOfWork) error) error
}
