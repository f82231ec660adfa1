package repositories

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

// ScheduleListFilter narrows a household listing.
type ScheduleListFilter struct {
	Status    *domain.ScheduleStatus
	Limit     int
	NextToken *string
}

// ScheduleReader defines read operations for schedule data
type ScheduleReader interface {
	// FindScheduleByID retrieves a schedule by its unique identifier.
	FindScheduleByID(ctx context.Context, scheduleID string) (*domain.Schedule, error)

	// ListSchedulesByHousehold returns a page of a household's schedules ordered by
	// creation time, plus a token for the next page.
	ListSchedulesByHousehold(ctx context.Context, householdID string, filter ScheduleListFilter) ([]domain.Schedule, *string, error)

	// ListDueSchedules returns active schedules whose next occurrence is on or before asOf.
	// autoCreate selects automatic or manual schedules.
	ListDueSchedules(ctx context.Context, asOf civil.Date, autoCreate bool) ([]domain.Schedule, error)

	// ListOccurrences returns the posted occurrences of a schedule, newest first.
	ListOccurrences(ctx context.Context, scheduleID string, limit int) ([]domain.Occurrence, error)
}

// ScheduleWriter defines write operations for schedule data
type ScheduleWriter interface {
	// SaveSchedule persists a new schedule.
	SaveSchedule(ctx context.Context, schedule domain.Schedule) error

	// UpdateSchedule overwrites a schedule. It returns apperrors.ErrNotFound for unknown ids.
	UpdateSchedule(ctx context.Context, schedule domain.Schedule) error

	// DeleteSchedule removes a schedule and its occurrence history.
	DeleteSchedule(ctx context.Context, scheduleID string) error
}

// ScheduleRepositoryFacade combines all schedule-related repository interfaces
type ScheduleRepositoryFacade interface {
	ScheduleReader
	ScheduleWriter
	ScheduleLocker
}
