package services

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
	"github.com/SscSPs/mma_recurring/internal/dto"
)

// ScheduleReaderSvc defines read operations for schedule data
type ScheduleReaderSvc interface {
	// GetSchedule retrieves a schedule owned by householdID.
	GetSchedule(ctx context.Context, householdID string, scheduleID string) (*domain.Schedule, error)

	// ListSchedules retrieves a page of the household's schedules.
	ListSchedules(ctx context.Context, householdID string, params dto.ListSchedulesParams) (*dto.ListSchedulesResponse, error)

	// PreviewOccurrences lists the next count dates the schedule would post on.
	PreviewOccurrences(ctx context.Context, householdID string, scheduleID string, count int) ([]civil.Date, error)

	// ListOccurrences lists what has already been posted for the schedule.
	ListOccurrences(ctx context.Context, householdID string, scheduleID string, limit int) ([]domain.Occurrence, error)
}

// ScheduleWriterSvc defines write operations for schedule data
type ScheduleWriterSvc interface {
	// CreateSchedule validates and persists a new schedule positioned on its first occurrence.
	CreateSchedule(ctx context.Context, householdID string, req dto.CreateScheduleRequest, userID string) (*domain.Schedule, error)

	// UpdateSchedule applies a partial update. Recurrence changes re-derive the next occurrence.
	UpdateSchedule(ctx context.Context, householdID string, scheduleID string, req dto.UpdateScheduleRequest, userID string) (*domain.Schedule, error)

	// DeleteSchedule removes the schedule.
	DeleteSchedule(ctx context.Context, householdID string, scheduleID string, userID string) error
}

// ScheduleLifecycleSvc defines explicit state changes a user can trigger
type ScheduleLifecycleSvc interface {
	// SetActive pauses (false) or resumes (true) a schedule.
	SetActive(ctx context.Context, householdID string, scheduleID string, active bool, userID string) (*domain.Schedule, error)

	// SkipOccurrence moves past the pending occurrence without posting it.
	SkipOccurrence(ctx context.Context, householdID string, scheduleID string, userID string) (*domain.Schedule, error)

	// MaterializeNow posts the pending occurrence of a manual (autoCreate=false) schedule.
	MaterializeNow(ctx context.Context, householdID string, scheduleID string, userID string) (*MaterializeResult, error)
}

// ScheduleSvcFacade combines all schedule-related service interfaces
type ScheduleSvcFacade interface {
	ScheduleReaderSvc
	ScheduleWriterSvc
	ScheduleLifecycleSvc
}
