package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/dto"
)

const maxPreviewCount = 60

// scheduleService implements portssvc.ScheduleSvcFacade
type scheduleService struct {
	BaseService
	scheduleRepo portsrepo.ScheduleRepositoryFacade
	materializer portssvc.MaterializerSvc
	location     *time.Location
}

// ScheduleServiceOption is a functional option for configuring the schedule service
type ScheduleServiceOption func(*scheduleService)

// WithScheduleEvents publishes lifecycle events after each committed change.
func WithScheduleEvents(p portssvc.EventPublisher) ScheduleServiceOption {
	return func(s *scheduleService) {
		s.Events = p
	}
}

// WithScheduleClock overrides the clock used for audit timestamps and "today".
func WithScheduleClock(clock func() time.Time) ScheduleServiceOption {
	return func(s *scheduleService) {
		s.Clock = clock
	}
}

// WithScheduleLocation sets the time zone that decides the calendar day.
func WithScheduleLocation(loc *time.Location) ScheduleServiceOption {
	return func(s *scheduleService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewScheduleService creates a new ScheduleService with the given repository and options
func NewScheduleService(repo portsrepo.ScheduleRepositoryFacade, m portssvc.MaterializerSvc, options ...ScheduleServiceOption) portssvc.ScheduleSvcFacade {
	svc := &scheduleService{
		scheduleRepo: repo,
		materializer: m,
		location:     time.UTC,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.ScheduleSvcFacade = (*scheduleService)(nil)

func (s *scheduleService) today() civil.Date {
	return domain.Today(s.Now(), s.location)
}

// CreateSchedule validates the request and stores a schedule positioned on its first occurrence.
func (s *scheduleService) CreateSchedule(ctx context.Context, householdID string, req dto.CreateScheduleRequest, userID string) (*domain.Schedule, error) {
	autoCreate := true
	if req.AutoCreate != nil {
		autoCreate = *req.AutoCreate
	}

	schedule, err := domain.NewSchedule(uuid.NewString(), householdID, req.AccountID, req.Template(), req.Rule(), autoCreate, userID, s.Now())
	if err != nil {
		s.LogDebug(ctx, "Rejected schedule", slog.String("error", err.Error()))
		return nil, err
	}

	if err := s.scheduleRepo.SaveSchedule(ctx, *schedule); err != nil {
		s.LogError(ctx, err, "Failed to save schedule",
			slog.String("household_id", householdID))
		return nil, apperrors.NewAppError(500, "failed to save schedule", err)
	}

	s.LogInfo(ctx, "Schedule created",
		slog.String("schedule_id", schedule.ScheduleID),
		slog.String("frequency", string(schedule.Rule.Frequency)),
		slog.String("next_occurrence", schedule.NextOccurrence.String()))
	s.Publish(ctx, domain.NewScheduleEvent(domain.EventScheduleCreated, schedule, s.Now()))
	return schedule, nil
}

// GetSchedule retrieves a schedule the household owns.
func (s *scheduleService) GetSchedule(ctx context.Context, householdID string, scheduleID string) (*domain.Schedule, error) {
	schedule, err := s.scheduleRepo.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to load schedule", slog.String("schedule_id", scheduleID))
		}
		return nil, err
	}
	if err := ensureOwned(schedule, householdID); err != nil {
		return nil, err
	}
	return schedule, nil
}

// ListSchedules returns one page of the household's schedules.
func (s *scheduleService) ListSchedules(ctx context.Context, householdID string, params dto.ListSchedulesParams) (*dto.ListSchedulesResponse, error) {
	filter := portsrepo.ScheduleListFilter{Limit: params.Limit}
	if params.NextToken != "" {
		filter.NextToken = &params.NextToken
	}
	if params.Status != "" {
		st := domain.ScheduleStatus(params.Status)
		filter.Status = &st
	}

	schedules, next, err := s.scheduleRepo.ListSchedulesByHousehold(ctx, householdID, filter)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			return nil, err
		}
		s.LogError(ctx, err, "Failed to list schedules", slog.String("household_id", householdID))
		return nil, err
	}
	return &dto.ListSchedulesResponse{
		Schedules: dto.ToListScheduleResponse(schedules),
		NextToken: next,
	}, nil
}

// PreviewOccurrences computes the next count posting dates without touching storage.
func (s *scheduleService) PreviewOccurrences(ctx context.Context, householdID string, scheduleID string, count int) ([]civil.Date, error) {
	if count < 1 || count > maxPreviewCount {
		return nil, apperrors.NewValidationError("count", "must be between 1 and %d", maxPreviewCount)
	}
	schedule, err := s.GetSchedule(ctx, householdID, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.NextOccurrence == nil {
		return []civil.Date{}, nil
	}
	return domain.Occurrences(schedule.Rule, *schedule.NextOccurrence, count), nil
}

// ListOccurrences returns what was already posted for the schedule.
func (s *scheduleService) ListOccurrences(ctx context.Context, householdID string, scheduleID string, limit int) ([]domain.Occurrence, error) {
	if _, err := s.GetSchedule(ctx, householdID, scheduleID); err != nil {
		return nil, err
	}
	occ, err := s.scheduleRepo.ListOccurrences(ctx, scheduleID, limit)
	if err != nil {
		s.LogError(ctx, err, "Failed to list occurrences", slog.String("schedule_id", scheduleID))
		return nil, err
	}
	return occ, nil
}

// UpdateSchedule applies a partial update under the schedule's lock so it cannot
// interleave with a materialization.
func (s *scheduleService) UpdateSchedule(ctx context.Context, householdID string, scheduleID string, req dto.UpdateScheduleRequest, userID string) (*domain.Schedule, error) {
	var updated domain.Schedule
	err := s.withOwnedSchedule(ctx, householdID, scheduleID, func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork, schedule domain.Schedule) error {
		now := s.Now()

		if req.AccountID != nil {
			schedule.AccountID = *req.AccountID
		}
		if req.AutoCreate != nil {
			schedule.AutoCreate = *req.AutoCreate
		}
		tmpl := req.ApplyTemplate(schedule.Template)
		if err := tmpl.Validate(schedule.AccountID); err != nil {
			return err
		}
		schedule.Template = tmpl

		if req.TouchesRecurrence() {
			if err := schedule.ApplyRuleChange(req.ApplyRule(schedule.Rule), userID, now); err != nil {
				return err
			}
		}
		schedule.LastUpdatedAt = now
		schedule.LastUpdatedBy = userID

		if err := uow.UpdateSchedule(ctx, schedule); err != nil {
			return err
		}
		updated = schedule
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.LogInfo(ctx, "Schedule updated", slog.String("schedule_id", scheduleID))
	s.Publish(ctx, domain.NewScheduleEvent(domain.EventScheduleUpdated, &updated, s.Now()))
	if updated.IsCompleted() {
		s.Publish(ctx, domain.NewScheduleEvent(domain.EventScheduleCompleted, &updated, s.Now()))
	}
	return &updated, nil
}

// DeleteSchedule removes the schedule. Already posted transactions stay in the ledger.
func (s *scheduleService) DeleteSchedule(ctx context.Context, householdID string, scheduleID string, userID string) error {
	schedule, err := s.GetSchedule(ctx, householdID, scheduleID)
	if err != nil {
		return err
	}
	if err := s.scheduleRepo.DeleteSchedule(ctx, scheduleID); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to delete schedule", slog.String("schedule_id", scheduleID))
		}
		return err
	}
	s.LogInfo(ctx, "Schedule deleted",
		slog.String("schedule_id", scheduleID),
		slog.String("user_id", userID))
	s.Publish(ctx, domain.NewScheduleEvent(domain.EventScheduleDeleted, schedule, s.Now()))
	return nil
}

// SetActive pauses or resumes a schedule. Resuming keeps the stored next occurrence,
// so anything missed while paused is caught up by the runner.
func (s *scheduleService) SetActive(ctx context.Context, householdID string, scheduleID string, active bool, userID string) (*domain.Schedule, error) {
	var updated domain.Schedule
	err := s.withOwnedSchedule(ctx, householdID, scheduleID, func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork, schedule domain.Schedule) error {
		if schedule.IsActive == active {
			updated = schedule
			return nil
		}
		var err error
		if active {
			err = schedule.Resume(userID, s.Now())
		} else {
			err = schedule.Pause(userID, s.Now())
		}
		if err != nil {
			return err
		}
		if err := uow.UpdateSchedule(ctx, schedule); err != nil {
			return err
		}
		updated = schedule
		return nil
	})
	if err != nil {
		return nil, err
	}

	evtType := domain.EventSchedulePaused
	if active {
		evtType = domain.EventScheduleResumed
	}
	s.LogInfo(ctx, "Schedule toggled",
		slog.String("schedule_id", scheduleID),
		slog.Bool("is_active", active))
	s.Publish(ctx, domain.NewScheduleEvent(evtType, &updated, s.Now()))
	return &updated, nil
}

// SkipOccurrence moves past the pending occurrence without posting it.
func (s *scheduleService) SkipOccurrence(ctx context.Context, householdID string, scheduleID string, userID string) (*domain.Schedule, error) {
	var updated domain.Schedule
	var skipped civil.Date
	err := s.withOwnedSchedule(ctx, householdID, scheduleID, func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork, schedule domain.Schedule) error {
		if schedule.NextOccurrence != nil {
			skipped = *schedule.NextOccurrence
		}
		if err := schedule.Skip(userID, s.Now()); err != nil {
			return err
		}
		if err := uow.UpdateSchedule(ctx, schedule); err != nil {
			return err
		}
		updated = schedule
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.LogInfo(ctx, "Occurrence skipped",
		slog.String("schedule_id", scheduleID),
		slog.String("occurrence_date", skipped.String()))
	evt := domain.NewScheduleEvent(domain.EventOccurrenceSkipped, &updated, s.Now())
	evt.OccurrenceDate = domain.DatePtr(skipped)
	s.Publish(ctx, evt)
	if updated.IsCompleted() {
		s.Publish(ctx, domain.NewScheduleEvent(domain.EventScheduleCompleted, &updated, s.Now()))
	}
	return &updated, nil
}

// MaterializeNow confirms the pending occurrence of a manual schedule.
func (s *scheduleService) MaterializeNow(ctx context.Context, householdID string, scheduleID string, userID string) (*portssvc.MaterializeResult, error) {
	schedule, err := s.GetSchedule(ctx, householdID, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.AutoCreate {
		return nil, apperrors.NewAppError(409, "schedule is posted automatically", apperrors.ErrInvalidTransition)
	}
	return s.materializer.Materialize(ctx, scheduleID, s.today(), portssvc.MaterializeOptions{
		ExpectedDue: schedule.NextOccurrence,
		Manual:      true,
		UserID:      userID,
	})
}

// withOwnedSchedule locks scheduleID and hands fn a copy, hiding schedules of other households.
func (s *scheduleService) withOwnedSchedule(ctx context.Context, householdID, scheduleID string, fn func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork, schedule domain.Schedule) error) error {
	err := s.scheduleRepo.WithScheduleLock(ctx, scheduleID, func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork) error {
		schedule := uow.Schedule()
		if err := ensureOwned(&schedule, householdID); err != nil {
			return err
		}
		return fn(ctx, uow, schedule)
	})
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrValidation) &&
		!errors.Is(err, apperrors.ErrInvalidTransition) {
		s.LogError(ctx, err, "Failed to update schedule", slog.String("schedule_id", scheduleID))
	}
	return err
}
