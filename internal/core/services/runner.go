package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/utils"
)

const (
	defaultMaxCatchUp      = 31
	defaultManualGraceDays = 7
)

// RunnerConfig tunes the periodic runner.
type RunnerConfig struct {
	// Location decides which calendar day "today" is.
	Location *time.Location
	// MaxCatchUp bounds how many missed occurrences one schedule posts per tick.
	MaxCatchUp int
	// ManualGraceDays is how long a manual schedule may sit unconfirmed before it is skipped.
	ManualGraceDays int
}

// runner implements portssvc.RunnerSvc
type runner struct {
	BaseService
	cfg          RunnerConfig
	scheduleRepo portsrepo.ScheduleRepositoryFacade
	materializer portssvc.MaterializerSvc
	notifier     portssvc.Notifier
}

// RunnerOption is a functional option for configuring the runner
type RunnerOption func(*runner)

// WithNotifier sends dependency failures and due reminders to the household.
func WithNotifier(n portssvc.Notifier) RunnerOption {
	return func(r *runner) {
		r.notifier = n
	}
}

// WithRunnerEvents publishes due/skip/failure events.
func WithRunnerEvents(p portssvc.EventPublisher) RunnerOption {
	return func(r *runner) {
		r.Events = p
	}
}

// WithRunnerClock overrides the clock used for durations and audit timestamps.
func WithRunnerClock(clock func() time.Time) RunnerOption {
	return func(r *runner) {
		r.Clock = clock
	}
}

// NewRunner creates the runner that drives materialization for every due schedule.
func NewRunner(cfg RunnerConfig, repo portsrepo.ScheduleRepositoryFacade, m portssvc.MaterializerSvc, options ...RunnerOption) portssvc.RunnerSvc {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxCatchUp <= 0 {
		cfg.MaxCatchUp = defaultMaxCatchUp
	}
	if cfg.ManualGraceDays < 0 {
		cfg.ManualGraceDays = defaultManualGraceDays
	}
	r := &runner{
		cfg:          cfg,
		scheduleRepo: repo,
		materializer: m,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

var _ portssvc.RunnerSvc = (*runner)(nil)

// Tick processes every schedule due as of now's calendar day. A failing schedule is
// recorded and does not stop the others. Cancelling ctx stops the pass between
// schedules; the schedule in flight always finishes its unit of work.
func (r *runner) Tick(ctx context.Context, now time.Time) portssvc.TickReport {
	started := r.Now()
	today := domain.Today(now, r.cfg.Location)
	report := portssvc.TickReport{Date: today, Failures: []portssvc.TickFailure{}}
	logger := r.GetLogger(ctx).With(slog.String("tick_date", today.String()))

	due, err := r.scheduleRepo.ListDueSchedules(ctx, today, true)
	if err != nil {
		logger.Error("Failed to list due schedules", slog.String("error", err.Error()))
		report.Failures = append(report.Failures, portssvc.TickFailure{Error: err.Error()})
		report.Duration = r.Now().Sub(started)
		return report
	}

	for i := range due {
		if ctx.Err() != nil {
			logger.Warn("Tick cancelled, remaining schedules left for the next run",
				slog.Int("remaining", len(due)-i))
			break
		}
		report.Scanned++
		r.catchUp(ctx, &due[i], today, &report)
	}

	if ctx.Err() == nil {
		r.handleManual(ctx, today, &report)
	}

	report.Duration = r.Now().Sub(started)
	logger.Info("Scheduler tick finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("materialized", report.Materialized),
		slog.Int("already_materialized", report.AlreadyMaterialized),
		slog.Int("skipped", report.Skipped),
		slog.Int("failures", len(report.Failures)),
		slog.Duration("duration", report.Duration))
	return report
}

// catchUp posts every missed occurrence of s up to today, bounded by MaxCatchUp.
func (r *runner) catchUp(ctx context.Context, s *domain.Schedule, today civil.Date, report *portssvc.TickReport) {
	// The unit of work must not be torn by a cancelled tick.
	workCtx := context.WithoutCancel(ctx)
	expected := s.NextOccurrence

	for range r.cfg.MaxCatchUp {
		opts := portssvc.MaterializeOptions{UserID: domain.SystemUserID}
		if expected != nil {
			opts.ExpectedDue = domain.DatePtr(*expected)
		}
		res, err := r.materializer.Materialize(workCtx, s.ScheduleID, today, opts)
		if err != nil {
			r.recordFailure(ctx, s, err, report)
			return
		}

		switch res.Outcome {
		case portssvc.OutcomeNotDue:
			report.NotDue++
			return
		case portssvc.OutcomeAlreadyMaterialized:
			report.AlreadyMaterialized++
			r.LogDebug(ctx, "Occurrence already materialized",
				slog.String("schedule_id", s.ScheduleID))
		case portssvc.OutcomeMaterialized:
			report.Materialized++
		}

		if !res.Schedule.IsDue(today) {
			return
		}
		expected = res.Schedule.NextOccurrence
	}

	r.LogInfo(ctx, "Catch-up limit reached, continuing on the next tick",
		slog.String("schedule_id", s.ScheduleID),
		slog.Int("max_catch_up", r.cfg.MaxCatchUp))
}

func (r *runner) recordFailure(ctx context.Context, s *domain.Schedule, err error, report *portssvc.TickReport) {
	dependency := errors.Is(err, apperrors.ErrDependency)
	report.Failures = append(report.Failures, portssvc.TickFailure{
		ScheduleID:  s.ScheduleID,
		HouseholdID: s.HouseholdID,
		Error:       err.Error(),
		Dependency:  dependency,
	})
	if !dependency {
		return
	}

	now := r.Now()
	evt := domain.NewScheduleEvent(domain.EventMaterializationFailed, s, now)
	evt.OccurrenceDate = s.NextOccurrence
	evt.Error = err.Error()
	r.Publish(ctx, evt)

	r.notify(ctx, domain.Notification{
		Level:       domain.NotifyWarning,
		HouseholdID: s.HouseholdID,
		ScheduleID:  s.ScheduleID,
		Title:       "Recurring transaction could not be created",
		Message:     fmt.Sprintf("%q was not posted: %v. Fix or delete the schedule.", scheduleName(s), err),
		At:          now,
	})
}

// handleManual reminds about manual schedules due today and skips the ones that
// were left unconfirmed past the grace window.
func (r *runner) handleManual(ctx context.Context, today civil.Date, report *portssvc.TickReport) {
	manual, err := r.scheduleRepo.ListDueSchedules(ctx, today, false)
	if err != nil {
		r.LogError(ctx, err, "Failed to list manual schedules")
		report.Failures = append(report.Failures, portssvc.TickFailure{Error: err.Error()})
		return
	}
	cutoff := today.AddDays(-r.cfg.ManualGraceDays)

	for i := range manual {
		if ctx.Err() != nil {
			return
		}
		s := &manual[i]
		switch {
		case *s.NextOccurrence == today:
			r.remindDue(ctx, s)
		case s.NextOccurrence.Before(cutoff):
			report.Scanned++
			if err := r.skipStale(context.WithoutCancel(ctx), s.ScheduleID, cutoff); err != nil {
				r.recordFailure(ctx, s, err, report)
				continue
			}
			report.Skipped++
		}
	}
}

func (r *runner) remindDue(ctx context.Context, s *domain.Schedule) {
	now := r.Now()
	evt := domain.NewScheduleEvent(domain.EventScheduleDue, s, now)
	evt.OccurrenceDate = s.NextOccurrence
	r.Publish(ctx, evt)
	r.notify(ctx, domain.Notification{
		Level:       domain.NotifyInfo,
		HouseholdID: s.HouseholdID,
		ScheduleID:  s.ScheduleID,
		Title:       "Recurring transaction due",
		Message:     fmt.Sprintf("%q (%s) is due today and waits for confirmation.", scheduleName(s), utils.FormatAmount(s.Template.Amount, s.Template.CurrencyCode)),
		At:          now,
	})
}

// skipStale moves a manual schedule past every occurrence older than cutoff.
func (r *runner) skipStale(ctx context.Context, scheduleID string, cutoff civil.Date) error {
	var events []domain.Event
	err := r.scheduleRepo.WithScheduleLock(ctx, scheduleID, func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork) error {
		s := uow.Schedule()
		events = nil
		now := r.Now()
		changed := false
		for !s.AutoCreate && s.IsActive && s.NextOccurrence != nil && s.NextOccurrence.Before(cutoff) {
			skipped := *s.NextOccurrence
			if err := s.Skip(domain.SystemUserID, now); err != nil {
				return err
			}
			evt := domain.NewScheduleEvent(domain.EventOccurrenceSkipped, &s, now)
			evt.OccurrenceDate = domain.DatePtr(skipped)
			events = append(events, evt)
			changed = true
		}
		if !changed {
			return nil
		}
		if s.IsCompleted() {
			events = append(events, domain.NewScheduleEvent(domain.EventScheduleCompleted, &s, now))
		}
		return uow.UpdateSchedule(ctx, s)
	})
	if err != nil {
		return err
	}
	if len(events) > 0 {
		r.LogInfo(ctx, "Skipped unconfirmed manual occurrences",
			slog.String("schedule_id", scheduleID),
			slog.Int("skipped", len(events)))
	}
	r.Publish(ctx, events...)
	return nil
}

func (r *runner) notify(ctx context.Context, n domain.Notification) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		r.LogWarn(ctx, err, "Failed to deliver notification",
			slog.String("schedule_id", n.ScheduleID))
	}
}

func scheduleName(s *domain.Schedule) string {
	if s.Template.Description != "" {
		return s.Template.Description
	}
	if s.Template.Merchant != "" {
		return s.Template.Merchant
	}
	return s.ScheduleID
}
