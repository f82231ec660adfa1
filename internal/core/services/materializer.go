package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
)

// materializer implements portssvc.MaterializerSvc
type materializer struct {
	BaseService
	scheduleRepo portsrepo.ScheduleLocker
	ledger       portsrepo.LedgerWriter
	references   portsrepo.ReferenceChecker
}

// MaterializerOption is a functional option for configuring the materializer
type MaterializerOption func(*materializer)

// WithReferenceChecker verifies accounts and categories before posting.
func WithReferenceChecker(refs portsrepo.ReferenceChecker) MaterializerOption {
	return func(m *materializer) {
		m.references = refs
	}
}

// WithMaterializerEvents publishes advance/creation events after each commit.
func WithMaterializerEvents(p portssvc.EventPublisher) MaterializerOption {
	return func(m *materializer) {
		m.Events = p
	}
}

// WithMaterializerClock overrides the clock used for audit timestamps.
func WithMaterializerClock(clock func() time.Time) MaterializerOption {
	return func(m *materializer) {
		m.Clock = clock
	}
}

// NewMaterializer creates a materializer writing through the given lock and ledger.
func NewMaterializer(locker portsrepo.ScheduleLocker, ledger portsrepo.LedgerWriter, options ...MaterializerOption) portssvc.MaterializerSvc {
	m := &materializer{
		scheduleRepo: locker,
		ledger:       ledger,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

var _ portssvc.MaterializerSvc = (*materializer)(nil)

// Materialize posts the pending occurrence of scheduleID if it is due on today.
// The read-decide-write sequence runs under the schedule's lock, and the
// (schedule, date) claim guarantees at most one posting per occurrence.
func (m *materializer) Materialize(ctx context.Context, scheduleID string, today civil.Date, opts portssvc.MaterializeOptions) (*portssvc.MaterializeResult, error) {
	userID := opts.UserID
	if userID == "" {
		userID = domain.SystemUserID
	}

	var result *portssvc.MaterializeResult
	var events []domain.Event

	err := m.scheduleRepo.WithScheduleLock(ctx, scheduleID, func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork) error {
		schedule := uow.Schedule()
		result = &portssvc.MaterializeResult{Schedule: schedule}
		events = nil

		if opts.ExpectedDue != nil && !sameDate(schedule.NextOccurrence, *opts.ExpectedDue) {
			posted, err := uow.HasOccurrence(ctx, *opts.ExpectedDue)
			if err != nil {
				return err
			}
			if posted {
				result.Outcome = portssvc.OutcomeAlreadyMaterialized
				return nil
			}
		}

		if !schedule.IsDue(today) || (!schedule.AutoCreate && !opts.Manual) {
			result.Outcome = portssvc.OutcomeNotDue
			return nil
		}
		due := *schedule.NextOccurrence
		now := m.Now()

		posted, err := uow.HasOccurrence(ctx, due)
		if err != nil {
			return err
		}
		if posted {
			// The date was claimed but the schedule never moved on; catch it up.
			schedule.Advance(due, userID, now)
			if err := uow.UpdateSchedule(ctx, schedule); err != nil {
				return err
			}
			result.Outcome = portssvc.OutcomeAlreadyMaterialized
			result.Schedule = schedule
			events = m.advanceEvents(&schedule, due, "", now)
			return nil
		}

		if err := m.checkReferences(ctx, &schedule); err != nil {
			return err
		}

		req := schedule.BuildTransactionRequest(due)
		txID, err := m.ledger.CreateTransaction(ctx, req)
		switch {
		case errors.Is(err, apperrors.ErrDuplicate):
			// Posted by an attempt that did not get to commit the schedule.
			m.LogDebug(ctx, "Ledger already holds occurrence, reusing transaction",
				slog.String("schedule_id", scheduleID),
				slog.String("occurrence_date", due.String()),
				slog.String("transaction_id", txID))
		case errors.Is(err, apperrors.ErrNotFound):
			return errors.Join(apperrors.ErrDependency, err)
		case err != nil:
			return err
		}

		occ := domain.Occurrence{
			ScheduleID:     scheduleID,
			OccurrenceDate: due,
			TransactionID:  txID,
			Manual:         opts.Manual,
			CreatedAt:      now,
		}
		if err := uow.ClaimOccurrence(ctx, occ); err != nil {
			if errors.Is(err, apperrors.ErrDuplicate) {
				result.Outcome = portssvc.OutcomeAlreadyMaterialized
				return nil
			}
			return err
		}

		schedule.Advance(due, userID, now)
		if err := uow.UpdateSchedule(ctx, schedule); err != nil {
			return err
		}

		result.Outcome = portssvc.OutcomeMaterialized
		result.Schedule = schedule
		result.Transaction = &domain.MaterializedTransaction{
			TransactionID:      txID,
			TransactionRequest: req,
			CreatedAt:          now,
		}
		events = m.advanceEvents(&schedule, due, txID, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrDependency) {
			m.LogWarn(ctx, err, "Schedule references missing records, left unchanged",
				slog.String("schedule_id", scheduleID))
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			m.LogError(ctx, err, "Failed to materialize schedule",
				slog.String("schedule_id", scheduleID))
		}
		return nil, err
	}

	if result.Outcome == portssvc.OutcomeMaterialized {
		m.LogInfo(ctx, "Schedule materialized",
			slog.String("schedule_id", scheduleID),
			slog.String("transaction_id", result.Transaction.TransactionID),
			slog.String("occurrence_date", result.Transaction.Date.String()))
	}
	m.Publish(ctx, events...)
	return result, nil
}

func (m *materializer) checkReferences(ctx context.Context, s *domain.Schedule) error {
	if m.references == nil {
		return nil
	}
	ok, err := m.references.AccountExists(ctx, s.HouseholdID, s.AccountID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewDependencyError("account", s.AccountID)
	}
	if id := s.Template.TransferAccountID; s.Template.Type == domain.Transfer && id != nil {
		ok, err := m.references.AccountExists(ctx, s.HouseholdID, *id)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewDependencyError("transfer account", *id)
		}
	}
	if id := s.Template.CategoryID; id != nil {
		ok, err := m.references.CategoryExists(ctx, s.HouseholdID, *id)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewDependencyError("category", *id)
		}
	}
	return nil
}

func (m *materializer) advanceEvents(s *domain.Schedule, due civil.Date, txID string, now time.Time) []domain.Event {
	var events []domain.Event
	if txID != "" {
		created := domain.NewScheduleEvent(domain.EventTransactionCreated, s, now)
		created.OccurrenceDate = domain.DatePtr(due)
		created.TransactionID = txID
		events = append(events, created)
	}
	advanced := domain.NewScheduleEvent(domain.EventScheduleAdvanced, s, now)
	advanced.OccurrenceDate = domain.DatePtr(due)
	events = append(events, advanced)
	if s.IsCompleted() {
		events = append(events, domain.NewScheduleEvent(domain.EventScheduleCompleted, s, now))
	}
	return events
}

func sameDate(p *civil.Date, d civil.Date) bool {
	return p != nil && *p == d
}
