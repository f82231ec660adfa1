package services

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

// MaterializeOutcome tells the caller what a materialization attempt did.
type MaterializeOutcome string

const (
	OutcomeMaterialized        MaterializeOutcome = "MATERIALIZED"
	OutcomeNotDue              MaterializeOutcome = "NOT_DUE"
	OutcomeAlreadyMaterialized MaterializeOutcome = "ALREADY_MATERIALIZED"
)

// MaterializeOptions tunes a single materialization.
type MaterializeOptions struct {
	// ExpectedDue is the occurrence the caller saw as pending. When it no longer
	// matches the locked schedule and was already posted, the attempt is a duplicate.
	ExpectedDue *civil.Date
	// Manual allows posting schedules that have autoCreate disabled.
	Manual bool
	UserID string
}

// MaterializeResult is the outcome plus the schedule as it stands afterwards.
type MaterializeResult struct {
	Outcome     MaterializeOutcome
	Schedule    domain.Schedule
	Transaction *domain.MaterializedTransaction
}

// MaterializerSvc turns a due schedule into a posted transaction.
type MaterializerSvc interface {
	Materialize(ctx context.Context, scheduleID string, today civil.Date, opts MaterializeOptions) (*MaterializeResult, error)
}

// TickFailure records one schedule that could not be processed during a tick.
type TickFailure struct {
	ScheduleID  string `json:"scheduleID"`
	HouseholdID string `json:"householdID"`
	Error       string `json:"error"`
	Dependency  bool   `json:"dependency"`
}

// TickReport summarizes one runner pass.
type TickReport struct {
	Date                civil.Date    `json:"date"`
	Scanned             int           `json:"scanned"`
	Materialized        int           `json:"materialized"`
	NotDue              int           `json:"notDue"`
	AlreadyMaterialized int           `json:"alreadyMaterialized"`
	Skipped             int           `json:"skipped"`
	Failures            []TickFailure `json:"failures"`
	Duration            time.Duration `json:"duration"`
}

// RunnerSvc is the periodic driver that posts every due schedule.
type RunnerSvc interface {
	Tick(ctx context.Context, now time.Time) TickReport
}
