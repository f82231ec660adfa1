package pgsql

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	"github.com/SscSPs/mma_recurring/internal/models"
	"github.com/SscSPs/mma_recurring/internal/utils/mapping"
	"github.com/SscSPs/mma_recurring/internal/utils/pagination"
)

const scheduleColumns = `schedule_id, household_id, account_id, transaction_type, amount, currency_code,
	description, merchant, category_id, transfer_account_id, frequency, day_of_week, day_of_month, month,
	start_date, end_date, next_occurrence, last_occurrence, skipped_through, occurrence_count, is_active,
	auto_create, status, version, created_at, created_by, last_updated_at, last_updated_by`

type PgxScheduleRepository struct {
	BaseRepository
}

// newPgxScheduleRepository creates a new repository for schedule data.
func newPgxScheduleRepository(pool *pgxpool.Pool) *PgxScheduleRepository {
	return &PgxScheduleRepository{BaseRepository: BaseRepository{Pool: pool}}
}

// Ensure PgxScheduleRepository implements portsrepo.ScheduleRepositoryFacade
var _ portsrepo.ScheduleRepositoryFacade = (*PgxScheduleRepository)(nil)

func scanSchedule(row pgx.Row) (domain.Schedule, error) {
	var m models.Schedule
	err := row.Scan(
		&m.ScheduleID,
		&m.HouseholdID,
		&m.AccountID,
		&m.TransactionType,
		&m.Amount,
		&m.CurrencyCode,
		&m.Description,
		&m.Merchant,
		&m.CategoryID,
		&m.TransferAccountID,
		&m.Frequency,
		&m.DayOfWeek,
		&m.DayOfMonth,
		&m.Month,
		&m.StartDate,
		&m.EndDate,
		&m.NextOccurrence,
		&m.LastOccurrence,
		&m.SkippedThrough,
		&m.OccurrenceCount,
		&m.IsActive,
		&m.AutoCreate,
		&m.Status,
		&m.Version,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastUpdatedAt,
		&m.LastUpdatedBy,
	)
	if err != nil {
		return domain.Schedule{}, err
	}
	return mapping.ToDomainSchedule(m), nil
}

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	defer rows.Close()
	schedules := []domain.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule rows: %w", err)
	}
	return schedules, nil
}

// SaveSchedule inserts a new schedule.
func (r *PgxScheduleRepository) SaveSchedule(ctx context.Context, schedule domain.Schedule) error {
	m := mapping.ToModelSchedule(schedule)
	query := `INSERT INTO schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28);`

	_, err := r.q(ctx).Exec(ctx, query,
		m.ScheduleID, m.HouseholdID, m.AccountID, m.TransactionType, m.Amount, m.CurrencyCode,
		m.Description, m.Merchant, m.CategoryID, m.TransferAccountID, m.Frequency, m.DayOfWeek, m.DayOfMonth, m.Month,
		m.StartDate, m.EndDate, m.NextOccurrence, m.LastOccurrence, m.SkippedThrough, m.OccurrenceCount, m.IsActive,
		m.AutoCreate, m.Status, m.Version, m.CreatedAt, m.CreatedBy, m.LastUpdatedAt, m.LastUpdatedBy,
	)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return fmt.Errorf("%w: schedule with ID %s already exists", apperrors.ErrDuplicate, m.ScheduleID)
		}
		return fmt.Errorf("failed to save schedule %s: %w", m.ScheduleID, err)
	}
	return nil
}

// updateSchedule writes every mutable column and bumps the version. When expectVersion
// is set the write only lands if the stored version still matches.
func updateSchedule(ctx context.Context, q querier, schedule domain.Schedule, expectVersion *int64) error {
	m := mapping.ToModelSchedule(schedule)
	query := `
		UPDATE schedules SET
			account_id = $2, transaction_type = $3, amount = $4, currency_code = $5, description = $6,
			merchant = $7, category_id = $8, transfer_account_id = $9, frequency = $10, day_of_week = $11,
			day_of_month = $12, month = $13, start_date = $14, end_date = $15, next_occurrence = $16,
			last_occurrence = $17, skipped_through = $18, occurrence_count = $19, is_active = $20,
			auto_create = $21, status = $22, last_updated_at = $23, last_updated_by = $24, version = version + 1
		WHERE schedule_id = $1`
	args := []any{
		m.ScheduleID, m.AccountID, m.TransactionType, m.Amount, m.CurrencyCode, m.Description,
		m.Merchant, m.CategoryID, m.TransferAccountID, m.Frequency, m.DayOfWeek,
		m.DayOfMonth, m.Month, m.StartDate, m.EndDate, m.NextOccurrence,
		m.LastOccurrence, m.SkippedThrough, m.OccurrenceCount, m.IsActive, m.AutoCreate, m.Status,
		m.LastUpdatedAt, m.LastUpdatedBy,
	}
	if expectVersion != nil {
		query += ` AND version = $` + strconv.Itoa(len(args)+1)
		args = append(args, *expectVersion)
	}

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update schedule %s: %w", m.ScheduleID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("schedule " + m.ScheduleID + " not found")
	}
	return nil
}

// UpdateSchedule overwrites a schedule outside of a lock.
func (r *PgxScheduleRepository) UpdateSchedule(ctx context.Context, schedule domain.Schedule) error {
	return updateSchedule(ctx, r.q(ctx), schedule, nil)
}

// DeleteSchedule removes a schedule and its occurrence history. Ledger rows are kept.
func (r *PgxScheduleRepository) DeleteSchedule(ctx context.Context, scheduleID string) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	if _, err := tx.Exec(ctx, `DELETE FROM schedule_occurrences WHERE schedule_id = $1`, scheduleID); err != nil {
		return fmt.Errorf("failed to delete occurrences of schedule %s: %w", scheduleID, err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM schedules WHERE schedule_id = $1`, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", scheduleID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("schedule " + scheduleID + " not found")
	}
	return r.Commit(ctx, tx)
}

// FindScheduleByID retrieves a schedule by its ID.
func (r *PgxScheduleRepository) FindScheduleByID(ctx context.Context, scheduleID string) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE schedule_id = $1;`
	s, err := scanSchedule(r.q(ctx).QueryRow(ctx, query, scheduleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("schedule " + scheduleID + " not found")
		}
		return nil, fmt.Errorf("failed to find schedule by ID %s: %w", scheduleID, err)
	}
	return &s, nil
}

// ListSchedulesByHousehold retrieves a page of schedules ordered by (created_at, schedule_id).
func (r *PgxScheduleRepository) ListSchedulesByHousehold(ctx context.Context, householdID string, filter portsrepo.ScheduleListFilter) ([]domain.Schedule, *string, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	// We fetch one extra item to determine if there's a next page.
	fetchLimit := limit + 1

	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE household_id = $1`
	args := []any{householdID}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.NextToken != nil && *filter.NextToken != "" {
		cursor, err := pagination.DecodeToken(*filter.NextToken)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, cursor.CreatedAt, cursor.ID)
		query += fmt.Sprintf(` AND (created_at, schedule_id) > ($%d, $%d)`, len(args)-1, len(args))
	}
	args = append(args, fetchLimit)
	query += ` ORDER BY created_at ASC, schedule_id ASC LIMIT $` + strconv.Itoa(len(args)) + `;`

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to query schedules for household "+householdID, err)
	}
	schedules, err := collectSchedules(rows)
	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to read schedules for household "+householdID, err)
	}

	var next *string
	if len(schedules) > limit {
		schedules = schedules[:limit]
		last := schedules[limit-1]
		token := pagination.EncodeToken(last.CreatedAt, last.ScheduleID)
		next = &token
	}
	return schedules, next, nil
}

// ListDueSchedules returns active schedules of the requested mode due on or before asOf.
func (r *PgxScheduleRepository) ListDueSchedules(ctx context.Context, asOf civil.Date, autoCreate bool) ([]domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE is_active AND status = $1 AND auto_create = $2
		  AND next_occurrence IS NOT NULL AND next_occurrence <= $3
		ORDER BY next_occurrence ASC, schedule_id ASC;`
	rows, err := r.q(ctx).Query(ctx, query, string(domain.StatusActive), autoCreate, mapping.DateToTime(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListOccurrences returns the posted occurrences of a schedule, newest first.
func (r *PgxScheduleRepository) ListOccurrences(ctx context.Context, scheduleID string, limit int) ([]domain.Occurrence, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q(ctx).Query(ctx, `
		SELECT schedule_id, occurrence_date, transaction_id, manual, created_at
		FROM schedule_occurrences
		WHERE schedule_id = $1
		ORDER BY occurrence_date DESC
		LIMIT $2;`, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query occurrences of schedule %s: %w", scheduleID, err)
	}
	defer rows.Close()

	occurrences := []domain.Occurrence{}
	for rows.Next() {
		var m models.Occurrence
		if err := rows.Scan(&m.ScheduleID, &m.OccurrenceDate, &m.TransactionID, &m.Manual, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan occurrence row: %w", err)
		}
		occurrences = append(occurrences, mapping.ToDomainOccurrence(m))
	}
	return occurrences, rows.Err()
}

// WithScheduleLock runs fn inside a transaction holding a row lock on the schedule.
// Ledger writes made with the ctx passed to fn join the same transaction.
func (r *PgxScheduleRepository) WithScheduleLock(ctx context.Context, scheduleID string, fn func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork) error) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE schedule_id = $1 FOR UPDATE;`
	schedule, err := scanSchedule(tx.QueryRow(ctx, query, scheduleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFoundError("schedule " + scheduleID + " not found")
		}
		return fmt.Errorf("failed to lock schedule %s: %w", scheduleID, err)
	}

	uow := &pgUnitOfWork{tx: tx, schedule: schedule}
	if err := fn(withTx(ctx, tx), uow); err != nil {
		return err
	}
	return r.Commit(ctx, tx)
}

// pgUnitOfWork writes through the transaction that holds the schedule's row lock.
type pgUnitOfWork struct {
	tx       pgx.Tx
	schedule domain.Schedule
	updated  *domain.Schedule
}

func (u *pgUnitOfWork) Schedule() domain.Schedule {
	if u.updated != nil {
		return *u.updated
	}
	return u.schedule
}

func (u *pgUnitOfWork) HasOccurrence(ctx context.Context, date civil.Date) (bool, error) {
	var exists bool
	err := u.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM schedule_occurrences WHERE schedule_id = $1 AND occurrence_date = $2);`,
		u.schedule.ScheduleID, mapping.DateToTime(date),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check occurrence %s of schedule %s: %w", date, u.schedule.ScheduleID, err)
	}
	return exists, nil
}

func (u *pgUnitOfWork) ClaimOccurrence(ctx context.Context, occ domain.Occurrence) error {
	m := mapping.ToModelOccurrence(occ)
	tag, err := u.tx.Exec(ctx, `
		INSERT INTO schedule_occurrences (schedule_id, occurrence_date, transaction_id, manual, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (schedule_id, occurrence_date) DO NOTHING;`,
		m.ScheduleID, m.OccurrenceDate, m.TransactionID, m.Manual, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to claim occurrence %s of schedule %s: %w", occ.OccurrenceDate, occ.ScheduleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("occurrence %s of schedule %s: %w", occ.OccurrenceDate, occ.ScheduleID, apperrors.ErrDuplicate)
	}
	return nil
}

func (u *pgUnitOfWork) UpdateSchedule(ctx context.Context, schedule domain.Schedule) error {
	if schedule.ScheduleID != u.schedule.ScheduleID {
		return fmt.Errorf("unit of work for %s cannot write schedule %s", u.schedule.ScheduleID, schedule.ScheduleID)
	}
	expect := u.Schedule().Version
	if err := updateSchedule(ctx, u.tx, schedule, &expect); err != nil {
		return err
	}
	schedule.Version = expect + 1
	u.updated = &schedule
	return nil
}
