package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	"github.com/SscSPs/mma_recurring/internal/utils/pagination"
)

const scheduleColumns = `schedule_id, household_id, account_id, transaction_type, amount, currency_code,
	description, merchant, category_id, transfer_account_id, frequency, day_of_week, day_of_month, month,
	start_date, end_date, next_occurrence, last_occurrence, skipped_through, occurrence_count, is_active,
	auto_create, status, version, created_at, created_by, last_updated_at, last_updated_by`

var _ portsrepo.ScheduleRepositoryFacade = (*Store)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var (
		s                                 domain.Schedule
		txType, amount, frequency, status string
		category, transfer                sql.NullString
		dayOfWeek, dayOfMonth, month      sql.NullInt64
		start                             string
		end, next, last, skipped          sql.NullString
		createdAt, updatedAt              string
	)
	err := row.Scan(
		&s.ScheduleID, &s.HouseholdID, &s.AccountID, &txType, &amount, &s.Template.CurrencyCode,
		&s.Template.Description, &s.Template.Merchant, &category, &transfer, &frequency, &dayOfWeek, &dayOfMonth, &month,
		&start, &end, &next, &last, &skipped, &s.OccurrenceCount, &s.IsActive, &s.AutoCreate,
		&status, &s.Version, &createdAt, &s.CreatedBy, &updatedAt, &s.LastUpdatedBy,
	)
	if err != nil {
		return domain.Schedule{}, err
	}

	s.Template.Type = domain.TransactionType(txType)
	if s.Template.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Schedule{}, fmt.Errorf("schedule %s amount: %w", s.ScheduleID, err)
	}
	s.Template.CategoryID = stringPtr(category)
	s.Template.TransferAccountID = stringPtr(transfer)
	s.Rule.Frequency = domain.Frequency(frequency)
	s.Rule.DayOfWeek = intPtr(dayOfWeek)
	s.Rule.DayOfMonth = intPtr(dayOfMonth)
	s.Rule.Month = intPtr(month)
	s.Status = domain.ScheduleStatus(status)

	if s.Rule.StartDate, err = civil.ParseDate(start); err != nil {
		return domain.Schedule{}, fmt.Errorf("schedule %s start_date: %w", s.ScheduleID, err)
	}
	if s.Rule.EndDate, err = parseDatePtr(end); err != nil {
		return domain.Schedule{}, fmt.Errorf("schedule %s end_date: %w", s.ScheduleID, err)
	}
	if s.NextOccurrence, err = parseDatePtr(next); err != nil {
		return domain.Schedule{}, fmt.Errorf("schedule %s next_occurrence: %w", s.ScheduleID, err)
	}
	if s.LastOccurrence, err = parseDatePtr(last); err != nil {
		return domain.Schedule{}, fmt.Errorf("schedule %s last_occurrence: %w", s.ScheduleID, err)
	}
	if s.SkippedThrough, err = parseDatePtr(skipped); err != nil {
		return domain.Schedule{}, fmt.Errorf("schedule %s skipped_through: %w", s.ScheduleID, err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Schedule{}, fmt.Errorf("schedule %s created_at: %w", s.ScheduleID, err)
	}
	if s.LastUpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Schedule{}, fmt.Errorf("schedule %s last_updated_at: %w", s.ScheduleID, err)
	}
	return s, nil
}

func collectSchedules(rows *sql.Rows) ([]domain.Schedule, error) {
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
func (s *Store) SaveSchedule(ctx context.Context, sc domain.Schedule) error {
	var exists bool
	if err := s.q(ctx).QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schedules WHERE schedule_id = ?)`, sc.ScheduleID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", sc.ScheduleID, err)
	}
	if exists {
		return fmt.Errorf("%w: schedule with ID %s already exists", apperrors.ErrDuplicate, sc.ScheduleID)
	}

	_, err := s.q(ctx).ExecContext(ctx, `INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sc.ScheduleID, sc.HouseholdID, sc.AccountID, string(sc.Template.Type), sc.Template.Amount.String(), sc.Template.CurrencyCode,
		sc.Template.Description, sc.Template.Merchant, nullString(sc.Template.CategoryID), nullString(sc.Template.TransferAccountID),
		string(sc.Rule.Frequency), nullInt(sc.Rule.DayOfWeek), nullInt(sc.Rule.DayOfMonth), nullInt(sc.Rule.Month),
		formatDate(sc.Rule.StartDate), formatDatePtr(sc.Rule.EndDate), formatDatePtr(sc.NextOccurrence), formatDatePtr(sc.LastOccurrence),
		formatDatePtr(sc.SkippedThrough), sc.OccurrenceCount, sc.IsActive, sc.AutoCreate, string(sc.Status), sc.Version,
		formatTime(sc.CreatedAt), sc.CreatedBy, formatTime(sc.LastUpdatedAt), sc.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", sc.ScheduleID, err)
	}
	return nil
}

func updateSchedule(ctx context.Context, q querier, sc domain.Schedule, expectVersion *int64) error {
	query := `UPDATE schedules SET
			account_id = ?, transaction_type = ?, amount = ?, currency_code = ?, description = ?,
			merchant = ?, category_id = ?, transfer_account_id = ?, frequency = ?, day_of_week = ?,
			day_of_month = ?, month = ?, start_date = ?, end_date = ?, next_occurrence = ?,
			last_occurrence = ?, skipped_through = ?, occurrence_count = ?, is_active = ?, auto_create = ?, status = ?,
			last_updated_at = ?, last_updated_by = ?, version = version + 1
		WHERE schedule_id = ?`
	args := []any{
		sc.AccountID, string(sc.Template.Type), sc.Template.Amount.String(), sc.Template.CurrencyCode, sc.Template.Description,
		sc.Template.Merchant, nullString(sc.Template.CategoryID), nullString(sc.Template.TransferAccountID), string(sc.Rule.Frequency), nullInt(sc.Rule.DayOfWeek),
		nullInt(sc.Rule.DayOfMonth), nullInt(sc.Rule.Month), formatDate(sc.Rule.StartDate), formatDatePtr(sc.Rule.EndDate), formatDatePtr(sc.NextOccurrence),
		formatDatePtr(sc.LastOccurrence), formatDatePtr(sc.SkippedThrough), sc.OccurrenceCount, sc.IsActive, sc.AutoCreate, string(sc.Status),
		formatTime(sc.LastUpdatedAt), sc.LastUpdatedBy, sc.ScheduleID,
	}
	if expectVersion != nil {
		query += ` AND version = ?`
		args = append(args, *expectVersion)
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update schedule %s: %w", sc.ScheduleID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("schedule " + sc.ScheduleID + " not found")
	}
	return nil
}

// UpdateSchedule overwrites a schedule outside of a lock.
func (s *Store) UpdateSchedule(ctx context.Context, sc domain.Schedule) error {
	return updateSchedule(ctx, s.q(ctx), sc, nil)
}

// DeleteSchedule removes a schedule and its occurrence history. Ledger rows are kept.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_occurrences WHERE schedule_id = ?`, scheduleID); err != nil {
		return fmt.Errorf("failed to delete occurrences of schedule %s: %w", scheduleID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE schedule_id = ?`, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", scheduleID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("schedule " + scheduleID + " not found")
	}
	return tx.Commit()
}

// FindScheduleByID retrieves a schedule by its ID.
func (s *Store) FindScheduleByID(ctx context.Context, scheduleID string) (*domain.Schedule, error) {
	sc, err := scanSchedule(s.q(ctx).QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE schedule_id = ?`, scheduleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("schedule " + scheduleID + " not found")
		}
		return nil, fmt.Errorf("failed to find schedule by ID %s: %w", scheduleID, err)
	}
	return &sc, nil
}

// ListSchedulesByHousehold returns a page ordered by (created_at, schedule_id).
func (s *Store) ListSchedulesByHousehold(ctx context.Context, householdID string, filter portsrepo.ScheduleListFilter) ([]domain.Schedule, *string, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE household_id = ?`
	args := []any{householdID}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.NextToken != nil && *filter.NextToken != "" {
		cursor, err := pagination.DecodeToken(*filter.NextToken)
		if err != nil {
			return nil, nil, err
		}
		query += ` AND (created_at, schedule_id) > (?, ?)`
		args = append(args, formatTime(cursor.CreatedAt), cursor.ID)
	}
	query += ` ORDER BY created_at ASC, schedule_id ASC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
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
func (s *Store) ListDueSchedules(ctx context.Context, asOf civil.Date, autoCreate bool) ([]domain.Schedule, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+scheduleColumns+`
		FROM schedules
		WHERE is_active = 1 AND status = ? AND auto_create = ?
		  AND next_occurrence IS NOT NULL AND next_occurrence <= ?
		ORDER BY next_occurrence ASC, schedule_id ASC`,
		string(domain.StatusActive), autoCreate, formatDate(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListOccurrences returns the posted occurrences of a schedule, newest first.
func (s *Store) ListOccurrences(ctx context.Context, scheduleID string, limit int) ([]domain.Occurrence, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT schedule_id, occurrence_date, transaction_id, manual, created_at
		FROM schedule_occurrences
		WHERE schedule_id = ?
		ORDER BY occurrence_date DESC
		LIMIT ?`, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query occurrences of schedule %s: %w", scheduleID, err)
	}
	defer rows.Close()

	occurrences := []domain.Occurrence{}
	for rows.Next() {
		var o domain.Occurrence
		var date, createdAt string
		if err := rows.Scan(&o.ScheduleID, &date, &o.TransactionID, &o.Manual, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan occurrence row: %w", err)
		}
		if o.OccurrenceDate, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("occurrence date of schedule %s: %w", scheduleID, err)
		}
		if o.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("occurrence created_at of schedule %s: %w", scheduleID, err)
		}
		occurrences = append(occurrences, o)
	}
	return occurrences, rows.Err()
}

// WithScheduleLock runs fn inside a transaction. The store has a single connection, so
// the transaction excludes every other writer until it ends.
func (s *Store) WithScheduleLock(ctx context.Context, scheduleID string, fn func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sc, err := scanSchedule(tx.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE schedule_id = ?`, scheduleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError("schedule " + scheduleID + " not found")
		}
		return fmt.Errorf("failed to lock schedule %s: %w", scheduleID, err)
	}

	uow := &unitOfWork{tx: tx, schedule: sc}
	if err := fn(context.WithValue(ctx, txCtxKey{}, ctxTx{store: s, tx: tx}), uow); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule %s: %w", scheduleID, err)
	}
	return nil
}

type unitOfWork struct {
	tx       *sql.Tx
	schedule domain.Schedule
	updated  *domain.Schedule
}

func (u *unitOfWork) Schedule() domain.Schedule {
	if u.updated != nil {
		return *u.updated
	}
	return u.schedule
}

func (u *unitOfWork) HasOccurrence(ctx context.Context, date civil.Date) (bool, error) {
	var exists bool
	err := u.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schedule_occurrences WHERE schedule_id = ? AND occurrence_date = ?)`,
		u.schedule.ScheduleID, formatDate(date),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check occurrence %s of schedule %s: %w", date, u.schedule.ScheduleID, err)
	}
	return exists, nil
}

func (u *unitOfWork) ClaimOccurrence(ctx context.Context, occ domain.Occurrence) error {
	res, err := u.tx.ExecContext(ctx, `
		INSERT INTO schedule_occurrences (schedule_id, occurrence_date, transaction_id, manual, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (schedule_id, occurrence_date) DO NOTHING`,
		occ.ScheduleID, formatDate(occ.OccurrenceDate), occ.TransactionID, occ.Manual, formatTime(occ.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to claim occurrence %s of schedule %s: %w", occ.OccurrenceDate, occ.ScheduleID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("occurrence %s of schedule %s: %w", occ.OccurrenceDate, occ.ScheduleID, apperrors.ErrDuplicate)
	}
	return nil
}

func (u *unitOfWork) UpdateSchedule(ctx context.Context, sc domain.Schedule) error {
	if sc.ScheduleID != u.schedule.ScheduleID {
		return fmt.Errorf("unit of work for %s cannot write schedule %s", u.schedule.ScheduleID, sc.ScheduleID)
	}
	expect := u.Schedule().Version
	if err := updateSchedule(ctx, u.tx, sc, &expect); err != nil {
		return err
	}
	sc.Version = expect + 1
	u.updated = &sc
	return nil
}
