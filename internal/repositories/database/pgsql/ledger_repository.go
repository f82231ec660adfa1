package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	"github.com/SscSPs/mma_recurring/internal/models"
	"github.com/SscSPs/mma_recurring/internal/utils/mapping"
)

type PgxLedgerRepository struct {
	BaseRepository
	clock func() time.Time
}

// newPgxLedgerRepository creates a new repository for scheduler-posted transactions.
func newPgxLedgerRepository(pool *pgxpool.Pool) *PgxLedgerRepository {
	return &PgxLedgerRepository{BaseRepository: BaseRepository{Pool: pool}, clock: time.Now}
}

// Ensure PgxLedgerRepository implements portsrepo.LedgerRepositoryFacade
var _ portsrepo.LedgerRepositoryFacade = (*PgxLedgerRepository)(nil)

// CreateTransaction inserts the ledger row for one occurrence. A second post for the
// same (schedule, date) returns the first row's id with apperrors.ErrDuplicate.
func (r *PgxLedgerRepository) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (string, error) {
	m := mapping.ToModelLedgerTransaction(uuid.NewString(), req)
	m.CreatedAt = r.clock().UTC()
	q := r.q(ctx)

	var id string
	err := q.QueryRow(ctx, `
		INSERT INTO ledger_transactions (
			transaction_id, household_id, schedule_id, account_id, transaction_type, amount, currency_code,
			transaction_date, description, merchant, category_id, transfer_account_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (schedule_id, transaction_date) DO NOTHING
		RETURNING transaction_id;`,
		m.TransactionID, m.HouseholdID, m.ScheduleID, m.AccountID, m.TransactionType, m.Amount, m.CurrencyCode,
		m.TransactionDate, m.Description, m.Merchant, m.CategoryID, m.TransferAccountID, m.CreatedAt,
	).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Conflict: the occurrence was already posted.
	case pgErrorCode(err) == pgForeignKeyViolation:
		return "", apperrors.NewNotFoundError(fmt.Sprintf("account or category of schedule %s not found", req.ScheduleID))
	default:
		return "", fmt.Errorf("failed to post transaction %s: %w", req.IdempotencyKey(), err)
	}

	err = q.QueryRow(ctx,
		`SELECT transaction_id FROM ledger_transactions WHERE schedule_id = $1 AND transaction_date = $2;`,
		m.ScheduleID, m.TransactionDate,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to read back transaction %s: %w", req.IdempotencyKey(), err)
	}
	return id, apperrors.ErrDuplicate
}

// FindTransactionByID retrieves a posted transaction by its ID.
func (r *PgxLedgerRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.MaterializedTransaction, error) {
	var m models.LedgerTransaction
	var scheduleID *string
	err := r.q(ctx).QueryRow(ctx, `
		SELECT transaction_id, household_id, schedule_id, account_id, transaction_type, amount, currency_code,
		       transaction_date, description, merchant, category_id, transfer_account_id, created_at
		FROM ledger_transactions
		WHERE transaction_id = $1;`, transactionID,
	).Scan(
		&m.TransactionID,
		&m.HouseholdID,
		&scheduleID,
		&m.AccountID,
		&m.TransactionType,
		&m.Amount,
		&m.CurrencyCode,
		&m.TransactionDate,
		&m.Description,
		&m.Merchant,
		&m.CategoryID,
		&m.TransferAccountID,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("transaction " + transactionID + " not found")
		}
		return nil, fmt.Errorf("failed to find transaction %s: %w", transactionID, err)
	}
	if scheduleID != nil {
		m.ScheduleID = *scheduleID
	}
	t := mapping.ToDomainMaterializedTransaction(m)
	return &t, nil
}
