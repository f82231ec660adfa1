package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
)

var _ portsrepo.LedgerRepositoryFacade = (*Store)(nil)

// CreateTransaction inserts the ledger row for one occurrence. A repeat for the same
// (schedule, date) returns the first row's id with apperrors.ErrDuplicate.
func (s *Store) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (string, error) {
	q := s.q(ctx)

	var existing string
	err := q.QueryRowContext(ctx,
		`SELECT transaction_id FROM ledger_transactions WHERE schedule_id = ? AND transaction_date = ?`,
		req.ScheduleID, formatDate(req.Date),
	).Scan(&existing)
	switch {
	case err == nil:
		return existing, apperrors.ErrDuplicate
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("failed to look up transaction %s: %w", req.IdempotencyKey(), err)
	}

	ok, err := s.AccountExists(ctx, req.HouseholdID, req.AccountID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.NewNotFoundError("account " + req.AccountID + " not found")
	}

	id := uuid.NewString()
	_, err = q.ExecContext(ctx, `
		INSERT INTO ledger_transactions (
			transaction_id, household_id, schedule_id, account_id, transaction_type, amount, currency_code,
			transaction_date, description, merchant, category_id, transfer_account_id, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, req.HouseholdID, req.ScheduleID, req.AccountID, string(req.Type), req.Amount.String(), req.CurrencyCode,
		formatDate(req.Date), req.Description, req.Merchant, nullString(req.CategoryID), nullString(req.TransferAccountID),
		formatTime(s.clock()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to post transaction %s: %w", req.IdempotencyKey(), err)
	}
	return id, nil
}

// FindTransactionByID retrieves a posted transaction by its ID.
func (s *Store) FindTransactionByID(ctx context.Context, transactionID string) (*domain.MaterializedTransaction, error) {
	var (
		t                        domain.MaterializedTransaction
		scheduleID               sql.NullString
		txType, amount, date, at string
		category, transfer       sql.NullString
	)
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT transaction_id, household_id, schedule_id, account_id, transaction_type, amount, currency_code,
		       transaction_date, description, merchant, category_id, transfer_account_id, created_at
		FROM ledger_transactions
		WHERE transaction_id = ?`, transactionID,
	).Scan(
		&t.TransactionID, &t.HouseholdID, &scheduleID, &t.AccountID, &txType, &amount, &t.CurrencyCode,
		&date, &t.Description, &t.Merchant, &category, &transfer, &at,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("transaction " + transactionID + " not found")
		}
		return nil, fmt.Errorf("failed to find transaction %s: %w", transactionID, err)
	}

	t.ScheduleID = scheduleID.String
	t.Type = domain.TransactionType(txType)
	t.CategoryID = stringPtr(category)
	t.TransferAccountID = stringPtr(transfer)
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", transactionID, err)
	}
	if t.Date, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("transaction %s date: %w", transactionID, err)
	}
	if t.CreatedAt, err = parseTime(at); err != nil {
		return nil, fmt.Errorf("transaction %s created_at: %w", transactionID, err)
	}
	return &t, nil
}
