package repositories

import (
	"context"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

// LedgerWriter posts transactions to the household ledger.
type LedgerWriter interface {
	// CreateTransaction posts req and returns the new transaction id. The write is
	// idempotent on (ScheduleID, Date): a repeat returns the existing id together with
	// apperrors.ErrDuplicate. A missing account or category yields apperrors.ErrNotFound.
	CreateTransaction(ctx context.Context, req domain.TransactionRequest) (string, error)
}

// LedgerReader reads back transactions posted by the scheduler.
type LedgerReader interface {
	FindTransactionByID(ctx context.Context, transactionID string) (*domain.MaterializedTransaction, error)
}

// LedgerRepositoryFacade combines ledger reads and writes.
type LedgerRepositoryFacade interface {
	LedgerWriter
	LedgerReader
}

// ReferenceChecker answers whether records a schedule points at still exist.
type ReferenceChecker interface {
	AccountExists(ctx context.Context, householdID, accountID string) (bool, error)
	CategoryExists(ctx context.Context, householdID, categoryID string) (bool, error)
}

// ReferenceRegistry lets the owning application mirror its accounts and categories into
// stores that keep their own copy (embedded mode). An inactive account fails the
// reference check like a missing one.
type ReferenceRegistry interface {
	UpsertAccount(ctx context.Context, householdID, accountID, name string, active bool) error
	UpsertCategory(ctx context.Context, householdID, categoryID, name string) error
	// DeleteCategory returns apperrors.ErrNotFound when the household has no such category.
	DeleteCategory(ctx context.Context, householdID, categoryID string) error
}
