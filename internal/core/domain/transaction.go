package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
)

// TransactionType is the kind of ledger entry a schedule produces.
type TransactionType string

const (
	Income   TransactionType = "INCOME"
	Expense  TransactionType = "EXPENSE"
	Transfer TransactionType = "TRANSFER"
)

// ParseTransactionType accepts any casing of a known transaction type.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

// IsValid reports whether t is one of the declared transaction types.
func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

// TransactionTemplate holds the fields copied onto every materialized transaction.
type TransactionTemplate struct {
	Type              TransactionType `json:"type"`
	Amount            decimal.Decimal `json:"amount"`
	CurrencyCode      string          `json:"currencyCode"`
	Description       string          `json:"description"`
	Merchant          string          `json:"merchant"`
	CategoryID        *string         `json:"categoryID,omitempty"`
	TransferAccountID *string         `json:"transferAccountID,omitempty"`
}

// Validate checks the template against the owning account.
func (t TransactionTemplate) Validate(accountID string) error {
	if !t.Type.IsValid() {
		return apperrors.NewValidationError("type", "unknown transaction type %q", string(t.Type))
	}
	if !t.Amount.IsPositive() {
		return apperrors.NewValidationError("amount", "must be greater than zero")
	}
	if len(t.CurrencyCode) != 3 {
		return apperrors.NewValidationError("currencyCode", "must be a 3 letter ISO code")
	}
	switch t.Type {
	case Transfer:
		if t.TransferAccountID == nil || *t.TransferAccountID == "" {
			return apperrors.NewValidationError("transferAccountID", "required for transfers")
		}
		if *t.TransferAccountID == accountID {
			return apperrors.NewValidationError("transferAccountID", "must differ from the source account")
		}
	case Income, Expense:
		if t.TransferAccountID != nil && *t.TransferAccountID != "" {
			return apperrors.NewValidationError("transferAccountID", "only transfers may set a destination account")
		}
	}
	return nil
}

// TransactionRequest is what the scheduler hands to the ledger for one occurrence.
// ScheduleID and Date together form the ledger's idempotency key.
type TransactionRequest struct {
	ScheduleID        string          `json:"scheduleID"`
	HouseholdID       string          `json:"householdID"`
	AccountID         string          `json:"accountID"`
	Type              TransactionType `json:"type"`
	Amount            decimal.Decimal `json:"amount"`
	CurrencyCode      string          `json:"currencyCode"`
	Date              civil.Date      `json:"date"`
	Description       string          `json:"description,omitempty"`
	Merchant          string          `json:"merchant,omitempty"`
	CategoryID        *string         `json:"categoryID,omitempty"`
	TransferAccountID *string         `json:"transferAccountID,omitempty"`
}

// IdempotencyKey is the (schedule, date) pair the ledger deduplicates on.
func (r TransactionRequest) IdempotencyKey() string {
	return r.ScheduleID + ":" + r.Date.String()
}

// MaterializedTransaction is a posted occurrence as seen by the scheduler.
type MaterializedTransaction struct {
	TransactionID string `json:"transactionID"`
	TransactionRequest
	CreatedAt time.Time `json:"createdAt"`
}

// Occurrence records that a schedule was posted for a date.
type Occurrence struct {
	ScheduleID     string     `json:"scheduleID"`
	OccurrenceDate civil.Date `json:"occurrenceDate"`
	TransactionID  string     `json:"transactionID"`
	Manual         bool       `json:"manual"`
	CreatedAt      time.Time  `json:"createdAt"`
}
