package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTransaction is a row of ledger_transactions written by the scheduler.
// (schedule_id, transaction_date) is unique so a repeated post is a no-op.
type LedgerTransaction struct {
	TransactionID     string          `db:"transaction_id"`
	HouseholdID       string          `db:"household_id"`
	ScheduleID        string          `db:"schedule_id"`
	AccountID         string          `db:"account_id"`
	TransactionType   string          `db:"transaction_type"`
	Amount            decimal.Decimal `db:"amount"`
	CurrencyCode      string          `db:"currency_code"`
	TransactionDate   time.Time       `db:"transaction_date"`
	Description       string          `db:"description"`
	Merchant          string          `db:"merchant"`
	CategoryID        *string         `db:"category_id"`
	TransferAccountID *string         `db:"transfer_account_id"`
	CreatedAt         time.Time       `db:"created_at"`
}
