package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Schedule is the row stored in the schedules table.
// Calendar dates are kept as midnight UTC.
type Schedule struct {
	ScheduleID        string          `db:"schedule_id"`
	HouseholdID       string          `db:"household_id"`
	AccountID         string          `db:"account_id"`
	TransactionType   string          `db:"transaction_type"`
	Amount            decimal.Decimal `db:"amount"`
	CurrencyCode      string          `db:"currency_code"`
	Description       string          `db:"description"`
	Merchant          string          `db:"merchant"`
	CategoryID        *string         `db:"category_id"`
	TransferAccountID *string         `db:"transfer_account_id"`
	Frequency         string          `db:"frequency"`
	DayOfWeek         *int32          `db:"day_of_week"`
	DayOfMonth        *int32          `db:"day_of_month"`
	Month             *int32          `db:"month"`
	StartDate         time.Time       `db:"start_date"`
	EndDate           *time.Time      `db:"end_date"`
	NextOccurrence    *time.Time      `db:"next_occurrence"`
	LastOccurrence    *time.Time      `db:"last_occurrence"`
	SkippedThrough    *time.Time      `db:"skipped_through"`
	OccurrenceCount   int64           `db:"occurrence_count"`
	IsActive          bool            `db:"is_active"`
	AutoCreate        bool            `db:"auto_create"`
	Status            string          `db:"status"`
	Version           int64           `db:"version"`
	AuditFields
}

// Occurrence is a row of schedule_occurrences. (schedule_id, occurrence_date) is unique.
type Occurrence struct {
	ScheduleID     string    `db:"schedule_id"`
	OccurrenceDate time.Time `db:"occurrence_date"`
	TransactionID  string    `db:"transaction_id"`
	Manual         bool      `db:"manual"`
	CreatedAt      time.Time `db:"created_at"`
}
