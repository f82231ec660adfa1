package mapping

import (
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	"github.com/SscSPs/mma_recurring/internal/models"
)

// ToModelLedgerTransaction builds the ledger row for a scheduled post.
func ToModelLedgerTransaction(id string, req domain.TransactionRequest) models.LedgerTransaction {
	return models.LedgerTransaction{
		TransactionID:     id,
		HouseholdID:       req.HouseholdID,
		ScheduleID:        req.ScheduleID,
		AccountID:         req.AccountID,
		TransactionType:   string(req.Type),
		Amount:            req.Amount,
		CurrencyCode:      req.CurrencyCode,
		TransactionDate:   DateToTime(req.Date),
		Description:       req.Description,
		Merchant:          req.Merchant,
		CategoryID:        req.CategoryID,
		TransferAccountID: req.TransferAccountID,
	}
}

// ToDomainMaterializedTransaction converts a ledger row back to the scheduler's view.
func ToDomainMaterializedTransaction(m models.LedgerTransaction) domain.MaterializedTransaction {
	return domain.MaterializedTransaction{
		TransactionID: m.TransactionID,
		TransactionRequest: domain.TransactionRequest{
			ScheduleID:        m.ScheduleID,
			HouseholdID:       m.HouseholdID,
			AccountID:         m.AccountID,
			Type:              domain.TransactionType(m.TransactionType),
			Amount:            m.Amount,
			CurrencyCode:      m.CurrencyCode,
			Date:              TimeToDate(m.TransactionDate),
			Description:       m.Description,
			Merchant:          m.Merchant,
			CategoryID:        m.CategoryID,
			TransferAccountID: m.TransferAccountID,
		},
		CreatedAt: m.CreatedAt,
	}
}
