package mapping

import (
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	"github.com/SscSPs/mma_recurring/internal/models"
)

func intToInt32(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

func int32ToInt(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

// ToModelSchedule converts a domain Schedule to a model Schedule
func ToModelSchedule(d domain.Schedule) models.Schedule {
	return models.Schedule{
		ScheduleID:        d.ScheduleID,
		HouseholdID:       d.HouseholdID,
		AccountID:         d.AccountID,
		TransactionType:   string(d.Template.Type),
		Amount:            d.Template.Amount,
		CurrencyCode:      d.Template.CurrencyCode,
		Description:       d.Template.Description,
		Merchant:          d.Template.Merchant,
		CategoryID:        d.Template.CategoryID,
		TransferAccountID: d.Template.TransferAccountID,
		Frequency:         string(d.Rule.Frequency),
		DayOfWeek:         intToInt32(d.Rule.DayOfWeek),
		DayOfMonth:        intToInt32(d.Rule.DayOfMonth),
		Month:             intToInt32(d.Rule.Month),
		StartDate:         DateToTime(d.Rule.StartDate),
		EndDate:           DatePtrToTime(d.Rule.EndDate),
		NextOccurrence:    DatePtrToTime(d.NextOccurrence),
		LastOccurrence:    DatePtrToTime(d.LastOccurrence),
		SkippedThrough:    DatePtrToTime(d.SkippedThrough),
		OccurrenceCount:   d.OccurrenceCount,
		IsActive:          d.IsActive,
		AutoCreate:        d.AutoCreate,
		Status:            string(d.Status),
		Version:           d.Version,
		AuditFields:       ToModelAuditFields(d.AuditFields),
	}
}

// ToDomainSchedule converts a model Schedule to a domain Schedule
func ToDomainSchedule(m models.Schedule) domain.Schedule {
	return domain.Schedule{
		ScheduleID:  m.ScheduleID,
		HouseholdID: m.HouseholdID,
		AccountID:   m.AccountID,
		Template: domain.TransactionTemplate{
			Type:              domain.TransactionType(m.TransactionType),
			Amount:            m.Amount,
			CurrencyCode:      m.CurrencyCode,
			Description:       m.Description,
			Merchant:          m.Merchant,
			CategoryID:        m.CategoryID,
			TransferAccountID: m.TransferAccountID,
		},
		Rule: domain.RecurrenceRule{
			Frequency:  domain.Frequency(m.Frequency),
			DayOfWeek:  int32ToInt(m.DayOfWeek),
			DayOfMonth: int32ToInt(m.DayOfMonth),
			Month:      int32ToInt(m.Month),
			StartDate:  TimeToDate(m.StartDate),
			EndDate:    TimePtrToDate(m.EndDate),
		},
		NextOccurrence:  TimePtrToDate(m.NextOccurrence),
		LastOccurrence:  TimePtrToDate(m.LastOccurrence),
		SkippedThrough:  TimePtrToDate(m.SkippedThrough),
		OccurrenceCount: m.OccurrenceCount,
		IsActive:        m.IsActive,
		AutoCreate:      m.AutoCreate,
		Status:          domain.ScheduleStatus(m.Status),
		Version:         m.Version,
		AuditFields:     ToDomainAuditFields(m.AuditFields),
	}
}

// ToModelOccurrence converts a domain Occurrence to a model Occurrence.
func ToModelOccurrence(d domain.Occurrence) models.Occurrence {
	return models.Occurrence{
		ScheduleID:     d.ScheduleID,
		OccurrenceDate: DateToTime(d.OccurrenceDate),
		TransactionID:  d.TransactionID,
		Manual:         d.Manual,
		CreatedAt:      d.CreatedAt,
	}
}

// ToDomainOccurrence converts a model Occurrence to a domain Occurrence.
func ToDomainOccurrence(m models.Occurrence) domain.Occurrence {
	return domain.Occurrence{
		ScheduleID:     m.ScheduleID,
		OccurrenceDate: TimeToDate(m.OccurrenceDate),
		TransactionID:  m.TransactionID,
		Manual:         m.Manual,
		CreatedAt:      m.CreatedAt,
	}
}
