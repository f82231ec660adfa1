package dto

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

// CreateScheduleRequest defines the data needed to create a recurring schedule.
type CreateScheduleRequest struct {
	AccountID         string          `json:"accountID" binding:"required"`
	Type              string          `json:"type" binding:"required,txntype"`
	Amount            decimal.Decimal `json:"amount"`
	CurrencyCode      string          `json:"currencyCode" binding:"required,len=3"`
	Description       string          `json:"description" binding:"max=255"`
	Merchant          string          `json:"merchant" binding:"max=255"`
	CategoryID        *string         `json:"categoryID"`
	TransferAccountID *string         `json:"transferAccountID"`
	Frequency         string          `json:"frequency" binding:"required,frequency"`
	DayOfWeek         *int            `json:"dayOfWeek" binding:"omitempty,min=0,max=6"`
	DayOfMonth        *int            `json:"dayOfMonth" binding:"omitempty,min=1,max=31"`
	Month             *int            `json:"month" binding:"omitempty,min=1,max=12"`
	StartDate         civil.Date      `json:"startDate"`
	EndDate           *civil.Date     `json:"endDate"`
	AutoCreate        *bool           `json:"autoCreate"` // defaults to true
}

// Rule extracts the recurrence part of the request.
func (r CreateScheduleRequest) Rule() domain.RecurrenceRule {
	f, _ := domain.ParseFrequency(r.Frequency)
	if f == "" {
		f = domain.Frequency(r.Frequency)
	}
	return domain.RecurrenceRule{
		Frequency:  f,
		DayOfWeek:  r.DayOfWeek,
		DayOfMonth: r.DayOfMonth,
		Month:      r.Month,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
	}
}

// Template extracts the transaction template part of the request.
func (r CreateScheduleRequest) Template() domain.TransactionTemplate {
	t, _ := domain.ParseTransactionType(r.Type)
	if t == "" {
		t = domain.TransactionType(r.Type)
	}
	return domain.TransactionTemplate{
		Type:              t,
		Amount:            r.Amount,
		CurrencyCode:      r.CurrencyCode,
		Description:       r.Description,
		Merchant:          r.Merchant,
		CategoryID:        r.CategoryID,
		TransferAccountID: r.TransferAccountID,
	}
}

// UpdateScheduleRequest defines the data allowed for updating a schedule.
// Use pointers to distinguish between zero-value updates and fields not provided.
type UpdateScheduleRequest struct {
	AccountID         *string          `json:"accountID"`
	Type              *string          `json:"type" binding:"omitempty,txntype"`
	Amount            *decimal.Decimal `json:"amount"`
	CurrencyCode      *string          `json:"currencyCode" binding:"omitempty,len=3"`
	Description       *string          `json:"description" binding:"omitempty,max=255"`
	Merchant          *string          `json:"merchant" binding:"omitempty,max=255"`
	CategoryID        *string          `json:"categoryID"`
	TransferAccountID *string          `json:"transferAccountID"`
	Frequency         *string          `json:"frequency" binding:"omitempty,frequency"`
	DayOfWeek         *int             `json:"dayOfWeek" binding:"omitempty,min=0,max=6"`
	DayOfMonth        *int             `json:"dayOfMonth" binding:"omitempty,min=1,max=31"`
	Month             *int             `json:"month" binding:"omitempty,min=1,max=12"`
	StartDate         *civil.Date      `json:"startDate"`
	EndDate           *civil.Date      `json:"endDate"`
	ClearEndDate      bool             `json:"clearEndDate"` // makes the schedule unbounded
	AutoCreate        *bool            `json:"autoCreate"`
}

// TouchesRecurrence reports whether any recurrence field is present.
func (r UpdateScheduleRequest) TouchesRecurrence() bool {
	return r.Frequency != nil || r.DayOfWeek != nil || r.DayOfMonth != nil || r.Month != nil ||
		r.StartDate != nil || r.EndDate != nil || r.ClearEndDate
}

// ApplyRule overlays the request's recurrence fields onto current.
func (r UpdateScheduleRequest) ApplyRule(current domain.RecurrenceRule) domain.RecurrenceRule {
	next := current
	if r.Frequency != nil {
		f, _ := domain.ParseFrequency(*r.Frequency)
		if f == "" {
			f = domain.Frequency(*r.Frequency)
		}
		next.Frequency = f
	}
	if r.DayOfWeek != nil {
		next.DayOfWeek = r.DayOfWeek
	}
	if r.DayOfMonth != nil {
		next.DayOfMonth = r.DayOfMonth
	}
	if r.Month != nil {
		next.Month = r.Month
	}
	if r.StartDate != nil {
		next.StartDate = *r.StartDate
	}
	if r.ClearEndDate {
		next.EndDate = nil
	} else if r.EndDate != nil {
		next.EndDate = r.EndDate
	}
	return next
}

// ApplyTemplate overlays the request's template fields onto current.
func (r UpdateScheduleRequest) ApplyTemplate(current domain.TransactionTemplate) domain.TransactionTemplate {
	next := current
	if r.Type != nil {
		t, _ := domain.ParseTransactionType(*r.Type)
		if t == "" {
			t = domain.TransactionType(*r.Type)
		}
		next.Type = t
	}
	if r.Amount != nil {
		next.Amount = *r.Amount
	}
	if r.CurrencyCode != nil {
		next.CurrencyCode = *r.CurrencyCode
	}
	if r.Description != nil {
		next.Description = *r.Description
	}
	if r.Merchant != nil {
		next.Merchant = *r.Merchant
	}
	if r.CategoryID != nil {
		next.CategoryID = emptyToNil(r.CategoryID)
	}
	if r.TransferAccountID != nil {
		next.TransferAccountID = emptyToNil(r.TransferAccountID)
	}
	return next
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// SetActiveRequest toggles a schedule between active and paused.
type SetActiveRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// ScheduleResponse defines the data returned for a schedule.
type ScheduleResponse struct {
	ScheduleID        string                 `json:"scheduleID"`
	AccountID         string                 `json:"accountID"`
	Type              domain.TransactionType `json:"type"`
	Amount            decimal.Decimal        `json:"amount"`
	CurrencyCode      string                 `json:"currencyCode"`
	Description       string                 `json:"description"`
	Merchant          string                 `json:"merchant"`
	CategoryID        *string                `json:"categoryID"`
	TransferAccountID *string                `json:"transferAccountID"`
	Frequency         domain.Frequency       `json:"frequency"`
	FrequencyLabel    string                 `json:"frequencyLabel"`
	DayOfWeek         *int                   `json:"dayOfWeek"`
	DayOfMonth        *int                   `json:"dayOfMonth"`
	Month             *int                   `json:"month"`
	StartDate         civil.Date             `json:"startDate"`
	EndDate           *civil.Date            `json:"endDate"`
	NextOccurrence    *civil.Date            `json:"nextOccurrence"`
	LastOccurrence    *civil.Date            `json:"lastOccurrence"`
	SkippedThrough    *civil.Date            `json:"skippedThrough,omitempty"`
	OccurrenceCount   int64                  `json:"occurrenceCount"`
	IsActive          bool                   `json:"isActive"`
	AutoCreate        bool                   `json:"autoCreate"`
	Status            domain.ScheduleStatus  `json:"status"`
	CreatedAt         time.Time              `json:"createdAt"`
	CreatedBy         string                 `json:"createdBy"`
	LastUpdatedAt     time.Time              `json:"lastUpdatedAt"`
	LastUpdatedBy     string                 `json:"lastUpdatedBy"`
}

// ToScheduleResponse converts a domain.Schedule to ScheduleResponse DTO
func ToScheduleResponse(s *domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ScheduleID:        s.ScheduleID,
		AccountID:         s.AccountID,
		Type:              s.Template.Type,
		Amount:            s.Template.Amount,
		CurrencyCode:      s.Template.CurrencyCode,
		Description:       s.Template.Description,
		Merchant:          s.Template.Merchant,
		CategoryID:        s.Template.CategoryID,
		TransferAccountID: s.Template.TransferAccountID,
		Frequency:         s.Rule.Frequency,
		FrequencyLabel:    s.Rule.Frequency.Label(),
		DayOfWeek:         s.Rule.DayOfWeek,
		DayOfMonth:        s.Rule.DayOfMonth,
		Month:             s.Rule.Month,
		StartDate:         s.Rule.StartDate,
		EndDate:           s.Rule.EndDate,
		NextOccurrence:    s.NextOccurrence,
		LastOccurrence:    s.LastOccurrence,
		SkippedThrough:    s.SkippedThrough,
		OccurrenceCount:   s.OccurrenceCount,
		IsActive:          s.IsActive,
		AutoCreate:        s.AutoCreate,
		Status:            s.Status,
		CreatedAt:         s.CreatedAt,
		CreatedBy:         s.CreatedBy,
		LastUpdatedAt:     s.LastUpdatedAt,
		LastUpdatedBy:     s.LastUpdatedBy,
	}
}

// ToListScheduleResponse converts a slice of domain.Schedule to a slice of ScheduleResponse DTOs
func ToListScheduleResponse(schedules []domain.Schedule) []ScheduleResponse {
	res := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		res[i] = ToScheduleResponse(&schedules[i])
	}
	return res
}

// ListSchedulesParams defines query parameters for listing schedules.
type ListSchedulesParams struct {
	Limit     int    `form:"limit,default=20" binding:"min=1,max=100"`
	NextToken string `form:"nextToken"`
	Status    string `form:"status" binding:"omitempty,oneof=ACTIVE PAUSED COMPLETED"`
}

// ListSchedulesResponse wraps a page of schedules.
type ListSchedulesResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
	NextToken *string            `json:"nextToken,omitempty"`
}

// PreviewParams defines query parameters for the upcoming occurrences preview.
type PreviewParams struct {
	Count int `form:"count,default=5" binding:"min=1,max=60"`
}

// PreviewResponse lists upcoming occurrence dates.
type PreviewResponse struct {
	ScheduleID  string       `json:"scheduleID"`
	Occurrences []civil.Date `json:"occurrences"`
}

// OccurrenceResponse describes one posted occurrence.
type OccurrenceResponse struct {
	OccurrenceDate civil.Date `json:"occurrenceDate"`
	TransactionID  string     `json:"transactionID"`
	Manual         bool       `json:"manual"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ToOccurrenceResponses converts posted occurrences to DTOs.
func ToOccurrenceResponses(occ []domain.Occurrence) []OccurrenceResponse {
	res := make([]OccurrenceResponse, len(occ))
	for i, o := range occ {
		res[i] = OccurrenceResponse{
			OccurrenceDate: o.OccurrenceDate,
			TransactionID:  o.TransactionID,
			Manual:         o.Manual,
			CreatedAt:      o.CreatedAt,
		}
	}
	return res
}

// MaterializeResponse reports a manual materialization.
type MaterializeResponse struct {
	Outcome       string           `json:"outcome"`
	TransactionID *string          `json:"transactionID,omitempty"`
	Schedule      ScheduleResponse `json:"schedule"`
}

// ListOccurrencesParams defines query parameters for the occurrence history.
type ListOccurrencesParams struct {
	Limit int `form:"limit,default=50" binding:"min=1,max=500"`
}
