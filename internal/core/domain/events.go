package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// EventType names a scheduler event.
type EventType string

const (
	EventScheduleCreated       EventType = "schedule.created"
	EventScheduleUpdated       EventType = "schedule.updated"
	EventScheduleDeleted       EventType = "schedule.deleted"
	EventSchedulePaused        EventType = "schedule.paused"
	EventScheduleResumed       EventType = "schedule.resumed"
	EventScheduleAdvanced      EventType = "schedule.advanced"
	EventScheduleCompleted     EventType = "schedule.completed"
	EventScheduleDue           EventType = "schedule.due"
	EventOccurrenceSkipped     EventType = "occurrence.skipped"
	EventTransactionCreated    EventType = "transaction.created"
	EventMaterializationFailed EventType = "materialization.failed"
)

// Event tells interested layers that scheduler state changed, so they can refresh
// whatever they derive from it.
type Event struct {
	Type           EventType   `json:"type"`
	HouseholdID    string      `json:"householdID"`
	ScheduleID     string      `json:"scheduleID"`
	OccurrenceDate *civil.Date `json:"occurrenceDate,omitempty"`
	NextOccurrence *civil.Date `json:"nextOccurrence,omitempty"`
	TransactionID  string      `json:"transactionID,omitempty"`
	Error          string      `json:"error,omitempty"`
	At             time.Time   `json:"at"`
}

// NewScheduleEvent builds an event carrying the schedule's current position.
func NewScheduleEvent(t EventType, s *Schedule, at time.Time) Event {
	return Event{
		Type:           t,
		HouseholdID:    s.HouseholdID,
		ScheduleID:     s.ScheduleID,
		NextOccurrence: copyDate(s.NextOccurrence),
		At:             at,
	}
}

// NotificationLevel ranks notifications for delivery.
type NotificationLevel string

const (
	NotifyInfo    NotificationLevel = "INFO"
	NotifyWarning NotificationLevel = "WARNING"
)

// Notification is a message for the household about a schedule.
type Notification struct {
	Level       NotificationLevel `json:"level"`
	HouseholdID string            `json:"householdID"`
	ScheduleID  string            `json:"scheduleID"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	At          time.Time         `json:"at"`
}
