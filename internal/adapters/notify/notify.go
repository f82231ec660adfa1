// Package notify delivers scheduler notifications to the household.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
)

// LogNotifier writes notifications to the structured log. It is the fallback
// when no chat transport is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier logging through logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

var _ portssvc.Notifier = (*LogNotifier)(nil)

// Notify implements portssvc.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	level := slog.LevelInfo
	if msg.Level == domain.NotifyWarning {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, msg.Title,
		slog.String("household_id", msg.HouseholdID),
		slog.String("schedule_id", msg.ScheduleID),
		slog.String("message", msg.Message))
	return nil
}

// Multi sends every notification to all of its notifiers.
type Multi []portssvc.Notifier

var _ portssvc.Notifier = Multi(nil)

// Notify implements portssvc.Notifier. One failing target does not stop the others.
func (m Multi) Notify(ctx context.Context, msg domain.Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
