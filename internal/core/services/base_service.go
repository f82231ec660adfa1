package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/middleware"
)

// BaseService provides common functionality for all services
type BaseService struct {
	Events portssvc.EventPublisher
	Clock  func() time.Time
}

// GetLogger gets the logger from context or returns a default one
func (s *BaseService) GetLogger(ctx context.Context) *slog.Logger {
	logger := middleware.GetLoggerFromCtx(ctx)
	if logger == nil {
		// Return a default logger if not found in context
		return slog.Default()
	}
	return logger
}

// LogError logs an error with consistent formatting
func (s *BaseService) LogError(ctx context.Context, err error, msg string, keyvals ...any) {
	logger := s.GetLogger(ctx)
	args := make([]any, 0, len(keyvals)+1)
	args = append(args, slog.String("error", err.Error()))
	args = append(args, keyvals...)
	logger.Error(msg, args...)
}

// LogWarn logs a recoverable problem with consistent formatting
func (s *BaseService) LogWarn(ctx context.Context, err error, msg string, keyvals ...any) {
	logger := s.GetLogger(ctx)
	args := make([]any, 0, len(keyvals)+1)
	args = append(args, slog.String("error", err.Error()))
	args = append(args, keyvals...)
	logger.Warn(msg, args...)
}

// LogInfo logs an info message with consistent formatting
func (s *BaseService) LogInfo(ctx context.Context, msg string, keyvals ...any) {
	logger := s.GetLogger(ctx)
	logger.Info(msg, keyvals...)
}

// LogDebug logs a debug message with consistent formatting
func (s *BaseService) LogDebug(ctx context.Context, msg string, keyvals ...any) {
	logger := s.GetLogger(ctx)
	logger.Debug(msg, keyvals...)
}

// Now returns the service clock, falling back to the wall clock.
func (s *BaseService) Now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// Publish forwards events when a publisher is configured.
func (s *BaseService) Publish(ctx context.Context, events ...domain.Event) {
	if s.Events == nil {
		return
	}
	for _, evt := range events {
		s.Events.Publish(ctx, evt)
	}
}

// ensureOwned hides schedules of other households behind ErrNotFound.
func ensureOwned(schedule *domain.Schedule, householdID string) error {
	if schedule.HouseholdID != householdID {
		return apperrors.NewNotFoundError("schedule " + schedule.ScheduleID + " not found")
	}
	return nil
}
