package services

import (
	"context"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

// Notifier delivers messages to the household.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// EventPublisher broadcasts scheduler events to whoever keeps derived views.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event)
}

// EventSubscriber hands out event streams. The returned func unsubscribes.
type EventSubscriber interface {
	Subscribe(buffer int) (<-chan domain.Event, func())
}
