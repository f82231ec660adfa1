// Package events fans scheduler events out to in-process subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
)

const defaultBuffer = 32

// Bus is an in-memory fanout of domain events.
//
// Publish never blocks: a subscriber whose buffer is full misses the event,
// and the miss is counted in Dropped.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan domain.Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

var (
	_ portssvc.EventPublisher  = (*Bus)(nil)
	_ portssvc.EventSubscriber = (*Bus)(nil)
)

// NewBus returns a bus with no subscribers. It owns no goroutines.
func NewBus() *Bus {
	return &Bus{subs: map[uint64]chan domain.Event{}}
}

// Publish delivers evt to every current subscriber.
func (b *Bus) Publish(_ context.Context, evt domain.Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	// Snapshot so sends happen without holding the lock.
	b.mu.RLock()
	chs := make([]chan domain.Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		func() {
			// A concurrent unsubscribe may have closed ch.
			defer func() { _ = recover() }()
			select {
			case ch <- evt:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

// Subscribe registers a buffered stream. The returned func unsubscribes and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan domain.Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// LogEvents writes every event from sub to logger until ctx ends or the stream closes.
func LogEvents(ctx context.Context, sub portssvc.EventSubscriber, logger *slog.Logger) {
	ch, unsubscribe := sub.Subscribe(defaultBuffer)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			attrs := []any{
				slog.String("event", string(evt.Type)),
				slog.String("household_id", evt.HouseholdID),
				slog.String("schedule_id", evt.ScheduleID),
			}
			if evt.OccurrenceDate != nil {
				attrs = append(attrs, slog.String("occurrence_date", evt.OccurrenceDate.String()))
			}
			if evt.NextOccurrence != nil {
				attrs = append(attrs, slog.String("next_occurrence", evt.NextOccurrence.String()))
			}
			if evt.TransactionID != "" {
				attrs = append(attrs, slog.String("transaction_id", evt.TransactionID))
			}
			if evt.Error != "" {
				attrs = append(attrs, slog.String("error", evt.Error))
			}
			logger.Debug("Scheduler event", attrs...)
		}
	}
}
