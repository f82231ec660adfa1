package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

func TestBusFansOut(t *testing.T) {
	bus := NewBus()
	a, unsubA := bus.Subscribe(4)
	b, unsubB := bus.Subscribe(4)
	defer unsubA()
	defer unsubB()

	bus.Publish(context.Background(), domain.Event{Type: domain.EventScheduleCreated, ScheduleID: "s1"})

	for _, ch := range []<-chan domain.Event{a, b} {
		select {
		case evt := <-ch:
			assert.Equal(t, domain.EventScheduleCreated, evt.Type)
			assert.Equal(t, "s1", evt.ScheduleID)
			assert.False(t, evt.At.IsZero(), "publish stamps a time")
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(context.Background(), domain.Event{Type: domain.EventScheduleAdvanced})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventScheduleCompleted})

	require.Len(t, ch, 1)
	assert.Equal(t, domain.EventScheduleAdvanced, (<-ch).Type)
	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestUnsubscribeClosesStream(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), domain.Event{Type: domain.EventScheduleDeleted})
	})
}

func TestLogEventsStopsOnCancel(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		LogEvents(ctx, bus, discardLogger())
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("LogEvents did not return")
	}
}
